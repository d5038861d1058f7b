package datasets

import (
	"context"
	"path/filepath"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/gilchrisn/graph-sparsification-service/pkg/graph"
)

// CachingLoader memoises another loader by canonical name and root. Cached
// graphs are shared between callers, which relies on graphs being treated as
// immutable. Concurrent first loads of the same dataset are collapsed.
type CachingLoader struct {
	inner Loader
	group singleflight.Group

	mu     sync.RWMutex
	graphs map[string]*graph.Graph
}

// NewCachingLoader wraps inner with an in-memory cache
func NewCachingLoader(inner Loader) *CachingLoader {
	return &CachingLoader{
		inner:  inner,
		graphs: make(map[string]*graph.Graph),
	}
}

// Load returns the cached graph or loads it through the wrapped loader. Errors are not cached.
func (c *CachingLoader) Load(ctx context.Context, name, root string) (*graph.Graph, error) {
	key := filepath.Join(filepath.Clean(root), CanonicalName(name))

	c.mu.RLock()
	g, ok := c.graphs[key]
	c.mu.RUnlock()
	if ok {
		return g, nil
	}

	v, err, _ := c.group.Do(key, func() (interface{}, error) {
		g, err := c.inner.Load(ctx, name, root)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.graphs[key] = g
		c.mu.Unlock()
		return g, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*graph.Graph), nil
}

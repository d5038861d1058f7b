package datasets

import (
	"bufio"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/gilchrisn/graph-sparsification-service/pkg/graph"
)

const (
	labelsFile   = "labels.txt"
	edgesFile    = "edges.txt"
	featuresFile = "features.txt"
	splitFile    = "split.txt"
)

// GraphParser maps original node IDs to dense indices while reading a dataset directory.
//
// Directory layout (whitespace separated, '#' starts a comment):
//
//	labels.txt    <node> <label>          defines the node set, in file order
//	edges.txt     <src> <dst>             directed edges
//	features.txt  <node> <f1> ... <fD>    optional, rows are L1-normalised
//	split.txt     <node> train|val|test   optional, default split otherwise
type GraphParser struct {
	// Mapping from original node ID to normalized index
	OriginalToNormalized map[string]int
	// Mapping from normalized index to original node ID
	NormalizedToOriginal []string
}

// NewGraphParser creates a new graph parser
func NewGraphParser() *GraphParser {
	return &GraphParser{
		OriginalToNormalized: make(map[string]int),
		NormalizedToOriginal: make([]string, 0),
	}
}

// ParseDirectory reads a dataset directory. splitSeed drives the default
// split when no split file exists.
func ParseDirectory(dir string, splitSeed int64) (*graph.Graph, error) {
	return NewGraphParser().ParseDirectory(dir, splitSeed)
}

// ParseDirectory reads labels, edges, features and split from dir
func (p *GraphParser) ParseDirectory(dir string, splitSeed int64) (*graph.Graph, error) {
	labels, err := p.parseLabels(filepath.Join(dir, labelsFile))
	if err != nil {
		return nil, err
	}

	g := graph.NewGraph(len(labels))
	copy(g.Labels, labels)

	if err := p.parseEdges(filepath.Join(dir, edgesFile), g); err != nil {
		return nil, err
	}

	featPath := filepath.Join(dir, featuresFile)
	if _, err := os.Stat(featPath); err == nil {
		features, err := p.parseFeatures(featPath, g.NumNodes)
		if err != nil {
			return nil, err
		}
		NormalizeRows(features)
		g.Features = features
	}

	splitPath := filepath.Join(dir, splitFile)
	if _, err := os.Stat(splitPath); err == nil {
		if err := p.parseSplit(splitPath, g); err != nil {
			return nil, err
		}
	} else {
		ApplyDefaultSplit(g, rand.New(rand.NewSource(splitSeed)))
	}

	if err := g.Validate(); err != nil {
		return nil, fmt.Errorf("invalid dataset: %w", err)
	}
	if err := g.ValidateDisjointMasks(); err != nil {
		return nil, fmt.Errorf("invalid split: %w", err)
	}
	return g, nil
}

// scanFields calls fn with the fields of every non-empty, non-comment line
func scanFields(path string, fn func(lineNo int, fields []string) error) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 1024*1024), 64*1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if err := fn(lineNo, strings.Fields(line)); err != nil {
			return fmt.Errorf("%s:%d: %w", filepath.Base(path), lineNo, err)
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("error reading file: %w", err)
	}
	return nil
}

func (p *GraphParser) parseLabels(path string) ([]int, error) {
	labels := make([]int, 0)
	err := scanFields(path, func(_ int, fields []string) error {
		if len(fields) < 2 {
			return fmt.Errorf("expected '<node> <label>'")
		}
		if _, dup := p.OriginalToNormalized[fields[0]]; dup {
			return fmt.Errorf("duplicate node %q", fields[0])
		}
		label, err := strconv.Atoi(fields[1])
		if err != nil || label < 0 {
			return fmt.Errorf("invalid label %q", fields[1])
		}
		p.OriginalToNormalized[fields[0]] = len(p.NormalizedToOriginal)
		p.NormalizedToOriginal = append(p.NormalizedToOriginal, fields[0])
		labels = append(labels, label)
		return nil
	})
	if err != nil {
		return nil, err
	}
	if len(labels) == 0 {
		return nil, fmt.Errorf("%s defines no nodes", labelsFile)
	}
	return labels, nil
}

func (p *GraphParser) lookup(id string) (int, error) {
	idx, ok := p.OriginalToNormalized[id]
	if !ok {
		return 0, fmt.Errorf("unknown node %q", id)
	}
	return idx, nil
}

func (p *GraphParser) parseEdges(path string, g *graph.Graph) error {
	return scanFields(path, func(_ int, fields []string) error {
		if len(fields) < 2 {
			return fmt.Errorf("expected '<src> <dst>'")
		}
		src, err := p.lookup(fields[0])
		if err != nil {
			return err
		}
		dst, err := p.lookup(fields[1])
		if err != nil {
			return err
		}
		return g.AddEdge(src, dst)
	})
}

func (p *GraphParser) parseFeatures(path string, numNodes int) (*mat.Dense, error) {
	var features *mat.Dense
	dim := -1
	seen := make([]bool, numNodes)

	err := scanFields(path, func(_ int, fields []string) error {
		idx, err := p.lookup(fields[0])
		if err != nil {
			return err
		}
		values := fields[1:]
		if dim < 0 {
			dim = len(values)
			if dim == 0 {
				return fmt.Errorf("feature rows must not be empty")
			}
			features = mat.NewDense(numNodes, dim, nil)
		}
		if len(values) != dim {
			return fmt.Errorf("expected %d features, got %d", dim, len(values))
		}
		row := features.RawRowView(idx)
		for j, v := range values {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return fmt.Errorf("invalid feature %q", v)
			}
			row[j] = f
		}
		seen[idx] = true
		return nil
	})
	if err != nil {
		return nil, err
	}
	for i, ok := range seen {
		if !ok {
			return nil, fmt.Errorf("node %q has no feature row", p.NormalizedToOriginal[i])
		}
	}
	return features, nil
}

func (p *GraphParser) parseSplit(path string, g *graph.Graph) error {
	return scanFields(path, func(_ int, fields []string) error {
		if len(fields) < 2 {
			return fmt.Errorf("expected '<node> <role>'")
		}
		idx, err := p.lookup(fields[0])
		if err != nil {
			return err
		}
		switch strings.ToLower(fields[1]) {
		case "train":
			g.TrainMask[idx] = true
		case "val", "valid", "validation":
			g.ValMask[idx] = true
		case "test":
			g.TestMask[idx] = true
		default:
			return fmt.Errorf("unknown role %q", fields[1])
		}
		return nil
	})
}

// NormalizeRows scales every row to sum to one; all-zero rows are left as is
func NormalizeRows(x *mat.Dense) {
	r, _ := x.Dims()
	for i := 0; i < r; i++ {
		row := x.RawRowView(i)
		if s := floats.Sum(row); s != 0 {
			floats.Scale(1/s, row)
		}
	}
}

package sparsify

import (
	"fmt"
	"strings"
)

// Constructor builds a configured sparsifier
type Constructor func(keepRatio float64, params Params) (Sparsifier, error)

// Entry is the presentation metadata of a registered strategy
type Entry struct {
	Name        Kind   `json:"name" yaml:"name"`
	Label       string `json:"label" yaml:"label"`
	Description string `json:"description" yaml:"description"`
}

type registration struct {
	entry Entry
	ctor  Constructor
}

// registrations is the closed set of strategies, in presentation order
var registrations = []registration{
	{
		entry: Entry{
			Name:        KindRandom,
			Label:       "Random sampling",
			Description: "Keeps a random fraction of edges. Good baseline to compare against structured methods.",
		},
		ctor: func(r float64, _ Params) (Sparsifier, error) { return wrap(NewRandom(r)) },
	},
	{
		entry: Entry{
			Name:        KindDegree,
			Label:       "High degree edges",
			Description: "Keeps edges that connect high-degree nodes. Preserves hubs and global structure.",
		},
		ctor: func(r float64, _ Params) (Sparsifier, error) { return wrap(NewDegree(r)) },
	},
	{
		entry: Entry{
			Name:        KindSimilarity,
			Label:       "Feature similarity",
			Description: "Keeps edges between nodes with similar feature vectors (cosine similarity). Preserves semantic relationships.",
		},
		ctor: func(r float64, _ Params) (Sparsifier, error) { return wrap(NewSimilarity(r)) },
	},
	{
		entry: Entry{
			Name:        KindTwoStage,
			Label:       "Two-stage (random + degree)",
			Description: "First randomly filters edges, then keeps high-degree edges inside that subset. Good compromise between speed and structure.",
		},
		ctor: func(r float64, p Params) (Sparsifier, error) {
			factor, ok := p[ParamIntermediateFactor]
			if !ok {
				factor = DefaultIntermediateFactor
			}
			return wrap(NewTwoStage(r, factor))
		},
	},
}

// wrap converts a concrete constructor result without leaking a typed nil
func wrap[S Sparsifier](s S, err error) (Sparsifier, error) {
	if err != nil {
		return nil, err
	}
	return s, nil
}

// lookupTable is built once from registrations
var lookupTable = func() map[Kind]Constructor {
	m := make(map[Kind]Constructor, len(registrations))
	for _, reg := range registrations {
		m[reg.entry.Name] = reg.ctor
	}
	return m
}()

// Lookup returns the constructor registered under name
func Lookup(name string) (Constructor, error) {
	ctor, ok := lookupTable[Kind(name)]
	if !ok {
		return nil, fmt.Errorf("%w: %q (want one of %s)", ErrUnknownSparsifier, name, strings.Join(Names(), ", "))
	}
	return ctor, nil
}

// New looks up name and constructs a sparsifier with the given keep ratio
func New(name string, keepRatio float64, params Params) (Sparsifier, error) {
	ctor, err := Lookup(name)
	if err != nil {
		return nil, err
	}
	return ctor(keepRatio, params)
}

// Entries lists every registered strategy with its label and description
func Entries() []Entry {
	out := make([]Entry, len(registrations))
	for i, reg := range registrations {
		out[i] = reg.entry
	}
	return out
}

// Names lists the registered strategy names in presentation order
func Names() []string {
	out := make([]string, len(registrations))
	for i, reg := range registrations {
		out[i] = string(reg.entry.Name)
	}
	return out
}

// Package catalog describes the models available to the execution engine.
// Descriptors are read-only metadata: the engine selects candidates from a
// Catalog but never mutates it, and invocation happens elsewhere.
package catalog

import (
	"sort"
	"sync"

	pkgerrors "github.com/manifold-ai/manifold/pkg/errors"
)

// Class categorizes a model by the role it plays in multi-context execution.
type Class string

const (
	// ClassInterface models are dialogue/generation oriented: chat, code
	// generation, instruction following.
	ClassInterface Class = "interface"

	// ClassKnowledge models are retrieval/context oriented: background
	// information, best practices, fact extraction.
	ClassKnowledge Class = "knowledge"

	// ClassEmbedding models produce vector representations. The engine never
	// selects these; they exist so class filtering is meaningful.
	ClassEmbedding Class = "embedding"

	// ClassSpecialized models serve narrow tasks (sentiment, translation).
	ClassSpecialized Class = "specialized"
)

// Valid reports whether the class is one of the known values.
func (c Class) Valid() bool {
	switch c {
	case ClassInterface, ClassKnowledge, ClassEmbedding, ClassSpecialized:
		return true
	}
	return false
}

// ModelDescriptor identifies one model and its capabilities.
// Descriptors are immutable; the engine references them by ID only.
type ModelDescriptor struct {
	// ID is the unique model identifier (e.g., "manifold-chat-7b").
	ID string `yaml:"id" json:"id"`

	// Name is the human-readable model name.
	Name string `yaml:"name" json:"name"`

	// Class indicates the model's role (interface, knowledge, ...).
	Class Class `yaml:"class" json:"class"`

	// Tags are free-form capability markers (e.g., "chat", "code-generation").
	Tags []string `yaml:"tags,omitempty" json:"tags,omitempty"`

	// ContextWindow is the maximum context length in tokens.
	ContextWindow int `yaml:"context_window,omitempty" json:"context_window,omitempty"`

	// Parameters is the approximate parameter count label (e.g., "7B").
	Parameters string `yaml:"parameters,omitempty" json:"parameters,omitempty"`
}

// HasTag reports whether the descriptor carries the given capability tag.
func (d ModelDescriptor) HasTag(tag string) bool {
	for _, t := range d.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// Catalog supplies the set of available models. Implementations must be safe
// for concurrent use.
type Catalog interface {
	// List returns every descriptor in catalog order.
	List() []ModelDescriptor

	// ListByClass returns descriptors of the given class, preserving catalog
	// order. Callers take the top N of the returned slice, so order matters.
	ListByClass(class Class) []ModelDescriptor

	// Get returns the descriptor with the given ID.
	Get(id string) (ModelDescriptor, error)
}

// Static is an in-memory Catalog over a fixed descriptor slice.
type Static struct {
	mu     sync.RWMutex
	models []ModelDescriptor
	byID   map[string]int
}

// NewStatic creates a catalog from the given descriptors. Order is preserved:
// ListByClass returns models in the order they were provided, which defines
// the engine's default top-N selection.
func NewStatic(models []ModelDescriptor) *Static {
	s := &Static{
		models: make([]ModelDescriptor, len(models)),
		byID:   make(map[string]int, len(models)),
	}
	copy(s.models, models)
	for i, m := range s.models {
		s.byID[m.ID] = i
	}
	return s
}

// List returns every descriptor in catalog order.
func (s *Static) List() []ModelDescriptor {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]ModelDescriptor, len(s.models))
	copy(out, s.models)
	return out
}

// ListByClass returns descriptors of the given class in catalog order.
func (s *Static) ListByClass(class Class) []ModelDescriptor {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []ModelDescriptor
	for _, m := range s.models {
		if m.Class == class {
			out = append(out, m)
		}
	}
	return out
}

// Get returns the descriptor with the given ID.
func (s *Static) Get(id string) (ModelDescriptor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	i, ok := s.byID[id]
	if !ok {
		return ModelDescriptor{}, &pkgerrors.NotFoundError{Resource: "model", ID: id}
	}
	return s.models[i], nil
}

// Classes returns the distinct classes present in the catalog, sorted.
func (s *Static) Classes() []Class {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[Class]struct{})
	for _, m := range s.models {
		seen[m.Class] = struct{}{}
	}
	out := make([]Class, 0, len(seen))
	for c := range seen {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Default returns the built-in model catalog. It mirrors the shape of a real
// deployment: several interface models, a couple of knowledge models, and
// other-class entries the engine must skip during selection.
func Default() *Static {
	return NewStatic([]ModelDescriptor{
		{
			ID:            "manifold-chat-7b",
			Name:          "Manifold Chat 7B",
			Class:         ClassInterface,
			Tags:          []string{"chat", "text-generation", "question-answering"},
			ContextWindow: 4096,
			Parameters:    "7B",
		},
		{
			ID:            "manifold-chat-13b",
			Name:          "Manifold Chat 13B",
			Class:         ClassInterface,
			Tags:          []string{"chat", "text-generation", "question-answering", "reasoning"},
			ContextWindow: 8192,
			Parameters:    "13B",
		},
		{
			ID:            "manifold-code-7b",
			Name:          "Manifold Code 7B",
			Class:         ClassInterface,
			Tags:          []string{"code-generation", "code-completion", "code-explanation"},
			ContextWindow: 16384,
			Parameters:    "7B",
		},
		{
			ID:            "manifold-knowledge-7b",
			Name:          "Manifold Knowledge 7B",
			Class:         ClassKnowledge,
			Tags:          []string{"question-answering", "information-retrieval", "summarization"},
			ContextWindow: 8192,
			Parameters:    "7B",
		},
		{
			ID:            "manifold-knowledge-13b",
			Name:          "Manifold Knowledge 13B",
			Class:         ClassKnowledge,
			Tags:          []string{"question-answering", "information-retrieval", "fact-extraction"},
			ContextWindow: 16384,
			Parameters:    "13B",
		},
		{
			ID:            "manifold-embed-base",
			Name:          "Manifold Embed Base",
			Class:         ClassEmbedding,
			Tags:          []string{"embeddings"},
			ContextWindow: 512,
			Parameters:    "110M",
		},
		{
			ID:            "manifold-sentiment-base",
			Name:          "Manifold Sentiment Base",
			Class:         ClassSpecialized,
			Tags:          []string{"sentiment-analysis"},
			ContextWindow: 512,
			Parameters:    "125M",
		},
	})
}

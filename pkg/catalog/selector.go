package catalog

import (
	"fmt"
	"sync"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	pkgerrors "github.com/manifold-ai/manifold/pkg/errors"
)

// Selector filters catalog descriptors with expr-lang expressions before the
// engine's top-N truncation. It caches compiled expressions for repeated use.
type Selector struct {
	cache map[string]*vm.Program
	mu    sync.RWMutex
}

// NewSelector creates a new expression selector.
func NewSelector() *Selector {
	return &Selector{
		cache: make(map[string]*vm.Program),
	}
}

// Filter returns the descriptors for which the expression evaluates to true.
// An empty expression selects everything. The expression sees one variable,
// `model`, with fields id, name, class, tags, context_window and parameters.
//
// Example:
//
//	filtered, err := sel.Filter(`"code-generation" in model.tags`, models)
func (s *Selector) Filter(expression string, models []ModelDescriptor) ([]ModelDescriptor, error) {
	if expression == "" {
		return models, nil
	}

	program, err := s.compile(expression)
	if err != nil {
		return nil, &pkgerrors.ValidationError{
			Field:      "filter",
			Message:    fmt.Sprintf("failed to compile filter expression: %s", err.Error()),
			Suggestion: "check expression syntax; the only bound variable is `model`",
		}
	}

	var out []ModelDescriptor
	for _, m := range models {
		env := map[string]interface{}{
			"model": map[string]interface{}{
				"id":             m.ID,
				"name":           m.Name,
				"class":          string(m.Class),
				"tags":           m.Tags,
				"context_window": m.ContextWindow,
				"parameters":     m.Parameters,
			},
		}

		result, err := expr.Run(program, env)
		if err != nil {
			return nil, &pkgerrors.ValidationError{
				Field:      "filter",
				Message:    fmt.Sprintf("filter evaluation failed: %s", err.Error()),
				Suggestion: "verify that all referenced fields exist on `model`",
			}
		}

		match, ok := result.(bool)
		if !ok {
			return nil, &pkgerrors.ValidationError{
				Field:      "filter",
				Message:    fmt.Sprintf("filter must return boolean, got %T (%v)", result, result),
				Suggestion: "use comparison operators (==, !=, in) or boolean functions",
			}
		}

		if match {
			out = append(out, m)
		}
	}

	return out, nil
}

// compile compiles an expression and caches the result.
func (s *Selector) compile(expression string) (*vm.Program, error) {
	s.mu.RLock()
	if prog, ok := s.cache[expression]; ok {
		s.mu.RUnlock()
		return prog, nil
	}
	s.mu.RUnlock()

	prog, err := expr.Compile(expression)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.cache[expression] = prog
	s.mu.Unlock()

	return prog, nil
}

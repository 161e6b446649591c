package engine

import (
	pkgerrors "github.com/manifold-ai/manifold/pkg/errors"
)

// Selection defaults shared by strategies and the CLI/HTTP boundary.
const (
	// DefaultNumInterface is the default interface-model fan-out for parallel.
	DefaultNumInterface = 2

	// DefaultNumKnowledge is the default knowledge-model fan-out for parallel.
	DefaultNumKnowledge = 1

	// DefaultConsensusModels caps the consensus pool.
	DefaultConsensusModels = 3

	// SequentialSpeedup is the fixed speedup reported for chained executions.
	// The two calls are causally ordered, so no concurrency gain is measured.
	SequentialSpeedup = 0.5

	// DefaultModule is the task-domain hint used when a request names none.
	DefaultModule = "code_generation"
)

// Strategy selects which models run and how their outputs combine for one
// request. It is a closed set: the engine type-switches over the concrete
// types below, so adding a strategy is a compile-time-checked change.
type Strategy interface {
	// Name returns the wire name of the strategy.
	Name() string

	isStrategy()
}

// Parallel fans out to the top-K interface models and top-M knowledge models
// concurrently and synthesizes both classes' outputs. This is the primary
// strategy.
type Parallel struct {
	// NumInterface is the interface-model fan-out (top-K by catalog order).
	NumInterface int

	// NumKnowledge is the knowledge-model fan-out (top-M by catalog order).
	NumKnowledge int
}

// Name returns "parallel".
func (Parallel) Name() string { return "parallel" }
func (Parallel) isStrategy()  {}

// InterfaceOnly runs the top interface model and passes its result through.
type InterfaceOnly struct{}

// Name returns "interface_only".
func (InterfaceOnly) Name() string { return "interface_only" }
func (InterfaceOnly) isStrategy()  {}

// KnowledgeOnly runs the top knowledge model and passes its result through.
type KnowledgeOnly struct{}

// Name returns "knowledge_only".
func (KnowledgeOnly) Name() string { return "knowledge_only" }
func (KnowledgeOnly) isStrategy()  {}

// Sequential chains one interface model, then one knowledge model whose
// prompt is augmented with the interface output as context.
type Sequential struct{}

// Name returns "sequential".
func (Sequential) Name() string { return "sequential" }
func (Sequential) isStrategy()  {}

// Consensus runs up to MaxModels models of any class; the highest-confidence
// result wins.
type Consensus struct {
	// MaxModels caps the pool size. Zero means DefaultConsensusModels.
	MaxModels int
}

// Name returns "consensus".
func (Consensus) Name() string { return "consensus" }
func (Consensus) isStrategy()  {}

// ParseStrategy maps a wire name plus fan-out parameters to a Strategy value.
// It is the only place strategy names are matched as strings; everything past
// the CLI/HTTP boundary works with the typed variants.
func ParseStrategy(name string, numInterface, numKnowledge int) (Strategy, error) {
	if numInterface <= 0 {
		numInterface = DefaultNumInterface
	}
	if numKnowledge <= 0 {
		numKnowledge = DefaultNumKnowledge
	}

	switch name {
	case "parallel", "":
		return Parallel{NumInterface: numInterface, NumKnowledge: numKnowledge}, nil
	case "interface_only":
		return InterfaceOnly{}, nil
	case "knowledge_only":
		return KnowledgeOnly{}, nil
	case "sequential":
		return Sequential{}, nil
	case "consensus":
		return Consensus{MaxModels: DefaultConsensusModels}, nil
	default:
		return nil, &pkgerrors.ValidationError{
			Field:      "strategy",
			Message:    "unknown strategy: " + name,
			Suggestion: "use one of: parallel, interface_only, knowledge_only, sequential, consensus",
		}
	}
}

// StrategyNames lists the wire names of all strategies, for help text and
// input validation at the boundary.
func StrategyNames() []string {
	return []string{"parallel", "interface_only", "knowledge_only", "sequential", "consensus"}
}

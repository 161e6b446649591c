package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/manifold-ai/manifold/internal/log"
	"github.com/manifold-ai/manifold/pkg/backend"
	"github.com/manifold-ai/manifold/pkg/catalog"
	pkgerrors "github.com/manifold-ai/manifold/pkg/errors"
)

var (
	// ErrNoModelsAvailable indicates the catalog has zero candidates for
	// every class the strategy needs. Terminal; the engine does not retry.
	ErrNoModelsAvailable = pkgerrors.New("no models available")
)

// Request is one execute call's input.
type Request struct {
	// Prompt is the raw user prompt.
	Prompt string

	// Strategy selects which models run and how outputs combine.
	// Nil defaults to Parallel with the default fan-out.
	Strategy Strategy

	// Filter is an optional expr-lang expression narrowing the candidate
	// models before top-N selection (e.g. `"code-generation" in model.tags`).
	Filter string

	// Module is the task-domain hint forwarded to the backend
	// (code_generation, documents, database, browser).
	// Empty defaults to DefaultModule.
	Module string

	// Context is an optional map rendered into the prompt templates.
	Context map[string]string

	// Params overrides the default sampling parameters when non-nil.
	Params *Params
}

// Engine is the multi-context execution core. It is safe for concurrent use:
// each execution owns its requests and results exclusively, and the only
// shared mutable state is the ledger, which serializes its own updates.
type Engine struct {
	catalog    catalog.Catalog
	selector   *catalog.Selector
	dispatcher *Dispatcher
	synth      *Synthesizer
	ledger     *Ledger
	logger     *slog.Logger
	params     Params
}

// Option configures an Engine.
type Option func(*options)

type options struct {
	logger         *slog.Logger
	concurrency    int
	perCallTimeout time.Duration
	weights        Weights
	ledgerCapacity int
	params         Params
	invoker        Invoker
}

// WithLogger sets the engine's structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithConcurrency bounds the number of in-flight model calls.
func WithConcurrency(n int) Option {
	return func(o *options) { o.concurrency = n }
}

// WithPerCallTimeout sets the deadline for each individual model call.
func WithPerCallTimeout(d time.Duration) Option {
	return func(o *options) { o.perCallTimeout = d }
}

// WithWeights sets the synthesis policy table.
func WithWeights(w Weights) Option {
	return func(o *options) { o.weights = w }
}

// WithLedgerCapacity sets the recent-history ring size.
func WithLedgerCapacity(n int) Option {
	return func(o *options) { o.ledgerCapacity = n }
}

// WithParams sets the default sampling parameters.
func WithParams(p Params) Option {
	return func(o *options) { o.params = p }
}

// WithInvoker replaces the backend invoker, primarily for tests.
func WithInvoker(inv Invoker) Option {
	return func(o *options) { o.invoker = inv }
}

// New creates an engine over the given catalog and backend.
func New(cat catalog.Catalog, be backend.Backend, opts ...Option) *Engine {
	o := &options{
		concurrency:    DefaultConcurrency,
		perCallTimeout: DefaultPerCallTimeout,
		weights:        DefaultWeights(),
		ledgerCapacity: DefaultLedgerCapacity,
		params:         DefaultParams(),
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.logger == nil {
		o.logger = slog.New(slog.DiscardHandler)
	}
	if o.invoker == nil {
		o.invoker = NewBackendInvoker(be, o.logger)
	}

	return &Engine{
		catalog:    cat,
		selector:   catalog.NewSelector(),
		dispatcher: NewDispatcher(o.invoker, o.concurrency, o.perCallTimeout, o.logger),
		synth:      NewSynthesizer(o.weights),
		ledger:     NewLedger(o.ledgerCapacity),
		logger:     o.logger,
		params:     o.params,
	}
}

// Statistics returns a consistent snapshot of the engine's ledger.
func (e *Engine) Statistics() Snapshot {
	return e.ledger.Snapshot()
}

// SetWeights swaps the synthesis policy table at runtime, used by the
// configuration hot-reload path.
func (e *Engine) SetWeights(w Weights) error {
	return e.synth.SetWeights(w)
}

// Execute runs one prompt through the selected strategy. It returns an error
// only for malformed requests; all execution failures (no candidate models,
// every model failing, individual timeouts) are reported inside a
// structurally complete ExecutionResult.
func (e *Engine) Execute(ctx context.Context, req Request) (*ExecutionResult, error) {
	if req.Prompt == "" {
		return nil, &pkgerrors.ValidationError{
			Field:      "prompt",
			Message:    "prompt must not be empty",
			Suggestion: "supply the user prompt to execute",
		}
	}
	if req.Strategy == nil {
		req.Strategy = Parallel{NumInterface: DefaultNumInterface, NumKnowledge: DefaultNumKnowledge}
	}
	if req.Params == nil {
		p := e.params
		req.Params = &p
	}
	if req.Module == "" {
		req.Module = DefaultModule
	}

	id := uuid.NewString()
	logger := log.WithExecutionID(e.logger, id)
	start := time.Now()

	var result *ExecutionResult
	var err error

	switch s := req.Strategy.(type) {
	case Parallel:
		result, err = e.executeParallel(ctx, req, s)
	case InterfaceOnly:
		result, err = e.executeSingleClass(ctx, req, catalog.ClassInterface, s.Name())
	case KnowledgeOnly:
		result, err = e.executeSingleClass(ctx, req, catalog.ClassKnowledge, s.Name())
	case Sequential:
		result, err = e.executeSequential(ctx, req)
	case Consensus:
		result, err = e.executeConsensus(ctx, req, s)
	default:
		return nil, &pkgerrors.ValidationError{
			Field:      "strategy",
			Message:    fmt.Sprintf("unsupported strategy type %T", req.Strategy),
			Suggestion: "use a strategy value from this package",
		}
	}
	if err != nil {
		return nil, err
	}

	result.ID = id
	result.Strategy = req.Strategy.Name()
	result.Elapsed = Millis(time.Since(start))

	e.ledger.Record(req.Prompt, result)

	logger.Info("execution complete",
		log.StrategyKey, result.Strategy,
		"models_executed", result.ModelsExecuted,
		log.DurationKey, result.Elapsed.Duration().Milliseconds(),
		"speedup", result.Speedup,
		"success", result.Success,
	)

	return result, nil
}

// candidates returns the top-N models of a class after the optional filter.
func (e *Engine) candidates(class catalog.Class, n int, filter string) ([]catalog.ModelDescriptor, error) {
	models := e.catalog.ListByClass(class)
	models, err := e.selector.Filter(filter, models)
	if err != nil {
		return nil, err
	}
	if len(models) > n {
		models = models[:n]
	}
	return models, nil
}

// buildRequests renders class-specific prompts for the given descriptors.
func buildRequests(models []catalog.ModelDescriptor, class catalog.Class, req Request) []InvocationRequest {
	out := make([]InvocationRequest, 0, len(models))
	for _, m := range models {
		var prompt string
		switch class {
		case catalog.ClassKnowledge:
			prompt = renderKnowledgePrompt(req.Prompt, req.Context)
		default:
			prompt = renderInterfacePrompt(req.Prompt, req.Context)
		}
		out = append(out, InvocationRequest{
			ModelID:   m.ID,
			ModelName: m.Name,
			Class:     m.Class,
			Prompt:    prompt,
			Module:    req.Module,
			Params:    *req.Params,
		})
	}
	return out
}

// executeParallel is the primary strategy: interface and knowledge models
// run simultaneously and their outputs are synthesized.
func (e *Engine) executeParallel(ctx context.Context, req Request, s Parallel) (*ExecutionResult, error) {
	numInterface := s.NumInterface
	if numInterface <= 0 {
		numInterface = DefaultNumInterface
	}
	numKnowledge := s.NumKnowledge
	if numKnowledge <= 0 {
		numKnowledge = DefaultNumKnowledge
	}

	interfaceModels, err := e.candidates(catalog.ClassInterface, numInterface, req.Filter)
	if err != nil {
		return nil, err
	}
	knowledgeModels, err := e.candidates(catalog.ClassKnowledge, numKnowledge, req.Filter)
	if err != nil {
		return nil, err
	}

	if len(interfaceModels) == 0 && len(knowledgeModels) == 0 {
		return failedResult(ErrNoModelsAvailable.Error()), nil
	}

	requests := append(
		buildRequests(interfaceModels, catalog.ClassInterface, req),
		buildRequests(knowledgeModels, catalog.ClassKnowledge, req)...,
	)

	results := e.dispatcher.DispatchAll(ctx, requests)
	interfaceResults, knowledgeResults := splitByClass(results)

	output, confidence := e.synth.Combine(interfaceResults, knowledgeResults)

	result := &ExecutionResult{
		ModelsExecuted:   len(results),
		InterfaceResults: interfaceResults,
		KnowledgeResults: knowledgeResults,
		Output:           output,
		Confidence:       confidence,
		Speedup:          speedupRatio(results),
		Success:          output != "",
	}
	if !result.Success {
		result.Confidence = 0
		result.Err = aggregateFailure(results)
	}
	return result, nil
}

// executeSingleClass runs the top model of one class and passes its result
// through unchanged.
func (e *Engine) executeSingleClass(ctx context.Context, req Request, class catalog.Class, strategy string) (*ExecutionResult, error) {
	models, err := e.candidates(class, 1, req.Filter)
	if err != nil {
		return nil, err
	}
	if len(models) == 0 {
		return failedResult(ErrNoModelsAvailable.Error()), nil
	}

	results := e.dispatcher.DispatchAll(ctx, buildRequests(models, class, req))
	r := results[0]

	interfaceResults, knowledgeResults := splitByClass(results)

	result := &ExecutionResult{
		ModelsExecuted:   1,
		InterfaceResults: interfaceResults,
		KnowledgeResults: knowledgeResults,
		Output:           r.Output,
		Confidence:       r.Confidence,
		Speedup:          1.0,
		Success:          r.Success,
	}
	if !r.Success {
		result.Err = r.Err
	}
	return result, nil
}

// executeSequential chains one interface model, then one knowledge model
// whose prompt carries the interface output as context. The calls are
// causally ordered, so the reported speedup is a fixed sub-unity constant.
func (e *Engine) executeSequential(ctx context.Context, req Request) (*ExecutionResult, error) {
	interfaceModels, err := e.candidates(catalog.ClassInterface, 1, req.Filter)
	if err != nil {
		return nil, err
	}
	knowledgeModels, err := e.candidates(catalog.ClassKnowledge, 1, req.Filter)
	if err != nil {
		return nil, err
	}
	if len(interfaceModels) == 0 && len(knowledgeModels) == 0 {
		return failedResult(ErrNoModelsAvailable.Error()), nil
	}

	var interfaceResults []InvocationResult
	var interfaceOutput string
	if len(interfaceModels) > 0 {
		results := e.dispatcher.DispatchAll(ctx, buildRequests(interfaceModels, catalog.ClassInterface, req))
		interfaceResults = results
		if results[0].Success {
			interfaceOutput = results[0].Output
		}
	}

	var knowledgeResults []InvocationResult
	if len(knowledgeModels) > 0 {
		m := knowledgeModels[0]
		augmented := augmentWithInterfaceOutput(req.Prompt, interfaceOutput)
		knowledgeResults = e.dispatcher.DispatchAll(ctx, []InvocationRequest{{
			ModelID:   m.ID,
			ModelName: m.Name,
			Class:     m.Class,
			Prompt:    renderKnowledgePrompt(augmented, req.Context),
			Module:    req.Module,
			Params:    *req.Params,
		}})
	}

	output, confidence := e.synth.Combine(interfaceResults, knowledgeResults)

	result := &ExecutionResult{
		ModelsExecuted:   len(interfaceResults) + len(knowledgeResults),
		InterfaceResults: interfaceResults,
		KnowledgeResults: knowledgeResults,
		Output:           output,
		Confidence:       confidence,
		Speedup:          SequentialSpeedup,
		Success:          output != "",
	}
	if !result.Success {
		result.Confidence = 0
		result.Err = aggregateFailure(append(interfaceResults, knowledgeResults...))
	}
	return result, nil
}

// executeConsensus runs up to MaxModels models of any class concurrently and
// keeps the single highest-confidence output.
func (e *Engine) executeConsensus(ctx context.Context, req Request, s Consensus) (*ExecutionResult, error) {
	maxModels := s.MaxModels
	if maxModels <= 0 {
		maxModels = DefaultConsensusModels
	}

	interfaceModels, err := e.candidates(catalog.ClassInterface, maxModels, req.Filter)
	if err != nil {
		return nil, err
	}
	knowledgeModels, err := e.candidates(catalog.ClassKnowledge, maxModels, req.Filter)
	if err != nil {
		return nil, err
	}

	pool := append(interfaceModels, knowledgeModels...)
	if len(pool) == 0 {
		return failedResult(ErrNoModelsAvailable.Error()), nil
	}
	if len(pool) > maxModels {
		pool = pool[:maxModels]
	}

	var requests []InvocationRequest
	for _, m := range pool {
		requests = append(requests, buildRequests([]catalog.ModelDescriptor{m}, m.Class, req)...)
	}

	results := e.dispatcher.DispatchAll(ctx, requests)
	interfaceResults, knowledgeResults := splitByClass(results)

	winner := e.synth.Vote(results)

	result := &ExecutionResult{
		ModelsExecuted:   len(results),
		InterfaceResults: interfaceResults,
		KnowledgeResults: knowledgeResults,
		Speedup:          speedupRatio(results),
		Success:          winner != nil,
	}
	if winner != nil {
		result.Output = winner.Output
		result.Confidence = winner.Confidence
	} else {
		result.Err = aggregateFailure(results)
	}
	return result, nil
}

// splitByClass partitions results into interface-class and knowledge-class
// lists, preserving submission order within each.
func splitByClass(results []InvocationResult) ([]InvocationResult, []InvocationResult) {
	var interfaceResults, knowledgeResults []InvocationResult
	for _, r := range results {
		if r.Class == catalog.ClassKnowledge {
			knowledgeResults = append(knowledgeResults, r)
		} else {
			interfaceResults = append(interfaceResults, r)
		}
	}
	return interfaceResults, knowledgeResults
}

// failedResult builds a terminal failure with zero models executed.
func failedResult(msg string) *ExecutionResult {
	return &ExecutionResult{
		ModelsExecuted: 0,
		Success:        false,
		Err:            msg,
	}
}

// aggregateFailure describes a batch in which every invocation failed.
func aggregateFailure(results []InvocationResult) string {
	return fmt.Sprintf("all %d model invocations failed", len(results))
}

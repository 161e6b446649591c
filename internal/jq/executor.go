// Package jq evaluates jq expressions against execution results, backing the
// CLI's --jq output transform and the HTTP API's transform parameter.
package jq

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/itchyny/gojq"
)

const (
	// DefaultTimeout bounds one expression evaluation.
	DefaultTimeout = 1 * time.Second

	// DefaultMaxInputSize caps the serialized size of transform input (10MB).
	DefaultMaxInputSize = 10 * 1024 * 1024
)

// Executor evaluates jq expressions with a timeout and an input size limit.
// Compiled expressions are cached; the CLI and server reuse one executor.
type Executor struct {
	timeout      time.Duration
	maxInputSize int64

	mu    sync.RWMutex
	cache map[string]*gojq.Code
}

// NewExecutor creates an executor. Zero values select the defaults.
func NewExecutor(timeout time.Duration, maxInputSize int64) *Executor {
	if timeout == 0 {
		timeout = DefaultTimeout
	}
	if maxInputSize == 0 {
		maxInputSize = DefaultMaxInputSize
	}
	return &Executor{
		timeout:      timeout,
		maxInputSize: maxInputSize,
		cache:        make(map[string]*gojq.Code),
	}
}

// Execute runs an expression against data. An empty expression returns the
// data unchanged. A query yielding one value returns it directly; multiple
// values come back as a slice.
func (e *Executor) Execute(ctx context.Context, expression string, data interface{}) (interface{}, error) {
	if expression == "" {
		return data, nil
	}

	if err := e.validateInputSize(data); err != nil {
		return nil, err
	}

	code, err := e.compile(expression)
	if err != nil {
		return nil, err
	}

	execCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	resultChan := make(chan interface{}, 1)
	errorChan := make(chan error, 1)

	go func() {
		iter := code.RunWithContext(execCtx, data)

		var results []interface{}
		for {
			v, ok := iter.Next()
			if !ok {
				break
			}
			if err, isErr := v.(error); isErr {
				errorChan <- err
				return
			}
			results = append(results, v)
		}

		switch len(results) {
		case 0:
			resultChan <- nil
		case 1:
			resultChan <- results[0]
		default:
			resultChan <- results
		}
	}()

	select {
	case result := <-resultChan:
		return result, nil
	case err := <-errorChan:
		return nil, err
	case <-execCtx.Done():
		return nil, fmt.Errorf("transform timeout after %v", e.timeout)
	}
}

// Validate compiles an expression without running it, so transform syntax
// errors surface before any models are invoked.
func (e *Executor) Validate(expression string) error {
	if expression == "" {
		return nil
	}
	_, err := e.compile(expression)
	return err
}

func (e *Executor) compile(expression string) (*gojq.Code, error) {
	e.mu.RLock()
	code, ok := e.cache[expression]
	e.mu.RUnlock()
	if ok {
		return code, nil
	}

	query, err := gojq.Parse(expression)
	if err != nil {
		return nil, fmt.Errorf("invalid jq expression: %w", err)
	}
	code, err = gojq.Compile(query)
	if err != nil {
		return nil, fmt.Errorf("jq compilation failed: %w", err)
	}

	e.mu.Lock()
	e.cache[expression] = code
	e.mu.Unlock()

	return code, nil
}

// validateInputSize estimates input size by marshaling to JSON.
func (e *Executor) validateInputSize(data interface{}) error {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal transform input: %w", err)
	}
	if int64(len(jsonData)) > e.maxInputSize {
		return fmt.Errorf("transform input (%d bytes) exceeds maximum (%d bytes)",
			len(jsonData), e.maxInputSize)
	}
	return nil
}

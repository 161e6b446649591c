// Copyright 2026 The Manifold Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package shared

import (
	"errors"
	"fmt"
	"os"

	pkgerrors "github.com/manifold-ai/manifold/pkg/errors"
)

// Exit codes for the manifold CLI
const (
	ExitSuccess         = 0
	ExitExecutionFailed = 1
	ExitInvalidInput    = 2
	ExitConfigError     = 3
	ExitBackendError    = 4
)

// ExitError is an error that carries an exit code.
type ExitError struct {
	Code    int
	Message string
	Cause   error
}

func (e *ExitError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error {
	return e.Cause
}

// NewExecutionError creates an error for execution failures.
func NewExecutionError(msg string, cause error) *ExitError {
	return &ExitError{Code: ExitExecutionFailed, Message: msg, Cause: cause}
}

// NewInvalidInputError creates an error for bad command input.
func NewInvalidInputError(msg string, cause error) *ExitError {
	return &ExitError{Code: ExitInvalidInput, Message: msg, Cause: cause}
}

// NewConfigError creates an error for configuration problems.
func NewConfigError(msg string, cause error) *ExitError {
	return &ExitError{Code: ExitConfigError, Message: msg, Cause: cause}
}

// NewBackendError creates an error for backend connectivity failures.
func NewBackendError(msg string, cause error) *ExitError {
	return &ExitError{Code: ExitBackendError, Message: msg, Cause: cause}
}

// HandleExitError prints an error (and any actionable suggestion in its
// chain) to stderr and exits with the appropriate code.
func HandleExitError(err error) {
	if err == nil {
		return
	}

	fmt.Fprintln(os.Stderr, "Error:", err.Error())
	printSuggestion(err)

	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		os.Exit(exitErr.Code)
	}
	os.Exit(ExitExecutionFailed)
}

// printSuggestion walks the error chain for a ValidationError's suggestion.
func printSuggestion(err error) {
	var verr *pkgerrors.ValidationError
	if errors.As(err, &verr) && verr.Suggestion != "" {
		fmt.Fprintf(os.Stderr, "\nSuggestion: %s\n", verr.Suggestion)
	}
}

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

// Package tracing wires OpenTelemetry tracing for the engine. Spans are
// exported to stdout when MANIFOLD_TRACE is set; otherwise tracing is a
// no-op.
package tracing

import (
	"context"
	"fmt"
	"io"
	"os"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/manifold-ai/manifold/pkg/engine"
)

const tracerName = "github.com/manifold-ai/manifold"

// Provider owns the tracer provider lifecycle.
type Provider struct {
	tp *sdktrace.TracerProvider
}

// Setup configures the global tracer provider. When enabled is false the
// provider records nothing and exports nothing.
func Setup(serviceName, version string, enabled bool, w io.Writer) (*Provider, error) {
	if !enabled {
		tp := sdktrace.NewTracerProvider(sdktrace.WithSampler(sdktrace.NeverSample()))
		otel.SetTracerProvider(tp)
		return &Provider{tp: tp}, nil
	}

	if w == nil {
		w = os.Stderr
	}

	exporter, err := stdouttrace.New(
		stdouttrace.WithWriter(w),
		stdouttrace.WithPrettyPrint(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create trace exporter: %w", err)
	}

	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			"",
			semconv.ServiceName(serviceName),
			semconv.ServiceVersion(version),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithBatcher(exporter),
	)
	otel.SetTracerProvider(tp)

	return &Provider{tp: tp}, nil
}

// Enabled reports whether tracing was requested via the environment.
func Enabled() bool {
	v := os.Getenv("MANIFOLD_TRACE")
	return v == "true" || v == "1"
}

// Shutdown flushes pending spans and releases resources.
func (p *Provider) Shutdown(ctx context.Context) error {
	return p.tp.Shutdown(ctx)
}

// StartExecution opens a span for one engine execution.
func StartExecution(ctx context.Context, strategy string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "engine.execute",
		trace.WithAttributes(
			attribute.String("manifold.strategy", strategy),
		),
	)
}

// EndExecution annotates and closes an execution span from its result.
func EndExecution(span trace.Span, result *engine.ExecutionResult) {
	span.SetAttributes(
		attribute.String("manifold.execution_id", result.ID),
		attribute.Int("manifold.models_executed", result.ModelsExecuted),
		attribute.Float64("manifold.speedup", result.Speedup),
		attribute.Float64("manifold.confidence", result.Confidence),
	)
	if result.Success {
		span.SetStatus(codes.Ok, "")
	} else {
		span.SetStatus(codes.Error, result.Err)
	}
	span.End()
}

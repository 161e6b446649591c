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

package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/manifold-ai/manifold/internal/jq"
	"github.com/manifold-ai/manifold/internal/metrics"
	"github.com/manifold-ai/manifold/internal/store"
	"github.com/manifold-ai/manifold/internal/tracing"
	"github.com/manifold-ai/manifold/pkg/catalog"
	"github.com/manifold-ai/manifold/pkg/engine"
	pkgerrors "github.com/manifold-ai/manifold/pkg/errors"
)

// RouterConfig holds the router's dependencies.
type RouterConfig struct {
	Engine  *engine.Engine
	Catalog catalog.Catalog

	// History is optional; history endpoints return 404 when nil.
	History *store.Store

	Version string
	Logger  *slog.Logger
}

// Router dispatches the API's HTTP routes.
type Router struct {
	mux     *http.ServeMux
	engine  *engine.Engine
	catalog catalog.Catalog
	history *store.Store
	jq      *jq.Executor
	version string
	logger  *slog.Logger
}

// NewRouter creates a router with all endpoints registered.
func NewRouter(cfg RouterConfig) *Router {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	r := &Router{
		mux:     http.NewServeMux(),
		engine:  cfg.Engine,
		catalog: cfg.Catalog,
		history: cfg.History,
		jq:      jq.NewExecutor(0, 0),
		version: cfg.Version,
		logger:  logger,
	}

	r.mux.HandleFunc("POST /v1/execute", r.handleExecute)
	r.mux.HandleFunc("GET /v1/stats", r.handleStats)
	r.mux.HandleFunc("GET /v1/models", r.handleModels)
	r.mux.HandleFunc("GET /v1/strategies", r.handleStrategies)
	r.mux.HandleFunc("GET /v1/history", r.handleHistory)
	r.mux.HandleFunc("GET /v1/history/{id}", r.handleHistoryGet)
	r.mux.HandleFunc("GET /v1/version", r.handleVersion)
	r.mux.HandleFunc("GET /health", r.handleHealth)
	r.mux.Handle("GET /metrics", promhttp.Handler())

	return r
}

// ServeHTTP implements http.Handler.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.mux.ServeHTTP(w, req)
}

// executeRequest is the POST /v1/execute request body.
type executeRequest struct {
	Prompt       string            `json:"prompt"`
	Strategy     string            `json:"strategy,omitempty"`
	NumInterface int               `json:"num_interface,omitempty"`
	NumKnowledge int               `json:"num_knowledge,omitempty"`
	Module       string            `json:"module,omitempty"`
	Filter       string            `json:"filter,omitempty"`
	Context      map[string]string `json:"context,omitempty"`
	Temperature  *float64          `json:"temperature,omitempty"`
	MaxTokens    *int              `json:"max_tokens,omitempty"`

	// Transform is an optional jq expression applied to the result.
	Transform string `json:"transform,omitempty"`
}

func (r *Router) handleExecute(w http.ResponseWriter, req *http.Request) {
	var body executeRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	strategy, err := engine.ParseStrategy(body.Strategy, body.NumInterface, body.NumKnowledge)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := r.jq.Validate(body.Transform); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	execReq := engine.Request{
		Prompt:   body.Prompt,
		Strategy: strategy,
		Filter:   body.Filter,
		Module:   body.Module,
		Context:  body.Context,
	}
	if body.Temperature != nil || body.MaxTokens != nil {
		params := engine.DefaultParams()
		if body.Temperature != nil {
			params.Temperature = *body.Temperature
		}
		if body.MaxTokens != nil {
			params.MaxTokens = *body.MaxTokens
		}
		execReq.Params = &params
	}

	ctx, span := tracing.StartExecution(req.Context(), strategy.Name())

	result, err := r.engine.Execute(ctx, execReq)
	if err != nil {
		span.RecordError(err)
		span.End()

		var verr *pkgerrors.ValidationError
		if errors.As(err, &verr) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		r.logger.Error("execution failed", "error", err)
		writeError(w, http.StatusInternalServerError, "execution failed")
		return
	}
	tracing.EndExecution(span, result)

	metrics.Observe(result)

	if r.history != nil {
		if err := r.history.Save(req.Context(), body.Prompt, result); err != nil {
			r.logger.Warn("failed to persist execution", "error", err)
		}
	}

	if body.Transform != "" {
		var doc interface{}
		raw, err := json.Marshal(result)
		if err == nil {
			err = json.Unmarshal(raw, &doc)
		}
		if err != nil {
			writeError(w, http.StatusInternalServerError, "failed to encode result")
			return
		}

		transformed, err := r.jq.Execute(req.Context(), body.Transform, doc)
		if err != nil {
			writeError(w, http.StatusBadRequest, "transform failed: "+err.Error())
			return
		}
		writeJSON(w, http.StatusOK, transformed)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

func (r *Router) handleStats(w http.ResponseWriter, req *http.Request) {
	writeJSON(w, http.StatusOK, r.engine.Statistics())
}

func (r *Router) handleModels(w http.ResponseWriter, req *http.Request) {
	if class := req.URL.Query().Get("class"); class != "" {
		c := catalog.Class(class)
		if !c.Valid() {
			writeError(w, http.StatusBadRequest, "unknown model class: "+class)
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"models": r.catalog.ListByClass(c),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"models": r.catalog.List(),
	})
}

func (r *Router) handleStrategies(w http.ResponseWriter, req *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"strategies": engine.StrategyNames(),
	})
}

func (r *Router) handleHistory(w http.ResponseWriter, req *http.Request) {
	if r.history == nil {
		writeError(w, http.StatusNotFound, "history store not configured")
		return
	}

	limit := 20
	if v := req.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	records, err := r.history.List(req.Context(), limit)
	if err != nil {
		r.logger.Error("failed to list history", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list history")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"executions": records,
	})
}

func (r *Router) handleHistoryGet(w http.ResponseWriter, req *http.Request) {
	if r.history == nil {
		writeError(w, http.StatusNotFound, "history store not configured")
		return
	}

	rec, err := r.history.Get(req.Context(), req.PathValue("id"))
	if err != nil {
		var nferr *pkgerrors.NotFoundError
		if errors.As(err, &nferr) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		r.logger.Error("failed to get execution", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to get execution")
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (r *Router) handleVersion(w http.ResponseWriter, req *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"version": r.version,
	})
}

func (r *Router) handleHealth(w http.ResponseWriter, req *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
	})
}

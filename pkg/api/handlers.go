package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/Mindburn-Labs/helm-actions/pkg/catalog"
	"github.com/Mindburn-Labs/helm-actions/pkg/plan"
	"github.com/Mindburn-Labs/helm-actions/pkg/query"
)

// ResolveResponse is the body of a successful resolution.
type ResolveResponse struct {
	Plan        *plan.ResolvedPlan `json:"plan"`
	Fingerprint string             `json:"fingerprint"`
	HasErrors   bool               `json:"hasErrors"`
}

// HandleResolve handles POST /v1/plans/resolve. A plan with error steps is
// a successful response; only undecodable bodies are rejected.
func (s *Server) HandleResolve(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		WriteMethodNotAllowed(w, r, http.MethodPost)
		return
	}
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		WriteBadRequest(w, r, "Request body too large or unreadable")
		return
	}
	raw, err := plan.ParseRawPlan(body)
	if err != nil {
		WriteBadRequest(w, r, err.Error())
		return
	}

	resolved, err := s.resolver.Resolve(r.Context(), raw)
	if err != nil {
		WriteInternal(w, r, err)
		return
	}
	fp, err := plan.Fingerprint(resolved)
	if err != nil {
		WriteInternal(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ResolveResponse{Plan: resolved, Fingerprint: fp, HasErrors: resolved.HasErrors()})
}

// CompileRequest is the body of POST /v1/queries/compile. Query is the JSON
// wire form or the textual form; Dialect defaults to the server dialect.
type CompileRequest struct {
	Query   any    `json:"query"`
	Dialect string `json:"dialect,omitempty"`
}

// HandleCompile handles POST /v1/queries/compile. Invalid queries are 422
// with the validation code in the problem document.
func (s *Server) HandleCompile(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		WriteMethodNotAllowed(w, r, http.MethodPost)
		return
	}
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		WriteBadRequest(w, r, "Request body too large or unreadable")
		return
	}
	var req CompileRequest
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	if err := dec.Decode(&req); err != nil {
		WriteBadRequest(w, r, "Invalid request body")
		return
	}

	dialect := s.dialect
	if req.Dialect != "" {
		if dialect, err = query.ParseDialect(req.Dialect); err != nil {
			WriteBadRequest(w, r, err.Error())
			return
		}
	}

	q, err := query.Decode(req.Query)
	if err == nil {
		var compiled *query.Compiled
		if compiled, err = s.telemetry.Compile(r.Context(), q, dialect, s.schema); err == nil {
			writeJSON(w, http.StatusOK, compiled)
			return
		}
	}
	var verr *query.ValidationError
	if errors.As(err, &verr) {
		WriteUnprocessable(w, r, verr.Code, verr.Error())
		return
	}
	WriteInternal(w, r, err)
}

// ActionsResponse lists the catalog.
type ActionsResponse struct {
	Actions     []catalog.ActionDescriptor `json:"actions"`
	Fingerprint string                     `json:"fingerprint"`
}

// HandleActions handles GET /v1/actions.
func (s *Server) HandleActions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		WriteMethodNotAllowed(w, r, http.MethodGet)
		return
	}
	fp, err := catalog.CatalogFingerprint(s.actions)
	if err != nil {
		WriteInternal(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ActionsResponse{Actions: s.actions.ListDescriptors(), Fingerprint: fp})
}

// HandleActionsText handles GET /v1/actions/text.
func (s *Server) HandleActionsText(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		WriteMethodNotAllowed(w, r, http.MethodGet)
		return
	}
	var buf bytes.Buffer
	if err := catalog.WriteCatalogText(&buf, s.actions); err != nil {
		WriteInternal(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}

// HandleHealth handles GET /healthz.
func (s *Server) HandleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

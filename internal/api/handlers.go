// Package api exposes the RPC surface the sidebar UI consumes, plus the
// inbound endpoints the editing host pushes document snapshots and
// submission events to.
package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/oklog/ulid/v2"

	"github.com/tablecast/tablecast/internal/catalog"
	"github.com/tablecast/tablecast/internal/document"
	"github.com/tablecast/tablecast/internal/props"
	"github.com/tablecast/tablecast/internal/sync"
)

// Documents is the snapshot/event persistence surface used by the inbound
// handlers.
type Documents interface {
	PutForm(ctx context.Context, form *document.Form) error
	PutSheetDocument(ctx context.Context, doc *document.SheetDocument) error
	AddSubmission(ctx context.Context, docID string, sub *document.Submission) error
	TriggerCount(ctx context.Context, docID string) (int, error)
}

// Syncer is the orchestrator surface behind the RPC endpoints.
type Syncer interface {
	Context(ctx context.Context, docID string) (string, error)
	FormsData(ctx context.Context, docID string) (sync.FormsData, error)
	FormsProperties(ctx context.Context, docID string) (props.FormsConfig, error)
	SheetsData(ctx context.Context, docID string, useSelection bool) (catalog.RangeSnapshot, error)
	SheetsProperties(ctx context.Context, docID string) (props.SheetsConfig, error)
	PostForms(ctx context.Context, docID, tableName string, itemIDs []int64, user string) sync.Result
	PostSheet(ctx context.Context, docID, tableName, sheetName, a1, user string) sync.Result
	HandleSubmission(ctx context.Context, docID, submissionID string) error
}

// Handler holds the dependencies of all HTTP handlers.
type Handler struct {
	docs    Documents
	syncer  Syncer
	apiKey  string
	version string
}

// NewHandler creates a Handler.
func NewHandler(docs Documents, syncer Syncer, apiKey, version string) *Handler {
	return &Handler{docs: docs, syncer: syncer, apiKey: apiKey, version: version}
}

// Health handles GET /api/v1/health.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"version": h.version,
	})
}

// GetContext handles GET /api/v1/context?doc={id}. The context is null when
// the host has pushed no snapshot for the document.
func (h *Handler) GetContext(w http.ResponseWriter, r *http.Request) {
	docID := r.URL.Query().Get("doc")
	if docID == "" {
		WriteProblem(w, r, http.StatusBadRequest, "Missing required query parameter: doc")
		return
	}

	docCtx, err := h.syncer.Context(r.Context(), docID)
	if err != nil {
		MapStoreError(w, r, err)
		return
	}

	resp := struct {
		Context *string `json:"context"`
	}{}
	if docCtx != "" {
		resp.Context = &docCtx
	}
	writeJSON(w, http.StatusOK, resp)
}

// GetFormsData handles GET /api/v1/forms/{docID}/data.
func (h *Handler) GetFormsData(w http.ResponseWriter, r *http.Request) {
	data, err := h.syncer.FormsData(r.Context(), chi.URLParam(r, "docID"))
	if err != nil {
		MapStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, data)
}

// GetFormsProperties handles GET /api/v1/forms/{docID}/properties.
func (h *Handler) GetFormsProperties(w http.ResponseWriter, r *http.Request) {
	cfg, err := h.syncer.FormsProperties(r.Context(), chi.URLParam(r, "docID"))
	if err != nil {
		MapStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

// PostFormsSync handles POST /api/v1/forms/{docID}/sync.
func (h *Handler) PostFormsSync(w http.ResponseWriter, r *http.Request) {
	var req struct {
		TableName string  `json:"tableName"`
		ItemIDs   []int64 `json:"itemIds"`
		User      string  `json:"user"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteProblem(w, r, http.StatusBadRequest, "Invalid JSON body")
		return
	}

	result := h.syncer.PostForms(r.Context(), chi.URLParam(r, "docID"), req.TableName, req.ItemIDs, req.User)
	writeJSON(w, http.StatusOK, result)
}

// GetSheetsData handles GET /api/v1/sheets/{docID}/data?selection=true.
func (h *Handler) GetSheetsData(w http.ResponseWriter, r *http.Request) {
	useSelection := r.URL.Query().Get("selection") == "true"
	snap, err := h.syncer.SheetsData(r.Context(), chi.URLParam(r, "docID"), useSelection)
	if err != nil {
		MapStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// GetSheetsProperties handles GET /api/v1/sheets/{docID}/properties.
func (h *Handler) GetSheetsProperties(w http.ResponseWriter, r *http.Request) {
	cfg, err := h.syncer.SheetsProperties(r.Context(), chi.URLParam(r, "docID"))
	if err != nil {
		MapStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

// PostSheetSync handles POST /api/v1/sheets/{docID}/sync.
func (h *Handler) PostSheetSync(w http.ResponseWriter, r *http.Request) {
	var req struct {
		TableName string `json:"tableName"`
		SheetName string `json:"sheetName"`
		A1        string `json:"a1"`
		User      string `json:"user"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteProblem(w, r, http.StatusBadRequest, "Invalid JSON body")
		return
	}

	result := h.syncer.PostSheet(r.Context(), chi.URLParam(r, "docID"), req.TableName, req.SheetName, req.A1, req.User)
	writeJSON(w, http.StatusOK, result)
}

// PutFormDocument handles PUT /api/v1/forms/{docID}: the host pushing a
// fresh form snapshot. The URL is authoritative for the document ID.
func (h *Handler) PutFormDocument(w http.ResponseWriter, r *http.Request) {
	var form document.Form
	if err := json.NewDecoder(r.Body).Decode(&form); err != nil {
		WriteProblem(w, r, http.StatusBadRequest, "Invalid JSON body")
		return
	}
	form.ID = chi.URLParam(r, "docID")

	if err := h.docs.PutForm(r.Context(), &form); err != nil {
		MapStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sync.Result{Success: true})
}

// PutSheetDocument handles PUT /api/v1/sheets/{docID}.
func (h *Handler) PutSheetDocument(w http.ResponseWriter, r *http.Request) {
	var doc document.SheetDocument
	if err := json.NewDecoder(r.Body).Decode(&doc); err != nil {
		WriteProblem(w, r, http.StatusBadRequest, "Invalid JSON body")
		return
	}
	doc.ID = chi.URLParam(r, "docID")

	if err := h.docs.PutSheetDocument(r.Context(), &doc); err != nil {
		MapStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sync.Result{Success: true})
}

// SubmissionEvent handles POST /api/v1/events/submission: one new form
// submission from the host. The submission is always stored; when the
// document has a registered trigger it is also synced immediately. A sync
// failure here is fatal for the invocation: it surfaces as a 502 and a
// host-visible log line, and the payload is not retried.
func (h *Handler) SubmissionEvent(w http.ResponseWriter, r *http.Request) {
	var event struct {
		DocID      string              `json:"docId"`
		Submission document.Submission `json:"submission"`
	}
	if err := json.NewDecoder(r.Body).Decode(&event); err != nil {
		WriteProblem(w, r, http.StatusBadRequest, "Invalid JSON body")
		return
	}
	if event.DocID == "" {
		WriteProblem(w, r, http.StatusBadRequest, "docId is required")
		return
	}
	if event.Submission.ID == "" {
		event.Submission.ID = ulid.Make().String()
	}
	if event.Submission.SubmittedAt.IsZero() {
		event.Submission.SubmittedAt = time.Now().UTC()
	}

	if err := h.docs.AddSubmission(r.Context(), event.DocID, &event.Submission); err != nil {
		MapStoreError(w, r, err)
		return
	}

	count, err := h.docs.TriggerCount(r.Context(), event.DocID)
	if err != nil {
		MapStoreError(w, r, err)
		return
	}
	if count == 0 {
		// No trigger registered yet: keep the submission for the initial
		// batch sync, nothing to deliver now.
		writeJSON(w, http.StatusOK, sync.Result{Success: true})
		return
	}

	if err := h.syncer.HandleSubmission(r.Context(), event.DocID, event.Submission.ID); err != nil {
		slog.Error("submission sync failed",
			"component", "api",
			"action", "submission_event",
			"doc_id", event.DocID,
			"submission_id", event.Submission.ID,
			"error", err,
		)
		WriteProblem(w, r, http.StatusBadGateway, "Submission sync failed")
		return
	}

	writeJSON(w, http.StatusOK, sync.Result{Success: true})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

// Package httpapi provides the REST HTTP adapter for the pipeline board.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/hylla/leadflow/internal/adapters/server/common"
)

// maxRequestBodyBytes limits decoded JSON payload size for fail-closed request handling.
const maxRequestBodyBytes int64 = 1 << 20

// defaultChangesLimit caps GET /changes when no limit is given.
const defaultChangesLimit = 50

// Handler serves the versioned API subrouter mounted under `/api/v1`.
type Handler struct {
	pipeline common.PipelineService
}

// APIError represents one structured API failure response.
type APIError struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Hint    string         `json:"hint,omitempty"`
	Context map[string]any `json:"context,omitempty"`
}

// ErrorEnvelope wraps one structured API error.
type ErrorEnvelope struct {
	Error APIError `json:"error"`
}

// NewHandler constructs one HTTP API adapter over a pipeline service.
func NewHandler(pipeline common.PipelineService) *Handler {
	return &Handler{pipeline: pipeline}
}

// ServeHTTP routes one versioned API request to the matching handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.pipeline == nil {
		writeJSONError(w, http.StatusServiceUnavailable, APIError{
			Code:    "service_unavailable",
			Message: "pipeline service is not configured",
		})
		return
	}

	path := normalizePath(r.URL.Path)
	switch path {
	case "board":
		if r.Method != http.MethodGet {
			writeMethodNotAllowed(w, http.MethodGet)
			return
		}
		h.handleBoard(w, r)
		return
	case "changes":
		if r.Method != http.MethodGet {
			writeMethodNotAllowed(w, http.MethodGet)
			return
		}
		h.handleChanges(w, r)
		return
	case "leads":
		if r.Method != http.MethodPost {
			writeMethodNotAllowed(w, http.MethodPost)
			return
		}
		h.handleCreateLead(w, r)
		return
	case "stages":
		switch r.Method {
		case http.MethodGet:
			h.handleListStages(w, r)
		case http.MethodPost:
			h.handleCreateStage(w, r)
		default:
			writeMethodNotAllowed(w, http.MethodGet, http.MethodPost)
		}
		return
	}

	if leadID, ok := resolveLeadID(path); ok {
		switch r.Method {
		case http.MethodGet:
			h.handleGetLead(w, r, leadID)
		case http.MethodPatch:
			h.handleUpdateLead(w, r, leadID)
		default:
			writeMethodNotAllowed(w, http.MethodGet, http.MethodPatch)
		}
		return
	}

	if r.Method != http.MethodPost {
		if _, ok := postRoutes[path]; ok {
			writeMethodNotAllowed(w, http.MethodPost)
			return
		}
		if _, ok := resolveLeadMoveID(path); ok {
			writeMethodNotAllowed(w, http.MethodPost)
			return
		}
	}

	switch path {
	case "drag/start":
		h.handleDragStart(w, r)
	case "drag/over":
		h.handleDragOver(w, r)
	case "drag/end":
		h.handleDragFinish(w, r, h.pipeline.EndDrag)
	case "drag/cancel":
		h.handleDragFinish(w, r, h.pipeline.CancelDrag)
	case "reorder_mode":
		h.handleReorderMode(w, r)
	case "stages/reorder":
		h.handleReorderStages(w, r)
	case "selection/toggle":
		h.handleToggleSelection(w, r)
	case "selection/select_all":
		h.handleSelectAll(w, r)
	case "selection/clear":
		h.handleClearSelection(w, r)
	case "selection/apply":
		h.handleApplyBulk(w, r)
	default:
		leadID, ok := resolveLeadMoveID(path)
		if !ok {
			writeJSONError(w, http.StatusNotFound, APIError{
				Code:    "not_found",
				Message: "endpoint not found",
			})
			return
		}
		h.handleMoveLead(w, r, leadID)
	}
}

// postRoutes lists the fixed POST-only paths.
var postRoutes = map[string]struct{}{
	"drag/start":           {},
	"drag/over":            {},
	"drag/end":             {},
	"drag/cancel":          {},
	"reorder_mode":         {},
	"stages/reorder":       {},
	"selection/toggle":     {},
	"selection/select_all": {},
	"selection/clear":      {},
	"selection/apply":      {},
}

// handleBoard serves GET `/board`.
func (h *Handler) handleBoard(w http.ResponseWriter, r *http.Request) {
	board, err := h.pipeline.Board(r.Context())
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	w.Header().Set("ETag", strconv.Quote(strconv.FormatUint(board.Version, 10)))
	writeJSON(w, http.StatusOK, board)
}

// handleChanges serves GET `/changes?limit=N`.
func (h *Handler) handleChanges(w http.ResponseWriter, r *http.Request) {
	limit := defaultChangesLimit
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			writeJSONError(w, http.StatusBadRequest, APIError{
				Code:    "invalid_request",
				Message: "limit must be a non-negative integer",
			})
			return
		}
		limit = parsed
	}
	events, err := h.pipeline.ListChanges(r.Context(), limit)
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"changes": events,
	})
}

// handleCreateLead serves POST `/leads`.
func (h *Handler) handleCreateLead(w http.ResponseWriter, r *http.Request) {
	var req common.CreateLeadRequest
	if err := decodeJSONBody(r.Context(), w, r, &req); err != nil {
		writeErrorFrom(w, err)
		return
	}
	lead, err := h.pipeline.CreateLead(r.Context(), req)
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	w.Header().Set("Location", "/api/v1/leads/"+lead.ID)
	writeJSON(w, http.StatusCreated, lead)
}

// handleGetLead serves GET `/leads/{id}`.
func (h *Handler) handleGetLead(w http.ResponseWriter, r *http.Request, leadID string) {
	lead, err := h.pipeline.GetLead(r.Context(), leadID)
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusOK, lead)
}

// handleUpdateLead serves PATCH `/leads/{id}`.
func (h *Handler) handleUpdateLead(w http.ResponseWriter, r *http.Request, leadID string) {
	var req common.UpdateLeadRequest
	if err := decodeJSONBody(r.Context(), w, r, &req); err != nil {
		writeErrorFrom(w, err)
		return
	}
	req.LeadID = leadID
	lead, err := h.pipeline.UpdateLead(r.Context(), req)
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusOK, lead)
}

// handleListStages serves GET `/stages`.
func (h *Handler) handleListStages(w http.ResponseWriter, r *http.Request) {
	stages, err := h.pipeline.ListStages(r.Context())
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"stages": stages,
	})
}

// handleCreateStage serves POST `/stages`.
func (h *Handler) handleCreateStage(w http.ResponseWriter, r *http.Request) {
	var req common.CreateStageRequest
	if err := decodeJSONBody(r.Context(), w, r, &req); err != nil {
		writeErrorFrom(w, err)
		return
	}
	stage, err := h.pipeline.CreateStage(r.Context(), req)
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, stage)
}

// handleDragStart serves POST `/drag/start`.
func (h *Handler) handleDragStart(w http.ResponseWriter, r *http.Request) {
	var req common.DragRequest
	if err := decodeJSONBody(r.Context(), w, r, &req); err != nil {
		writeErrorFrom(w, err)
		return
	}
	if err := h.pipeline.StartDrag(r.Context(), req); err != nil {
		writeErrorFrom(w, err)
		return
	}
	h.writeBoard(w, r, http.StatusOK)
}

// handleDragOver serves POST `/drag/over`.
func (h *Handler) handleDragOver(w http.ResponseWriter, r *http.Request) {
	var req common.DragRequest
	if err := decodeJSONBody(r.Context(), w, r, &req); err != nil {
		writeErrorFrom(w, err)
		return
	}
	result, err := h.pipeline.DragOver(r.Context(), req)
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// handleDragFinish serves POST `/drag/end` and `/drag/cancel`.
func (h *Handler) handleDragFinish(w http.ResponseWriter, r *http.Request, finish func(context.Context) (common.DragResult, error)) {
	var empty struct{}
	if err := decodeOptionalJSONBody(r.Context(), w, r, &empty); err != nil {
		writeErrorFrom(w, err)
		return
	}
	result, err := finish(r.Context())
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// handleReorderMode serves POST `/reorder_mode`.
func (h *Handler) handleReorderMode(w http.ResponseWriter, r *http.Request) {
	var req common.ReorderModeRequest
	if err := decodeJSONBody(r.Context(), w, r, &req); err != nil {
		writeErrorFrom(w, err)
		return
	}
	if err := h.pipeline.SetReorderMode(r.Context(), req); err != nil {
		writeErrorFrom(w, err)
		return
	}
	h.writeBoard(w, r, http.StatusOK)
}

// handleMoveLead serves POST `/leads/{id}/move`.
func (h *Handler) handleMoveLead(w http.ResponseWriter, r *http.Request, leadID string) {
	var req common.MoveLeadRequest
	if err := decodeJSONBody(r.Context(), w, r, &req); err != nil {
		writeErrorFrom(w, err)
		return
	}
	req.LeadID = leadID
	lead, err := h.pipeline.MoveLead(r.Context(), req)
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusOK, lead)
}

// handleReorderStages serves POST `/stages/reorder`.
func (h *Handler) handleReorderStages(w http.ResponseWriter, r *http.Request) {
	var req common.ReorderStagesRequest
	if err := decodeJSONBody(r.Context(), w, r, &req); err != nil {
		writeErrorFrom(w, err)
		return
	}
	stages, err := h.pipeline.ReorderStages(r.Context(), req)
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"stages": stages,
	})
}

// handleToggleSelection serves POST `/selection/toggle`.
func (h *Handler) handleToggleSelection(w http.ResponseWriter, r *http.Request) {
	var req common.ToggleSelectionRequest
	if err := decodeJSONBody(r.Context(), w, r, &req); err != nil {
		writeErrorFrom(w, err)
		return
	}
	sel, err := h.pipeline.ToggleSelection(r.Context(), req)
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sel)
}

// handleSelectAll serves POST `/selection/select_all`.
func (h *Handler) handleSelectAll(w http.ResponseWriter, r *http.Request) {
	var req common.SelectAllRequest
	if err := decodeJSONBody(r.Context(), w, r, &req); err != nil {
		writeErrorFrom(w, err)
		return
	}
	sel, err := h.pipeline.SelectAll(r.Context(), req)
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sel)
}

// handleClearSelection serves POST `/selection/clear`.
func (h *Handler) handleClearSelection(w http.ResponseWriter, r *http.Request) {
	var empty struct{}
	if err := decodeOptionalJSONBody(r.Context(), w, r, &empty); err != nil {
		writeErrorFrom(w, err)
		return
	}
	sel, err := h.pipeline.ClearSelection(r.Context())
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sel)
}

// handleApplyBulk serves POST `/selection/apply`.
func (h *Handler) handleApplyBulk(w http.ResponseWriter, r *http.Request) {
	var req common.BulkRequest
	if err := decodeJSONBody(r.Context(), w, r, &req); err != nil {
		writeErrorFrom(w, err)
		return
	}
	if strings.TrimSpace(req.Action) == "" {
		writeJSONError(w, http.StatusBadRequest, APIError{
			Code:    "invalid_request",
			Message: "action is required",
			Hint:    "Use one of move, assign_owner, remove.",
		})
		return
	}
	result, err := h.pipeline.ApplyBulk(r.Context(), req)
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// writeBoard writes the current board after a state-only change.
func (h *Handler) writeBoard(w http.ResponseWriter, r *http.Request, statusCode int) {
	board, err := h.pipeline.Board(r.Context())
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, statusCode, board)
}

// resolveLeadID parses `/leads/{id}` and returns `{id}`.
func resolveLeadID(path string) (string, bool) {
	id, ok := strings.CutPrefix(path, "leads/")
	if !ok {
		return "", false
	}
	id = strings.TrimSpace(id)
	if id == "" || strings.Contains(id, "/") {
		return "", false
	}
	return id, true
}

// resolveLeadMoveID parses `/leads/{id}/move` and returns `{id}`.
func resolveLeadMoveID(path string) (string, bool) {
	const (
		prefix = "leads/"
		suffix = "/move"
	)
	if !strings.HasPrefix(path, prefix) || !strings.HasSuffix(path, suffix) {
		return "", false
	}
	id := strings.TrimSpace(strings.TrimSuffix(strings.TrimPrefix(path, prefix), suffix))
	if id == "" || strings.Contains(id, "/") {
		return "", false
	}
	return id, true
}

// normalizePath canonicalizes one request path for route matching.
func normalizePath(path string) string {
	path = strings.TrimSpace(path)
	path = strings.Trim(path, "/")
	return path
}

// writeErrorFrom maps adapter errors into structured HTTP responses.
func writeErrorFrom(w http.ResponseWriter, err error) {
	switch {
	case err == nil:
		writeJSONError(w, http.StatusInternalServerError, APIError{
			Code:    "internal_error",
			Message: "unknown error",
		})
	case errors.Is(err, common.ErrNotFound):
		writeJSONError(w, http.StatusNotFound, APIError{
			Code:    "not_found",
			Message: err.Error(),
		})
	case errors.Is(err, common.ErrConflict):
		writeJSONError(w, http.StatusConflict, APIError{
			Code:    "drag_conflict",
			Message: err.Error(),
			Hint:    "Check GET board for the active drag session and reorder mode.",
		})
	case errors.Is(err, common.ErrInvalidRequest):
		writeJSONError(w, http.StatusBadRequest, APIError{
			Code:    "invalid_request",
			Message: err.Error(),
		})
	case errors.Is(err, common.ErrUnavailable):
		writeJSONError(w, http.StatusServiceUnavailable, APIError{
			Code:    "service_unavailable",
			Message: err.Error(),
		})
	default:
		writeJSONError(w, http.StatusInternalServerError, APIError{
			Code:    "internal_error",
			Message: err.Error(),
		})
	}
}

// writeMethodNotAllowed writes a structured 405 response with `Allow` headers.
func writeMethodNotAllowed(w http.ResponseWriter, methods ...string) {
	if len(methods) > 0 {
		w.Header().Set("Allow", strings.Join(methods, ", "))
	}
	writeJSONError(w, http.StatusMethodNotAllowed, APIError{
		Code:    "method_not_allowed",
		Message: "method not allowed",
	})
}

// writeJSONError writes one structured error envelope.
func writeJSONError(w http.ResponseWriter, statusCode int, apiErr APIError) {
	writeJSON(w, statusCode, ErrorEnvelope{Error: apiErr})
}

// writeJSON writes one JSON response envelope.
func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		http.Error(w, fmt.Sprintf(`{"error":{"code":"encode_error","message":"%s"}}`, err.Error()), http.StatusInternalServerError)
	}
}

// decodeJSONBody decodes one required JSON request body with strict shape checks.
func decodeJSONBody(ctx context.Context, w http.ResponseWriter, r *http.Request, out any) error {
	reader := http.MaxBytesReader(w, r.Body, maxRequestBodyBytes)
	defer reader.Close()

	decoder := json.NewDecoder(reader)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(out); err != nil {
		return fmt.Errorf("decode request body: %w", errors.Join(common.ErrInvalidRequest, err))
	}
	// Reject trailing payloads so malformed JSON bodies fail closed.
	if err := decoder.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return fmt.Errorf("decode request body: trailing content: %w", common.ErrInvalidRequest)
	}
	select {
	case <-ctx.Done():
		return fmt.Errorf("request canceled: %w", ctx.Err())
	default:
		return nil
	}
}

// decodeOptionalJSONBody decodes one optional JSON body and ignores empty payloads.
func decodeOptionalJSONBody(ctx context.Context, w http.ResponseWriter, r *http.Request, out any) error {
	reader := http.MaxBytesReader(w, r.Body, maxRequestBodyBytes)
	defer reader.Close()

	decoder := json.NewDecoder(reader)
	decoder.DisallowUnknownFields()
	err := decoder.Decode(out)
	if err == nil {
		select {
		case <-ctx.Done():
			return fmt.Errorf("request canceled: %w", ctx.Err())
		default:
			return nil
		}
	}
	if errors.Is(err, io.EOF) {
		return nil
	}
	return fmt.Errorf("decode request body: %w", errors.Join(common.ErrInvalidRequest, err))
}

package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/ashita-ai/mado/internal/ctxutil"
	"github.com/ashita-ai/mado/internal/storage"
	"github.com/ashita-ai/mado/internal/tools"
)

type handlers struct {
	registry     *tools.Registry
	invoker      Invoker
	notes        func() map[string]string
	bridge       BridgeStatus
	audit        AuditLog
	logger       *slog.Logger
	version      string
	maxBodyBytes int64
	startedAt    time.Time
}

type discoveryResponse struct {
	Tools []tools.Descriptor `json:"tools"`
}

// handleDiscovery lists every registered tool with its parameter schema.
func (h *handlers) handleDiscovery(w http.ResponseWriter, _ *http.Request) {
	var notes map[string]string
	if h.notes != nil {
		notes = h.notes()
	}
	writeJSON(w, http.StatusOK, discoveryResponse{Tools: h.registry.Describe(notes)})
}

type resultBody struct {
	Result any `json:"result"`
}

// handleInvoke decodes a {"tool", "arguments"} envelope and dispatches it.
func (h *handlers) handleInvoke(w http.ResponseWriter, r *http.Request) {
	if h.maxBodyBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.maxBodyBytes)
	}

	var call tools.Call
	if err := json.NewDecoder(r.Body).Decode(&call); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	out := h.invoker.Invoke(r.Context(), Transport, call)
	switch {
	case out.OK():
		writeJSON(w, http.StatusOK, resultBody{Result: out.Result})
	case out.ProtocolFault():
		writeError(w, http.StatusBadRequest, out.Err.Error())
	default:
		h.logger.Error("tool failed",
			"tool", call.Tool,
			"error", out.Err,
			"request_id", ctxutil.RequestIDFromContext(r.Context()),
		)
		writeError(w, http.StatusInternalServerError, out.Err.Error())
	}
}

type healthResponse struct {
	Status      string `json:"status"`
	Version     string `json:"version"`
	Uptime      int64  `json:"uptime_s"`
	BridgeReady bool   `json:"bridge_ready"`
	Pending     int    `json:"pending"`
	Audit       string `json:"audit"`
}

func (h *handlers) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{
		Status:  "healthy",
		Version: h.version,
		Uptime:  int64(time.Since(h.startedAt).Seconds()),
		Audit:   "disabled",
	}
	if h.bridge != nil {
		resp.BridgeReady = h.bridge.Ready()
		resp.Pending = h.bridge.Pending()
	}
	if !resp.BridgeReady {
		resp.Status = "degraded"
	}
	if h.audit != nil {
		resp.Audit = "connected"
		if err := h.audit.Ping(r.Context()); err != nil {
			resp.Audit = "disconnected"
			resp.Status = "degraded"
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

type invocationsResponse struct {
	Invocations []storage.Invocation `json:"invocations"`
}

func (h *handlers) handleRecentInvocations(w http.ResponseWriter, r *http.Request) {
	if h.audit == nil {
		h.handleNotFound(w, r)
		return
	}

	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	invs, err := h.audit.RecentInvocations(r.Context(), limit)
	if err != nil {
		h.logger.Error("list invocations", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list invocations")
		return
	}
	if invs == nil {
		invs = []storage.Invocation{}
	}
	writeJSON(w, http.StatusOK, invocationsResponse{Invocations: invs})
}

func (h *handlers) handleGetInvocation(w http.ResponseWriter, r *http.Request) {
	if h.audit == nil {
		h.handleNotFound(w, r)
		return
	}

	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid invocation id")
		return
	}
	inv, err := h.audit.GetInvocation(r.Context(), id)
	if errors.Is(err, storage.ErrNotFound) {
		writeError(w, http.StatusNotFound, "invocation not found")
		return
	}
	if err != nil {
		h.logger.Error("get invocation", "error", err, "id", id)
		writeError(w, http.StatusInternalServerError, "failed to get invocation")
		return
	}
	writeJSON(w, http.StatusOK, inv)
}

func (h *handlers) handleNotFound(w http.ResponseWriter, _ *http.Request) {
	writeError(w, http.StatusNotFound, "not found")
}

package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/SeraphimOfTines/NyxOS-sub000/bar"
	"github.com/SeraphimOfTines/NyxOS-sub000/platform"
	"github.com/SeraphimOfTines/NyxOS-sub000/telemetry"
	"github.com/SeraphimOfTines/NyxOS-sub000/theme"
)

// maxBodyBytes caps request bodies; bar text is far smaller.
const maxBodyBytes = 16 << 10

// BarService is the part of bar.Manager the API drives.
type BarService interface {
	Mode() bar.Mode
	Bars() []*bar.State
	Theme() *theme.Theme
	GlobalUpdate(ctx context.Context, text string) (int, error)
	SetMode(ctx context.Context, mode bar.Mode) (int, error)
	UpdateBar(ctx context.Context, channelID, text string) (*bar.State, error)
	RequestDrop(ctx context.Context, channelID string, opts bar.DropOptions) error
	History(ctx context.Context, channelID string, limit int) ([]bar.HistoryEntry, error)
	Reconcile(ctx context.Context) (bar.ReconcileReport, error)
}

// Pinger checks a dependency for readiness.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handlers holds dependencies for all HTTP handlers.
type Handlers struct {
	svc    BarService
	health Pinger
}

// NewHandlers creates a new Handlers instance with the given dependencies.
func NewHandlers(svc BarService, health Pinger) *Handlers {
	return &Handlers{svc: svc, health: health}
}

type textRequest struct {
	Text string `json:"text"`
}

type stateRequest struct {
	State string `json:"state"`
}

type dropRequest struct {
	MoveCheck *bool `json:"move_check,omitempty"`
}

// HandleStatus reports the deployment mode and bar counts.
func (h *Handlers) HandleStatus(w http.ResponseWriter, r *http.Request) {
	bars := h.svc.Bars()
	var persisting, notified int
	for _, b := range bars {
		if b.Persisting {
			persisting++
		}
		if b.HasNotification {
			notified++
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"mode":       h.svc.Mode(),
		"bars":       len(bars),
		"persisting": persisting,
		"notified":   notified,
	})
}

// HandleBars lists every registered bar.
func (h *Handlers) HandleBars(w http.ResponseWriter, r *http.Request) {
	bars := h.svc.Bars()
	if bars == nil {
		bars = []*bar.State{}
	}
	writeJSON(w, http.StatusOK, bars)
}

// HandleEmojis returns the glyph catalog.
func (h *Handlers) HandleEmojis(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.svc.Theme())
}

// HandleGlobalUpdate sets the master bar and propagates it.
func (h *Handlers) HandleGlobalUpdate(w http.ResponseWriter, r *http.Request) {
	var req textRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		writeError(w, http.StatusBadRequest, "text is required")
		return
	}
	n, err := h.svc.GlobalUpdate(r.Context(), req.Text)
	if err != nil {
		h.fail(w, r, "global update", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "updated": n})
}

// HandleGlobalState switches every bar to normal, idle or sleep.
func (h *Handlers) HandleGlobalState(w http.ResponseWriter, r *http.Request) {
	var req stateRequest
	if !decodeBody(w, r, &req) {
		return
	}
	mode, err := bar.ParseMode(req.State)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	n, err := h.svc.SetMode(r.Context(), mode)
	if err != nil {
		h.fail(w, r, "set mode", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "mode": mode, "updated": n})
}

// HandleBarUpdate rewrites one bar's text.
func (h *Handlers) HandleBarUpdate(w http.ResponseWriter, r *http.Request) {
	channelID := chi.URLParam(r, "channelID")
	var req textRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		writeError(w, http.StatusBadRequest, "text is required")
		return
	}
	b, err := h.svc.UpdateBar(r.Context(), channelID, req.Text)
	if err != nil {
		h.fail(w, r, "update bar", err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

// HandleBarDrop schedules a manual drop. The body is optional.
func (h *Handlers) HandleBarDrop(w http.ResponseWriter, r *http.Request) {
	channelID := chi.URLParam(r, "channelID")
	var req dropRequest
	if r.ContentLength != 0 && !decodeBody(w, r, &req) {
		return
	}
	opts := bar.DropOptions{MoveBar: true, MoveCheck: true, Manual: true}
	if req.MoveCheck != nil {
		opts.MoveCheck = *req.MoveCheck
	}
	if err := h.svc.RequestDrop(r.Context(), channelID, opts); err != nil {
		h.fail(w, r, "request drop", err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"status": "scheduled", "channel_id": channelID})
}

// HandleBarHistory lists recent texts of one bar, newest first.
func (h *Handlers) HandleBarHistory(w http.ResponseWriter, r *http.Request) {
	channelID := chi.URLParam(r, "channelID")
	limit := parseIntQuery(r, "limit", 20)
	entries, err := h.svc.History(r.Context(), channelID, limit)
	if err != nil {
		h.fail(w, r, "history", err)
		return
	}
	if entries == nil {
		entries = []bar.HistoryEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

// HandleReconcile runs a reconciliation pass synchronously.
func (h *Handlers) HandleReconcile(w http.ResponseWriter, r *http.Request) {
	rep, err := h.svc.Reconcile(r.Context())
	if err != nil {
		h.fail(w, r, "reconcile", err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

// fail maps service errors to status codes.
func (h *Handlers) fail(w http.ResponseWriter, r *http.Request, op string, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, bar.ErrUnknownBar):
		status = http.StatusNotFound
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		status = http.StatusServiceUnavailable
	default:
		switch platform.Classify(err) {
		case platform.ClassForbidden:
			status = http.StatusForbidden
		case platform.ClassNotFound:
			status = http.StatusNotFound
		case platform.ClassTransient:
			status = http.StatusBadGateway
		}
	}
	if status >= 500 {
		telemetry.LoggerWithCorr(r.Context()).Error(op+" failed", slog.Any("err", err), slog.String("component", "http"))
	}
	writeError(w, status, err.Error())
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// parseIntQuery extracts an int parameter from query string with a default value.
func parseIntQuery(r *http.Request, key string, def int) int {
	if v := r.URL.Query().Get(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

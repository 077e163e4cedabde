package chat

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strings"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"example.com/gatherings/internal/auth"
	"example.com/gatherings/internal/domain"
)

// HandlerConfig tunes per-connection limits.
type HandlerConfig struct {
	SendRate       float64
	SendBurst      int
	QueueSize      int
	AllowedOrigins []string
}

// Handler upgrades /chat requests and runs the connection pumps.
type Handler struct {
	svc      *Service
	cfg      HandlerConfig
	upgrader websocket.Upgrader
	logger   *log.Logger
	baseCtx  context.Context
}

// NewHandler builds a Handler. Connections end when ctx is cancelled.
func NewHandler(ctx context.Context, svc *Service, cfg HandlerConfig, logger *log.Logger) *Handler {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	h := &Handler{svc: svc, cfg: cfg, logger: logger, baseCtx: ctx}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     h.checkOrigin,
	}
	return h
}

func (h *Handler) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || len(h.cfg.AllowedOrigins) == 0 {
		return true
	}
	for _, allowed := range h.cfg.AllowedOrigins {
		if allowed == "*" || strings.EqualFold(allowed, origin) {
			return true
		}
	}
	return false
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	claims, err := auth.Authorize(r.Context(), auth.ScopeCommentsWrite, auth.ScopeActivitiesRead, auth.ScopeActivitiesWrite)
	switch {
	case errors.Is(err, auth.ErrUnauthenticated):
		writeError(w, http.StatusUnauthorized, "unauthorized", err.Error())
		return
	case err != nil:
		writeError(w, http.StatusForbidden, "forbidden", "scope activities:read or comments:write required")
		return
	}
	activityID := strings.TrimSpace(r.URL.Query().Get("activityId"))
	if activityID == "" {
		writeError(w, http.StatusBadRequest, "validation_failed", "missing activityId parameter")
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Printf("chat: upgrade: %v", err)
		return
	}

	var limiter *rate.Limiter
	if h.cfg.SendRate > 0 {
		limiter = rate.NewLimiter(rate.Limit(h.cfg.SendRate), max(h.cfg.SendBurst, 1))
	}
	client := NewClient(conn, claims.Subject, h.cfg.QueueSize, limiter, h.logger)
	client.canPost = claims.HasScope(auth.ScopeCommentsWrite)

	ctx, cancel := context.WithCancel(h.baseCtx)
	defer cancel()

	// The queue is buffered, so the snapshot can be primed before the writer starts.
	res := h.svc.Join(ctx, activityID, client)
	if res.Outcome() != domain.OutcomeSuccess {
		_ = conn.WriteJSON(errorFrame(res.Message()))
		client.Close()
		return
	}

	go client.writePump()
	go func() {
		select {
		case <-ctx.Done():
			client.Close()
		case <-client.Done():
		}
	}()
	client.readPump(ctx, h.svc)
}

func writeError(w http.ResponseWriter, status int, code, detail string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"type": code, "detail": detail})
}

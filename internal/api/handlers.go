package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/starford/shiba/internal/appconfig"
	"github.com/starford/shiba/internal/apperr"
	"github.com/starford/shiba/internal/history"
	"github.com/starford/shiba/internal/session"
	"github.com/starford/shiba/internal/sse"
	"github.com/starford/shiba/internal/surface"
)

// Journal lists recorded events.
type Journal interface {
	Recent(ctx context.Context, limit int, kind string) ([]history.Entry, error)
}

// Handler holds API route handlers.
type Handler struct {
	configs  *appconfig.Store
	registry *surface.Registry
	sessions *session.Manager
	journal  Journal
	logger   *slog.Logger
	upgrader websocket.Upgrader
}

// NewHandler creates a new Handler. journal may be nil, in which case
// /history answers with an empty list.
func NewHandler(configs *appconfig.Store, registry *surface.Registry, sessions *session.Manager, journal Journal, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		configs:  configs,
		registry: registry,
		sessions: sessions,
		journal:  journal,
		logger:   logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// Surfaces are local UI windows served from other origins.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// GetConfig handles GET /api/config.
//
//	@Summary		Current configuration document
//	@Tags			config
//	@Produce		json
//	@Success		200	{object}	map[string]any
//	@Security		BearerAuth
//	@Router			/config [get]
func (h *Handler) GetConfig(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.configs.Get())
}

// ListSurfaces handles GET /api/surfaces.
//
//	@Summary		List open surfaces
//	@Tags			surfaces
//	@Produce		json
//	@Success		200	{object}	SurfaceListResponse
//	@Security		BearerAuth
//	@Router			/surfaces [get]
func (h *Handler) ListSurfaces(w http.ResponseWriter, _ *http.Request) {
	ids := h.registry.IDs()
	writeJSON(w, http.StatusOK, SurfaceListResponse{Surfaces: ids, Total: len(ids)})
}

// PostRequest handles POST /api/surfaces/{id}/requests. It is the inbound
// channel for SSE surfaces; WebSocket surfaces may use it too.
//
//	@Summary		Send a request on behalf of a surface
//	@Tags			surfaces
//	@Accept			json
//	@Produce		json
//	@Param			id		path		string				true	"Surface id"
//	@Param			body	body		surface.Request		true	"Request"
//	@Success		202		{object}	RequestAccepted
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/surfaces/{id}/requests [post]
func (h *Handler) PostRequest(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	dest, ok := h.registry.Get(id)
	if !ok {
		writeJSON(w, http.StatusNotFound, errorBody("surface not found"))
		return
	}

	var req surface.Request
	if err := readJSON(w, r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON"))
		return
	}
	if req.Type == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("type is required"))
		return
	}
	if !dest.Receive(req) {
		writeJSON(w, http.StatusBadRequest, errorBody("unsupported request type"))
		return
	}
	writeJSON(w, http.StatusAccepted, RequestAccepted{Surface: id, Type: string(req.Type)})
}

// Watch handles GET /api/watch. The connection is upgraded to a WebSocket
// surface watching every "path" query parameter.
func (h *Handler) Watch(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already replied.
		h.logger.Warn("api: websocket upgrade failed", slog.String("error", err.Error()))
		return
	}
	ws := surface.NewWebSocket(conn, h.logger)
	h.serve(r.Context(), ws, r.URL.Query()["path"], func() error {
		return ws.Run(r.Context())
	})
}

// Events handles GET /api/events. The response becomes an SSE surface
// watching every "path" query parameter. The first event carries the
// surface id for POST /api/surfaces/{id}/requests.
func (h *Handler) Events(w http.ResponseWriter, r *http.Request) {
	st := sse.NewStream(h.logger)
	h.serve(r.Context(), st, r.URL.Query()["path"], func() error {
		st.ServeHTTP(w, r)
		return nil
	})
}

// serve registers dest, then starts its watches alongside run: bridges wait
// for queue room, so the surface's writer has to be running while they start.
func (h *Handler) serve(ctx context.Context, dest surface.Surface, paths []string, run func() error) {
	if err := h.sessions.Open(ctx, dest); err != nil {
		h.logger.Warn("api: surface open failed",
			slog.String("surface", dest.ID()),
			slog.String("error", err.Error()))
		return
	}
	watched := make(chan struct{})
	go func() {
		defer close(watched)
		for _, p := range paths {
			if _, err := h.sessions.Watch(ctx, dest.ID(), p); err != nil {
				// Already reported to the surface as watch-error.
				h.logger.Warn("api: watch start failed",
					slog.String("surface", dest.ID()),
					slog.String("path", p),
					slog.String("error", err.Error()))
			}
		}
	}()
	defer func() {
		// run has returned, so the surface is closed and pending
		// deliveries have given up.
		<-watched
		if err := h.sessions.Close(dest.ID()); err != nil && !errors.Is(err, apperr.ErrNotFound) {
			h.logger.Warn("api: session close failed",
				slog.String("surface", dest.ID()),
				slog.String("error", err.Error()))
		}
	}()
	if err := run(); err != nil {
		h.logger.Debug("api: surface ended", slog.String("surface", dest.ID()), slog.String("error", err.Error()))
	}
}

// History handles GET /api/history.
//
//	@Summary		Recent journal entries
//	@Tags			history
//	@Produce		json
//	@Param			limit	query		int		false	"Max entries"
//	@Param			kind	query		string	false	"Filter by kind"
//	@Success		200		{object}	HistoryResponse
//	@Security		BearerAuth
//	@Router			/history [get]
func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	if h.journal == nil {
		writeJSON(w, http.StatusOK, HistoryResponse{Entries: []history.Entry{}})
		return
	}
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))

	entries, err := h.journal.Recent(r.Context(), limit, q.Get("kind"))
	if err != nil {
		h.logger.Error("api: history query failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	if entries == nil {
		entries = []history.Entry{}
	}
	writeJSON(w, http.StatusOK, HistoryResponse{Entries: entries})
}

package rest

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/prismsocial/prism-server/internal/domain"
	"github.com/prismsocial/prism-server/internal/present/rest/middleware"
	"github.com/prismsocial/prism-server/internal/present/rest/presenter"
	"github.com/prismsocial/prism-server/internal/usecase"
)

// RealtimeStreamer bridges a client session to the event stream.
type RealtimeStreamer interface {
	Realtime(ctx context.Context, request <-chan []string, response chan<- domain.Event)
}

type Handler struct {
	reconcile *usecase.ReconcileUsecase
	view      *usecase.ViewUsecase
	interest  *usecase.InterestUsecase
	feed      *usecase.FeedUsecase
	signal    RealtimeStreamer
}

func NewHandler(
	reconcile *usecase.ReconcileUsecase,
	view *usecase.ViewUsecase,
	interest *usecase.InterestUsecase,
	feed *usecase.FeedUsecase,
	signal RealtimeStreamer,
) *Handler {
	return &Handler{
		reconcile: reconcile,
		view:      view,
		interest:  interest,
		feed:      feed,
		signal:    signal,
	}
}

func (h *Handler) RegisterRoutes(e *echo.Echo) {
	e.GET("/api/v1/feed", h.handleFeed)
	e.POST("/api/v1/views", h.handleRecordView)
	e.POST("/api/v1/views/batch", h.handleRecordViewBatch)
	e.DELETE("/api/v1/views/:userID", h.handleResetViews)
	e.POST("/api/v1/interactions", h.handleTrackInteraction)
	e.POST("/api/v1/sync/:library", h.handleSyncLibrary)
	e.POST("/api/v1/sync", h.handleSyncAll)
	e.GET("/api/v1/sync/status", h.handleSyncStatus)
	e.GET("/realtime", h.handleRealtime)
}

func (h *Handler) requester(c echo.Context) string {
	if id := middleware.RequesterID(c.Request().Context()); id != "" {
		return id
	}
	return c.QueryParam("user")
}

func (h *Handler) handleFeed(c echo.Context) error {
	ctx := c.Request().Context()

	userID := h.requester(c)
	if userID == "" {
		return presenter.BadRequestMessage(c, "user parameter is required")
	}

	kind := domain.Kind(c.QueryParam("kind"))

	page := 1
	if pageStr := c.QueryParam("page"); pageStr != "" {
		parsed, err := strconv.Atoi(pageStr)
		if err != nil {
			return presenter.BadRequestMessage(c, "invalid page parameter")
		}
		page = parsed
	}

	pageSize := 20
	if sizeStr := c.QueryParam("pageSize"); sizeStr != "" {
		parsed, err := strconv.Atoi(sizeStr)
		if err != nil {
			return presenter.BadRequestMessage(c, "invalid pageSize parameter")
		}
		pageSize = parsed
	}

	category := c.QueryParam("category")

	result, err := h.feed.GetFeed(ctx, userID, kind, page, pageSize, category)
	if err != nil {
		if errors.Is(err, domain.ErrValidation) {
			return presenter.BadRequest(c, err)
		}
		return presenter.InternalError(c, err)
	}
	return presenter.OK(c, result)
}

type recordViewRequest struct {
	UserID string `json:"userId"`
	domain.ViewInput
}

func (h *Handler) handleRecordView(c echo.Context) error {
	ctx := c.Request().Context()

	var req recordViewRequest
	if err := c.Bind(&req); err != nil {
		return presenter.BadRequest(c, err)
	}
	if req.UserID == "" {
		req.UserID = h.requester(c)
	}

	result, err := h.view.RecordView(ctx, req.UserID, req.ViewInput)
	if err != nil {
		if errors.Is(err, domain.ErrValidation) {
			return presenter.BadRequest(c, err)
		}
		return presenter.InternalError(c, err)
	}
	return presenter.OK(c, result)
}

type recordViewBatchRequest struct {
	UserID string             `json:"userId"`
	Views  []domain.ViewInput `json:"views"`
}

func (h *Handler) handleRecordViewBatch(c echo.Context) error {
	ctx := c.Request().Context()

	var req recordViewBatchRequest
	if err := c.Bind(&req); err != nil {
		return presenter.BadRequest(c, err)
	}
	if req.UserID == "" {
		req.UserID = h.requester(c)
	}

	result, err := h.view.RecordViewBatch(ctx, req.UserID, req.Views)
	if err != nil {
		if errors.Is(err, domain.ErrValidation) {
			return presenter.BadRequest(c, err)
		}
		return presenter.InternalError(c, err)
	}
	return presenter.OK(c, result)
}

func (h *Handler) handleResetViews(c echo.Context) error {
	ctx := c.Request().Context()

	userID := c.Param("userID")
	if err := h.view.ResetViews(ctx, userID); err != nil {
		if errors.Is(err, domain.ErrValidation) {
			return presenter.BadRequest(c, err)
		}
		return presenter.InternalError(c, err)
	}
	return presenter.OK(c, echo.Map{"status": "ok"})
}

type trackInteractionRequest struct {
	UserID string `json:"userId"`
	usecase.InteractionInput
}

func (h *Handler) handleTrackInteraction(c echo.Context) error {
	ctx := c.Request().Context()

	var req trackInteractionRequest
	if err := c.Bind(&req); err != nil {
		return presenter.BadRequest(c, err)
	}
	if req.UserID == "" {
		req.UserID = h.requester(c)
	}

	snapshot, err := h.interest.TrackInteraction(ctx, req.UserID, req.InteractionInput)
	if err != nil {
		if errors.Is(err, domain.ErrValidation) {
			return presenter.BadRequest(c, err)
		}
		if errors.Is(err, domain.ErrNotFound) {
			return presenter.NotFound(c, "content not found")
		}
		return presenter.InternalError(c, err)
	}
	return presenter.OK(c, snapshot)
}

func (h *Handler) handleSyncLibrary(c echo.Context) error {
	ctx := c.Request().Context()

	result, err := h.reconcile.Reconcile(ctx, c.Param("library"))
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return presenter.NotFound(c, "library not found")
		}
		return presenter.InternalError(c, err)
	}
	return presenter.OK(c, result)
}

func (h *Handler) handleSyncAll(c echo.Context) error {
	ctx := c.Request().Context()
	return presenter.OK(c, h.reconcile.ForceReconcileAll(ctx))
}

func (h *Handler) handleSyncStatus(c echo.Context) error {
	return presenter.OK(c, h.reconcile.Status())
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

type realtimeRequest struct {
	Type      string   `json:"type"`
	Libraries []string `json:"libraries"`
}

func (h *Handler) handleRealtime(c echo.Context) error {
	ws, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		slog.Error(
			"Failed to upgrade WebSocket",
			slog.String("error", err.Error()),
			slog.String("module", "socket"),
		)
		return err
	}
	defer func() {
		ws.Close()
	}()

	// Canceling the context is the single shutdown signal: it stops the
	// streamer and unblocks the reader's pending send. Closing input
	// instead would race the reader's send.
	ctx, cancel := context.WithCancel(c.Request().Context())
	defer cancel()

	input := make(chan []string)
	output := make(chan domain.Event)

	go h.signal.Realtime(ctx, input, output)

	quit := make(chan struct{}, 1)

	go func() {
		for {
			var req realtimeRequest
			err := ws.ReadJSON(&req)
			if err != nil {

				wsErr, ok := err.(*websocket.CloseError)
				if ok {
					if !(wsErr.Code == websocket.CloseNormalClosure || wsErr.Code == websocket.CloseGoingAway) {
						slog.DebugContext(
							ctx, "WebSocket closed",
							slog.String("error", wsErr.Error()),
							slog.String("module", "socket"),
						)
					}
				} else {
					slog.ErrorContext(
						ctx, "Error reading message",
						slog.String("error", err.Error()),
						slog.String("module", "socket"),
					)
				}

				quit <- struct{}{}
				return
			}

			switch req.Type {
			case "listen":
				select {
				case input <- req.Libraries:
				case <-ctx.Done():
					return
				}
				slog.DebugContext(
					ctx, "Socket subscribe",
					slog.Any("libraries", req.Libraries),
					slog.String("module", "socket"),
				)
			case "h": // heartbeat
				// do nothing
			default:
				slog.InfoContext(
					ctx, "Unknown request type",
					slog.String("type", req.Type),
					slog.String("module", "socket"),
				)
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-quit:
			return nil
		case event := <-output:
			err := ws.WriteJSON(event)
			if err != nil {
				slog.ErrorContext(
					ctx, "Error writing message",
					slog.String("error", err.Error()),
					slog.String("module", "socket"),
				)
				return nil
			}
		}
	}
}

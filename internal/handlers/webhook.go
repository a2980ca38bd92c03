package handlers

import (
	"context"
	"io"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/himplant/crmsync/internal/bookingsync"
	"github.com/himplant/crmsync/internal/signature"
	"github.com/himplant/crmsync/internal/syncerr"
)

// MaxWebhookBody is the largest webhook body accepted.
const MaxWebhookBody = 1 << 20

// EventHandler processes a parsed webhook event.
type EventHandler interface {
	Handle(ctx context.Context, ev bookingsync.InboundEvent) (bookingsync.Result, error)
}

// WebhookHandler receives booking notifications.
type WebhookHandler struct {
	events   EventHandler
	verifier *signature.Verifier
	logger   *slog.Logger
}

// NewWebhookHandler creates the webhook handler.
func NewWebhookHandler(log *slog.Logger, events EventHandler, verifier *signature.Verifier) *WebhookHandler {
	h := &WebhookHandler{
		events:   events,
		verifier: verifier,
		logger:   log.With(slog.String("handler", "webhook")),
	}
	if !verifier.Enabled() {
		h.logger.Warn("webhook signature key not configured, accepting unsigned requests")
	}
	return h
}

// Register mounts POST /square/webhook with and without the trailing slash.
func (h *WebhookHandler) Register(e *echo.Echo) {
	e.POST("/square/webhook", h.Receive)
	e.POST("/square/webhook/", h.Receive)
}

// Receive verifies, parses and processes one delivery.
func (h *WebhookHandler) Receive(c echo.Context) error {
	req := c.Request()
	body, err := io.ReadAll(io.LimitReader(req.Body, MaxWebhookBody+1))
	if err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Message: "read body: " + err.Error()})
	}
	if len(body) > MaxWebhookBody {
		return c.JSON(http.StatusRequestEntityTooLarge, ErrorResponse{Message: "body too large"})
	}

	if !h.verifier.Verify(body, signature.FromHTTP(req.Header), signature.RequestURL(req)) {
		h.logger.Warn("signature mismatch", slog.String("remote_ip", c.RealIP()))
		return c.JSON(http.StatusUnauthorized, ErrorResponse{Message: "signature mismatch", Kind: syncerr.KindAuth.String()})
	}

	ev, err := bookingsync.ParseEvent(body)
	if err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse(err))
	}

	res, err := h.events.Handle(req.Context(), ev)
	if err != nil {
		return c.JSON(syncerr.HTTPStatus(err), errorResponse(err))
	}
	return c.JSON(http.StatusOK, res)
}

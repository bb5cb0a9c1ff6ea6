package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"tableside/internal/application/session"
	"tableside/internal/infrastructure/http/storefront"
)

type OrderHandler struct {
	client   *storefront.Client
	sessions *session.Manager
}

func NewOrderHandler(client *storefront.Client, sessions *session.Manager) *OrderHandler {
	return &OrderHandler{client: client, sessions: sessions}
}

func (h *OrderHandler) History(c *gin.Context) {
	ctx := c.Request.Context()
	sessionID, err := h.sessions.SessionID(ctx)
	if err != nil {
		respondError(c, err)
		return
	}

	history, err := h.client.OrderHistory(ctx, sessionID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, history)
}

package handler

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	app "tableside/internal/application/cart"
	"tableside/internal/domain/repository"
	"tableside/internal/infrastructure/http/storefront"
	"tableside/pkg/logger"
)

// TableHandler covers the pre-ordering flow: pick a location, pick a
// table, start the table session and create the visit's cart. The chosen
// location and table are persisted so a reload lands back where it was.
type TableHandler struct {
	client *storefront.Client
	engine *app.Engine
	store  repository.BlobStore
	log    logger.Logger
}

func NewTableHandler(client *storefront.Client, engine *app.Engine, store repository.BlobStore, log logger.Logger) *TableHandler {
	return &TableHandler{client: client, engine: engine, store: store, log: log}
}

func (h *TableHandler) Locations(c *gin.Context) {
	locations, err := h.client.Locations(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"locations": locations})
}

func (h *TableHandler) Tables(c *gin.Context) {
	locationID, err := strconv.ParseInt(c.Query("location_id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid location_id"})
		return
	}
	zones, err := h.client.Tables(c.Request.Context(), locationID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"zones": zones})
}

type startSessionRequest struct {
	TableID int64 `json:"table_id" binding:"required"`
}

// StartSession starts the table session and immediately creates the cart
// for the visit.
func (h *TableHandler) StartSession(c *gin.Context) {
	var req startSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx := c.Request.Context()
	session, err := h.client.StartTableSession(ctx, req.TableID)
	if err != nil {
		respondError(c, err)
		return
	}

	tableSessionID := session.SessionID
	cart, err := h.engine.Create(ctx, &tableSessionID)
	if err != nil {
		respondError(c, err)
		return
	}

	if blob, err := json.Marshal(session); err == nil {
		if err := h.store.Set(ctx, repository.KeyTable, blob); err != nil {
			h.log.Warn("persist table selection failed", logger.Error(err))
		}
	}

	c.JSON(http.StatusCreated, gin.H{"session": session, "cart": cart})
}

package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	app "tableside/internal/application/cart"
	domain "tableside/internal/domain/cart"
	"tableside/internal/domain/money"
)

type CartHandler struct {
	engine *app.Engine
}

func NewCartHandler(engine *app.Engine) *CartHandler {
	return &CartHandler{engine: engine}
}

// cartView is what the UI renders: the cart, the running total and the
// per-row pending indicators.
type cartView struct {
	Cart         *domain.Cart `json:"cart"`
	Total        money.Amount `json:"total"`
	PendingItems []int64      `json:"pending_items"`
}

func (h *CartHandler) view() cartView {
	return cartView{
		Cart:         h.engine.Snapshot(),
		Total:        h.engine.Total(),
		PendingItems: h.engine.PendingItems(),
	}
}

func (h *CartHandler) GetCart(c *gin.Context) {
	if err := h.engine.LoadError(); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, h.view())
}

type createCartRequest struct {
	TableSessionID *int64 `json:"table_session_id"`
}

func (h *CartHandler) CreateCart(c *gin.Context) {
	var req createCartRequest
	if err := c.ShouldBindJSON(&req); err != nil && err.Error() != "EOF" {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if _, err := h.engine.Create(c.Request.Context(), req.TableSessionID); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, h.view())
}

type addItemRequest struct {
	ProductID int64        `json:"product_id"`
	VariantID int64        `json:"product_variant_id"`
	UnitID    int64        `json:"uom_id"`
	UnitPrice money.Amount `json:"uom_price"`
	Quantity  int          `json:"quantity"`
}

func (h *CartHandler) AddItem(c *gin.Context) {
	var req addItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	_, err := h.engine.Add(c.Request.Context(), domain.AddItemRequest{
		ProductID: req.ProductID,
		VariantID: req.VariantID,
		UnitID:    req.UnitID,
		UnitPrice: req.UnitPrice,
		Quantity:  req.Quantity,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, h.view())
}

type updateItemRequest struct {
	Quantity int `json:"quantity"`
}

func (h *CartHandler) UpdateItem(c *gin.Context) {
	itemID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid item id"})
		return
	}
	var req updateItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.engine.UpdateQuantity(c.Request.Context(), itemID, req.Quantity); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, h.view())
}

func (h *CartHandler) RemoveItem(c *gin.Context) {
	itemID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid item id"})
		return
	}

	if err := h.engine.Remove(c.Request.Context(), itemID); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, h.view())
}

func (h *CartHandler) Refresh(c *gin.Context) {
	if err := h.engine.Refresh(c.Request.Context()); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, h.view())
}

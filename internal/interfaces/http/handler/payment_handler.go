package handler

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	cartapp "tableside/internal/application/cart"
	payapp "tableside/internal/application/payment"
	domain "tableside/internal/domain/payment"
	"tableside/internal/domain/repository"
	"tableside/internal/infrastructure/http/storefront"
)

type PaymentHandler struct {
	machine *payapp.Machine
	engine  *cartapp.Engine
	client  *storefront.Client
	store   repository.BlobStore
}

func NewPaymentHandler(machine *payapp.Machine, engine *cartapp.Engine, client *storefront.Client, store repository.BlobStore) *PaymentHandler {
	return &PaymentHandler{machine: machine, engine: engine, client: client, store: store}
}

func (h *PaymentHandler) Methods(c *gin.Context) {
	methods, err := h.client.PaymentMethods(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"methods": methods})
}

type generateCodeRequest struct {
	Family domain.Family `json:"family"`
}

// GenerateCode assembles the payment context from the active cart and the
// persisted location selection; the UI only names the method family.
func (h *PaymentHandler) GenerateCode(c *gin.Context) {
	var req generateCodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if !req.Family.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown payment family"})
		return
	}

	cart := h.engine.Snapshot()
	locationID := h.selectedLocationID(c)

	genReq := domain.GenerateRequest{
		LocationID: locationID,
		Amount:     h.engine.Total(),
		OrderType:  "dine_in",
	}
	if cart != nil {
		genReq.CartID = cart.ID
	}

	rec, err := h.machine.GenerateCode(c.Request.Context(), req.Family, genReq)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"record": rec, "state": h.machine.State()})
}

func (h *PaymentHandler) Status(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"state":        h.machine.State(),
		"record":       h.machine.Record(),
		"order_placed": h.machine.OrderPlaced(),
	})
}

func (h *PaymentHandler) CheckNow(c *gin.Context) {
	status, err := h.machine.CheckNow(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": status, "state": h.machine.State()})
}

func (h *PaymentHandler) Cancel(c *gin.Context) {
	if err := h.machine.Cancel(c.Request.Context()); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"state": h.machine.State()})
}

// SubmitManual accepts the staff-verified payment form: method id plus the
// proof-of-transfer image.
func (h *PaymentHandler) SubmitManual(c *gin.Context) {
	methodID, err := strconv.ParseInt(c.PostForm("payment_method_id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payment_method_id"})
		return
	}

	file, header, err := c.Request.FormFile("proof_image")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "proof_image is required"})
		return
	}
	defer file.Close()
	proof, err := io.ReadAll(file)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "read proof_image failed"})
		return
	}

	cart := h.engine.Snapshot()
	req := domain.ManualRequest{
		LocationID:    h.selectedLocationID(c),
		MethodID:      methodID,
		Amount:        h.engine.Total(),
		OrderType:     "dine_in",
		ProofImage:    proof,
		ProofFilename: header.Filename,
	}
	if cart != nil {
		req.CartID = cart.ID
	}

	res, err := h.machine.SubmitManual(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, res)
}

func (h *PaymentHandler) CheckActiveOrder(c *gin.Context) {
	status, err := h.machine.CheckActiveOrder(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": status})
}

// selectedLocationID reads the persisted location selection; zero means
// none, which GenerateCode rejects as a missing precondition.
func (h *PaymentHandler) selectedLocationID(c *gin.Context) int64 {
	blob, err := h.store.Get(c.Request.Context(), repository.KeyLocation)
	if err != nil || len(blob) == 0 {
		return 0
	}
	var loc struct {
		ID int64 `json:"id"`
	}
	if err := json.Unmarshal(blob, &loc); err != nil {
		return 0
	}
	return loc.ID
}

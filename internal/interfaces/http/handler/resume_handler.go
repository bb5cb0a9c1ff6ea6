package handler

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"

	"tableside/internal/domain/repository"
)

// ResumeHandler reads and writes the UI resume state: last selected
// location, table and view mode. Each value is an opaque blob the UI owns;
// the daemon only keeps it across reloads.
type ResumeHandler struct {
	store repository.BlobStore
}

func NewResumeHandler(store repository.BlobStore) *ResumeHandler {
	return &ResumeHandler{store: store}
}

func (h *ResumeHandler) Get(c *gin.Context) {
	ctx := c.Request.Context()
	out := gin.H{}
	for name, key := range resumeKeys {
		blob, err := h.store.Get(ctx, key)
		if err != nil {
			respondError(c, err)
			return
		}
		if len(blob) == 0 {
			out[name] = nil
			continue
		}
		out[name] = json.RawMessage(blob)
	}
	c.JSON(http.StatusOK, out)
}

type resumeUpdateRequest struct {
	Location *json.RawMessage `json:"location"`
	Table    *json.RawMessage `json:"table"`
	ViewMode *json.RawMessage `json:"view_mode"`
}

// Put stores the provided values; an explicit JSON null clears a key.
func (h *ResumeHandler) Put(c *gin.Context) {
	var req resumeUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx := c.Request.Context()
	updates := map[string]*json.RawMessage{
		"location":  req.Location,
		"table":     req.Table,
		"view_mode": req.ViewMode,
	}
	for name, value := range updates {
		if value == nil {
			continue
		}
		key := resumeKeys[name]
		var err error
		if string(*value) == "null" {
			err = h.store.Remove(ctx, key)
		} else {
			err = h.store.Set(ctx, key, *value)
		}
		if err != nil {
			respondError(c, err)
			return
		}
	}
	c.Status(http.StatusNoContent)
}

var resumeKeys = map[string]string{
	"location":  repository.KeyLocation,
	"table":     repository.KeyTable,
	"view_mode": repository.KeyViewMode,
}

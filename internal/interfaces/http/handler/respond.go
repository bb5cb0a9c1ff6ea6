package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	cartdomain "tableside/internal/domain/cart"
	paydomain "tableside/internal/domain/payment"
	"tableside/internal/infrastructure/http/storefront"
)

// respondError maps domain and transport errors onto HTTP answers for the
// device UI. Every payload carries the human-readable message the UI shows
// next to its retry action.
func respondError(c *gin.Context, err error) {
	var apiErr *storefront.APIError

	switch {
	case errors.Is(err, cartdomain.ErrMissingProductID),
		errors.Is(err, paydomain.ErrMissingCartContext):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, cartdomain.ErrNoCart),
		errors.Is(err, paydomain.ErrNoActivePayment):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.As(err, &apiErr):
		c.JSON(http.StatusBadGateway, gin.H{"error": apiErr.Message})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

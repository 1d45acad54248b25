package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/spitkorean/billing-service/internal/account"
	"github.com/spitkorean/billing-service/internal/domain"
	"github.com/spitkorean/billing-service/internal/middleware"
	"github.com/spitkorean/billing-service/pkg/logger"
)

// requestContext builds the outgoing context for authority calls,
// carrying the caller's bearer token forward.
func requestContext(c *gin.Context) context.Context {
	ctx := c.Request.Context()
	if token := c.GetString(string(middleware.ContextTokenKey)); token != "" {
		ctx = account.WithToken(ctx, token)
	}
	return ctx
}

func userID(c *gin.Context) string {
	return c.GetString(string(middleware.ContextUserIDKey))
}

// failureReason labels an error for metrics without leaking free text
func failureReason(err error) string {
	switch {
	case errors.Is(err, domain.ErrGatewayDeclined):
		return "declined"
	case errors.Is(err, domain.ErrIntentExpired):
		return "intent_expired"
	case errors.Is(err, domain.ErrNetwork):
		return "network"
	case errors.Is(err, domain.ErrValidationFailed):
		return "validation"
	case errors.Is(err, domain.ErrDiscountInvalid):
		return "discount"
	default:
		return "other"
	}
}

// respondError maps a domain error to its HTTP answer
func respondError(c *gin.Context, log *logger.Logger, err error) {
	var de *domain.DiscountError
	if errors.As(err, &de) {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": de.Error(), "reason": string(de.Reason)})
		return
	}

	var pe *domain.PaymentError
	if errors.As(err, &pe) {
		body := gin.H{"error": pe.Message}
		if pe.DeclineCode != "" {
			body["decline_code"] = pe.DeclineCode
		}
		c.JSON(http.StatusPaymentRequired, body)
		return
	}

	switch {
	case errors.Is(err, domain.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	case errors.Is(err, domain.ErrValidationFailed):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, domain.ErrInvalidTransition):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, domain.ErrOperationInProgress):
		c.JSON(http.StatusConflict, gin.H{"error": "operation already in progress"})
	case errors.Is(err, domain.ErrQuotaExceeded):
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "daily quota exceeded"})
	case errors.Is(err, domain.ErrUnauthenticated):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthenticated"})
	case errors.Is(err, domain.ErrNetwork):
		log.Errorw("Upstream call failed", "error", err)
		c.JSON(http.StatusBadGateway, gin.H{"error": "upstream unavailable"})
	default:
		log.Errorw("Unhandled error", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

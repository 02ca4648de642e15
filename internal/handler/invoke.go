// Package handler exposes the command registry and change notifications over HTTP.
package handler

import (
	"errors"
	"io"
	"net/http"

	"github.com/CageChen/ttbox/internal/account"
	"github.com/CageChen/ttbox/internal/command"
	"github.com/gin-gonic/gin"
)

// InvokeHandler dispatches POST /api/invoke/:command to the registry
type InvokeHandler struct {
	registry *command.Registry
}

// NewInvokeHandler creates a new invoke handler
func NewInvokeHandler(registry *command.Registry) *InvokeHandler {
	return &InvokeHandler{registry: registry}
}

// Invoke runs the command named in the path with the JSON request body as arguments
func (h *InvokeHandler) Invoke(c *gin.Context) {
	name := c.Param("command")

	if c.ContentType() != "application/json" {
		c.JSON(http.StatusUnsupportedMediaType, gin.H{
			"error": "content type must be application/json",
		})
		return
	}

	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "failed to read request body",
		})
		return
	}

	result, err := h.registry.Invoke(c.Request.Context(), name, body)
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": result})
}

// ListCommands returns the registered command names
func (h *InvokeHandler) ListCommands(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"commands": h.registry.Names(),
	})
}

func statusFor(err error) int {
	var argErr *command.ArgumentError
	switch {
	case errors.Is(err, command.ErrUnknownCommand):
		return http.StatusNotFound
	case errors.As(err, &argErr),
		errors.Is(err, account.ErrInvalidEmail),
		errors.Is(err, account.ErrInvalidPassword),
		errors.Is(err, account.ErrPasswordMismatch):
		return http.StatusBadRequest
	case errors.Is(err, account.ErrInvalidCredentials),
		errors.Is(err, account.ErrSessionNotFound):
		return http.StatusUnauthorized
	case errors.Is(err, account.ErrEmailTaken):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/GriffinCanCode/grpcbridge/internal/grpc/calls"
	"github.com/GriffinCanCode/grpcbridge/internal/grpc/channel"
	"github.com/GriffinCanCode/grpcbridge/internal/infrastructure/compression"
)

// StatusCode maps bridge errors onto HTTP statuses.
func StatusCode(err error) int {
	var transport *calls.TransportError
	switch {
	case errors.Is(err, channel.ErrChannelNotReady):
		return http.StatusConflict
	case errors.Is(err, channel.ErrMissingHost), errors.Is(err, compression.ErrUnknownCompressor):
		return http.StatusBadRequest
	case errors.As(err, &transport):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeError(c *gin.Context, err error) {
	c.JSON(StatusCode(err), gin.H{
		"success": false,
		"error":   err.Error(),
	})
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{
		"success": false,
		"error":   "Invalid request: " + err.Error(),
	})
}

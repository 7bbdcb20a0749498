package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap/zapcore"
)

// LevelController changes the process log level at runtime.
type LevelController interface {
	SetLevel(level string) error
	Level() zapcore.Level
}

// LevelRequest carries a zap level name such as "debug" or "warn".
type LevelRequest struct {
	Level string `json:"level" binding:"required"`
}

// RegisterLogLevel mounts GET and PUT /logging/level.
func RegisterLogLevel(r gin.IRouter, ctrl LevelController) {
	r.GET("/logging/level", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"success": true, "level": ctrl.Level().String()})
	})
	r.PUT("/logging/level", func(c *gin.Context) {
		var req LevelRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err)
			return
		}
		if err := ctrl.SetLevel(req.Level); err != nil {
			badRequest(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "level": ctrl.Level().String()})
	})
}

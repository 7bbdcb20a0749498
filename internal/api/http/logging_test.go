package http

import (
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap/zapcore"

	"github.com/GriffinCanCode/grpcbridge/internal/logging"
)

func TestLogLevelRoutes(t *testing.T) {
	logger := logging.NewNop()
	router := gin.New()
	RegisterLogLevel(router, logger)
	f := &fixture{router: router}

	code, body := f.do(t, http.MethodGet, "/logging/level", nil)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "info", body["level"])

	code, body = f.do(t, http.MethodPut, "/logging/level", gin.H{"level": "debug"})
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "debug", body["level"])
	assert.Equal(t, zapcore.DebugLevel, logger.Level())

	code, _ = f.do(t, http.MethodPut, "/logging/level", gin.H{"level": "loud"})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, zapcore.DebugLevel, logger.Level())

	code, _ = f.do(t, http.MethodPut, "/logging/level", gin.H{})
	assert.Equal(t, http.StatusBadRequest, code)
}

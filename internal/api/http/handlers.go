package http

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/grpcbridge/internal/bridge"
	"github.com/GriffinCanCode/grpcbridge/internal/infrastructure/monitoring"
)

// Handlers exposes the bridge module over REST.
type Handlers struct {
	module  *bridge.Module
	metrics *monitoring.Metrics
	logger  *zap.Logger
}

// NewHandlers creates the REST handlers.
func NewHandlers(module *bridge.Module, metrics *monitoring.Metrics, logger *zap.Logger) *Handlers {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handlers{module: module, metrics: metrics, logger: logger}
}

// Register mounts every route on r.
func (h *Handlers) Register(r gin.IRouter) {
	r.GET("/health", h.Health)

	ch := r.Group("/channel")
	ch.GET("", h.GetChannel)
	ch.PUT("/config", h.ConfigureChannel)
	ch.POST("/init", h.InitChannel)
	ch.POST("/reset", h.ResetChannel)
	ch.GET("/state", h.ChannelState)
	ch.POST("/idle", h.EnterIdle)

	r.PUT("/diagnostics", h.SetDiagnostics)

	call := r.Group("/calls/:id")
	call.POST("/unary", h.Unary)
	call.POST("/server-streaming", h.ServerStreaming)
	call.POST("/client-streaming", h.ClientStreaming)
	call.POST("/finish", h.Finish)
	call.DELETE("", h.Cancel)
}

// Health reports module and process status.
func (h *Handlers) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"bridge":  h.module.Status(),
		"metrics": h.metrics.GetSnapshot(),
	})
}

// GetChannel returns the channel configuration and state.
func (h *Handlers) GetChannel(c *gin.Context) {
	cfg := h.module.ChannelSettings()
	c.JSON(http.StatusOK, gin.H{
		"success":  true,
		"host":     cfg.Host,
		"insecure": cfg.Insecure,
		"compression": gin.H{
			"enabled":    cfg.Compression.Enabled,
			"compressor": cfg.Compression.Compressor,
		},
		"response_size_limit": cfg.ResponseSizeLimit,
		"keep_alive": gin.H{
			"enabled": cfg.KeepAlive.Enabled,
			"time":    int(cfg.KeepAlive.Time.Seconds()),
			"timeout": int(cfg.KeepAlive.Timeout.Seconds()),
		},
		"state": h.module.ConnectionState(false),
	})
}

// ChannelConfigRequest updates only the fields that are present.
type ChannelConfigRequest struct {
	Host              *string `json:"host"`
	Insecure          *bool   `json:"insecure"`
	ResponseSizeLimit *int    `json:"response_size_limit"`
	Compression       *struct {
		Enabled    bool   `json:"enabled"`
		Compressor string `json:"compressor"`
	} `json:"compression"`
	KeepAlive *struct {
		Enabled bool `json:"enabled"`
		Time    int  `json:"time"`
		Timeout int  `json:"timeout"`
	} `json:"keep_alive"`
}

// ConfigureChannel applies configuration for the next channel build.
func (h *Handlers) ConfigureChannel(c *gin.Context) {
	var req ChannelConfigRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	if req.Host != nil {
		h.module.SetHost(*req.Host)
	}
	if req.Insecure != nil {
		h.module.SetIsInsecure(*req.Insecure)
	}
	if req.ResponseSizeLimit != nil {
		if *req.ResponseSizeLimit < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "response_size_limit must not be negative"})
			return
		}
		h.module.SetResponseSizeLimit(*req.ResponseSizeLimit)
	}
	if req.Compression != nil {
		h.module.SetCompression(req.Compression.Enabled, req.Compression.Compressor)
	}
	if req.KeepAlive != nil {
		h.module.SetKeepAlive(req.KeepAlive.Enabled, req.KeepAlive.Time, req.KeepAlive.Timeout)
	}

	h.GetChannel(c)
}

// InitChannel builds a new channel.
func (h *Handlers) InitChannel(c *gin.Context) {
	if err := h.module.InitChannel(); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// ResetChannel rebuilds the channel if one exists.
func (h *Handlers) ResetChannel(c *gin.Context) {
	var req struct {
		Reason string `json:"reason"`
	}
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err)
			return
		}
	}
	if req.Reason == "" {
		req.Reason = "manual"
	}

	if err := h.module.ResetConnection(req.Reason); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// ChannelState polls the connectivity state.
func (h *Handlers) ChannelState(c *gin.Context) {
	connect, _ := strconv.ParseBool(c.Query("connect"))
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"state":   h.module.ConnectionState(connect),
	})
}

// EnterIdle moves the channel to idle.
func (h *Handlers) EnterIdle(c *gin.Context) {
	if err := h.module.EnterIdle(); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// SetDiagnostics toggles status notifications.
func (h *Handlers) SetDiagnostics(c *gin.Context) {
	var req struct {
		Enabled *bool `json:"enabled" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	h.module.SetDiagnosticsEnabled(*req.Enabled)
	c.JSON(http.StatusOK, gin.H{"success": true, "enabled": *req.Enabled})
}

// CallRequest starts a call or sends a chunk. Data is base64 in JSON.
type CallRequest struct {
	Path    string         `json:"path" binding:"required"`
	Data    []byte         `json:"data"`
	Headers map[string]any `json:"headers"`
}

// Unary starts a unary call.
func (h *Handlers) Unary(c *gin.Context) {
	h.startCall(c, h.module.SendUnary)
}

// ServerStreaming starts a server-streaming call.
func (h *Handlers) ServerStreaming(c *gin.Context) {
	h.startCall(c, h.module.SendServerStreaming)
}

// ClientStreaming sends one client-streaming chunk.
func (h *Handlers) ClientStreaming(c *gin.Context) {
	h.startCall(c, h.module.SendClientStreamingChunk)
}

// Finish half-closes a client-streaming call.
func (h *Handlers) Finish(c *gin.Context) {
	handle, ok := handleParam(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "found": h.module.FinishClientStreaming(handle)})
}

// Cancel aborts a call.
func (h *Handlers) Cancel(c *gin.Context) {
	handle, ok := handleParam(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "found": h.module.Cancel(handle)})
}

type sendFunc func(handle int64, path string, payload []byte, headers map[string]any) error

func (h *Handlers) startCall(c *gin.Context, send sendFunc) {
	handle, ok := handleParam(c)
	if !ok {
		return
	}

	var req CallRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	if err := send(handle, req.Path, req.Data, req.Headers); err != nil {
		h.logger.Debug("call rejected",
			zap.Int64("handle", handle),
			zap.String("path", req.Path),
			zap.Error(err),
		)
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "id": handle})
}

func handleParam(c *gin.Context) (int64, bool) {
	handle, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error":   "invalid call id: " + c.Param("id"),
		})
		return 0, false
	}
	return handle, true
}

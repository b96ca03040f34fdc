package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/skyfeed/skyfeed/pkg/logging"
	"github.com/skyfeed/skyfeed/pkg/telemetry"
)

// MethodHandler handles one XRPC query method
type MethodHandler func(c *gin.Context) (interface{}, error)

// XRPCHandler dispatches /xrpc/<nsid> requests
type XRPCHandler struct {
	methods map[string]MethodHandler
	logger  *zap.Logger
}

// NewXRPCHandler creates a new XRPC handler
func NewXRPCHandler() *XRPCHandler {
	return &XRPCHandler{
		methods: make(map[string]MethodHandler),
		logger:  logging.WithComponent("xrpc"),
	}
}

// RegisterMethod registers a method handler
func (h *XRPCHandler) RegisterMethod(nsid string, handler MethodHandler) {
	h.methods[nsid] = handler
}

// Handle handles an XRPC query
func (h *XRPCHandler) Handle(c *gin.Context) {
	nsid := c.Param("method")

	ctx, span := telemetry.StartSpan(c.Request.Context(), "xrpc.handle")
	span.SetAttributes(attribute.String("xrpc.method", nsid))
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	handler, ok := h.methods[nsid]
	if !ok {
		h.sendError(c, NewError(http.StatusNotImplemented, ErrMethodNotFound, "Method not implemented"), nil)
		return
	}

	result, err := handler(c)
	if err != nil {
		span.RecordError(err)
		h.sendError(c, toError(err), err)
		return
	}

	c.JSON(http.StatusOK, result)
}

func (h *XRPCHandler) sendError(c *gin.Context, apiErr *Error, cause error) {
	if apiErr.Status >= http.StatusInternalServerError {
		h.logger.Error("XRPC request failed",
			zap.String("method", c.Param("method")),
			zap.String("request_id", c.GetString(requestIDKey)),
			zap.Error(cause))
	}
	c.AbortWithStatusJSON(apiErr.Status, apiErr)
}

package respond

import (
	"github.com/gin-gonic/gin"

	"cloudvault-backend/internal/shared/telemetry"
)

// ErrorBody is the object under "error" in every non-upload failure.
type ErrorBody struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"requestId,omitempty"`
	Details   any    `json:"details,omitempty"`
}

type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}

// Error aborts with {"error":{...}}.
func Error(c *gin.Context, status int, code, message string, details any) {
	reqID := logFailure(c, status, code, message)
	c.AbortWithStatusJSON(status, ErrorResponse{Error: ErrorBody{
		Code:      code,
		Message:   message,
		RequestID: reqID,
		Details:   details,
	}})
}

// FailureResponse is the upload endpoint's envelope.
type FailureResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
}

// Failure aborts with {"success":false,"error":message}.
func Failure(c *gin.Context, status int, code, message string) {
	logFailure(c, status, code, message)
	c.AbortWithStatusJSON(status, FailureResponse{Error: message, Code: code})
}

// logFailure records the failure at warn, or error for 5xx, and returns the
// request id it logged under. Context keys are the ones middleware sets.
func logFailure(c *gin.Context, status int, code, message string) string {
	reqID := c.GetString("requestId")
	fields := map[string]any{
		"status":     status,
		"code":       code,
		"message":    message,
		"route":      c.FullPath(),
		"method":     c.Request.Method,
		"request_id": reqID,
	}
	if uid := c.GetString("userId"); uid != "" {
		fields["user_id"] = uid
	}
	log := telemetry.Warn
	if status >= 500 {
		log = telemetry.Error
	}
	log("http.error", fields)
	return reqID
}

package server

import (
	"fmt"
	"net/http"
	"os"
	"runtime/debug"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/toronlabs/toron_backend/internal/logging"
)

// ErrorResponse is the standardized HTTP error body
type ErrorResponse struct {
	Status    int       `json:"status"`
	Message   string    `json:"message"`
	Details   string    `json:"details,omitempty"`
	Path      string    `json:"path"`
	Timestamp time.Time `json:"timestamp"`
	RequestID string    `json:"request_id,omitempty"`
}

// ErrorHandler turns accumulated gin errors into a standardized
// response
func ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 {
			return
		}
		err := c.Errors.Last().Err
		status := c.Writer.Status()
		if status < http.StatusBadRequest {
			status = http.StatusInternalServerError
		}

		response := ErrorResponse{
			Status:    status,
			Message:   "An error occurred while processing your request",
			Path:      c.Request.URL.Path,
			Timestamp: time.Now(),
			RequestID: c.GetString("RequestID"),
		}
		if os.Getenv("APP_ENV") == "development" {
			response.Details = err.Error()
		}

		logging.Error("Request failed", map[string]interface{}{
			"path":       response.Path,
			"status":     status,
			"request_id": response.RequestID,
			"error":      err.Error(),
		})

		if !c.Writer.Written() {
			c.JSON(status, gin.H{"error": response})
		}
	}
}

// RequestIDMiddleware tags each request with a unique ID
func RequestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := uuid.New().String()
		c.Set("RequestID", requestID)
		c.Header("X-Request-ID", requestID)
		c.Next()
	}
}

// LoggingMiddleware logs every request through the house logger
func LoggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		logging.LogHTTPRequest(
			c.Request.Method,
			c.Request.URL.Path,
			c.Writer.Status(),
			time.Since(start),
			map[string]interface{}{
				"request_id": c.GetString("RequestID"),
				"client_ip":  c.ClientIP(),
			},
		)
	}
}

// RecoveryMiddleware converts handler panics into 500s
func RecoveryMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				logging.Error("Recovered panic in handler", map[string]interface{}{
					"path":       c.Request.URL.Path,
					"request_id": c.GetString("RequestID"),
					"panic":      fmt.Sprintf("%v", r),
					"stack":      string(debug.Stack()),
				})

				response := ErrorResponse{
					Status:    http.StatusInternalServerError,
					Message:   "An unexpected error occurred",
					Path:      c.Request.URL.Path,
					Timestamp: time.Now(),
					RequestID: c.GetString("RequestID"),
				}
				if os.Getenv("APP_ENV") == "development" {
					response.Details = fmt.Sprintf("%v", r)
				}
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": response})
			}
		}()
		c.Next()
	}
}

// Package server exposes the tracker as the Rocket.Chat outgoing webhook.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/tbxark/remi/types"
)

// DefaultUser answers for webhook calls that carry no user_name.
const DefaultUser = "Unknown"

const RequestIDHeader = "X-Request-Id"

// UnavailableText is what Rocket.Chat shows when the turn could not be handled
// at all, e.g. the session store is down.
const UnavailableText = "⚠️ Sorry, I couldn't process that right now. Please try again in a moment."

type Handler interface {
	Handle(ctx context.Context, userID, text string) (*types.Outcome, error)
}

type QueryRequest struct {
	Text     string `json:"text"`
	UserName string `json:"user_name"`
}

type QueryResponse struct {
	Text        string             `json:"text,omitempty"`
	Attachments []types.Attachment `json:"attachments,omitempty"`
}

type APIError struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

type ErrorEnvelope struct {
	Error APIError `json:"error"`
}

func respondError(c *gin.Context, status int, code string, err error) {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	c.AbortWithStatusJSON(status, ErrorEnvelope{Error: APIError{Message: msg, Code: code}})
}

func NewRouter(h Handler, logger *slog.Logger) *gin.Engine {
	if logger == nil {
		logger = slog.Default()
	}
	router := gin.New()
	router.Use(gin.Recovery(), RequestLogger(logger))
	router.GET("/healthz", func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})
	router.POST("/query", queryHandler(h, logger))
	return router
}

func queryHandler(h Handler, logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req QueryRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondError(c, http.StatusBadRequest, "bad_request", fmt.Errorf("decode request: %w", err))
			return
		}
		text := strings.TrimSpace(req.Text)
		user := strings.TrimSpace(req.UserName)
		if user == "" {
			user = DefaultUser
		}
		if text == "" {
			c.JSON(http.StatusOK, gin.H{})
			return
		}
		out, err := h.Handle(c.Request.Context(), user, text)
		if err != nil {
			logger.Error("Failed to handle message", "user", user, "error", err)
			c.JSON(http.StatusOK, QueryResponse{Text: UnavailableText})
			return
		}
		if out.Err != nil {
			logger.Warn("Turn degraded", "user", user, "kind", out.Kind, "error", out.Err)
		}
		if out.Text == "" && len(out.Attachments) == 0 {
			c.JSON(http.StatusOK, gin.H{})
			return
		}
		c.JSON(http.StatusOK, QueryResponse{Text: out.Text, Attachments: out.Attachments})
	}
}

func RequestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		id := c.GetHeader(RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Header(RequestIDHeader, id)
		c.Next()

		status := c.Writer.Status()
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}
		fields := []any{
			"method", c.Request.Method,
			"path", path,
			"status", status,
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", id,
		}
		switch {
		case status >= 500:
			logger.Error("HTTP request", fields...)
		case status >= 400:
			logger.Warn("HTTP request", fields...)
		default:
			logger.Debug("HTTP request", fields...)
		}
	}
}

// Serve runs the webhook on addr until ctx is cancelled, then drains
// in-flight requests for up to grace.
func Serve(ctx context.Context, addr string, handler http.Handler, grace time.Duration, logger *slog.Logger) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		logger.Info("Webhook listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()
	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve %s: %w", addr, err)
	case <-ctx.Done():
	}
	logger.Info("Shutting down webhook")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), grace)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

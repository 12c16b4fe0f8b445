package main

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"guvohbot/pkg/scan"
)

// imageScanner is the part of scan.Scanner the API needs.
type imageScanner interface {
	Scan(ctx context.Context, path string) (scan.Result, error)
}

// server holds what the HTTP handlers share.
type server struct {
	scanner       imageScanner
	bot           *Bot // nil disables the webhook route
	webhookSecret string
	jwtSecret     []byte
	maxUpload     int64
	log           zerolog.Logger
}

func setupRoutes(r *gin.Engine, s *server) {
	r.Use(s.requestID())
	r.GET("/healthz", healthHandler)
	if s.bot != nil {
		r.POST("/telegram/webhook/:secret", s.webhookHandler)
	}
	api := r.Group("/v1")
	api.Use(jwtAuthMiddleware(s.jwtSecret))
	api.POST("/extract", s.extractImageHandler)
	api.POST("/extract/text", s.extractTextHandler)
}

// requestID tags each request with an id and logs it when done.
func (s *server) requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		id := c.GetHeader("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		c.Set("req_id", id)
		c.Header("X-Request-ID", id)
		c.Next()
		s.log.Debug().
			Str("req_id", id).
			Str("method", c.Request.Method).
			Str("path", c.FullPath()).
			Int("status", c.Writer.Status()).
			Dur("took", time.Since(start)).
			Msg("request")
	}
}

func healthHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// webhookHandler accepts Telegram updates. The path secret keeps strangers from
// injecting updates; handling continues after the response is written.
func (s *server) webhookHandler(c *gin.Context) {
	if s.webhookSecret != "" && subtle.ConstantTimeCompare([]byte(c.Param("secret")), []byte(s.webhookSecret)) != 1 {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}
	var u tgbotapi.Update
	if err := c.ShouldBindJSON(&u); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	s.bot.Dispatch(context.WithoutCancel(c.Request.Context()), u)
	c.Status(http.StatusOK)
}

// extractImageHandler OCRs an uploaded document photo.
func (s *server) extractImageHandler(c *gin.Context) {
	tooLarge := fmt.Sprintf("file too large (max %dMB)", s.maxUpload/(1024*1024))
	// the multipart envelope may add up to 1MB of headers and fields around the file
	limit := s.maxUpload + 1<<20
	if c.Request.ContentLength > limit {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": tooLarge})
		return
	}
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit)
	file, err := c.FormFile("file")
	if err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": tooLarge})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "file missing"})
		return
	}
	if file.Size > s.maxUpload {
		c.JSON(http.StatusBadRequest, gin.H{"error": tooLarge})
		return
	}
	ext := strings.ToLower(filepath.Ext(file.Filename))
	switch ext {
	case ".png", ".jpg", ".jpeg", ".gif", ".bmp", ".tif", ".tiff":
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "unsupported image type"})
		return
	}
	tmp, err := os.CreateTemp("", "upload-*"+ext)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "temp file"})
		return
	}
	path := tmp.Name()
	_ = tmp.Close()
	log := s.log.With().Str("req_id", c.GetString("req_id")).Logger()
	defer scan.Remove(log, path)
	if err := c.SaveUploadedFile(file, path); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "save failed"})
		return
	}

	res, err := s.scanner.Scan(c.Request.Context(), path)
	if err != nil {
		log.Error().Err(err).Str("file", file.Filename).Msg("extract failed")
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": scan.ErrorPrefix + err.Error()})
		return
	}
	c.JSON(http.StatusOK, res)
}

// extractTextHandler runs the field rules over text the caller already has.
func (s *server) extractTextHandler(c *gin.Context) {
	var req struct {
		Text string `json:"text" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, scan.FromText(req.Text))
}

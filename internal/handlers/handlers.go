package handlers

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/example/is-it-pizza/internal/apierror"
	"github.com/example/is-it-pizza/internal/usecase"
)

// DefaultMaxUploadSize caps the accepted image size when none is configured.
const DefaultMaxUploadSize = 10 << 20

// multipartOverhead leaves room for boundaries and part headers on top of
// the file itself.
const multipartOverhead = 64 << 10

// uploadField is the multipart field carrying the image.
const uploadField = "file"

// Options tunes request limits.
type Options struct {
	MaxUploadSize int64
}

type analyzeRequest struct {
	ImageURL string `json:"imageUrl"`
}

type handler struct {
	uc            *usecase.PizzaUseCase
	maxUploadSize int64
}

// RegisterRoutes wires the HTTP handlers to the Gin router. Every other
// method on a known path answers 405 without touching the body.
func RegisterRoutes(router *gin.Engine, uc *usecase.PizzaUseCase, opts Options) {
	h := &handler{uc: uc, maxUploadSize: opts.MaxUploadSize}
	if h.maxUploadSize <= 0 {
		h.maxUploadSize = DefaultMaxUploadSize
	}

	router.HandleMethodNotAllowed = true
	router.NoMethod(methodNotAllowed)

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := router.Group("/api")
	api.POST("/upload", h.upload)
	api.POST("/analyze", h.analyze)
}

func (h *handler) upload(c *gin.Context) {
	if !strings.Contains(c.GetHeader("Content-Type"), "multipart/form-data") {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Content type must be multipart/form-data"})
		return
	}

	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUploadSize+multipartOverhead)
	file, err := c.FormFile(uploadField)
	if err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			respondError(c, apierror.TooLarge("handlers.upload", "file too large"), usecase.MessageUploadFailed)
		case errors.Is(err, http.ErrMissingFile):
			c.JSON(http.StatusBadRequest, gin.H{"error": "No file found in the request"})
		default:
			c.JSON(http.StatusBadRequest, gin.H{"error": "Malformed multipart body"})
		}
		return
	}
	if file.Size > h.maxUploadSize {
		respondError(c, apierror.TooLarge("handlers.upload", "file too large"), usecase.MessageUploadFailed)
		return
	}

	src, err := file.Open()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": usecase.MessageUploadFailed})
		return
	}
	defer src.Close()

	data, err := io.ReadAll(src)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": usecase.MessageUploadFailed})
		return
	}

	result, err := h.uc.UploadImage(c.Request.Context(), file.Filename, file.Header.Get("Content-Type"), data)
	if err != nil {
		respondError(c, err, usecase.MessageUploadFailed)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"url":     result.URL,
	})
}

func (h *handler) analyze(c *gin.Context) {
	var req analyzeRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.ImageURL) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": usecase.MessageMissingURL})
		return
	}

	verdict, err := h.uc.AnalyzeImage(c.Request.Context(), req.ImageURL)
	if err != nil {
		respondError(c, err, usecase.MessageAnalyzeFailed)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"isPizza":    verdict.IsPizza,
		"confidence": verdict.Confidence,
	})
}

func methodNotAllowed(c *gin.Context) {
	c.AbortWithStatusJSON(http.StatusMethodNotAllowed, gin.H{"error": apierror.MethodNotAllowedMessage})
}

// respondError exposes only the classified message; causes stay in the logs.
func respondError(c *gin.Context, err error, fallback string) {
	typed := apierror.As(err, fallback)
	message := typed.Message
	if message == "" {
		message = fallback
	}
	c.JSON(typed.Status(), gin.H{"error": message})
}

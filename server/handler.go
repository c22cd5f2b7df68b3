package server

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/krau/konadetect/service"
)

var (
	errUnauthorized = errors.New("unauthorized")
)

type Options struct {
	UploadDir     string
	FieldName     string
	MaxUploadSize int64
	Token         string
}

type Handler struct {
	detector service.Detector
	opts     Options
}

func NewHandler(detector service.Detector, opts Options) *Handler {
	return &Handler{detector: detector, opts: opts}
}

func authenticate(c *gin.Context, expectedToken string) error {
	if expectedToken == "" {
		return nil
	}
	auth := c.GetHeader("Authorization")
	providedToken := ""
	if len(auth) > 7 && auth[:7] == "Bearer " {
		providedToken = auth[7:]
	}
	if subtle.ConstantTimeCompare([]byte(providedToken), []byte(expectedToken)) != 1 {
		return errUnauthorized
	}
	return nil
}

func Authenticate(token string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := authenticate(c, token); err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authentication failed"})
			return
		}
		c.Next()
	}
}

func missingFieldMessage(field string) string {
	return fmt.Sprintf("there is no %s field with a valid image file in the form!", field)
}

func (h *Handler) DetectHandler(c *gin.Context) {
	if c.Request.ContentLength > h.opts.MaxUploadSize {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "upload too large"})
		return
	}
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.opts.MaxUploadSize)

	fileHeader, err := c.FormFile(h.opts.FieldName)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "upload too large"})
			return
		}
		c.String(http.StatusOK, missingFieldMessage(h.opts.FieldName))
		return
	}

	path := uploadPath(h.opts.UploadDir, fileHeader.Filename)
	defer func() {
		if err := removeIfExists(path); err != nil {
			slog.Error("Removing upload failed", slog.String("path", path), slog.String("error", err.Error()))
		}
	}()
	if err := c.SaveUploadedFile(fileHeader, path); err != nil {
		slog.Error("Saving upload failed", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to save upload"})
		return
	}

	detections, err := h.detector.Detect(c.Request.Context(), path)
	if err != nil {
		if errors.Is(err, service.ErrInvalidImage) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "cannot decode image"})
			return
		}
		slog.Error("Detection failed", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "inference failed"})
		return
	}
	if detections == nil {
		detections = []service.Detection{}
	}

	c.JSON(http.StatusOK, detections)
}

func HealthHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy"})
}

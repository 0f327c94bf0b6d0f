package handlers

import (
	"encoding/base64"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/example/idverify/internal/auth"
	"github.com/example/idverify/internal/imagestore"
	"github.com/example/idverify/internal/inspection"
	"github.com/example/idverify/internal/session"
	"github.com/example/idverify/internal/usecase"
)

// MaxUploadSize bounds each uploaded image.
const MaxUploadSize = 10 << 20

// RegisterRoutes wires the HTTP handlers to the Gin router.
func RegisterRoutes(router *gin.Engine, uc *usecase.VerificationUseCase, authMiddleware gin.HandlerFunc, limiter *RateLimiter) {
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	protected := router.Group("/", authMiddleware)
	analysis := protected.Group("/", limiter.Middleware())

	analysis.POST("/verify", func(c *gin.Context) {
		manual, subjectClaim, ok := bindVerifyRequest(c)
		if !ok {
			return
		}
		operatorID, _ := auth.GetOperatorID(c.Request.Context())

		result, err := uc.Verify(c.Request.Context(), operatorID, subjectClaim, manual)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, buildVerifyResponse(result))
	})

	analysis.POST("/extract-document", func(c *gin.Context) {
		doc, mime, ok := readImagePart(c, "document")
		if !ok {
			return
		}
		signal, err := uc.ExtractDocument(c.Request.Context(), doc, mime)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"documentInfo": signal, "timestamp": time.Now().UTC()})
	})

	analysis.POST("/analyze-document", func(c *gin.Context) {
		doc, mime, ok := readImagePart(c, "document")
		if !ok {
			return
		}
		signal, err := uc.AnalyzeDocument(c.Request.Context(), doc, mime)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"documentAuthenticityResult": signal, "timestamp": time.Now().UTC()})
	})

	analysis.POST("/facial-similarity", func(c *gin.Context) {
		selfie, selfieMime, ok := readImagePart(c, "selfie")
		if !ok {
			return
		}
		doc, docMime, ok := readImagePart(c, "document")
		if !ok {
			return
		}
		signal, err := uc.FacialSimilarity(c.Request.Context(), selfie, doc, selfieMime, docMime)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"facialSimilarityResult": signal, "timestamp": time.Now().UTC()})
	})

	protected.GET("/verify/:code", func(c *gin.Context) {
		code := strings.ToUpper(strings.TrimSpace(c.Param("code")))
		if code == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "code is required"})
			return
		}
		record, err := uc.GetByCode(c.Request.Context(), code)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "verification not found"})
				return
			}
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"code":           record.Code,
			"status":         record.Status,
			"reason":         record.Reason,
			"attempt_number": record.AttemptNumber,
			"subject_claim":  record.SubjectClaim,
			"verified":       record.Verified,
			"score":          record.Score,
			"summary":        record.Summary,
			"created_at":     record.CreatedAt,
		})
	})

	protected.GET("/verify/:code/duplicates", func(c *gin.Context) {
		operatorID, _ := auth.GetOperatorID(c.Request.Context())
		report, err := uc.GetDuplicateReport(c.Request.Context(), operatorID, c.Param("code"))
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "verification not found"})
				return
			}
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"code":       report.Record.Code,
			"duplicates": len(report.Duplicates),
			"records":    report.Duplicates,
		})
	})

	protected.GET("/metrics/summary", func(c *gin.Context) {
		summary, err := uc.GetMetricsSummary(c.Request.Context())
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, summary)
	})
}

// verifyJSONRequest is the base64 alternative to multipart upload.
type verifyJSONRequest struct {
	SelfieImage   string `json:"selfieImage"`
	DocumentImage string `json:"documentImage"`
	SubjectClaim  string `json:"subjectClaim"`
}

// bindVerifyRequest accepts either multipart form or base64 JSON bodies.
func bindVerifyRequest(c *gin.Context) (*session.ManualImages, string, bool) {
	contentType := c.ContentType()
	if strings.HasPrefix(contentType, "application/json") {
		var req verifyJSONRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid JSON body"})
			return nil, "", false
		}
		selfie, err := base64.StdEncoding.DecodeString(req.SelfieImage)
		if err != nil || len(selfie) == 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "selfieImage must be base64 image data"})
			return nil, "", false
		}
		doc, err := base64.StdEncoding.DecodeString(req.DocumentImage)
		if err != nil || len(doc) == 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "documentImage must be base64 image data"})
			return nil, "", false
		}
		if int64(len(selfie)) > MaxUploadSize || int64(len(doc)) > MaxUploadSize {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "image exceeds upload limit"})
			return nil, "", false
		}
		return &session.ManualImages{
			Selfie:       selfie,
			SelfieMime:   "application/octet-stream",
			Document:     doc,
			DocumentMime: "application/octet-stream",
		}, req.SubjectClaim, true
	}

	selfie, selfieMime, ok := readImagePart(c, "selfie")
	if !ok {
		return nil, "", false
	}
	doc, docMime, ok := readImagePart(c, "document")
	if !ok {
		return nil, "", false
	}
	return &session.ManualImages{
		Selfie:       selfie,
		SelfieMime:   selfieMime,
		Document:     doc,
		DocumentMime: docMime,
	}, c.PostForm("subject_claim"), true
}

// readImagePart pulls one image from the multipart form, enforcing the
// upload ceiling and an image content type before deeper validation in
// ingestion.
func readImagePart(c *gin.Context, field string) ([]byte, string, bool) {
	file, err := c.FormFile(field)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": field + " image is required"})
		return nil, "", false
	}
	if file.Size > MaxUploadSize {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": field + " exceeds upload limit"})
		return nil, "", false
	}
	declared := partContentType(file)
	if !strings.HasPrefix(declared, "image/") {
		c.JSON(http.StatusUnsupportedMediaType, gin.H{"error": field + " must be an image"})
		return nil, "", false
	}

	src, err := file.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unable to open " + field})
		return nil, "", false
	}
	defer src.Close()

	data, err := io.ReadAll(io.LimitReader(src, MaxUploadSize+1))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read " + field})
		return nil, "", false
	}
	if int64(len(data)) > MaxUploadSize {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": field + " exceeds upload limit"})
		return nil, "", false
	}
	return data, declared, true
}

func partContentType(file *multipart.FileHeader) string {
	return file.Header.Get("Content-Type")
}

// writeError maps domain errors to HTTP statuses.
func writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, imagestore.ErrTooLarge):
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": err.Error()})
	case errors.Is(err, imagestore.ErrUnsupportedFormat):
		c.JSON(http.StatusUnsupportedMediaType, gin.H{"error": err.Error()})
	case errors.Is(err, imagestore.ErrEmptyPayload):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, inspection.ErrSignalUnavailable):
		c.JSON(http.StatusBadGateway, gin.H{"error": "inspection provider unavailable"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

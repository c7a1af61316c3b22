package operations

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"docintel-backend/internal/docintel"
	"docintel-backend/internal/shared/server/respond"
	"docintel-backend/internal/uploads"
)

// Handler wires HTTP handlers to the operations service.
type Handler struct {
	Svc     *Service
	limiter *pollLimiter
}

// NewHandler constructs a Handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{
		Svc:     svc,
		limiter: newPollLimiter(pollLimitWindow, nil),
	}
}

// RegisterRoutes attaches analysis routes to the router group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/analyze/:model", h.analyze)
	rg.POST("/analyze/:model/:modelId", h.analyzeCustom)
	rg.POST("/upload/:model", h.upload)
	rg.GET("/operations/:id", h.getOperation)
	rg.POST("/operations/:id/cancel", h.cancelOperation)
}

type analyzeRequest struct {
	DocumentURL string   `json:"documentUrl"`
	Locale      string   `json:"locale"`
	Pages       []string `json:"pages"`
}

func (h *Handler) analyze(c *gin.Context) {
	name := c.Param("model")
	if name == "custom" {
		respond.Error(c, http.StatusBadRequest, "validation_error", "custom model id is required", nil)
		return
	}
	model, err := ParseModelType(name)
	if err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", err.Error(), nil)
		return
	}
	h.submitURL(c, model)
}

// analyzeCustom serves /analyze/custom/:modelId. The route shares the
// :model segment with analyze, so anything else in that position is a 404.
func (h *Handler) analyzeCustom(c *gin.Context) {
	if c.Param("model") != "custom" {
		respond.Error(c, http.StatusNotFound, "not_found", "unknown route", nil)
		return
	}
	model, err := CustomModel(c.Param("modelId"))
	if err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", err.Error(), nil)
		return
	}
	h.submitURL(c, model)
}

func (h *Handler) submitURL(c *gin.Context, model ModelType) {
	var req analyzeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "invalid request body", nil)
		return
	}

	c.Set("modelType", model.String())

	op, err := h.Svc.Submit(c.Request.Context(),
		model,
		DocumentSource{URL: req.DocumentURL},
		AnalyzeOptions{Locale: req.Locale, Pages: req.Pages},
	)
	if err != nil {
		h.respondSubmitError(c, err)
		return
	}

	c.Set("operationId", op.ID)
	respond.Accepted(c, gin.H{
		"operationId": op.ID,
		"status":      op.Status,
	})
}

func (h *Handler) upload(c *gin.Context) {
	model, err := ParseModelType(c.Param("model"))
	if err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", err.Error(), nil)
		return
	}
	c.Set("modelType", model.String())

	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxInlineBytes)

	fileHeader, err := c.FormFile("file")
	if err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "file is required", nil)
		return
	}
	file, err := fileHeader.Open()
	if err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "unable to read file", nil)
		return
	}
	defer file.Close()

	content, err := io.ReadAll(file)
	if err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "unable to read file", nil)
		return
	}

	check, err := uploads.Preflight(fileHeader.Filename, content)
	if err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", err.Error(), nil)
		return
	}

	var locale string
	var pages []string
	if v := c.PostForm("locale"); v != "" {
		locale = v
	}
	if v := c.PostForm("pages"); v != "" {
		pages = []string{v}
	}

	op, err := h.Svc.Submit(c.Request.Context(),
		model,
		DocumentSource{Content: content, ContentType: check.ContentType},
		AnalyzeOptions{Locale: locale, Pages: pages},
	)
	if err != nil {
		h.respondSubmitError(c, err)
		return
	}

	c.Set("operationId", op.ID)
	respond.Accepted(c, gin.H{
		"operationId": op.ID,
		"status":      op.Status,
		"pageCount":   check.PageCount,
	})
}

func (h *Handler) getOperation(c *gin.Context) {
	id := c.Param("id")
	if id == "" {
		respond.Error(c, http.StatusBadRequest, "validation_error", "operation id is required", nil)
		return
	}
	c.Set("operationId", id)

	if !h.limiter.Allow(id) {
		c.Header("Retry-After", strconv.Itoa(h.limiter.RetryAfterSeconds()))
		respond.Error(c, http.StatusTooManyRequests, "rate_limited", "poll interval too short", nil)
		return
	}

	op, err := h.Svc.GetStatus(c.Request.Context(), id)
	if err != nil {
		switch {
		case errors.Is(err, ErrNotFound):
			respond.Error(c, http.StatusNotFound, "not_found", "operation not found", nil)
		case errors.Is(err, ErrInvalidInput):
			respond.Error(c, http.StatusBadRequest, "validation_error", err.Error(), nil)
		default:
			respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to fetch operation", nil)
		}
		return
	}

	respond.OK(c, op)
}

func (h *Handler) cancelOperation(c *gin.Context) {
	id := c.Param("id")
	if id == "" {
		respond.Error(c, http.StatusBadRequest, "validation_error", "operation id is required", nil)
		return
	}
	c.Set("operationId", id)

	op, err := h.Svc.Cancel(c.Request.Context(), id)
	if err != nil {
		switch {
		case errors.Is(err, ErrNotFound):
			respond.Error(c, http.StatusNotFound, "not_found", "operation not found", nil)
		default:
			respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to cancel operation", nil)
		}
		return
	}

	respond.JSON(c, http.StatusAccepted, gin.H{
		"operationId": op.ID,
		"status":      op.Status,
	})
}

func (h *Handler) respondSubmitError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrInvalidInput), errors.Is(err, docintel.ErrInvalidDocument):
		respond.Error(c, http.StatusBadRequest, "validation_error", err.Error(), nil)
	case errors.Is(err, docintel.ErrRateLimited):
		respond.Error(c, http.StatusTooManyRequests, "rate_limited", "remote service is throttling requests", nil)
	case errors.Is(err, docintel.ErrAuthFailed):
		respond.Error(c, http.StatusBadGateway, "remote_auth_failed", "remote service rejected our credentials", nil)
	case errors.Is(err, ErrRemoteUnavailable):
		respond.Error(c, http.StatusServiceUnavailable, "remote_unavailable", "remote service is unavailable", nil)
	default:
		respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to start analysis", nil)
	}
}

package api

import (
	"context"
	"crypto/subtle"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/romangod6/sitemapper/internal/models"
	"github.com/romangod6/sitemapper/internal/pipeline"
	"github.com/romangod6/sitemapper/internal/storage"
)

// Runner is the subset of *pipeline.Runner the API drives.
type Runner interface {
	Dispatch(ctx context.Context, trigger models.Trigger) (*models.Run, error)
	Busy() bool
	Store() storage.Store
}

type Handler struct {
	runner      Runner
	sitemapPath string
	// runCtx outlives requests; dispatched runs must not end with the
	// request that started them.
	runCtx context.Context
	logger *slog.Logger
}

type ErrorResponse struct {
	Error string `json:"error"`
}

type PaginationResponse struct {
	Data  interface{} `json:"data"`
	Page  int         `json:"page"`
	Limit int         `json:"limit"`
}

func NewHandler(runCtx context.Context, runner Runner, sitemapPath string, logger *slog.Logger) *Handler {
	return &Handler{
		runner:      runner,
		sitemapPath: sitemapPath,
		runCtx:      runCtx,
		logger:      logger,
	}
}

func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"busy":   h.runner.Busy(),
	})
}

func (h *Handler) ListRuns(c *gin.Context) {
	page, limit := getPaginationParams(c)
	offset := (page - 1) * limit

	runs, err := h.runner.Store().ListRuns(c.Request.Context(), limit, offset)
	if err != nil {
		h.logger.Error("Failed to list runs", slog.Any("error", err))
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "Failed to fetch runs"})
		return
	}

	c.JSON(http.StatusOK, PaginationResponse{
		Data:  runs,
		Page:  page,
		Limit: limit,
	})
}

func (h *Handler) GetRun(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid run ID"})
		return
	}

	run, err := h.runner.Store().GetRun(c.Request.Context(), id)
	if errors.Is(err, storage.ErrNotFound) {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "Run not found"})
		return
	}
	if err != nil {
		h.logger.Error("Failed to get run", slog.Any("error", err))
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "Failed to fetch run"})
		return
	}

	c.JSON(http.StatusOK, run)
}

// CreateRun is the manual dispatch trigger.
func (h *Handler) CreateRun(c *gin.Context) {
	run, err := h.runner.Dispatch(h.runCtx, models.TriggerManual)
	if errors.Is(err, pipeline.ErrRunInProgress) {
		c.JSON(http.StatusConflict, ErrorResponse{Error: "A run is already in progress"})
		return
	}
	if err != nil {
		h.logger.Error("Failed to dispatch run", slog.Any("error", err))
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "Failed to start run"})
		return
	}

	c.Header("Location", "/api/runs/"+run.ID.String())
	c.JSON(http.StatusAccepted, run)
}

func (h *Handler) GetSitemap(c *gin.Context) {
	if _, err := os.Stat(h.sitemapPath); err != nil {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "Sitemap has not been generated yet"})
		return
	}

	c.Header("Content-Type", "application/xml; charset=utf-8")
	c.File(h.sitemapPath)
}

// requireToken rejects requests without "Authorization: Bearer <token>".
// An empty token disables the check.
func requireToken(token string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if token == "" {
			c.Next()
			return
		}

		got, ok := strings.CutPrefix(c.GetHeader("Authorization"), "Bearer ")
		if !ok || subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, ErrorResponse{Error: "Unauthorized"})
			return
		}
		c.Next()
	}
}

func getPaginationParams(c *gin.Context) (page, limit int) {
	page, _ = strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ = strconv.Atoi(c.DefaultQuery("limit", "10"))

	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 10
	}

	return page, limit
}

package api

import (
	"context"
	"crypto/rand"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/tphakala/mcmigrate/internal/datastore/entities"
	"github.com/tphakala/mcmigrate/internal/logger"
	"github.com/tphakala/mcmigrate/internal/migration"
)

const defaultErrorLimit = 100

// RunnerControl is the part of the runner the API drives.
type RunnerControl interface {
	Status() migration.Status
	Pause()
	Resume()
}

// StageReader reads persisted stage state.
type StageReader interface {
	ListStages(ctx context.Context) ([]entities.StageState, error)
	Errors(ctx context.Context, stage string, limit int) ([]entities.StageError, error)
}

// StageResponse is one stage in the status response.
type StageResponse struct {
	Name            string     `json:"name"`
	Status          string     `json:"status"`
	TotalRecords    int64      `json:"total_records"`
	MigratedRecords int64      `json:"migrated_records"`
	ErrorCount      int64      `json:"error_count"`
	ProgressPercent float64    `json:"progress_percent"`
	LastMigratedID  uint       `json:"last_migrated_id"`
	RunID           string     `json:"run_id,omitempty"`
	StartedAt       *time.Time `json:"started_at,omitempty"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`
}

// StatusResponse combines the live runner status with stored stage state.
type StatusResponse struct {
	Runner migration.Status `json:"runner"`
	Stages []StageResponse  `json:"stages"`
}

// ErrorEntry is one row of the stage error log.
type ErrorEntry struct {
	ID        uint      `json:"id"`
	Stage     string    `json:"stage"`
	RowID     *uint     `json:"row_id,omitempty"`
	Category  string    `json:"category"`
	Message   string    `json:"message"`
	RunID     string    `json:"run_id"`
	CreatedAt time.Time `json:"created_at"`
}

// ActionResponse answers pause and resume.
type ActionResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Paused  bool   `json:"paused"`
}

// ErrorResponse is returned for failed requests.
type ErrorResponse struct {
	Error         string `json:"error"`
	Message       string `json:"message"`
	Code          int    `json:"code"`
	CorrelationID string `json:"correlation_id"`
}

// Controller holds the route handlers.
type Controller struct {
	runner RunnerControl
	stages StageReader
	log    logger.Logger
}

// NewController creates a controller.
func NewController(runner RunnerControl, stages StageReader, log logger.Logger) *Controller {
	return &Controller{runner: runner, stages: stages, log: log}
}

// Register mounts the migration routes on g.
func (c *Controller) Register(g *echo.Group) {
	mg := g.Group("/migration")
	mg.GET("/status", c.GetStatus)
	mg.GET("/errors", c.GetErrors)
	mg.POST("/pause", c.Pause)
	mg.POST("/resume", c.Resume)
}

// GetStatus handles GET /api/v1/migration/status
func (c *Controller) GetStatus(ctx echo.Context) error {
	states, err := c.stages.ListStages(ctx.Request().Context())
	if err != nil {
		return c.handleError(ctx, err, "Failed to read stage state", http.StatusInternalServerError)
	}

	resp := StatusResponse{
		Runner: c.runner.Status(),
		Stages: make([]StageResponse, 0, len(states)),
	}
	for i := range states {
		s := &states[i]
		resp.Stages = append(resp.Stages, StageResponse{
			Name:            s.Name,
			Status:          string(s.Status),
			TotalRecords:    s.TotalRecords,
			MigratedRecords: s.MigratedRecords,
			ErrorCount:      s.ErrorCount,
			ProgressPercent: s.Progress() * 100,
			LastMigratedID:  s.LastMigratedID,
			RunID:           s.RunID,
			StartedAt:       s.StartedAt,
			CompletedAt:     s.CompletedAt,
		})
	}
	return ctx.JSON(http.StatusOK, resp)
}

// GetErrors handles GET /api/v1/migration/errors?stage=&limit=
func (c *Controller) GetErrors(ctx echo.Context) error {
	limit := defaultErrorLimit
	if raw := ctx.QueryParam("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			return c.handleError(ctx, err, "limit must be a positive integer", http.StatusBadRequest)
		}
		limit = n
	}

	rows, err := c.stages.Errors(ctx.Request().Context(), ctx.QueryParam("stage"), limit)
	if err != nil {
		return c.handleError(ctx, err, "Failed to read stage errors", http.StatusInternalServerError)
	}

	entries := make([]ErrorEntry, 0, len(rows))
	for i := range rows {
		r := &rows[i]
		entries = append(entries, ErrorEntry{
			ID:        r.ID,
			Stage:     r.Stage,
			RowID:     r.RowID,
			Category:  r.Category,
			Message:   r.Message,
			RunID:     r.RunID,
			CreatedAt: r.CreatedAt,
		})
	}
	return ctx.JSON(http.StatusOK, entries)
}

// Pause handles POST /api/v1/migration/pause
func (c *Controller) Pause(ctx echo.Context) error {
	if !c.runner.Status().Running {
		return c.handleError(ctx, nil, "Migration is not running", http.StatusConflict)
	}
	c.runner.Pause()
	c.log.Info("migration paused via api", logger.String("ip", ctx.RealIP()))
	return ctx.JSON(http.StatusOK, ActionResponse{Success: true, Message: "Migration paused", Paused: true})
}

// Resume handles POST /api/v1/migration/resume
func (c *Controller) Resume(ctx echo.Context) error {
	if !c.runner.Status().Running {
		return c.handleError(ctx, nil, "Migration is not running", http.StatusConflict)
	}
	c.runner.Resume()
	c.log.Info("migration resumed via api", logger.String("ip", ctx.RealIP()))
	return ctx.JSON(http.StatusOK, ActionResponse{Success: true, Message: "Migration resumed", Paused: false})
}

func (c *Controller) handleError(ctx echo.Context, err error, message string, code int) error {
	resp := ErrorResponse{
		Error:         message,
		Message:       message,
		Code:          code,
		CorrelationID: correlationID(),
	}
	if err != nil {
		resp.Error = err.Error()
	}

	c.log.Warn("api error",
		logger.String("correlation_id", resp.CorrelationID),
		logger.String("message", message),
		logger.String("error", resp.Error),
		logger.Int("code", code),
		logger.String("path", ctx.Request().URL.Path))
	return ctx.JSON(code, resp)
}

func correlationID() string {
	const charset = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		return "ERR-RAND"
	}
	for i := range b {
		b[i] = charset[int(b[i])%len(charset)]
	}
	return string(b)
}

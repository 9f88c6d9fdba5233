package httpapi

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/bull/robotics-tutor/internal/apperr"
	"github.com/bull/robotics-tutor/internal/auth"
	"github.com/bull/robotics-tutor/internal/database"
)

type progressHandler struct {
	store   ProgressStore
	catalog Catalog
}

func (h *progressHandler) register(g *echo.Group) {
	g.GET("", h.list)
	g.PUT("/:chapterID", h.upsert)
}

func (h *progressHandler) list(c echo.Context) error {
	rows, err := h.store.ListByUser(c.Request().Context(), auth.UserID(c))
	if err != nil {
		return apperr.ServiceUnavailable("Database", "failed to load progress", err)
	}
	if rows == nil {
		rows = []*database.ChapterProgress{}
	}
	return c.JSON(http.StatusOK, map[string]any{"progress": rows})
}

type progressRequest struct {
	Status             string `json:"status"`
	ProgressPercentage int    `json:"progress_percentage"`
	TimeSpentSeconds   int    `json:"time_spent_seconds"`
	QuizScore          *int   `json:"quiz_score"`
	QuizPassed         bool   `json:"quiz_passed"`
	ExercisePassed     bool   `json:"exercise_passed"`
}

func (r progressRequest) validate() error {
	switch r.Status {
	case database.StatusNotStarted, database.StatusInProgress, database.StatusCompleted:
	default:
		return apperr.Validation("Status must be one of not_started, in_progress, completed",
			map[string]any{"field": "status"})
	}
	if r.ProgressPercentage < 0 || r.ProgressPercentage > 100 {
		return apperr.Validation("Progress percentage must be between 0 and 100",
			map[string]any{"field": "progress_percentage"})
	}
	if r.TimeSpentSeconds < 0 {
		return apperr.Validation("Time spent cannot be negative", map[string]any{"field": "time_spent_seconds"})
	}
	if r.QuizScore != nil && (*r.QuizScore < 0 || *r.QuizScore > 100) {
		return apperr.Validation("Quiz score must be between 0 and 100", map[string]any{"field": "quiz_score"})
	}
	return nil
}

func (h *progressHandler) upsert(c echo.Context) error {
	var req progressRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	if err := req.validate(); err != nil {
		return err
	}

	ctx := c.Request().Context()
	chapterID := c.Param("chapterID")
	if _, err := h.catalog.GetChapter(ctx, chapterID); err != nil {
		return lookupError(err, "Chapter", chapterID)
	}

	p, err := h.store.Upsert(ctx, &database.ChapterProgress{
		UserID:             auth.UserID(c),
		ChapterID:          chapterID,
		Status:             req.Status,
		ProgressPercentage: req.ProgressPercentage,
		TimeSpentSeconds:   req.TimeSpentSeconds,
		QuizScore:          req.QuizScore,
		QuizPassed:         req.QuizPassed,
		ExercisePassed:     req.ExercisePassed,
	})
	if err != nil {
		return apperr.ServiceUnavailable("Database", "failed to save progress", err)
	}
	return c.JSON(http.StatusOK, p)
}

package httpapi

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/bull/robotics-tutor/internal/auth"
	"github.com/bull/robotics-tutor/internal/chat"
)

type chatHandler struct {
	svc ChatService
}

func (h *chatHandler) register(g *echo.Group) {
	g.POST("/query", h.query)
	g.POST("/sessions", h.startSession)
	g.GET("/sessions/:id", h.history)
	g.POST("/messages/:id/rate", h.rate)
}

type queryRequest struct {
	Query                 string `json:"query"`
	Mode                  string `json:"mode"`
	ChapterID             string `json:"chapter_id"`
	ModuleSlug            string `json:"module_slug"`
	ConversationSessionID string `json:"conversation_session_id"`
	ParentMessageID       string `json:"parent_message_id"`
	Intent                string `json:"intent"`
	UserDifficulty        string `json:"user_difficulty"`
}

func (h *chatHandler) query(c echo.Context) error {
	var req queryRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	res, err := h.svc.Answer(c.Request().Context(), chat.Request{
		Query:                 req.Query,
		UserID:                auth.UserID(c),
		Mode:                  req.Mode,
		ChapterID:             req.ChapterID,
		ModuleSlug:            req.ModuleSlug,
		ConversationSessionID: req.ConversationSessionID,
		ParentMessageID:       req.ParentMessageID,
		Intent:                req.Intent,
		Difficulty:            req.UserDifficulty,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, res)
}

func (h *chatHandler) startSession(c echo.Context) error {
	return c.JSON(http.StatusCreated, h.svc.StartSession())
}

func (h *chatHandler) history(c echo.Context) error {
	hist, err := h.svc.History(c.Request().Context(), auth.UserID(c), c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, hist)
}

func (h *chatHandler) rate(c echo.Context) error {
	var req chat.RateRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	r, err := h.svc.Rate(c.Request().Context(), auth.UserID(c), c.Param("id"), req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, r)
}

package httpapi

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/bull/robotics-tutor/internal/auth"
)

type authHandler struct {
	svc AuthService
}

func (h *authHandler) register(g *echo.Group, requireUser echo.MiddlewareFunc) {
	g.POST("/signup", h.signup)
	g.POST("/login", h.login)
	g.GET("/me", h.me, requireUser)
	g.PATCH("/profile", h.updateProfile, requireUser)
}

func (h *authHandler) signup(c echo.Context) error {
	var req auth.SignupRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	sess, err := h.svc.Signup(c.Request().Context(), req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, sess)
}

func (h *authHandler) login(c echo.Context) error {
	var req auth.LoginRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	sess, err := h.svc.Login(c.Request().Context(), req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, sess)
}

func (h *authHandler) me(c echo.Context) error {
	u, err := h.svc.CurrentUser(c.Request().Context(), auth.UserID(c))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, u)
}

type profileRequest struct {
	LanguagePreference string `json:"language_preference"`
	Theme              string `json:"theme"`
}

func (h *authHandler) updateProfile(c echo.Context) error {
	var req profileRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	u, err := h.svc.UpdatePreferences(c.Request().Context(), auth.UserID(c), req.LanguagePreference, req.Theme)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, u)
}

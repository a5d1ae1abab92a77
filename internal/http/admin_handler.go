package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"dama-exam/internal/repository"
	"dama-exam/internal/service"
)

// AdminHandler expone login de administrador y ajustes del juez LLM.
type AdminHandler struct {
	logger   *zap.Logger
	auth     *service.AuthService
	settings repository.SettingsRepository
	cache    *service.SettingsCache
}

func NewAdminHandler(
	logger *zap.Logger,
	auth *service.AuthService,
	settings repository.SettingsRepository,
	cache *service.SettingsCache,
) *AdminHandler {
	return &AdminHandler{
		logger:   logger,
		auth:     auth,
		settings: settings,
		cache:    cache,
	}
}

// Login maneja POST /admin/login.
func (h *AdminHandler) Login(c *gin.Context) {
	var req struct {
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	pair, err := h.auth.Login(req.Password)
	if err != nil {
		if errors.Is(err, service.ErrAuthUnavailable) {
			h.logger.Error("admin auth unavailable", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "auth not configured"})
			return
		}
		c.JSON(http.StatusUnauthorized, gin.H{"error": "bad credentials"})
		return
	}

	c.JSON(http.StatusOK, pair)
}

// Refresh maneja POST /admin/refresh.
func (h *AdminHandler) Refresh(c *gin.Context) {
	var req struct {
		RefreshToken string `json:"refresh_token" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	pair, err := h.auth.RefreshPair(req.RefreshToken)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}

	c.JSON(http.StatusOK, pair)
}

// GetSettings maneja GET /admin/settings: modelo seleccionado y parametros del juez.
func (h *AdminHandler) GetSettings(c *gin.Context) {
	ctx := c.Request.Context()

	model, err := h.settings.SelectedModel(ctx)
	if err != nil && !errors.Is(err, repository.ErrNotConfigured) {
		h.logger.Error("load selected model failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not load settings"})
		return
	}

	judge, err := h.settings.JudgeSettings(ctx)
	if err != nil && !errors.Is(err, repository.ErrNotConfigured) {
		h.logger.Error("load judge settings failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not load settings"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"model":       model.Name,
		"temperature": judge.Temperature,
		"prompt":      judge.Prompt,
	})
}

// SelectModel maneja PUT /admin/settings/model.
func (h *AdminHandler) SelectModel(c *gin.Context) {
	var req struct {
		Model string `json:"model" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	if err := h.settings.SelectModel(c.Request.Context(), req.Model); err != nil {
		h.logger.Error("select model failed", zap.Error(err), zap.String("model", req.Model))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not update model"})
		return
	}

	h.cache.Invalidate(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{"model": req.Model})
}

// UpdateTemperature maneja PUT /admin/settings/temperature.
func (h *AdminHandler) UpdateTemperature(c *gin.Context) {
	var req struct {
		Temperature *float64 `json:"temperature" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || *req.Temperature < 0 || *req.Temperature > 2 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "temperature must be between 0 and 2"})
		return
	}

	if err := h.settings.UpdateTemperature(c.Request.Context(), *req.Temperature); err != nil {
		h.logger.Error("update temperature failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not update temperature"})
		return
	}

	h.cache.Invalidate(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{"temperature": *req.Temperature})
}

// UpdatePrompt maneja PUT /admin/settings/prompt.
func (h *AdminHandler) UpdatePrompt(c *gin.Context) {
	var req struct {
		Prompt string `json:"prompt" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	if err := h.settings.UpdatePrompt(c.Request.Context(), req.Prompt); err != nil {
		h.logger.Error("update prompt failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not update prompt"})
		return
	}

	h.cache.Invalidate(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{"prompt": req.Prompt})
}

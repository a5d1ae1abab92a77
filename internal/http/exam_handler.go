package http

import (
	"encoding/base64"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"dama-exam/internal/service"
)

// ExamHandler expone el flujo conversacional del examen sobre HTTP.
type ExamHandler struct {
	logger *zap.Logger
	exam   *service.ExamService
}

func NewExamHandler(logger *zap.Logger, exam *service.ExamService) *ExamHandler {
	return &ExamHandler{logger: logger, exam: exam}
}

type replyPayload struct {
	Text     string           `json:"text"`
	Options  []string         `json:"options,omitempty"`
	Document *documentPayload `json:"document,omitempty"`
}

type documentPayload struct {
	Filename string `json:"filename"`
	Caption  string `json:"caption,omitempty"`
	// Content is base64 so the reply stays plain JSON.
	Content string `json:"content"`
}

// PostMessage maneja POST /exam/message: un turno de la conversacion.
func (h *ExamHandler) PostMessage(c *gin.Context) {
	var req struct {
		UserID string `json:"user_id" binding:"required"`
		Text   string `json:"text"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid exam message request", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	replies := h.exam.HandleMessage(c.Request.Context(), req.UserID, req.Text)

	out := make([]replyPayload, 0, len(replies))
	for _, r := range replies {
		p := replyPayload{Text: r.Text, Options: r.Options}
		if r.Document != nil {
			p.Document = &documentPayload{
				Filename: r.Document.Filename,
				Caption:  r.Document.Caption,
				Content:  base64.StdEncoding.EncodeToString(r.Document.Data),
			}
		}
		out = append(out, p)
	}

	c.JSON(http.StatusOK, gin.H{"replies": out})
}

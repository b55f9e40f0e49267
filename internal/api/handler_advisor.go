package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"vending-backend/internal/advisor"
)

// StartAdvisorSession handles POST /api/advisor/sessions.
func (h *Handler) StartAdvisorSession(c *gin.Context) {
	c.JSON(http.StatusCreated, h.advisor.Start())
}

type advisorAnswerRequest struct {
	QuestionID string `json:"questionId" binding:"required"`
	Answer     string `json:"answer" binding:"required,oneof=yes no"`
}

// AnswerAdvisorQuestion handles POST /api/advisor/sessions/:id/answers.
func (h *Handler) AnswerAdvisorQuestion(c *gin.Context) {
	var req advisorAnswerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	step, err := h.advisor.Answer(c.Request.Context(), c.Param("id"), req.QuestionID, req.Answer == "yes")
	if err != nil {
		c.JSON(advisorErrorStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, step)
}

// GetAdvisorResult handles GET /api/advisor/sessions/:id/result.
func (h *Handler) GetAdvisorResult(c *gin.Context) {
	result, err := h.advisor.Result(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(advisorErrorStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, result)
}

func advisorErrorStatus(err error) int {
	switch {
	case errors.Is(err, advisor.ErrSessionNotFound):
		return http.StatusNotFound
	case errors.Is(err, advisor.ErrQuestionMismatch), errors.Is(err, advisor.ErrSessionActive):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

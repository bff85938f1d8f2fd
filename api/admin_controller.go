package api

import (
	"errors"
	"log"
	"net/http"
	"time"

	"polls-backend/middleware"
	"polls-backend/service"

	"github.com/gin-gonic/gin"
)

// QuestionRequest is the body of question create and update calls
type QuestionRequest struct {
	QuestionText string     `json:"question_text" binding:"required"`
	PubDate      *time.Time `json:"pub_date"`
	EndDate      *time.Time `json:"end_date"`
	Choices      []string   `json:"choices"`
}

// ChoiceRequest is the body of the add choice call
type ChoiceRequest struct {
	ChoiceText string `json:"choice_text" binding:"required"`
}

// AdminController serves the staff-only management API
type AdminController struct {
	pollService *service.PollService
}

// NewAdminController creates the admin API controller
func NewAdminController(pollService *service.PollService) *AdminController {
	return &AdminController{pollService: pollService}
}

// RegisterRoutes mounts the admin API under group behind the staff check
func (c *AdminController) RegisterRoutes(group *gin.RouterGroup) {
	group.Use(middleware.RequireStaff())

	questions := group.Group("/questions")
	{
		questions.GET("", c.ListQuestions)
		questions.POST("", c.CreateQuestion)
		questions.PUT("/:id", c.UpdateQuestion)
		questions.POST("/:id/choices", c.AddChoice)
	}
	group.DELETE("/choices/:id", c.DeleteChoice)
}

func (r QuestionRequest) input() service.QuestionInput {
	return service.QuestionInput{
		QuestionText: r.QuestionText,
		PubDate:      r.PubDate,
		EndDate:      r.EndDate,
		Choices:      r.Choices,
	}
}

// writeError maps service errors to API responses
func writeError(ctx *gin.Context, action string, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidQuestion):
		ctx.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
	case errors.Is(err, service.ErrQuestionNotFound):
		ctx.JSON(http.StatusNotFound, ErrorResponse{Error: "Question not found"})
	case errors.Is(err, service.ErrChoiceNotFound):
		ctx.JSON(http.StatusNotFound, ErrorResponse{Error: "Choice not found"})
	default:
		log.Printf("Failed to %s: %v", action, err)
		ctx.JSON(http.StatusInternalServerError, ErrorResponse{Error: "Failed to " + action})
	}
}

// ListQuestions returns every question, including unpublished ones
// @Router /admin/api/questions [get]
func (c *AdminController) ListQuestions(ctx *gin.Context) {
	questions, err := c.pollService.AllQuestions(ctx.Request.Context())
	if err != nil {
		writeError(ctx, "list questions", err)
		return
	}
	ctx.JSON(http.StatusOK, summarizeAll(questions, c.pollService.Now()))
}

// CreateQuestion creates a question with its choices
// @Router /admin/api/questions [post]
func (c *AdminController) CreateQuestion(ctx *gin.Context) {
	var req QuestionRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid request: " + err.Error()})
		return
	}

	q, err := c.pollService.CreateQuestion(ctx.Request.Context(), req.input())
	if err != nil {
		writeError(ctx, "create question", err)
		return
	}
	ctx.JSON(http.StatusCreated, summarize(q, c.pollService.Now()))
}

// UpdateQuestion replaces the text and voting window of a question
// @Router /admin/api/questions/{id} [put]
func (c *AdminController) UpdateQuestion(ctx *gin.Context) {
	id, ok := parseID(ctx, "id")
	if !ok {
		ctx.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid question ID"})
		return
	}

	var req QuestionRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid request: " + err.Error()})
		return
	}

	q, err := c.pollService.UpdateQuestion(ctx.Request.Context(), id, req.input())
	if err != nil {
		writeError(ctx, "update question", err)
		return
	}
	ctx.JSON(http.StatusOK, summarize(q, c.pollService.Now()))
}

// AddChoice appends a choice to a question
// @Router /admin/api/questions/{id}/choices [post]
func (c *AdminController) AddChoice(ctx *gin.Context) {
	id, ok := parseID(ctx, "id")
	if !ok {
		ctx.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid question ID"})
		return
	}

	var req ChoiceRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid request: " + err.Error()})
		return
	}

	choice, err := c.pollService.AddChoice(ctx.Request.Context(), id, req.ChoiceText)
	if err != nil {
		writeError(ctx, "add choice", err)
		return
	}
	ctx.JSON(http.StatusCreated, choice)
}

// DeleteChoice removes a choice and its votes
// @Router /admin/api/choices/{id} [delete]
func (c *AdminController) DeleteChoice(ctx *gin.Context) {
	id, ok := parseID(ctx, "id")
	if !ok {
		ctx.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid choice ID"})
		return
	}

	if err := c.pollService.DeleteChoice(ctx.Request.Context(), id); err != nil {
		writeError(ctx, "delete choice", err)
		return
	}
	ctx.JSON(http.StatusOK, SuccessResponse{Success: true, Message: "Choice deleted"})
}

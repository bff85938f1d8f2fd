package api

import (
	"errors"
	"log"
	"net/http"

	"polls-backend/service"

	"github.com/gin-gonic/gin"
)

// PollController serves the public read API
type PollController struct {
	pollService *service.PollService
}

// NewPollController creates the read API controller
func NewPollController(pollService *service.PollService) *PollController {
	return &PollController{pollService: pollService}
}

// RegisterRoutes mounts the read API under group
func (c *PollController) RegisterRoutes(group *gin.RouterGroup) {
	polls := group.Group("/polls")
	{
		polls.GET("", c.ListPolls)
		polls.GET("/:id/results", c.GetResults)
	}
}

// ListPolls returns the latest published questions
// @Router /api/polls [get]
func (c *PollController) ListPolls(ctx *gin.Context) {
	questions, err := c.pollService.LatestQuestions(ctx.Request.Context())
	if err != nil {
		log.Printf("Failed to list polls: %v", err)
		ctx.JSON(http.StatusInternalServerError, ErrorResponse{Error: "Failed to list polls"})
		return
	}
	ctx.JSON(http.StatusOK, summarizeAll(questions, c.pollService.Now()))
}

// GetResults returns vote counts and percentages of a question
// @Router /api/polls/{id}/results [get]
func (c *PollController) GetResults(ctx *gin.Context) {
	id, ok := parseID(ctx, "id")
	if !ok {
		ctx.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid poll ID"})
		return
	}

	res, err := c.pollService.Results(ctx.Request.Context(), id)
	if errors.Is(err, service.ErrQuestionNotFound) {
		ctx.JSON(http.StatusNotFound, ErrorResponse{Error: "Poll not found"})
		return
	}
	if err != nil {
		log.Printf("Failed to load results of poll %d: %v", id, err)
		ctx.JSON(http.StatusInternalServerError, ErrorResponse{Error: "Failed to load results"})
		return
	}
	ctx.JSON(http.StatusOK, res)
}

package handlers

import (
	"errors"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strconv"

	"polls-backend/middleware"
	"polls-backend/service"

	"github.com/gin-gonic/gin"
)

// Notices shown to the user after a redirect or on a redisplayed form
const (
	MsgNotPublished = "This poll didn't publish yet."
	MsgLoginToVote  = "Please log in to vote on this poll."
	MsgPollEnded    = "This poll has ended."
	MsgNoChoice     = "You didn't select a choice."
)

const listingPath = "/polls/"

// PollHandler serves the HTML polling pages
type PollHandler struct {
	polls *service.PollService
}

// NewPollHandler creates the poll page handler
func NewPollHandler(polls *service.PollService) *PollHandler {
	return &PollHandler{polls: polls}
}

// render adds the layout fields every page expects and renders the template
func render(c *gin.Context, status int, page string, data gin.H) {
	if data == nil {
		data = gin.H{}
	}
	if user := middleware.CurrentUser(c); user != nil {
		data["user"] = user
	}
	if _, ok := data["messages"]; !ok {
		data["messages"] = middleware.PopFlash(c)
	}
	c.HTML(status, page, data)
}

func renderNotFound(c *gin.Context) {
	render(c, http.StatusNotFound, "not_found.html", gin.H{"title": "Not Found"})
}

func renderServerError(c *gin.Context, err error) {
	log.Printf("Request %s %s failed: %v", c.Request.Method, c.Request.URL.Path, err)
	c.String(http.StatusInternalServerError, "Internal Server Error")
}

// redirectWithNotice sends the user to the listing with a flash notice
func redirectWithNotice(c *gin.Context, notice string) {
	middleware.SetFlash(c, notice)
	c.Redirect(http.StatusFound, listingPath)
}

// questionID parses the :id path parameter
func questionID(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		return 0, false
	}
	return uint(id), true
}

func detailPath(id uint) string {
	return fmt.Sprintf("/polls/%d/", id)
}

func resultsPath(id uint) string {
	return fmt.Sprintf("/polls/%d/results/", id)
}

// Index lists the latest published questions
func (h *PollHandler) Index(c *gin.Context) {
	questions, err := h.polls.LatestQuestions(c.Request.Context())
	if err != nil {
		renderServerError(c, err)
		return
	}
	render(c, http.StatusOK, "index.html", gin.H{
		"title":                "Polls",
		"latest_question_list": questions,
	})
}

// Detail shows the voting form once the question passes the eligibility gate
func (h *PollHandler) Detail(c *gin.Context) {
	id, ok := questionID(c)
	if !ok {
		renderNotFound(c)
		return
	}

	view, err := h.polls.Detail(c.Request.Context(), id, middleware.CurrentUserID(c))
	switch {
	case errors.Is(err, service.ErrQuestionNotFound):
		renderNotFound(c)
	case errors.Is(err, service.ErrNotPublished):
		redirectWithNotice(c, MsgNotPublished)
	case errors.Is(err, service.ErrLoginRequired):
		redirectWithNotice(c, MsgLoginToVote)
	case errors.Is(err, service.ErrVotingClosed):
		redirectWithNotice(c, MsgPollEnded)
	case err != nil:
		renderServerError(c, err)
	default:
		renderDetail(c, http.StatusOK, view, "")
	}
}

func renderDetail(c *gin.Context, status int, view *service.DetailView, errorMessage string) {
	data := gin.H{
		"title":    view.Question.QuestionText,
		"question": view.Question,
		"choices":  view.Question.Choices,
		"check":    view.CheckedChoiceID,
	}
	if errorMessage != "" {
		data["error_message"] = errorMessage
	}
	render(c, status, "detail.html", data)
}

// Vote records the submitted choice and redirects to the results page
func (h *PollHandler) Vote(c *gin.Context) {
	id, ok := questionID(c)
	if !ok {
		renderNotFound(c)
		return
	}

	userID := middleware.CurrentUserID(c)
	if userID == 0 {
		c.Redirect(http.StatusFound, "/accounts/login/?next="+url.QueryEscape(detailPath(id)))
		return
	}

	ctx := c.Request.Context()
	_, err := h.polls.RecordVote(ctx, id, c.PostForm("choice"), userID)
	switch {
	case errors.Is(err, service.ErrQuestionNotFound):
		renderNotFound(c)
	case errors.Is(err, service.ErrChoiceNotSelected):
		view, err := h.polls.DetailForm(ctx, id, userID)
		if err != nil {
			renderServerError(c, err)
			return
		}
		renderDetail(c, http.StatusOK, view, MsgNoChoice)
	case errors.Is(err, service.ErrVotingClosed):
		redirectWithNotice(c, MsgPollEnded)
	case err != nil:
		renderServerError(c, err)
	default:
		c.Redirect(http.StatusFound, resultsPath(id))
	}
}

// Results shows the vote count of every choice
func (h *PollHandler) Results(c *gin.Context) {
	id, ok := questionID(c)
	if !ok {
		renderNotFound(c)
		return
	}

	res, err := h.polls.Results(c.Request.Context(), id)
	if errors.Is(err, service.ErrQuestionNotFound) {
		renderNotFound(c)
		return
	}
	if err != nil {
		renderServerError(c, err)
		return
	}

	render(c, http.StatusOK, "results.html", gin.H{
		"title":    res.QuestionText,
		"question": res,
		"choices":  res.Choices,
	})
}

package api

import (
	"strconv"
	"time"

	"polls-backend/models"

	"github.com/gin-gonic/gin"
)

// ErrorResponse is the body of every failed API request
type ErrorResponse struct {
	Error string `json:"error"`
}

// SuccessResponse acknowledges a request without a resource body
type SuccessResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

// QuestionSummary is a question as listed by the APIs
type QuestionSummary struct {
	ID                   uint            `json:"id"`
	QuestionText         string          `json:"question_text"`
	PubDate              time.Time       `json:"pub_date"`
	EndDate              *time.Time      `json:"end_date,omitempty"`
	WasPublishedRecently bool            `json:"was_published_recently"`
	CanVote              bool            `json:"can_vote"`
	Choices              []models.Choice `json:"choices,omitempty"`
}

func summarize(q *models.Question, now time.Time) QuestionSummary {
	return QuestionSummary{
		ID:                   q.ID,
		QuestionText:         q.QuestionText,
		PubDate:              q.PubDate,
		EndDate:              q.EndDate,
		WasPublishedRecently: q.WasPublishedRecently(now),
		CanVote:              q.CanVote(now),
		Choices:              q.Choices,
	}
}

func summarizeAll(questions []models.Question, now time.Time) []QuestionSummary {
	out := make([]QuestionSummary, 0, len(questions))
	for i := range questions {
		out = append(out, summarize(&questions[i], now))
	}
	return out
}

// parseID reads a positive integer path parameter
func parseID(ctx *gin.Context, name string) (uint, bool) {
	id, err := strconv.ParseUint(ctx.Param(name), 10, 64)
	if err != nil || id == 0 {
		return 0, false
	}
	return uint(id), true
}

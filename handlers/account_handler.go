package handlers

import (
	"errors"
	"net/http"
	"net/url"
	"strings"

	"polls-backend/middleware"
	"polls-backend/service"

	"github.com/gin-gonic/gin"
)

const (
	msgBadLogin         = "Please enter a correct username and password."
	msgPasswordMismatch = "The two password fields didn't match."
	msgUsernameTaken    = "A user with that username already exists."
	msgInvalidUsername  = "Enter a username of at most 150 characters."
	msgPasswordTooShort = "This password is too short. It must contain at least 8 characters."
)

// AccountHandler serves signup, login and logout
type AccountHandler struct {
	accounts *service.AccountService
}

// NewAccountHandler creates the account page handler
func NewAccountHandler(accounts *service.AccountService) *AccountHandler {
	return &AccountHandler{accounts: accounts}
}

// safeNext returns next when it is a local path, else the listing
func safeNext(next string) string {
	if next == "" || !strings.HasPrefix(next, "/") || strings.HasPrefix(next, "//") || strings.Contains(next, `\`) {
		return listingPath
	}
	u, err := url.Parse(next)
	if err != nil || u.Scheme != "" || u.Host != "" {
		return listingPath
	}
	return next
}

// LoginForm renders the login page
func (h *AccountHandler) LoginForm(c *gin.Context) {
	render(c, http.StatusOK, "login.html", gin.H{
		"title": "Log in",
		"next":  safeNext(c.Query("next")),
	})
}

// Login checks the credentials and starts a session
func (h *AccountHandler) Login(c *gin.Context) {
	username := c.PostForm("username")
	next := safeNext(c.PostForm("next"))

	_, token, err := h.accounts.Login(c.Request.Context(), username, c.PostForm("password"))
	if errors.Is(err, service.ErrInvalidCredentials) {
		render(c, http.StatusOK, "login.html", gin.H{
			"title":         "Log in",
			"next":          next,
			"username":      username,
			"error_message": msgBadLogin,
		})
		return
	}
	if err != nil {
		renderServerError(c, err)
		return
	}

	middleware.SetSessionCookie(c, token, h.accounts.SessionTTL())
	c.Redirect(http.StatusFound, next)
}

// SignupForm renders the signup page
func (h *AccountHandler) SignupForm(c *gin.Context) {
	render(c, http.StatusOK, "signup.html", gin.H{"title": "Sign up"})
}

// Signup creates the account and logs the new user in
func (h *AccountHandler) Signup(c *gin.Context) {
	username := c.PostForm("username")
	password := c.PostForm("password1")

	fail := func(message string) {
		render(c, http.StatusOK, "signup.html", gin.H{
			"title":         "Sign up",
			"username":      username,
			"error_message": message,
		})
	}

	if password != c.PostForm("password2") {
		fail(msgPasswordMismatch)
		return
	}

	user, err := h.accounts.Signup(c.Request.Context(), username, password)
	switch {
	case errors.Is(err, service.ErrUsernameTaken):
		fail(msgUsernameTaken)
		return
	case errors.Is(err, service.ErrInvalidUsername):
		fail(msgInvalidUsername)
		return
	case errors.Is(err, service.ErrPasswordTooShort):
		fail(msgPasswordTooShort)
		return
	case err != nil:
		renderServerError(c, err)
		return
	}

	token, err := h.accounts.IssueToken(user)
	if err != nil {
		renderServerError(c, err)
		return
	}
	middleware.SetSessionCookie(c, token, h.accounts.SessionTTL())
	c.Redirect(http.StatusFound, listingPath)
}

// Logout ends the session
func (h *AccountHandler) Logout(c *gin.Context) {
	middleware.ClearSessionCookie(c)
	c.Redirect(http.StatusFound, listingPath)
}

package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/bloghq/apiserver/internal/mq"
	"github.com/bloghq/apiserver/internal/services"
	"github.com/bloghq/apiserver/internal/store"
	"github.com/bloghq/apiserver/types"
)

// UserHandler provides signup, login, and public user lookup.
type UserHandler struct {
	users  *services.UserService
	events *mq.EventPublisher
}

func NewUserHandler(users *services.UserService, events *mq.EventPublisher) *UserHandler {
	return &UserHandler{
		users:  users,
		events: events,
	}
}

// UserRouter registers user routes on the given router. Signup and login
// are deliberately unauthenticated.
func UserRouter(r chi.Router, users *services.UserService, events *mq.EventPublisher) {
	handler := NewUserHandler(users, events)

	r.Post("/signup", handler.Signup)
	r.Post("/login", handler.Login)
	r.Get("/{username}", handler.GetUser)
}

type SignupRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	User  types.User `json:"user"`
	Token string     `json:"token"`
}

// Signup creates a new user account.
func (h *UserHandler) Signup(w http.ResponseWriter, r *http.Request) {
	var req SignupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	user, err := h.users.Signup(r.Context(), req.Username, req.Email, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrValidation):
			writeError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, store.ErrDuplicate):
			writeError(w, http.StatusBadRequest, "username already exists")
		default:
			writeError(w, http.StatusInternalServerError, "failed to create user")
		}
		return
	}

	h.events.Publish(r.Context(), mq.EventUserRegistered, map[string]any{
		"id":       user.ID,
		"username": user.Username,
	})

	writeJSON(w, http.StatusCreated, user)
}

// Login verifies credentials and returns the user with a signed token.
// Unknown usernames and wrong passwords produce an identical response.
func (h *UserHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	user, token, err := h.users.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		if errors.Is(err, services.ErrInvalidCredentials) {
			writeError(w, http.StatusUnauthorized, services.ErrInvalidCredentials.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to authenticate")
		return
	}

	writeJSON(w, http.StatusOK, LoginResponse{User: user, Token: token})
}

// GetUser returns a user's public profile. The password hash never
// serializes (types.User tags it out).
func (h *UserHandler) GetUser(w http.ResponseWriter, r *http.Request) {
	username := strings.TrimSpace(chi.URLParam(r, "username"))

	user, err := h.users.Lookup(r.Context(), username)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "user not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to load user")
		return
	}

	writeJSON(w, http.StatusOK, user)
}

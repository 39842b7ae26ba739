package handlers

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jjudge-oj/accounts/internal/services"
	"github.com/jjudge-oj/accounts/types"
)

// UserHandler exposes the identity service over HTTP.
type UserHandler struct {
	identity *services.IdentityService
	log      *slog.Logger
}

// NewUserHandler constructs a UserHandler.
func NewUserHandler(identity *services.IdentityService, log *slog.Logger) *UserHandler {
	if log == nil {
		log = slog.Default()
	}
	return &UserHandler{identity: identity, log: log}
}

// UserRouter registers account routes on the given router.
func UserRouter(r chi.Router, identity *services.IdentityService, log *slog.Logger) {
	handler := NewUserHandler(identity, log)

	r.Post("/sign-in", handler.SignIn)
	r.Route("/users", func(r chi.Router) {
		r.Post("/", handler.Register)
		r.Get("/", handler.List)
		r.Post("/verify/token", handler.VerifyToken)
		r.Group(func(r chi.Router) {
			r.Use(RequireBearer)
			r.Put("/", handler.UpdateProfile)
			r.Put("/password", handler.UpdatePassword)
		})
	})
}

type RegisterRequest struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Username  string `json:"username"`
	Email     string `json:"email"`
	Password  string `json:"password"`
}

type SignInRequest struct {
	UsernameOrEmail string `json:"username_or_email"`
	Password        string `json:"password"`
}

type VerifyTokenRequest struct {
	Token *string `json:"token"`
}

type UpdatePasswordRequest struct {
	OldPassword string `json:"old_password"`
	NewPassword string `json:"new_password"`
}

type RegisteredUser struct {
	ID       uuid.UUID `json:"id"`
	Username string    `json:"username"`
	Email    string    `json:"email"`
}

type RegisterResponse struct {
	User  RegisteredUser `json:"user"`
	Token string         `json:"token"`
}

type SignedInUser struct {
	Username  string `json:"username"`
	Email     string `json:"email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

type SignInResponse struct {
	User  SignedInUser `json:"user"`
	Token string       `json:"token"`
}

type ProfileResponse struct {
	ID        uuid.UUID `json:"id"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	FirstName string    `json:"first_name"`
	LastName  string    `json:"last_name"`
}

// Register creates an account and returns a session token.
func (h *UserHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}
	if req.Password == "" {
		writeError(w, http.StatusBadRequest, "password is required")
		return
	}

	user, token, err := h.identity.Register(r.Context(), services.RegisterInput{
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Username:  req.Username,
		Email:     req.Email,
		Password:  req.Password,
	})
	if err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}

	writeJSON(w, http.StatusCreated, RegisterResponse{
		User:  RegisteredUser{ID: user.ID, Username: user.Username, Email: user.Email},
		Token: token,
	})
}

// List returns every account with its roles.
func (h *UserHandler) List(w http.ResponseWriter, r *http.Request) {
	users, err := h.identity.ListUsers(r.Context())
	if err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, users)
}

// SignIn verifies credentials and returns a fresh session token.
func (h *UserHandler) SignIn(w http.ResponseWriter, r *http.Request) {
	var req SignInRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	user, token, err := h.identity.SignIn(r.Context(), req.UsernameOrEmail, req.Password)
	if err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}

	writeJSON(w, http.StatusOK, SignInResponse{
		User: SignedInUser{
			Username:  user.Username,
			Email:     user.Email,
			FirstName: user.FirstName,
			LastName:  user.LastName,
		},
		Token: token,
	})
}

// VerifyToken reports whether a token is currently valid. A request without
// a token is answered with reason no_token.
func (h *UserHandler) VerifyToken(w http.ResponseWriter, r *http.Request) {
	var req VerifyTokenRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}
	if req.Token == nil || *req.Token == "" {
		writeJSON(w, http.StatusBadRequest, services.VerifyResult{Reason: "no_token"})
		return
	}

	writeJSON(w, http.StatusOK, h.identity.VerifyToken(r.Context(), *req.Token))
}

// UpdateProfile changes profile fields of the bearer's account.
func (h *UserHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	token, err := bearerFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req types.ProfileUpdate
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	user, err := h.identity.UpdateProfile(r.Context(), token, req)
	if err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}

	writeJSON(w, http.StatusOK, ProfileResponse{
		ID:        user.ID,
		Username:  user.Username,
		Email:     user.Email,
		FirstName: user.FirstName,
		LastName:  user.LastName,
	})
}

// UpdatePassword changes the bearer's password and revokes existing tokens.
func (h *UserHandler) UpdatePassword(w http.ResponseWriter, r *http.Request) {
	token, err := bearerFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req UpdatePasswordRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	if err := h.identity.UpdatePassword(r.Context(), token, req.OldPassword, req.NewPassword); err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

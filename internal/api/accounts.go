package api

import (
	"net/http"

	"example.com/salestrack/internal/auth"
	"example.com/salestrack/internal/domain"
	authlib "example.com/salestrack/pkg/auth"
)

func (h *Handler) register(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var req RegisterRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	user, err := h.service.Register(r.Context(), domain.RegisterInput{
		Username:        req.Username,
		Password:        req.Password,
		PasswordConfirm: req.Password2,
	})
	if err != nil {
		h.fail(w, r, err, "unable to register user")
		return
	}
	h.logger.InfoContext(r.Context(), "user registered", "user_id", user.ID, "request_id", RequestIDFromContext(r.Context()))
	writeJSON(w, http.StatusCreated, UserView{ID: user.ID, Username: user.Username})
}

func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var req LoginRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	user, err := h.service.Authenticate(r.Context(), req.Username, req.Password)
	if err != nil {
		h.fail(w, r, err, "unable to sign in")
		return
	}
	pair, err := h.issuer.IssuePair(user.ID, user.Username, auth.DefaultScopes())
	if err != nil {
		h.fail(w, r, err, "unable to issue token")
		return
	}
	writeJSON(w, http.StatusOK, pair)
}

func (h *Handler) refreshToken(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var req RefreshRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	pair, err := h.issuer.Refresh(req.Refresh)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized", "token is invalid or expired")
		return
	}
	writeJSON(w, http.StatusOK, pair)
}

func (h *Handler) verifyToken(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var req VerifyRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if _, err := authlib.Parse(req.Token, h.issuer.Config()); err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized", "token is invalid or expired")
		return
	}
	writeJSON(w, http.StatusOK, struct{}{})
}

func (h *Handler) currentUser(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	claims, ok := authorize(w, r)
	if !ok {
		return
	}

	user, err := h.service.GetUser(r.Context(), claims.Subject)
	if err != nil {
		h.fail(w, r, err, "unable to load user")
		return
	}
	writeJSON(w, http.StatusOK, UserView{ID: user.ID, Username: user.Username})
}

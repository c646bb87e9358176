package api

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"videobox/internal/auth"
	"videobox/internal/models"
	"videobox/internal/storage"
)

type registerRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	FullName string `json:"fullName"`
	Password string `json:"password"`
}

type loginRequest struct {
	Identifier string `json:"identifier"`
	Username   string `json:"username"`
	Email      string `json:"email"`
	Password   string `json:"password"`
}

func (req loginRequest) identifier() string {
	for _, candidate := range []string{req.Identifier, req.Username, req.Email} {
		if trimmed := strings.TrimSpace(candidate); trimmed != "" {
			return trimmed
		}
	}
	return ""
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type changePasswordRequest struct {
	OldPassword string `json:"oldPassword"`
	NewPassword string `json:"newPassword"`
}

type tokenResponse struct {
	AccessToken           string    `json:"accessToken"`
	AccessTokenExpiresAt  time.Time `json:"accessTokenExpiresAt"`
	RefreshToken          string    `json:"refreshToken"`
	RefreshTokenExpiresAt time.Time `json:"refreshTokenExpiresAt"`
}

type loginResponse struct {
	User models.PublicUser `json:"user"`
	tokenResponse
}

func newTokenResponse(pair auth.TokenPair) tokenResponse {
	return tokenResponse{
		AccessToken:           pair.AccessToken,
		AccessTokenExpiresAt:  pair.AccessExpiresAt.UTC(),
		RefreshToken:          pair.RefreshToken,
		RefreshTokenExpiresAt: pair.RefreshExpiresAt.UTC(),
	}
}

// Register creates an account from a JSON body or a multipart form. The
// multipart form may also carry avatar and coverImage files.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var (
		req    registerRequest
		images = map[string]*imageUpload{}
	)
	if isMultipart(r) {
		if err := h.parseMultipart(w, r, 2); err != nil {
			h.respondError(w, r, err)
			return
		}
		req = registerRequest{
			Username: r.FormValue("username"),
			Email:    r.FormValue("email"),
			FullName: r.FormValue("fullName"),
			Password: r.FormValue("password"),
		}
		for _, field := range []string{"avatar", "coverImage"} {
			img, err := h.readImage(r, field)
			if err != nil {
				h.respondError(w, r, err)
				return
			}
			if img != nil {
				images[field] = img
			}
		}
	} else if err := decodeJSON(r, &req, false); err != nil {
		h.respondError(w, r, err)
		return
	}

	params := storage.CreateUserParams{
		Username: req.Username,
		Email:    req.Email,
		FullName: req.FullName,
		Password: req.Password,
	}
	var uploaded []string
	if img := images["avatar"]; img != nil {
		ref, err := h.storeImage(r.Context(), "avatars", img)
		if err != nil {
			h.respondError(w, r, err)
			return
		}
		params.Avatar = ref.URL
		uploaded = append(uploaded, ref.URL)
	}
	if img := images["coverImage"]; img != nil {
		ref, err := h.storeImage(r.Context(), "covers", img)
		if err != nil {
			for _, url := range uploaded {
				h.discardImage(r.Context(), url)
			}
			h.respondError(w, r, err)
			return
		}
		params.CoverImage = ref.URL
		uploaded = append(uploaded, ref.URL)
	}

	user, err := h.Store.CreateUser(r.Context(), params)
	if err != nil {
		for _, url := range uploaded {
			h.discardImage(r.Context(), url)
		}
		h.respondError(w, r, err)
		return
	}
	h.logger(r.Context()).Info("user registered", "user_id", user.ID)
	respond(w, http.StatusCreated, user.Public(), "user registered successfully")
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req, false); err != nil {
		h.respondError(w, r, err)
		return
	}
	identifier := req.identifier()
	if identifier == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "username or email and password are required")
		return
	}

	result, err := h.Sessions.Login(r.Context(), identifier, req.Password)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	h.setSessionCookies(w, r, result.Tokens)
	respond(w, http.StatusOK, loginResponse{User: result.User, tokenResponse: newTokenResponse(result.Tokens)}, "user logged in successfully")
}

func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	user, ok := h.requireAuthenticatedUser(w, r)
	if !ok {
		return
	}
	if err := h.Sessions.Logout(r.Context(), user.ID); err != nil {
		h.respondError(w, r, err)
		return
	}
	h.ClearSessionCookies(w, r)
	respond(w, http.StatusOK, nil, "user logged out")
}

// RefreshToken rotates the caller's refresh token. A reused token clears the
// session cookies so the client is forced back to login.
func (h *Handler) RefreshToken(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if cookieValue(r, RefreshTokenCookie) == "" {
		if err := decodeJSON(r, &req, true); err != nil {
			h.respondError(w, r, err)
			return
		}
	}
	presented := extractRefreshToken(r, req.RefreshToken)
	if presented == "" {
		writeError(w, http.StatusUnauthorized, messageUnauthorized)
		return
	}

	pair, err := h.Sessions.Refresh(r.Context(), presented)
	if err != nil {
		if errors.Is(err, auth.ErrTokenReuseDetected) {
			h.ClearSessionCookies(w, r)
		}
		h.respondError(w, r, err)
		return
	}
	h.setSessionCookies(w, r, pair)
	respond(w, http.StatusOK, newTokenResponse(pair), "access token refreshed")
}

func (h *Handler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	user, ok := h.requireAuthenticatedUser(w, r)
	if !ok {
		return
	}
	var req changePasswordRequest
	if err := decodeJSON(r, &req, false); err != nil {
		h.respondError(w, r, err)
		return
	}
	if req.OldPassword == "" || req.NewPassword == "" {
		writeError(w, http.StatusBadRequest, "oldPassword and newPassword are required")
		return
	}

	err := h.Sessions.ChangePassword(r.Context(), user.ID, req.OldPassword, req.NewPassword)
	switch {
	case err == nil:
		respond(w, http.StatusOK, nil, "password changed successfully")
	case errors.Is(err, auth.ErrInvalidCredentials):
		writeError(w, http.StatusBadRequest, "invalid old password")
	default:
		h.respondError(w, r, err)
	}
}

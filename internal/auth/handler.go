package auth

import (
	"net/http"
	"time"

	"github.com/twofold/corner/internal/middleware"
	"github.com/twofold/corner/internal/request"
	"github.com/twofold/corner/internal/response"
	"github.com/twofold/corner/internal/user"
)

// Handler holds HTTP handlers for auth endpoints.
type Handler struct {
	svc          *Service
	secureCookie bool
}

// NewHandler creates a new auth Handler. secureCookie marks the session
// cookie Secure and should be true outside local development.
func NewHandler(svc *Service, secureCookie bool) *Handler {
	return &Handler{svc: svc, secureCookie: secureCookie}
}

type sendCodeRequest struct {
	Email string `json:"email" validate:"required,email" example:"sam@example.com"`
}

type verifyCodeRequest struct {
	Email       string  `json:"email"                 validate:"required,email" example:"sam@example.com"`
	Code        string  `json:"code"                  validate:"required,len=6" example:"123456"`
	DisplayName *string `json:"displayName,omitempty" validate:"omitempty,max=80" example:"Sam"`
}

type sendCodeData struct {
	Sent bool `json:"sent" example:"true"`
}

type verifyCodeData struct {
	IsNewUser bool       `json:"isNewUser" example:"true"`
	Token     string     `json:"token"     example:"eyJhbGci..."`
	ExpiresAt time.Time  `json:"expiresAt" example:"2026-03-29T14:48:34Z"`
	User      *user.User `json:"user"`
}

// SendCode godoc
//
//	@Summary		Send sign-in code
//	@Description	Emails a 6-digit sign-in code valid for two minutes.
//	@Tags			auth
//	@Accept			json
//	@Produce		json
//	@Param			request	body		sendCodeRequest	true	"Email address"
//	@Success		200		{object}	response.Envelope{data=sendCodeData}
//	@Failure		400		{object}	response.Envelope
//	@Failure		429		{object}	response.Envelope
//	@Failure		500		{object}	response.Envelope
//	@Router			/auth/code/send [post]
func (h *Handler) SendCode(w http.ResponseWriter, r *http.Request) {
	var req sendCodeRequest
	if err := request.Decode(w, r, &req); err != nil {
		response.Err(w, r, err)
		return
	}

	if err := h.svc.SendCode(r.Context(), req.Email); err != nil {
		response.Err(w, r, err)
		return
	}

	response.OK(w, sendCodeData{Sent: true})
}

// VerifyCode godoc
//
//	@Summary		Verify sign-in code
//	@Description	Checks the code, creates the account on first sign-in and starts a session.
//	@Tags			auth
//	@Accept			json
//	@Produce		json
//	@Param			request	body		verifyCodeRequest	true	"Email and code"
//	@Success		200		{object}	response.Envelope{data=verifyCodeData}
//	@Failure		400		{object}	response.Envelope
//	@Failure		500		{object}	response.Envelope
//	@Router			/auth/code/verify [post]
func (h *Handler) VerifyCode(w http.ResponseWriter, r *http.Request) {
	var req verifyCodeRequest
	if err := request.Decode(w, r, &req); err != nil {
		response.Err(w, r, err)
		return
	}

	result, err := h.svc.Verify(r.Context(), req.Email, req.Code, req.DisplayName)
	if err != nil {
		response.Err(w, r, err)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookie,
		Value:    result.Token,
		Path:     "/",
		Expires:  result.ExpiresAt,
		HttpOnly: true,
		Secure:   h.secureCookie,
		SameSite: http.SameSiteLaxMode,
	})

	response.OK(w, verifyCodeData{
		IsNewUser: result.IsNewUser,
		Token:     result.Token,
		ExpiresAt: result.ExpiresAt,
		User:      result.User,
	})
}

// Logout godoc
//
//	@Summary		Sign out
//	@Description	Clears the session cookie.
//	@Tags			auth
//	@Success		204
//	@Router			/auth/logout [post]
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.secureCookie,
		SameSite: http.SameSiteLaxMode,
	})
	response.NoContent(w)
}

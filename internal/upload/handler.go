package upload

import (
	"net/http"

	"github.com/twofold/corner/internal/middleware"
	"github.com/twofold/corner/internal/request"
	"github.com/twofold/corner/internal/response"
)

// Handler holds HTTP handlers for upload sessions.
type Handler struct {
	svc *Service
}

// NewHandler creates a new upload Handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// CreateSession godoc
//
//	@Summary		Start an upload
//	@Description	Validates the file metadata and returns a short-lived signed URL for uploading directly to storage.
//	@Tags			upload
//	@Accept			json
//	@Produce		json
//	@Security		BearerAuth
//	@Param			request	body		Request	true	"File metadata"
//	@Success		200		{object}	response.Envelope{data=Session}
//	@Failure		400		{object}	response.Envelope
//	@Failure		401		{object}	response.Envelope
//	@Failure		429		{object}	response.Envelope
//	@Failure		500		{object}	response.Envelope
//	@Router			/upload [post]
func (h *Handler) CreateSession(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserID(r.Context())
	if !ok {
		response.Unauthorized(w, "unauthorized")
		return
	}

	var req Request
	if err := request.Decode(w, r, &req); err != nil {
		response.Err(w, r, err)
		return
	}

	session, err := h.svc.CreateSession(r.Context(), userID, req)
	if err != nil {
		response.Err(w, r, err)
		return
	}

	response.OK(w, session)
}

package media

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/twofold/corner/internal/middleware"
	"github.com/twofold/corner/internal/request"
	"github.com/twofold/corner/internal/response"
)

// Handler holds HTTP handlers for media endpoints.
type Handler struct {
	svc *Service
}

// NewHandler creates a new media Handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

type updateCaptionRequest struct {
	Caption *string `json:"caption" validate:"omitempty,max=2000" example:"Sunset at the pier"`
}

// Register godoc
//
//	@Summary		Register uploaded media
//	@Description	Records a completed upload as a media item. Without memory_group_id a new memory group is created.
//	@Tags			media
//	@Accept			json
//	@Produce		json
//	@Security		BearerAuth
//	@Param			request	body		RegisterInput	true	"Uploaded object metadata"
//	@Success		201		{object}	response.Envelope{data=MediaItem}
//	@Failure		400		{object}	response.Envelope
//	@Failure		401		{object}	response.Envelope
//	@Failure		403		{object}	response.Envelope
//	@Failure		500		{object}	response.Envelope
//	@Router			/media [post]
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserID(r.Context())
	if !ok {
		response.Unauthorized(w, "unauthorized")
		return
	}

	var in RegisterInput
	if err := request.Decode(w, r, &in); err != nil {
		response.Err(w, r, err)
		return
	}

	m, err := h.svc.Register(r.Context(), userID, in)
	if err != nil {
		response.Err(w, r, err)
		return
	}

	response.Created(w, m)
}

// Get godoc
//
//	@Summary	Get media item
//	@Tags		media
//	@Produce	json
//	@Security	BearerAuth
//	@Param		id	path		string	true	"Media ID"
//	@Success	200	{object}	response.Envelope{data=MediaItem}
//	@Failure	403	{object}	response.Envelope
//	@Failure	404	{object}	response.Envelope
//	@Router		/media/{id} [get]
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserID(r.Context())
	if !ok {
		response.Unauthorized(w, "unauthorized")
		return
	}

	m, err := h.svc.Get(r.Context(), userID, chi.URLParam(r, "id"))
	if err != nil {
		response.Err(w, r, err)
		return
	}

	response.OK(w, m)
}

// DownloadURL godoc
//
//	@Summary		Get signed download URL
//	@Description	Returns a read URL for the media object, valid for one hour.
//	@Tags			media
//	@Produce		json
//	@Security		BearerAuth
//	@Param			id	path		string	true	"Media ID"
//	@Success		200	{object}	response.Envelope{data=DownloadURL}
//	@Failure		403	{object}	response.Envelope
//	@Failure		404	{object}	response.Envelope
//	@Router			/media/{id}/url [get]
func (h *Handler) DownloadURL(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserID(r.Context())
	if !ok {
		response.Unauthorized(w, "unauthorized")
		return
	}

	u, err := h.svc.DownloadURL(r.Context(), userID, chi.URLParam(r, "id"))
	if err != nil {
		response.Err(w, r, err)
		return
	}

	response.OK(w, u)
}

// UpdateCaption godoc
//
//	@Summary	Update caption
//	@Tags		media
//	@Accept		json
//	@Produce	json
//	@Security	BearerAuth
//	@Param		id		path		string					true	"Media ID"
//	@Param		request	body		updateCaptionRequest	true	"New caption, null clears it"
//	@Success	200		{object}	response.Envelope{data=MediaItem}
//	@Failure	400		{object}	response.Envelope
//	@Failure	404		{object}	response.Envelope
//	@Router		/media/{id} [patch]
func (h *Handler) UpdateCaption(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserID(r.Context())
	if !ok {
		response.Unauthorized(w, "unauthorized")
		return
	}

	var req updateCaptionRequest
	if err := request.Decode(w, r, &req); err != nil {
		response.Err(w, r, err)
		return
	}

	m, err := h.svc.UpdateCaption(r.Context(), userID, chi.URLParam(r, "id"), req.Caption)
	if err != nil {
		response.Err(w, r, err)
		return
	}

	response.OK(w, m)
}

// Delete godoc
//
//	@Summary		Delete media item
//	@Description	Removes the media row, then its storage object.
//	@Tags			media
//	@Security		BearerAuth
//	@Param			id	path	string	true	"Media ID"
//	@Success		204
//	@Failure		403	{object}	response.Envelope
//	@Failure		404	{object}	response.Envelope
//	@Router			/media/{id} [delete]
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserID(r.Context())
	if !ok {
		response.Unauthorized(w, "unauthorized")
		return
	}

	if err := h.svc.Delete(r.Context(), userID, chi.URLParam(r, "id")); err != nil {
		response.Err(w, r, err)
		return
	}

	response.NoContent(w)
}

package comment

import (
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"

	"github.com/twofold/corner/internal/middleware"
	"github.com/twofold/corner/internal/request"
	"github.com/twofold/corner/internal/response"
)

// Handler holds HTTP handlers for comments and reactions.
type Handler struct {
	svc *Service
}

// NewHandler creates a new comment Handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

type addRequest struct {
	Body string `json:"body" validate:"required" example:"Best day ever"`
}

// List godoc
//
//	@Summary	List comments
//	@Tags		comments
//	@Produce	json
//	@Security	BearerAuth
//	@Param		id	path		string	true	"Memory group ID"
//	@Success	200	{object}	response.Envelope{data=[]Comment}
//	@Failure	403	{object}	response.Envelope
//	@Failure	404	{object}	response.Envelope
//	@Router		/memory-groups/{id}/comments [get]
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserID(r.Context())
	if !ok {
		response.Unauthorized(w, "unauthorized")
		return
	}

	comments, err := h.svc.List(r.Context(), userID, chi.URLParam(r, "id"))
	if err != nil {
		response.Err(w, r, err)
		return
	}

	response.OK(w, comments)
}

// Add godoc
//
//	@Summary	Add comment
//	@Tags		comments
//	@Accept		json
//	@Produce	json
//	@Security	BearerAuth
//	@Param		id		path		string		true	"Memory group ID"
//	@Param		request	body		addRequest	true	"Comment"
//	@Success	201		{object}	response.Envelope{data=Comment}
//	@Failure	400		{object}	response.Envelope
//	@Failure	403		{object}	response.Envelope
//	@Router		/memory-groups/{id}/comments [post]
func (h *Handler) Add(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserID(r.Context())
	if !ok {
		response.Unauthorized(w, "unauthorized")
		return
	}

	var req addRequest
	if err := request.Decode(w, r, &req); err != nil {
		response.Err(w, r, err)
		return
	}

	c, err := h.svc.Add(r.Context(), userID, chi.URLParam(r, "id"), req.Body)
	if err != nil {
		response.Err(w, r, err)
		return
	}

	response.Created(w, c)
}

// Delete godoc
//
//	@Summary	Delete comment
//	@Tags		comments
//	@Security	BearerAuth
//	@Param		id	path	string	true	"Comment ID"
//	@Success	204
//	@Failure	403	{object}	response.Envelope
//	@Failure	404	{object}	response.Envelope
//	@Router		/comments/{id} [delete]
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

// Reactions godoc
//
//	@Summary	List reactions
//	@Tags		comments
//	@Produce	json
//	@Security	BearerAuth
//	@Param		id	path		string	true	"Memory group ID"
//	@Success	200	{object}	response.Envelope{data=[]Reaction}
//	@Router		/memory-groups/{id}/reactions [get]
func (h *Handler) Reactions(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserID(r.Context())
	if !ok {
		response.Unauthorized(w, "unauthorized")
		return
	}

	reactions, err := h.svc.Reactions(r.Context(), userID, chi.URLParam(r, "id"))
	if err != nil {
		response.Err(w, r, err)
		return
	}

	response.OK(w, reactions)
}

// React godoc
//
//	@Summary	React with an emoji
//	@Tags		comments
//	@Produce	json
//	@Security	BearerAuth
//	@Param		id		path		string	true	"Memory group ID"
//	@Param		emoji	path		string	true	"Emoji"
//	@Success	200		{object}	response.Envelope{data=[]Reaction}
//	@Failure	400		{object}	response.Envelope
//	@Router		/memory-groups/{id}/reactions/{emoji} [put]
func (h *Handler) React(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserID(r.Context())
	if !ok {
		response.Unauthorized(w, "unauthorized")
		return
	}

	reactions, err := h.svc.React(r.Context(), userID, chi.URLParam(r, "id"), emojiParam(r))
	if err != nil {
		response.Err(w, r, err)
		return
	}

	response.OK(w, reactions)
}

// Unreact godoc
//
//	@Summary	Remove emoji reaction
//	@Tags		comments
//	@Produce	json
//	@Security	BearerAuth
//	@Param		id		path		string	true	"Memory group ID"
//	@Param		emoji	path		string	true	"Emoji"
//	@Success	200		{object}	response.Envelope{data=[]Reaction}
//	@Router		/memory-groups/{id}/reactions/{emoji} [delete]
func (h *Handler) Unreact(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserID(r.Context())
	if !ok {
		response.Unauthorized(w, "unauthorized")
		return
	}

	reactions, err := h.svc.Unreact(r.Context(), userID, chi.URLParam(r, "id"), emojiParam(r))
	if err != nil {
		response.Err(w, r, err)
		return
	}

	response.OK(w, reactions)
}

func emojiParam(r *http.Request) string {
	raw := chi.URLParam(r, "emoji")
	if v, err := url.PathUnescape(raw); err == nil {
		return v
	}
	return raw
}

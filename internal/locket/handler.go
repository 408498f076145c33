package locket

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/twofold/corner/internal/middleware"
	"github.com/twofold/corner/internal/request"
	"github.com/twofold/corner/internal/response"
)

// Handler holds HTTP handlers for locket endpoints.
type Handler struct {
	svc *Service
}

// NewHandler creates a new locket Handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

type createRequest struct {
	Name string `json:"name" validate:"required,max=80" example:"Our Little Corner"`
}

type pinRequest struct {
	MemoryID string `json:"memory_id" validate:"required,uuid" example:"0b8e9c8d-2f0a-4e53-8d52-3b1b7e5f9c22"`
}

type inviteRequest struct {
	Email string `json:"email" validate:"required,email" example:"alex@example.com"`
}

type acceptRequest struct {
	Code string `json:"code" validate:"required,len=8,alphanum" example:"K7Q2M9XA"`
}

// Create godoc
//
//	@Summary	Create locket
//	@Tags		lockets
//	@Accept		json
//	@Produce	json
//	@Security	BearerAuth
//	@Param		request	body		createRequest	true	"Locket name"
//	@Success	201		{object}	response.Envelope{data=Locket}
//	@Failure	400		{object}	response.Envelope
//	@Router		/lockets [post]
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserID(r.Context())
	if !ok {
		response.Unauthorized(w, "unauthorized")
		return
	}

	var req createRequest
	if err := request.Decode(w, r, &req); err != nil {
		response.Err(w, r, err)
		return
	}

	l, err := h.svc.Create(r.Context(), userID, req.Name)
	if err != nil {
		response.Err(w, r, err)
		return
	}

	response.Created(w, l)
}

// List godoc
//
//	@Summary	List my lockets
//	@Tags		lockets
//	@Produce	json
//	@Security	BearerAuth
//	@Success	200	{object}	response.Envelope{data=[]Locket}
//	@Router		/lockets [get]
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserID(r.Context())
	if !ok {
		response.Unauthorized(w, "unauthorized")
		return
	}

	lockets, err := h.svc.List(r.Context(), userID)
	if err != nil {
		response.Err(w, r, err)
		return
	}

	response.OK(w, lockets)
}

// Get godoc
//
//	@Summary	Get locket
//	@Tags		lockets
//	@Produce	json
//	@Security	BearerAuth
//	@Param		id	path		string	true	"Locket ID"
//	@Success	200	{object}	response.Envelope{data=Locket}
//	@Failure	403	{object}	response.Envelope
//	@Router		/lockets/{id} [get]
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserID(r.Context())
	if !ok {
		response.Unauthorized(w, "unauthorized")
		return
	}

	l, err := h.svc.Get(r.Context(), userID, chi.URLParam(r, "id"))
	if err != nil {
		response.Err(w, r, err)
		return
	}

	response.OK(w, l)
}

// Pin godoc
//
//	@Summary		Pin a memory
//	@Description	Puts a memory on the fridge, replacing whatever was pinned.
//	@Tags			lockets
//	@Accept			json
//	@Produce		json
//	@Security		BearerAuth
//	@Param			id		path		string		true	"Locket ID"
//	@Param			request	body		pinRequest	true	"Memory to pin"
//	@Success		200		{object}	response.Envelope{data=Pinned}
//	@Failure		400		{object}	response.Envelope
//	@Failure		403		{object}	response.Envelope
//	@Router			/lockets/{id}/pinned [post]
func (h *Handler) Pin(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserID(r.Context())
	if !ok {
		response.Unauthorized(w, "unauthorized")
		return
	}

	var req pinRequest
	if err := request.Decode(w, r, &req); err != nil {
		response.Err(w, r, err)
		return
	}

	p, err := h.svc.Pin(r.Context(), userID, chi.URLParam(r, "id"), req.MemoryID)
	if err != nil {
		response.Err(w, r, err)
		return
	}

	response.OK(w, p)
}

// Pinned godoc
//
//	@Summary	Get pinned memory
//	@Tags		lockets
//	@Produce	json
//	@Security	BearerAuth
//	@Param		id	path		string	true	"Locket ID"
//	@Success	200	{object}	response.Envelope{data=Pinned}
//	@Failure	404	{object}	response.Envelope
//	@Router		/lockets/{id}/pinned [get]
func (h *Handler) Pinned(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserID(r.Context())
	if !ok {
		response.Unauthorized(w, "unauthorized")
		return
	}

	p, err := h.svc.Pinned(r.Context(), userID, chi.URLParam(r, "id"))
	if err != nil {
		response.Err(w, r, err)
		return
	}

	response.OK(w, p)
}

// Unpin godoc
//
//	@Summary	Clear pinned memory
//	@Tags		lockets
//	@Security	BearerAuth
//	@Param		id	path	string	true	"Locket ID"
//	@Success	204
//	@Failure	404	{object}	response.Envelope
//	@Router		/lockets/{id}/pinned [delete]
func (h *Handler) Unpin(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserID(r.Context())
	if !ok {
		response.Unauthorized(w, "unauthorized")
		return
	}

	if err := h.svc.Unpin(r.Context(), userID, chi.URLParam(r, "id")); err != nil {
		response.Err(w, r, err)
		return
	}

	response.NoContent(w)
}

// Spotlight godoc
//
//	@Summary		Spotlight memory
//	@Description	An "on this day" memory from an earlier year, or a random one.
//	@Tags			lockets
//	@Produce		json
//	@Security		BearerAuth
//	@Param			id	path		string	true	"Locket ID"
//	@Success		200	{object}	response.Envelope{data=memory.Spotlight}
//	@Failure		404	{object}	response.Envelope
//	@Router			/lockets/{id}/spotlight [get]
func (h *Handler) Spotlight(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserID(r.Context())
	if !ok {
		response.Unauthorized(w, "unauthorized")
		return
	}

	s, err := h.svc.Spotlight(r.Context(), userID, chi.URLParam(r, "id"))
	if err != nil {
		response.Err(w, r, err)
		return
	}

	response.OK(w, s)
}

// Invite godoc
//
//	@Summary	Invite partner
//	@Tags		lockets
//	@Accept		json
//	@Produce	json
//	@Security	BearerAuth
//	@Param		id		path		string			true	"Locket ID"
//	@Param		request	body		inviteRequest	true	"Partner email"
//	@Success	201		{object}	response.Envelope{data=Invite}
//	@Failure	409		{object}	response.Envelope
//	@Router		/lockets/{id}/invites [post]
func (h *Handler) Invite(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserID(r.Context())
	if !ok {
		response.Unauthorized(w, "unauthorized")
		return
	}

	var req inviteRequest
	if err := request.Decode(w, r, &req); err != nil {
		response.Err(w, r, err)
		return
	}

	inv, err := h.svc.Invite(r.Context(), userID, chi.URLParam(r, "id"), req.Email)
	if err != nil {
		response.Err(w, r, err)
		return
	}

	response.Created(w, inv)
}

// AcceptInvite godoc
//
//	@Summary	Accept invite
//	@Tags		lockets
//	@Accept		json
//	@Produce	json
//	@Security	BearerAuth
//	@Param		request	body		acceptRequest	true	"Invite code"
//	@Success	200		{object}	response.Envelope{data=Locket}
//	@Failure	400		{object}	response.Envelope
//	@Failure	409		{object}	response.Envelope
//	@Router		/invites/accept [post]
func (h *Handler) AcceptInvite(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserID(r.Context())
	if !ok {
		response.Unauthorized(w, "unauthorized")
		return
	}

	var req acceptRequest
	if err := request.Decode(w, r, &req); err != nil {
		response.Err(w, r, err)
		return
	}

	l, err := h.svc.AcceptInvite(r.Context(), userID, req.Code)
	if err != nil {
		response.Err(w, r, err)
		return
	}

	response.OK(w, l)
}

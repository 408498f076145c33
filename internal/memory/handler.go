package memory

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/twofold/corner/internal/middleware"
	"github.com/twofold/corner/internal/request"
	"github.com/twofold/corner/internal/response"
)

// Handler holds HTTP handlers for memory group endpoints.
type Handler struct {
	svc *Service
}

// NewHandler creates a new memory Handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// Create godoc
//
//	@Summary	Create memory group
//	@Tags		memories
//	@Accept		json
//	@Produce	json
//	@Security	BearerAuth
//	@Param		request	body		CreateInput	true	"Group fields"
//	@Success	201		{object}	response.Envelope{data=Group}
//	@Failure	400		{object}	response.Envelope
//	@Failure	403		{object}	response.Envelope
//	@Router		/memory-groups [post]
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserID(r.Context())
	if !ok {
		response.Unauthorized(w, "unauthorized")
		return
	}

	var in CreateInput
	if err := request.Decode(w, r, &in); err != nil {
		response.Err(w, r, err)
		return
	}

	g, err := h.svc.Create(r.Context(), userID, in)
	if err != nil {
		response.Err(w, r, err)
		return
	}

	response.Created(w, g)
}

// Get godoc
//
//	@Summary	Get memory group with media
//	@Tags		memories
//	@Produce	json
//	@Security	BearerAuth
//	@Param		id	path		string	true	"Memory group ID"
//	@Success	200	{object}	response.Envelope{data=Group}
//	@Failure	403	{object}	response.Envelope
//	@Failure	404	{object}	response.Envelope
//	@Router		/memory-groups/{id} [get]
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserID(r.Context())
	if !ok {
		response.Unauthorized(w, "unauthorized")
		return
	}

	g, err := h.svc.Get(r.Context(), userID, chi.URLParam(r, "id"))
	if err != nil {
		response.Err(w, r, err)
		return
	}

	response.OK(w, g)
}

// List godoc
//
//	@Summary		List memories of a locket
//	@Description	Newest first. Pass the createdAt of the last item as before to get the next page.
//	@Tags			memories
//	@Produce		json
//	@Security		BearerAuth
//	@Param			id		path		string	true	"Locket ID"
//	@Param			limit	query		int		false	"Page size (max 100)"
//	@Param			before	query		string	false	"RFC 3339 timestamp"
//	@Success		200		{object}	response.Envelope{data=[]Group}
//	@Failure		400		{object}	response.Envelope
//	@Failure		403		{object}	response.Envelope
//	@Router			/lockets/{id}/memories [get]
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserID(r.Context())
	if !ok {
		response.Unauthorized(w, "unauthorized")
		return
	}

	q := r.URL.Query()
	limit := 0
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			response.BadRequest(w, "limit must be a number")
			return
		}
		limit = n
	}
	var before *time.Time
	if v := q.Get("before"); v != "" {
		t, err := time.Parse(time.RFC3339Nano, v)
		if err != nil {
			response.BadRequest(w, "before must be an RFC 3339 timestamp")
			return
		}
		before = &t
	}

	groups, err := h.svc.List(r.Context(), userID, chi.URLParam(r, "id"), limit, before)
	if err != nil {
		response.Err(w, r, err)
		return
	}

	response.OK(w, groups)
}

// Update godoc
//
//	@Summary	Update memory group
//	@Tags		memories
//	@Accept		json
//	@Produce	json
//	@Security	BearerAuth
//	@Param		id		path		string		true	"Memory group ID"
//	@Param		request	body		UpdateInput	true	"Fields to change"
//	@Success	200		{object}	response.Envelope{data=Group}
//	@Failure	400		{object}	response.Envelope
//	@Failure	404		{object}	response.Envelope
//	@Router		/memory-groups/{id} [patch]
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserID(r.Context())
	if !ok {
		response.Unauthorized(w, "unauthorized")
		return
	}

	var in UpdateInput
	if err := request.Decode(w, r, &in); err != nil {
		response.Err(w, r, err)
		return
	}

	g, err := h.svc.Update(r.Context(), userID, chi.URLParam(r, "id"), in)
	if err != nil {
		response.Err(w, r, err)
		return
	}

	response.OK(w, g)
}

// Delete godoc
//
//	@Summary		Delete memory group
//	@Description	Deletes the group and its media.
//	@Tags			memories
//	@Security		BearerAuth
//	@Param			id	path	string	true	"Memory group ID"
//	@Success		204
//	@Failure		403	{object}	response.Envelope
//	@Failure		404	{object}	response.Envelope
//	@Router			/memory-groups/{id} [delete]
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

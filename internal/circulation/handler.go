// internal/circulation/handler.go
package circulation

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"librarium/internal/apperr"
	"librarium/internal/httpx"
)

type Handler struct {
	service Service
	logger  *slog.Logger
}

func NewHandler(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

type extendRequest struct {
	DaysToExtend int `json:"days_to_extend"`
}

type availabilityResponse struct {
	BookID    uuid.UUID `json:"book_id"`
	Available bool      `json:"available"`
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	httpx.WriteError(w, r, h.logger, err)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request, checkouts []*Checkout, err error) {
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, checkouts)
}

func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	checkouts, err := h.service.GetAll(r.Context())
	h.list(w, r, checkouts, err)
}

func (h *Handler) HandleActive(w http.ResponseWriter, r *http.Request) {
	checkouts, err := h.service.GetActive(r.Context())
	h.list(w, r, checkouts, err)
}

func (h *Handler) HandleExpired(w http.ResponseWriter, r *http.Request) {
	checkouts, err := h.service.GetExpired(r.Context())
	h.list(w, r, checkouts, err)
}

func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.UUIDParam(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}

	checkout, err := h.service.GetByID(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, checkout)
}

func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var req NewCheckout
	if err := httpx.Decode(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}

	checkout, err := h.service.CreateCheckout(r.Context(), req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, checkout)
}

// HandleQuick reads book_id and client_id from the query string.
func (h *Handler) HandleQuick(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	bookID, err := uuid.Parse(q.Get("book_id"))
	if err != nil {
		h.fail(w, r, apperr.Invalid("invalid book_id %q", q.Get("book_id")))
		return
	}
	clientID, err := uuid.Parse(q.Get("client_id"))
	if err != nil {
		h.fail(w, r, apperr.Invalid("invalid client_id %q", q.Get("client_id")))
		return
	}

	checkout, err := h.service.QuickCheckout(r.Context(), bookID, clientID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, checkout)
}

func (h *Handler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.UUIDParam(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}

	var update Update
	if err := httpx.Decode(r, &update); err != nil {
		h.fail(w, r, err)
		return
	}

	checkout, err := h.service.UpdateCheckout(r.Context(), id, update)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, checkout)
}

// HandleExtend accepts an optional {"days_to_extend": n} body.
func (h *Handler) HandleExtend(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.UUIDParam(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}

	var req extendRequest
	if err := httpx.Decode(r, &req); err != nil && !errors.Is(err, httpx.ErrEmptyBody) {
		h.fail(w, r, err)
		return
	}

	checkout, err := h.service.ExtendCheckout(r.Context(), id, req.DaysToExtend)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, checkout)
}

func (h *Handler) HandleReturn(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.UUIDParam(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}

	if _, err := h.service.ReturnBook(r.Context(), id); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) HandleByClient(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.UUIDParam(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	checkouts, err := h.service.GetByClient(r.Context(), id)
	h.list(w, r, checkouts, err)
}

func (h *Handler) HandleClientActive(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.UUIDParam(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	checkouts, err := h.service.GetClientActive(r.Context(), id)
	h.list(w, r, checkouts, err)
}

func (h *Handler) HandleByBook(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.UUIDParam(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	checkouts, err := h.service.GetByBook(r.Context(), id)
	h.list(w, r, checkouts, err)
}

func (h *Handler) HandleAvailable(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.UUIDParam(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}

	available, err := h.service.IsBookAvailable(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, availabilityResponse{BookID: id, Available: available})
}

func (h *Handler) HandleSearch(w http.ResponseWriter, r *http.Request) {
	var criteria SearchCriteria
	if err := httpx.Decode(r, &criteria); err != nil {
		h.fail(w, r, err)
		return
	}
	checkouts, err := h.service.Search(r.Context(), criteria)
	h.list(w, r, checkouts, err)
}

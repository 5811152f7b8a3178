package webhooks

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// ownerHeader scopes every management API call to a tenant. Authentication
// itself is an outer concern; the surrounding application is expected to
// set this header from its verified session.
const ownerHeader = "X-Owner-ID"

// Router returns the management API for webhook subscriptions:
//
//	POST   /webhooks                           register (response includes the secret, once)
//	GET    /webhooks                           list (paginated)
//	GET    /webhooks/{id}                      get
//	PATCH  /webhooks/{id}                      partial update
//	DELETE /webhooks/{id}                      delete
//	GET    /webhooks/{id}/deliveries           delivery history (paginated)
//	POST   /webhooks/deliveries/{id}/retry     manual retry
func (s *Service) Router() chi.Router {
	r := chi.NewRouter()

	r.Route("/webhooks", func(r chi.Router) {
		r.Post("/", s.handleCreate)
		r.Get("/", s.handleList)
		r.Post("/deliveries/{deliveryID}/retry", s.handleRetry)

		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", s.handleGet)
			r.Patch("/", s.handleUpdate)
			r.Delete("/", s.handleDelete)
			r.Get("/deliveries", s.handleDeliveries)
		})
	})

	return r
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type errorResponse struct {
	Error errorBody `json:"error"`
}

type listResponse struct {
	Data any            `json:"data"`
	Meta map[string]any `json:"meta"`
}

func respondJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// respondError maps subsystem errors onto the API error taxonomy:
// validation failures are 422, missing records 404, and anything else is a
// retryable 503 so a store outage never silently drops a mutation.
func respondError(w http.ResponseWriter, err error) {
	switch {
	case IsValidationError(err):
		respondJSON(w, http.StatusUnprocessableEntity, errorResponse{
			Error: errorBody{Code: "validation_error", Message: err.Error()},
		})
	case errors.Is(err, ErrSubscriptionNotFound), errors.Is(err, ErrDeliveryNotFound):
		respondJSON(w, http.StatusNotFound, errorResponse{
			Error: errorBody{Code: "not_found", Message: err.Error()},
		})
	default:
		respondJSON(w, http.StatusServiceUnavailable, errorResponse{
			Error: errorBody{Code: "unavailable", Message: "webhook subsystem temporarily unavailable"},
		})
	}
}

func ownerID(r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.Header.Get(ownerHeader))
	return id, err == nil
}

func respondMissingOwner(w http.ResponseWriter) {
	respondJSON(w, http.StatusBadRequest, errorResponse{
		Error: errorBody{Code: "bad_request", Message: "missing or invalid " + ownerHeader + " header"},
	})
}

func pageFromQuery(r *http.Request) Page {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	perPage, _ := strconv.Atoi(r.URL.Query().Get("per_page"))
	return Page{Page: page, PerPage: perPage}.Normalize()
}

func pathUUID(r *http.Request, param string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, param))
	return id, err == nil
}

func (s *Service) handleCreate(w http.ResponseWriter, r *http.Request) {
	owner, ok := ownerID(r)
	if !ok {
		respondMissingOwner(w)
		return
	}

	var req CreateSubscriptionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondJSON(w, http.StatusBadRequest, errorResponse{
			Error: errorBody{Code: "bad_request", Message: "invalid JSON body"},
		})
		return
	}

	sub, err := s.CreateSubscription(r.Context(), owner, req)
	if err != nil {
		respondError(w, err)
		return
	}
	// The only response that ever carries the secret
	respondJSON(w, http.StatusCreated, sub)
}

func (s *Service) handleList(w http.ResponseWriter, r *http.Request) {
	owner, ok := ownerID(r)
	if !ok {
		respondMissingOwner(w)
		return
	}

	page := pageFromQuery(r)
	subs, total, err := s.ListSubscriptions(r.Context(), owner, page)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, listResponse{
		Data: subs,
		Meta: map[string]any{"page": page.Page, "per_page": page.PerPage, "total": total},
	})
}

func (s *Service) handleGet(w http.ResponseWriter, r *http.Request) {
	owner, ok := ownerID(r)
	if !ok {
		respondMissingOwner(w)
		return
	}
	id, ok := pathUUID(r, "id")
	if !ok {
		respondError(w, ErrSubscriptionNotFound)
		return
	}

	sub, err := s.GetSubscription(r.Context(), id, owner)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, sub)
}

func (s *Service) handleUpdate(w http.ResponseWriter, r *http.Request) {
	owner, ok := ownerID(r)
	if !ok {
		respondMissingOwner(w)
		return
	}
	id, ok := pathUUID(r, "id")
	if !ok {
		respondError(w, ErrSubscriptionNotFound)
		return
	}

	var req UpdateSubscriptionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondJSON(w, http.StatusBadRequest, errorResponse{
			Error: errorBody{Code: "bad_request", Message: "invalid JSON body"},
		})
		return
	}

	sub, err := s.UpdateSubscription(r.Context(), id, owner, req)
	if err != nil {
		respondError(w, err)
		return
	}
	redacted := sub.Redacted()
	respondJSON(w, http.StatusOK, redacted)
}

func (s *Service) handleDelete(w http.ResponseWriter, r *http.Request) {
	owner, ok := ownerID(r)
	if !ok {
		respondMissingOwner(w)
		return
	}
	id, ok := pathUUID(r, "id")
	if !ok {
		respondError(w, ErrSubscriptionNotFound)
		return
	}

	if err := s.DeleteSubscription(r.Context(), id, owner); err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (s *Service) handleDeliveries(w http.ResponseWriter, r *http.Request) {
	owner, ok := ownerID(r)
	if !ok {
		respondMissingOwner(w)
		return
	}
	id, ok := pathUUID(r, "id")
	if !ok {
		respondError(w, ErrSubscriptionNotFound)
		return
	}

	page := pageFromQuery(r)
	deliveries, total, err := s.ListDeliveries(r.Context(), id, owner, page)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, listResponse{
		Data: deliveries,
		Meta: map[string]any{"page": page.Page, "per_page": page.PerPage, "total": total},
	})
}

func (s *Service) handleRetry(w http.ResponseWriter, r *http.Request) {
	owner, ok := ownerID(r)
	if !ok {
		respondMissingOwner(w)
		return
	}
	id, ok := pathUUID(r, "deliveryID")
	if !ok {
		respondError(w, ErrDeliveryNotFound)
		return
	}

	delivery, err := s.RetryDelivery(r.Context(), id, owner)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusAccepted, delivery)
}

package handler

import (
	"errors"
	"net/http"

	"github.com/brunojppb/mailbolt/internal/service"
)

// maxFormBytes caps the subscription form body
const maxFormBytes = 64 << 10

// Subscribe handles POST /subscriptions with a url-encoded name and email
func (h *Handler) Subscribe(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxFormBytes)
	if err := r.ParseForm(); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid_form", "Request body must be a url-encoded form")
		return
	}

	form := r.PostForm
	if !form.Has("name") || !form.Has("email") {
		writeError(w, r, http.StatusBadRequest, "invalid_form", "Both name and email are required")
		return
	}

	_, err := h.subscriptionSvc.Subscribe(r.Context(), service.SubscribeRequest{
		Name:  form.Get("name"),
		Email: form.Get("email"),
	})
	switch {
	case err == nil:
		w.WriteHeader(http.StatusOK)
	case errors.Is(err, service.ErrInvalidSubscriber):
		writeError(w, r, http.StatusBadRequest, "invalid_subscriber", err.Error())
	default:
		h.requestLog(r).Error().Err(err).Msg("subscription failed")
		writeError(w, r, http.StatusInternalServerError, "internal_error", "Could not complete the subscription")
	}
}

// ConfirmSubscription handles GET /subscriptions/confirm?subscription_token=...
func (h *Handler) ConfirmSubscription(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("subscription_token")
	if token == "" {
		writeError(w, r, http.StatusBadRequest, "missing_token", "subscription_token is required")
		return
	}

	err := h.subscriptionSvc.Confirm(r.Context(), token)
	switch {
	case err == nil:
		w.WriteHeader(http.StatusOK)
	case errors.Is(err, service.ErrTokenNotFound):
		writeError(w, r, http.StatusUnauthorized, "unknown_token", "The confirmation token is not valid")
	default:
		h.requestLog(r).Error().Err(err).Msg("confirmation failed")
		writeError(w, r, http.StatusInternalServerError, "internal_error", "Could not confirm the subscription")
	}
}

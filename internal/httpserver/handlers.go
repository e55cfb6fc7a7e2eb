package httpserver

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/gatewaycore/server/internal/auth"
	gwerrors "github.com/gatewaycore/server/internal/errors"
	"github.com/gatewaycore/server/internal/payment"
	"github.com/gatewaycore/server/internal/storage"
	"github.com/gatewaycore/server/pkg/responders"
)

var serverStartTime = time.Now()

// health reports process liveness.
func (h *handlers) health(w http.ResponseWriter, r *http.Request) {
	responders.JSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"uptime": time.Since(serverStartTime).Round(time.Second).String(),
	})
}

// initPayment authenticates a signed init request and creates the payment.
//
// The body is a flat JSON object of signed parameters. TeamSlug, Token, and
// Amount are required; OrderId keys the idempotency fingerprint together
// with the other signed parameters, so a network-level repeat of the same
// init returns the payment created the first time.
func (h *handlers) initPayment(w http.ResponseWriter, r *http.Request) {
	params, err := decodeParams(r)
	if err != nil {
		gwerrors.WriteSimpleError(w, gwerrors.KindMissingParameters, "request body must be a flat JSON object")
		return
	}

	teamSlug := params["TeamSlug"]
	token := params[auth.TokenParamName]

	_, err = h.authenticator.Authenticate(r.Context(), auth.Request{
		TeamSlug: teamSlug,
		Params:   params,
		Token:    token,
		ClientIP: r.RemoteAddr,
	})
	if err != nil {
		writeKindError(w, err)
		return
	}

	amount, err := strconv.ParseInt(params["Amount"], 10, 64)
	if err != nil {
		gwerrors.WriteSimpleError(w, gwerrors.KindMissingParameters, "Amount must be an integer in minor units")
		return
	}

	p, created, err := h.payments.InitPayment(r.Context(), payment.InitRequest{
		TeamSlug:    teamSlug,
		Amount:      amount,
		Currency:    params["Currency"],
		NotifyURL:   params["NotifyUrl"],
		Fingerprint: auth.Fingerprint(teamSlug, token, params),
	})
	if err != nil {
		writeKindError(w, err)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	responders.JSON(w, status, map[string]any{
		"success":   true,
		"paymentId": p.PaymentID,
		"status":    p.Status,
		"amount":    p.Amount,
		"currency":  p.Currency,
		"createdAt": p.CreatedAt,
	})
}

// transitionPayment authenticates a signed request and attempts the status
// transition it names.
func (h *handlers) transitionPayment(w http.ResponseWriter, r *http.Request) {
	paymentID := chi.URLParam(r, "paymentID")

	params, err := decodeParams(r)
	if err != nil {
		gwerrors.WriteSimpleError(w, gwerrors.KindMissingParameters, "request body must be a flat JSON object")
		return
	}

	teamSlug := params["TeamSlug"]
	token := params[auth.TokenParamName]

	_, err = h.authenticator.Authenticate(r.Context(), auth.Request{
		TeamSlug: teamSlug,
		Params:   params,
		Token:    token,
		ClientIP: r.RemoteAddr,
	})
	if err != nil {
		writeKindError(w, err)
		return
	}

	from, err := storage.ParseStatus(params["From"])
	if err != nil {
		gwerrors.WriteSimpleError(w, gwerrors.KindMissingParameters, "From must name a valid payment status")
		return
	}
	to, err := storage.ParseStatus(params["To"])
	if err != nil {
		gwerrors.WriteSimpleError(w, gwerrors.KindMissingParameters, "To must name a valid payment status")
		return
	}

	result, err := h.payments.TryTransition(r.Context(), paymentID, from, to, teamSlug)
	if err != nil {
		writeKindError(w, err)
		return
	}
	if !result.OK {
		details := map[string]any{}
		if result.Observed != "" {
			details["observedStatus"] = result.Observed
		}
		gwerrors.WriteError(w, result.Reason, "transition rejected", details)
		return
	}

	responders.JSON(w, http.StatusOK, map[string]any{
		"success":   true,
		"paymentId": paymentID,
		"status":    to,
	})
}

// getPayment returns the payment's public view.
func (h *handlers) getPayment(w http.ResponseWriter, r *http.Request) {
	paymentID := chi.URLParam(r, "paymentID")

	p, err := h.payments.GetPayment(r.Context(), paymentID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			responders.JSON(w, http.StatusNotFound, map[string]any{
				"error": map[string]any{"message": "unknown payment"},
			})
			return
		}
		writeKindError(w, err)
		return
	}

	responders.JSON(w, http.StatusOK, p)
}

// listDeadlocks exposes the observer's bounded deadlock history.
func (h *handlers) listDeadlocks(w http.ResponseWriter, r *http.Request) {
	history := h.observer.History()
	responders.JSON(w, http.StatusOK, map[string]any{
		"count":     len(history),
		"deadlocks": history,
	})
}

// listAudit returns recent audit entries.
func (h *handlers) listAudit(w http.ResponseWriter, r *http.Request) {
	n := 100
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			n = parsed
		}
	}
	responders.JSON(w, http.StatusOK, map[string]any{
		"entries": h.trail.Recent(n),
	})
}

// writeKindError maps an error chain onto the wire error envelope.
func writeKindError(w http.ResponseWriter, err error) {
	kind := gwerrors.KindOf(err)
	message := "internal error"
	var gwErr *gwerrors.Error
	if errors.As(err, &gwErr) {
		message = gwErr.Message
	}
	gwerrors.WriteSimpleError(w, kind, message)
}

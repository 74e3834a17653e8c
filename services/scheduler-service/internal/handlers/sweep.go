package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/md-rashed-zaman/counselbook/libs/auth"
	"github.com/md-rashed-zaman/counselbook/libs/httpx"
	"github.com/md-rashed-zaman/counselbook/services/scheduler-service/internal/sweeper"
)

type Runner interface {
	Run(ctx context.Context, kind sweeper.Kind) (sweeper.Summary, error)
}

// SweepHandler runs a reminder sweep on demand. Only staff tokens may trigger it.
type SweepHandler struct {
	runner   Runner
	verifier auth.Verifier
	logger   *slog.Logger
}

func NewSweepHandler(runner Runner, verifier auth.Verifier, logger *slog.Logger) *SweepHandler {
	return &SweepHandler{runner: runner, verifier: verifier, logger: logger}
}

func (h *SweepHandler) Trigger(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	claims, err := h.verifier.FromRequest(r)
	if err != nil {
		if errors.Is(err, auth.ErrMissingToken) {
			httpx.WriteError(w, http.StatusUnauthorized, "missing bearer token", "")
			return
		}
		httpx.WriteError(w, http.StatusUnauthorized, "invalid token", "")
		return
	}
	if !auth.IsStaff(claims.Role) {
		httpx.WriteError(w, http.StatusForbidden, "staff role required", "")
		return
	}

	kind, err := sweeper.ParseKind(r.URL.Query().Get("kind"))
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, err.Error(), "kind")
		return
	}

	summary, err := h.runner.Run(r.Context(), kind)
	if err != nil {
		h.logger.Error("manual sweep failed", "kind", kind, "err", err, "request_id", httpx.RequestIDFromContext(r.Context()))
		httpx.WriteError(w, http.StatusInternalServerError, "sweep failed", "")
		return
	}
	h.logger.Info("manual sweep triggered", "kind", kind, "sub", claims.Sub)
	httpx.WriteJSON(w, http.StatusOK, summary)
}

package handler

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/libreone/libreone-server/internal/logger"
	"github.com/libreone/libreone-server/internal/model"
	"github.com/libreone/libreone-server/internal/service"
)

// IdP materializes local users from federated OIDC assertions. No session
// is created here; the caller continues through CAS afterwards.
type IdP struct {
	idp    *service.ExternalIdP
	logger *logger.Logger
}

func NewIdP(idp *service.ExternalIdP, logger *logger.Logger) *IdP {
	return &IdP{idp: idp, logger: logger}
}

func (h *IdP) CreateUser(w http.ResponseWriter, r *http.Request) {
	clientName := chi.URLParam(r, "clientName")

	assertion := r.Header.Get("Authorization")
	assertion = strings.TrimPrefix(assertion, "Bearer ")
	if assertion == "" {
		writeError(w, http.StatusBadRequest, "bad_request", "Missing assertion", "")
		return
	}

	user, err := h.idp.CreateUserFromExternalIdP(r.Context(), clientName, assertion)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrUnknownProvider):
			writeError(w, http.StatusNotFound, "unknown_provider", "Unknown identity provider", "")
		case errors.Is(err, model.ErrTokenInvalid):
			writeError(w, http.StatusUnauthorized, "assertion_rejected", "Assertion rejected", "")
		default:
			h.logger.Error("federated user upsert failed", "error", err.Error())
			writeError(w, http.StatusInternalServerError, "internal", "Internal server error", "")
		}
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"uuid":  user.UUID.String(),
		"email": user.Email,
	})
}

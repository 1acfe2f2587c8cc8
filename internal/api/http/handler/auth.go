package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	httpapi "github.com/libreone/libreone-server/internal/api/http"
	"github.com/libreone/libreone-server/internal/api/http/middleware"
	"github.com/libreone/libreone-server/internal/cas"
	"github.com/libreone/libreone-server/internal/flow"
	"github.com/libreone/libreone-server/internal/logger"
	"github.com/libreone/libreone-server/internal/model"
	"github.com/libreone/libreone-server/internal/service"
	"github.com/libreone/libreone-server/internal/token"
)

// flowStateTTL bounds how long a login round-trip may take.
const flowStateTTL = 10 * time.Minute

// AuthConfig carries the URLs the auth handlers redirect through.
type AuthConfig struct {
	// CallbackURL is this service's own CAS callback.
	CallbackURL string
	// MainURL is the default post-login target.
	MainURL string
	// RegistrationEntryURL resumes an incomplete registration.
	RegistrationEntryURL string
}

// Auth serves the login, registration and recovery endpoints.
type Auth struct {
	auth       *service.Auth
	sessions   *service.SessionService
	tokens     *token.SessionManager
	interrupts *service.InterruptEngine
	bridge     *service.Bridge
	cas        *cas.Client
	users      model.UserStore
	jar        *httpapi.Jar
	state      *token.StateCipher
	cfg        AuthConfig
	logger     *logger.Logger
}

func NewAuth(
	auth *service.Auth,
	sessions *service.SessionService,
	tokens *token.SessionManager,
	interrupts *service.InterruptEngine,
	bridge *service.Bridge,
	casClient *cas.Client,
	users model.UserStore,
	jar *httpapi.Jar,
	state *token.StateCipher,
	cfg AuthConfig,
	logger *logger.Logger,
) *Auth {
	return &Auth{
		auth:       auth,
		sessions:   sessions,
		tokens:     tokens,
		interrupts: interrupts,
		bridge:     bridge,
		cas:        casClient,
		users:      users,
		jar:        jar,
		state:      state,
		cfg:        cfg,
		logger:     logger,
	}
}

// InitLogin stashes the flow state in the cas_state cookie and bounces the
// browser to CAS. Gateway attempts additionally set a short-lived marker so
// the callback can tell a silent gateway miss from a bad request.
func (h *Auth) InitLogin(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	redirectURI := q.Get("redirectURI")
	serviceURI := q.Get("redirectCASServiceURI")
	tryGateway := q.Get("tryGateway") == "true"

	var state flow.State
	if serviceURI != "" {
		state = flow.PendingCASService(serviceURI)
	} else {
		state = flow.PendingCASSession(redirectURI, tryGateway)
	}

	encoded, err := state.Encode(h.state)
	if err != nil {
		h.logger.Error("failed to encode flow state", "error", err.Error())
		writeError(w, http.StatusInternalServerError, "internal", "Internal server error", "")
		return
	}
	h.jar.Set(w, httpapi.CookieCASState, encoded, flowStateTTL, true)

	if tryGateway {
		h.jar.Set(w, httpapi.CookieTriedGateway, "true", model.GatewayMarkerTTL, true)
	}

	http.Redirect(w, r, h.cas.LoginURL(h.cfg.CallbackURL, tryGateway), http.StatusFound)
}

// CompleteLogin handles the CAS callback. No ticket plus the gateway marker
// means the silent gateway attempt missed; send the browser on unchanged.
// No ticket and no marker is a bad request.
func (h *Auth) CompleteLogin(w http.ResponseWriter, r *http.Request) {
	state := h.readFlowState(r)
	ticket := r.URL.Query().Get("ticket")

	if ticket == "" {
		if httpapi.Read(r, httpapi.CookieTriedGateway) != "" {
			h.jar.Clear(w, httpapi.CookieTriedGateway)
			http.Redirect(w, r, h.stashedTarget(state), http.StatusFound)
			return
		}
		writeError(w, http.StatusBadRequest, "missing_ticket", "Missing CAS ticket", "")
		return
	}

	principal, err := h.cas.ValidateTicket(r.Context(), ticket, h.cfg.CallbackURL)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "ticket_rejected", "CAS ticket validation failed", "")
		return
	}

	session, err := h.sessions.Create(r.Context(), principal.ID, &ticket, model.SessionDuration)
	if err != nil {
		h.logger.Error("failed to create session", "error", err.Error())
		writeError(w, http.StatusInternalServerError, "internal", "Internal server error", "")
		return
	}

	if err := h.setSessionCookies(w, session, model.SessionDuration); err != nil {
		writeError(w, http.StatusInternalServerError, "internal", "Internal server error", "")
		return
	}

	hasSession, err := flow.HasCASSession().Encode(h.state)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal", "Internal server error", "")
		return
	}
	h.jar.Set(w, httpapi.CookieCASState, hasSession, flowStateTTL, true)
	h.jar.Clear(w, httpapi.CookieTriedGateway)

	target := h.stashedTarget(state)
	user, err := h.users.GetByUUID(r.Context(), session.UserID)
	if err == nil && !user.RegistrationComplete {
		target = h.cfg.RegistrationEntryURL
	}

	http.Redirect(w, r, target, http.StatusFound)
}

// Logout clears every session cookie locally, then hands the browser to
// CAS logout. Local clearing happens even if CAS is down.
func (h *Auth) Logout(w http.ResponseWriter, r *http.Request) {
	access := httpapi.Read(r, httpapi.CookieAccess)
	signed := httpapi.Read(r, httpapi.CookieSigned)
	if access != "" && signed != "" {
		if _, sessionID, err := h.tokens.VerifySessionToken(token.JoinSessionToken(access, signed)); err == nil {
			if err := h.sessions.Invalidate(r.Context(), sessionID); err != nil {
				h.logger.Error("failed to invalidate session on logout",
					"session_id", sessionID,
					"error", err.Error())
			}
		}
	}

	h.jar.ClearSession(w)
	http.Redirect(w, r, h.cas.LogoutURL(), http.StatusFound)
}

type registerRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *Auth) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "Malformed request body", "")
		return
	}
	if req.Email == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "bad_request", "Email and password are required", "")
		return
	}

	id, err := h.auth.Register(r.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, model.ErrEmailTaken) {
			writeError(w, http.StatusConflict, "email_taken", "An account with this email already exists", "")
			return
		}
		h.logger.Error("registration failed", "error", err.Error())
		writeError(w, http.StatusInternalServerError, "internal", "Internal server error", "")
		return
	}

	writeJSON(w, http.StatusCreated, map[string]string{"uuid": id.String()})
}

type verifyEmailRequest struct {
	Email string `json:"email"`
	Code  string `json:"code"`
	Token string `json:"token"`
}

// VerifyEmail proves the address and opens a short provisional session;
// the full-length session only comes after registration completes. The
// proof is either the mailed code with the address, or the link token by
// itself.
func (h *Auth) VerifyEmail(w http.ResponseWriter, r *http.Request) {
	var req verifyEmailRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "Malformed request body", "")
		return
	}

	var (
		user    model.User
		session model.Session
		err     error
	)
	switch {
	case req.Token != "":
		user, session, _, err = h.auth.VerifyRegistrationByToken(r.Context(), req.Token)
	case req.Email != "" && req.Code != "":
		user, session, _, err = h.auth.VerifyRegistrationEmail(r.Context(), req.Email, req.Code)
	default:
		writeError(w, http.StatusBadRequest, "bad_request", "Email and code, or a token, are required", "")
		return
	}
	if err != nil {
		switch {
		case errors.Is(err, model.ErrTokenExpired):
			writeError(w, http.StatusGone, "code_expired", "Verification code expired", "")
		case errors.Is(err, model.ErrWrongCredentials), errors.Is(err, model.ErrTokenInvalid):
			writeError(w, http.StatusUnauthorized, "code_invalid", "Verification code rejected", "")
		default:
			h.logger.Error("email verification failed", "error", err.Error())
			writeError(w, http.StatusInternalServerError, "internal", "Internal server error", "")
		}
		return
	}

	if err := h.setSessionCookies(w, session, model.ProvisionalSessionTTL); err != nil {
		writeError(w, http.StatusInternalServerError, "internal", "Internal server error", "")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"uuid":  user.UUID.String(),
		"email": user.Email,
	})
}

type completeRegistrationRequest struct {
	Source    string `json:"source"`
	AdaptRole string `json:"adapt_role"`
}

// CompleteRegistration finishes onboarding for the authenticated user and
// resolves where the browser goes next. A CAS service stashed before
// registration wins; a post-register cookie forces a fresh SSO round-trip
// carrying the minted assertion.
func (h *Auth) CompleteRegistration(w http.ResponseWriter, r *http.Request) {
	principal, ok := middleware.PrincipalFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "session_invalid", "Authentication required", "")
		return
	}

	var req completeRegistrationRequest
	// Body is optional; malformed JSON is still rejected.
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "bad_request", "Malformed request body", "")
		return
	}

	state := h.readFlowState(r)
	stashedService := ""
	if state.Kind == flow.KindPendingCASService {
		stashedService = state.ServiceURI
	}

	result, err := h.auth.CompleteRegistration(r.Context(), service.CompleteRegistrationInput{
		UserID:               principal.UserID,
		Source:               req.Source,
		AdaptRole:            req.AdaptRole,
		StashedCASService:    stashedService,
		PostRegisterRedirect: httpapi.Read(r, httpapi.CookiePostRegisterTarget),
	})
	if err != nil {
		h.logger.Error("failed to complete registration",
			"user_id", principal.UserID,
			"error", err.Error())
		writeError(w, http.StatusInternalServerError, "internal", "Internal server error", "")
		return
	}

	redirectURI := result.RedirectURI
	if result.SSOAssertion != "" {
		redirectURI = h.cas.LoginURLWithToken(result.RedirectURI, result.SSOAssertion)
	}

	h.jar.Clear(w, httpapi.CookiePostRegisterTarget)
	h.jar.Clear(w, httpapi.CookieCASState)

	writeJSON(w, http.StatusOK, map[string]string{"redirect_uri": redirectURI})
}

type passwordRecoveryRequest struct {
	Email string `json:"email"`
}

// InitPasswordRecovery always answers 200 so account existence is not
// leaked through this endpoint.
func (h *Auth) InitPasswordRecovery(w http.ResponseWriter, r *http.Request) {
	var req passwordRecoveryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "Malformed request body", "")
		return
	}

	if err := h.auth.InitPasswordRecovery(r.Context(), req.Email); err != nil {
		h.logger.Error("password recovery init failed", "error", err.Error())
		writeError(w, http.StatusInternalServerError, "internal", "Internal server error", "")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type passwordRecoveryCompleteRequest struct {
	Token    string `json:"token"`
	Password string `json:"password"`
}

func (h *Auth) CompletePasswordRecovery(w http.ResponseWriter, r *http.Request) {
	var req passwordRecoveryCompleteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "Malformed request body", "")
		return
	}
	if req.Token == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "bad_request", "Token and password are required", "")
		return
	}

	if err := h.auth.CompletePasswordRecovery(r.Context(), req.Token, req.Password); err != nil {
		switch {
		case errors.Is(err, model.ErrTokenExpired):
			writeError(w, http.StatusGone, "token_expired", "Reset token expired", "")
		case errors.Is(err, model.ErrTokenInvalid), errors.Is(err, model.ErrNotFound):
			writeError(w, http.StatusUnauthorized, "token_invalid", "Reset token rejected", "")
		default:
			h.logger.Error("password recovery completion failed", "error", err.Error())
			writeError(w, http.StatusInternalServerError, "internal", "Internal server error", "")
		}
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// BackChannelSLO accepts the CAS logout notice as a query parameter, a
// form field or a JSON body field. A notice matching nothing still answers
// 200; only a malformed payload is an error.
func (h *Auth) BackChannelSLO(w http.ResponseWriter, r *http.Request) {
	payload := r.URL.Query().Get("logoutRequest")
	if payload == "" && r.Method == http.MethodPost {
		ct := r.Header.Get("Content-Type")
		if ct == "application/json" {
			var body struct {
				LogoutRequest string `json:"logoutRequest"`
			}
			if err := json.NewDecoder(r.Body).Decode(&body); err == nil {
				payload = body.LogoutRequest
			}
		} else {
			payload = r.PostFormValue("logoutRequest")
		}
	}
	if payload == "" {
		writeError(w, http.StatusBadRequest, "bad_request", "Missing logoutRequest", "")
		return
	}

	if err := h.auth.HandleBackChannelSLO(r.Context(), payload); err != nil {
		if errors.Is(err, cas.ErrBadLogoutRequest) {
			writeError(w, http.StatusBadRequest, "bad_request", "Malformed logoutRequest", "")
			return
		}
		h.logger.Error("back-channel logout failed", "error", err.Error())
		writeError(w, http.StatusInternalServerError, "internal", "Internal server error", "")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// CheckInterrupt runs the authorization decision engine for a CAS login.
func (h *Auth) CheckInterrupt(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	username := q.Get("username")
	if username == "" {
		writeError(w, http.StatusBadRequest, "bad_request", "Missing username", "")
		return
	}

	result, err := h.interrupts.CheckInterrupt(r.Context(), q.Get("registeredService"), username)
	if err != nil {
		h.logger.Error("interrupt check failed", "error", err.Error())
		writeError(w, http.StatusInternalServerError, "internal", "Internal server error", "")
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// BridgeToken issues the library bridge token and sets the per-source
// cookie family before bouncing back to the library.
func (h *Auth) BridgeToken(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	principal := q.Get("principal")
	source := q.Get("source")
	redirectURI := q.Get("redirect")
	libraryID, err := strconv.ParseInt(q.Get("library_id"), 10, 64)
	if principal == "" || source == "" || redirectURI == "" || err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "principal, source, redirect and library_id are required", "")
		return
	}

	result, err := h.bridge.IssueToken(r.Context(), principal, libraryID)
	if err != nil {
		switch {
		case errors.Is(err, model.ErrNotFound):
			writeError(w, http.StatusNotFound, "not_found", "Unknown principal or library", "")
		case errors.Is(err, model.ErrForbidden):
			writeError(w, http.StatusForbidden, "forbidden", "Not a library application", "")
		default:
			h.logger.Error("bridge token issuance failed", "error", err.Error())
			writeError(w, http.StatusInternalServerError, "internal", "Internal server error", "")
		}
		return
	}

	ttl := 7 * 24 * time.Hour
	h.jar.Set(w, httpapi.BridgeTokenCookie(source), result.Token, ttl, false)
	if result.Authorized {
		h.jar.Set(w, httpapi.BridgeAuthorizedCookie(source), "true", ttl, false)
	}
	if result.Unverified {
		h.jar.Set(w, httpapi.BridgeUnverifiedCookie(source), "true", ttl, false)
	}
	h.jar.Set(w, httpapi.CookieBridgeUsed, "true", ttl, true)
	h.jar.Clear(w, httpapi.CookieBridgeRedirect)
	h.jar.Clear(w, httpapi.CookieBridgeSource)

	http.Redirect(w, r, redirectURI, http.StatusFound)
}

// readFlowState unseals the cas_state cookie, treating a missing, forged
// or malformed cookie as anonymous. Rejected values are logged; the strict
// decoder never guesses at partial blobs.
func (h *Auth) readFlowState(r *http.Request) flow.State {
	raw := httpapi.Read(r, httpapi.CookieCASState)
	if raw == "" {
		return flow.Anonymous()
	}
	state, err := flow.Decode(h.state, raw)
	if err != nil {
		h.logger.Info("rejecting malformed flow state cookie", "error", err.Error())
		return flow.Anonymous()
	}
	return state
}

func (h *Auth) stashedTarget(state flow.State) string {
	switch state.Kind {
	case flow.KindPendingCASService:
		if state.ServiceURI != "" {
			return state.ServiceURI
		}
	case flow.KindPendingCASSession:
		if state.RedirectURI != "" {
			return state.RedirectURI
		}
	}
	return h.cfg.MainURL
}

func (h *Auth) setSessionCookies(w http.ResponseWriter, session model.Session, ttl time.Duration) error {
	raw, err := h.tokens.CreateSessionToken(session.UserID, session.ID)
	if err != nil {
		h.logger.Error("failed to create session token", "error", err.Error())
		return err
	}
	access, signed, err := token.SplitSessionToken(raw)
	if err != nil {
		h.logger.Error("failed to split session token", "error", err.Error())
		return err
	}
	h.jar.Set(w, httpapi.CookieAccess, access, ttl, false)
	h.jar.Set(w, httpapi.CookieSigned, signed, ttl, true)
	return nil
}

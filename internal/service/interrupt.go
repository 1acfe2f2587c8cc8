package service

import (
	"context"
	"errors"
	"fmt"
	"net/url"

	"github.com/google/uuid"

	"github.com/libreone/libreone-server/internal/logger"
	"github.com/libreone/libreone-server/internal/model"
)

// InterruptResult is the outcome of a CAS interrupt check. Exactly one of
// {block, non-blocking interrupt with redirect, allow} holds: allow is
// Interrupt=false; a non-blocking interrupt always carries AutoRedirect and
// a single link the frontend follows after a short delay.
type InterruptResult struct {
	Interrupt    bool            `json:"interrupt"`
	Block        bool            `json:"block"`
	SSOEnabled   bool            `json:"ssoEnabled"`
	Message      string          `json:"message,omitempty"`
	AutoRedirect bool            `json:"autoRedirect,omitempty"`
	Links        []InterruptLink `json:"links,omitempty"`
}

// InterruptLink is a labeled target offered to the user.
type InterruptLink struct {
	Label string `json:"label"`
	URL   string `json:"url"`
}

func allow() *InterruptResult {
	return &InterruptResult{Interrupt: false, Block: false, SSOEnabled: true}
}

func block(message string, links ...InterruptLink) *InterruptResult {
	return &InterruptResult{Interrupt: true, Block: true, SSOEnabled: false, Message: message, Links: links}
}

func redirect(message, target string) *InterruptResult {
	return &InterruptResult{
		Interrupt:    true,
		Block:        false,
		SSOEnabled:   true,
		Message:      message,
		AutoRedirect: true,
		Links:        []InterruptLink{{Label: "Go", URL: target}},
	}
}

// InterruptConfig carries the engine's fixed parameters.
type InterruptConfig struct {
	// CallbackURL is the system's own CAS callback, always trusted.
	CallbackURL string
	// MainURL is the default post-login target.
	MainURL string
	// RegistrationEntryURL resumes an incomplete registration.
	RegistrationEntryURL string
	// AccessRequestURL starts the app access-request flow.
	AccessRequestURL string
	// TrialURL is the trial/purchase interstitial.
	TrialURL string
	// EnforceLicenses globally toggles license checks.
	EnforceLicenses bool
}

// LoginEventRecorder records login telemetry. Failures are logged and never
// block the flow.
type LoginEventRecorder interface {
	RecordLogin(ctx context.Context, userID uuid.UUID) error
}

// interruptRequest is the per-evaluation state threaded through the rules.
type interruptRequest struct {
	registeredService string
	username          string
	user              model.User
	userFound         bool
	app               model.Application
	appFound          bool
}

// interruptRule is one predicate→outcome entry. A nil result means the rule
// does not apply and evaluation moves on.
type interruptRule struct {
	name string
	eval func(ctx context.Context, req *interruptRequest) (*InterruptResult, error)
}

// InterruptEngine decides whether a user may proceed to a CAS service. The
// precedence between rules is data: an ordered list evaluated first match
// wins.
type InterruptEngine struct {
	users    model.UserStore
	apps     model.ApplicationStore
	grants   model.UserApplicationStore
	licenses *LicenseService
	events   LoginEventRecorder
	cfg      InterruptConfig
	logger   *logger.Logger

	rules []interruptRule
}

func NewInterruptEngine(
	users model.UserStore,
	apps model.ApplicationStore,
	grants model.UserApplicationStore,
	licenses *LicenseService,
	events LoginEventRecorder,
	cfg InterruptConfig,
	logger *logger.Logger,
) *InterruptEngine {
	e := &InterruptEngine{
		users:    users,
		apps:     apps,
		grants:   grants,
		licenses: licenses,
		events:   events,
		cfg:      cfg,
		logger:   logger,
	}
	e.rules = []interruptRule{
		{name: "no_user", eval: e.ruleNoUser},
		{name: "disabled", eval: e.ruleDisabled},
		{name: "record_login", eval: e.ruleRecordLogin},
		{name: "registration_incomplete", eval: e.ruleRegistrationIncomplete},
		{name: "no_service", eval: e.ruleNoService},
		{name: "own_callback", eval: e.ruleOwnCallback},
		{name: "unknown_application", eval: e.ruleUnknownApplication},
		{name: "missing_grant", eval: e.ruleMissingGrant},
		{name: "license_not_required", eval: e.ruleLicenseNotRequired},
		{name: "verified_instructor", eval: e.ruleVerifiedInstructor},
		{name: "license_check", eval: e.ruleLicenseCheck},
		{name: "allow", eval: e.ruleAllow},
	}
	return e
}

// CheckInterrupt resolves the username (email, then UUID, then external
// subject id) and evaluates the rule list in order.
func (e *InterruptEngine) CheckInterrupt(ctx context.Context, registeredService, username string) (InterruptResult, error) {
	req := &interruptRequest{
		registeredService: registeredService,
		username:          username,
	}

	user, err := e.resolveUser(ctx, username)
	if err == nil {
		req.user = user
		req.userFound = true
	} else if !errors.Is(err, model.ErrNotFound) {
		return InterruptResult{}, err
	}

	for _, rule := range e.rules {
		result, err := rule.eval(ctx, req)
		if err != nil {
			return InterruptResult{}, fmt.Errorf("interrupt rule %s: %w", rule.name, err)
		}
		if result != nil {
			e.logger.Debug("Interrupt engine: decision reached",
				"rule", rule.name,
				"username", username,
				"service", registeredService,
				"block", result.Block)
			return *result, nil
		}
	}

	// The final rule always resolves; reaching here is a programming error.
	return InterruptResult{}, fmt.Errorf("interrupt rules exhausted for %q", username)
}

func (e *InterruptEngine) resolveUser(ctx context.Context, username string) (model.User, error) {
	user, err := e.users.GetByEmail(ctx, username)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, model.ErrNotFound) {
		return model.User{}, fmt.Errorf("failed to resolve user by email: %w", err)
	}

	if id, parseErr := uuid.Parse(username); parseErr == nil {
		user, err = e.users.GetByUUID(ctx, id)
		if err == nil {
			return user, nil
		}
		if !errors.Is(err, model.ErrNotFound) {
			return model.User{}, fmt.Errorf("failed to resolve user by uuid: %w", err)
		}
	}

	user, err = e.users.GetByExternalSubject(ctx, username)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, model.ErrNotFound) {
		return model.User{}, fmt.Errorf("failed to resolve user by external subject: %w", err)
	}

	return model.User{}, model.ErrNotFound
}

func (e *InterruptEngine) ruleNoUser(_ context.Context, req *interruptRequest) (*InterruptResult, error) {
	if req.userFound {
		return nil, nil
	}
	return block("Sorry, we can't find an account with that information."), nil
}

func (e *InterruptEngine) ruleDisabled(_ context.Context, req *interruptRequest) (*InterruptResult, error) {
	if !req.user.Disabled {
		return nil, nil
	}
	return block("This account is disabled. Please contact support for assistance."), nil
}

// ruleRecordLogin is best-effort telemetry, never a terminal outcome.
func (e *InterruptEngine) ruleRecordLogin(ctx context.Context, req *interruptRequest) (*InterruptResult, error) {
	if err := e.users.TouchLastAccess(ctx, req.user.UUID); err != nil {
		e.logger.Error("Interrupt engine: failed to update last access",
			"user_id", req.user.UUID,
			"error", err.Error())
	}
	if e.events != nil {
		if err := e.events.RecordLogin(ctx, req.user.UUID); err != nil {
			e.logger.Error("Interrupt engine: failed to record login event",
				"user_id", req.user.UUID,
				"error", err.Error())
		}
	}
	return nil, nil
}

func (e *InterruptEngine) ruleRegistrationIncomplete(_ context.Context, req *interruptRequest) (*InterruptResult, error) {
	if req.user.RegistrationComplete {
		return nil, nil
	}

	target := e.cfg.RegistrationEntryURL
	if req.registeredService != "" {
		target += "?redirectCASServiceURI=" + url.QueryEscape(req.registeredService)
	}
	return redirect("Please finish setting up your account.", target), nil
}

func (e *InterruptEngine) ruleNoService(_ context.Context, req *interruptRequest) (*InterruptResult, error) {
	if req.registeredService != "" {
		return nil, nil
	}
	return redirect("", e.cfg.MainURL), nil
}

func (e *InterruptEngine) ruleOwnCallback(_ context.Context, req *interruptRequest) (*InterruptResult, error) {
	if req.registeredService != e.cfg.CallbackURL {
		return nil, nil
	}
	return allow(), nil
}

func (e *InterruptEngine) ruleUnknownApplication(ctx context.Context, req *interruptRequest) (*InterruptResult, error) {
	app, err := e.apps.GetByCASServiceURL(ctx, req.registeredService)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return block("We don't recognize the application you are trying to access."), nil
		}
		return nil, err
	}
	req.app = app
	req.appFound = true
	return nil, nil
}

func (e *InterruptEngine) ruleMissingGrant(ctx context.Context, req *interruptRequest) (*InterruptResult, error) {
	if req.app.DefaultAccess == model.DefaultAccessAll {
		return nil, nil
	}

	granted, err := e.grants.HasGrant(ctx, req.user.UUID, req.app.ID)
	if err != nil {
		return nil, err
	}
	if granted {
		return nil, nil
	}
	return block("You don't have access to this application yet.",
		InterruptLink{Label: "Request Access", URL: e.cfg.AccessRequestURL}), nil
}

func (e *InterruptEngine) ruleLicenseNotRequired(_ context.Context, req *interruptRequest) (*InterruptResult, error) {
	if e.cfg.EnforceLicenses && req.app.RequiresLicense {
		return nil, nil
	}
	return allow(), nil
}

func (e *InterruptEngine) ruleVerifiedInstructor(_ context.Context, req *interruptRequest) (*InterruptResult, error) {
	if !req.user.IsVerifiedInstructor() {
		return nil, nil
	}
	return allow(), nil
}

func (e *InterruptEngine) ruleLicenseCheck(ctx context.Context, req *interruptRequest) (*InterruptResult, error) {
	status, err := e.licenses.CheckAccess(ctx, req.user.UUID, req.app.ID)
	if err != nil {
		return nil, err
	}
	if status.State == model.LicenseActive {
		return nil, nil
	}

	q := url.Values{}
	q.Set("app_id", fmt.Sprintf("%d", req.app.ID))
	q.Set("redirect_uri", req.registeredService)
	if status.State == model.LicenseExpired {
		if status.WasTrial {
			q.Set("expired_type", "trial")
		} else {
			q.Set("expired_type", "license")
		}
	}
	return redirect("A license is required for this application.", e.cfg.TrialURL+"?"+q.Encode()), nil
}

func (e *InterruptEngine) ruleAllow(context.Context, *interruptRequest) (*InterruptResult, error) {
	return allow(), nil
}

package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"net/url"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/ksuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/libreone/libreone-server/internal/cas"
	"github.com/libreone/libreone-server/internal/events"
	"github.com/libreone/libreone-server/internal/logger"
	"github.com/libreone/libreone-server/internal/model"
	"github.com/libreone/libreone-server/internal/notify"
	"github.com/libreone/libreone-server/internal/token"
)

// AuthConfig carries the auth service's fixed parameters.
type AuthConfig struct {
	// CanonicalURL is the service's own public URL.
	CanonicalURL string
	// RegistrationCompleteURL is the default landing page after
	// registration when nothing was stashed.
	RegistrationCompleteURL string
	// ResetPasswordURL is the base of the password reset deep link.
	ResetPasswordURL string
	// VerifyEmailURL is the base of the verification deep link mailed
	// alongside the code; the token is appended as a query parameter.
	VerifyEmailURL string
	// ADAPTDeepLinkURL is the partner deep link base; a partner login
	// token is appended when ADAPT returns one.
	ADAPTDeepLinkURL string
}

// Auth orchestrates registration, email verification, registration
// completion, password recovery and back-channel logout.
type Auth struct {
	users         model.UserStore
	verifications model.EmailVerificationStore
	resetTokens   model.ResetPasswordTokenStore
	apps          model.ApplicationStore
	grants        model.UserApplicationStore
	sessions      *SessionService
	sessionTokens *token.SessionManager
	ssoMinter     *token.SSOAssertionMinter
	emitter       *events.Emitter
	notifiers     []notify.Notifier
	mailer        model.Mailer
	cfg           AuthConfig
	logger        *logger.Logger
}

func NewAuth(
	users model.UserStore,
	verifications model.EmailVerificationStore,
	resetTokens model.ResetPasswordTokenStore,
	apps model.ApplicationStore,
	grants model.UserApplicationStore,
	sessions *SessionService,
	sessionTokens *token.SessionManager,
	ssoMinter *token.SSOAssertionMinter,
	emitter *events.Emitter,
	notifiers []notify.Notifier,
	mailer model.Mailer,
	cfg AuthConfig,
	logger *logger.Logger,
) *Auth {
	return &Auth{
		users:         users,
		verifications: verifications,
		resetTokens:   resetTokens,
		apps:          apps,
		grants:        grants,
		sessions:      sessions,
		sessionTokens: sessionTokens,
		ssoMinter:     ssoMinter,
		emitter:       emitter,
		notifiers:     notifiers,
		mailer:        mailer,
		cfg:           cfg,
		logger:        logger,
	}
}

// Register creates a disabled placeholder user pending email proof and
// issues the verification. A duplicate email is a conflict, not a
// validation failure. No session is created yet.
func (a *Auth) Register(ctx context.Context, email, password string) (uuid.UUID, error) {
	a.logger.Debug("Auth service: starting registration",
		"email", email)

	existing, err := a.users.GetByEmail(ctx, email)
	if err != nil && !errors.Is(err, model.ErrNotFound) {
		return uuid.Nil, fmt.Errorf("failed to get user by email: %w", err)
	}
	if existing.UUID != uuid.Nil {
		a.logger.Info("Auth service: email already registered",
			"email", email)
		return uuid.Nil, model.ErrEmailTaken
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to hash password: %w", err)
	}
	hashedStr := string(hashed)

	now := time.Now()
	user := model.User{
		UUID:         uuid.New(),
		Email:        email,
		Password:     &hashedStr,
		FirstName:    "LibreOne",
		LastName:     "User",
		Disabled:     true,
		VerifyStatus: model.VerifyNotAttempted,
		UserType:     model.UserTypeStudent,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	created, err := a.users.Create(ctx, user)
	if err != nil {
		a.logger.Error("Auth service: failed to create user",
			"email", email,
			"error", err.Error())
		return uuid.Nil, fmt.Errorf("failed to create user: %w", err)
	}

	if err := a.issueVerification(ctx, created.UUID, email); err != nil {
		return uuid.Nil, err
	}

	a.logger.Info("Auth service: registration started",
		"email", email,
		"user_id", created.UUID)

	return created.UUID, nil
}

// issueVerification replaces any active verification for the user/email
// pair and mails the new code.
func (a *Auth) issueVerification(ctx context.Context, userID uuid.UUID, email string) error {
	code, err := sixDigitCode()
	if err != nil {
		return fmt.Errorf("failed to generate verification code: %w", err)
	}

	verification := model.EmailVerification{
		UserID:    userID,
		Email:     email,
		Code:      code,
		Token:     ksuid.New().String(),
		ExpiresAt: time.Now().Add(model.EmailVerificationTTL),
	}

	if err := a.verifications.Replace(ctx, verification); err != nil {
		return fmt.Errorf("failed to store verification: %w", err)
	}

	verifyLink := a.cfg.VerifyEmailURL + "?token=" + verification.Token
	if err := a.mailer.SendVerificationCode(ctx, email, code, verifyLink); err != nil {
		a.logger.Error("Auth service: failed to send verification mail",
			"email", email,
			"error", err.Error())
	}

	return nil
}

// VerifyRegistrationEmail proves the address, enables the user and opens a
// short-lived provisional session: the account is not fully onboarded yet.
func (a *Auth) VerifyRegistrationEmail(ctx context.Context, email, code string) (model.User, model.Session, string, error) {
	a.logger.Debug("Auth service: verifying registration email",
		"email", email)

	verification, err := a.verifications.GetByEmailAndCode(ctx, email, code)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return model.User{}, model.Session{}, "", model.ErrWrongCredentials
		}
		return model.User{}, model.Session{}, "", fmt.Errorf("failed to get verification: %w", err)
	}

	if verification.Expired(time.Now()) {
		_ = a.verifications.Delete(ctx, verification.UserID, verification.Email)
		return model.User{}, model.Session{}, "", model.ErrTokenExpired
	}

	return a.redeemVerification(ctx, verification)
}

// VerifyRegistrationByToken proves the address through the mailed link
// token instead of the code. An unknown token is rejected as invalid, not
// as not-found, so the endpoint leaks nothing about issued tokens.
func (a *Auth) VerifyRegistrationByToken(ctx context.Context, verifyToken string) (model.User, model.Session, string, error) {
	verification, err := a.verifications.GetByToken(ctx, verifyToken)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return model.User{}, model.Session{}, "", model.ErrTokenInvalid
		}
		return model.User{}, model.Session{}, "", fmt.Errorf("failed to get verification: %w", err)
	}

	if verification.Expired(time.Now()) {
		_ = a.verifications.Delete(ctx, verification.UserID, verification.Email)
		return model.User{}, model.Session{}, "", model.ErrTokenExpired
	}

	return a.redeemVerification(ctx, verification)
}

// redeemVerification enables the user behind a live verification and opens
// the provisional session. The verification is consumed either way.
func (a *Auth) redeemVerification(ctx context.Context, verification model.EmailVerification) (model.User, model.Session, string, error) {
	user, err := a.users.GetByUUID(ctx, verification.UserID)
	if err != nil {
		return model.User{}, model.Session{}, "", fmt.Errorf("failed to get user: %w", err)
	}

	user.Disabled = false
	user.DisabledReason = nil
	user.DisabledDate = nil
	user, err = a.users.Update(ctx, user)
	if err != nil {
		return model.User{}, model.Session{}, "", fmt.Errorf("failed to enable user: %w", err)
	}

	if err := a.verifications.Delete(ctx, user.UUID, verification.Email); err != nil {
		a.logger.Error("Auth service: failed to delete verification",
			"user_id", user.UUID,
			"error", err.Error())
	}

	session, err := a.sessions.Create(ctx, user.UUID.String(), nil, model.ProvisionalSessionTTL)
	if err != nil {
		return model.User{}, model.Session{}, "", err
	}

	sessionToken, err := a.sessionTokens.CreateSessionToken(user.UUID, session.ID)
	if err != nil {
		return model.User{}, model.Session{}, "", err
	}

	a.logger.Info("Auth service: registration email verified",
		"email", verification.Email,
		"user_id", user.UUID)

	return user, session, sessionToken, nil
}

// CompleteRegistrationInput carries the request-scoped state relevant to
// the final redirect decision.
type CompleteRegistrationInput struct {
	UserID uuid.UUID
	// Source names a partner integration that initiated registration.
	Source    string
	AdaptRole string
	// StashedCASService is a CAS service redirect stashed before
	// registration started.
	StashedCASService string
	// PostRegisterRedirect is the post_register_service_url cookie value.
	PostRegisterRedirect string
}

// CompleteRegistrationResult is the final redirect plus the SSO assertion
// when a new SSO session must be established.
type CompleteRegistrationResult struct {
	RedirectURI  string
	SSOAssertion string
}

// CompleteRegistration marks the account complete, grants default-access
// applications, emits user:created, notifies partners concurrently and
// independently, and resolves the final redirect with the precedence:
// stashed CAS service first (no new SSO session), then the post-register
// cookie (forcing SSO), then the default page or a partner deep link.
func (a *Auth) CompleteRegistration(ctx context.Context, in CompleteRegistrationInput) (CompleteRegistrationResult, error) {
	a.logger.Debug("Auth service: completing registration",
		"user_id", in.UserID)

	user, err := a.users.GetByUUID(ctx, in.UserID)
	if err != nil {
		return CompleteRegistrationResult{}, fmt.Errorf("failed to get user: %w", err)
	}

	user.RegistrationComplete = true
	user, err = a.users.Update(ctx, user)
	if err != nil {
		return CompleteRegistrationResult{}, fmt.Errorf("failed to mark registration complete: %w", err)
	}

	if err := a.grantDefaultApplications(ctx, user.UUID); err != nil {
		a.logger.Error("Auth service: failed to grant default applications",
			"user_id", user.UUID,
			"error", err.Error())
	}

	a.emitter.Emit(ctx, model.EventUserCreated, map[string]any{
		"uuid":  user.UUID.String(),
		"email": user.Email,
	})

	results := notify.Fanout(ctx, a.logger, user, in.AdaptRole, a.notifiers...)

	redirectURI, assertion, err := a.resolveCompletionRedirect(user, in, results)
	if err != nil {
		return CompleteRegistrationResult{}, err
	}

	a.logger.Info("Auth service: registration completed",
		"user_id", user.UUID,
		"redirect", redirectURI)

	return CompleteRegistrationResult{RedirectURI: redirectURI, SSOAssertion: assertion}, nil
}

func (a *Auth) grantDefaultApplications(ctx context.Context, userID uuid.UUID) error {
	apps, err := a.apps.ListDefaultAccessAll(ctx)
	if err != nil {
		return err
	}
	for _, app := range apps {
		if err := a.grants.Grant(ctx, userID, app.ID); err != nil {
			return err
		}
	}
	return nil
}

func (a *Auth) resolveCompletionRedirect(user model.User, in CompleteRegistrationInput, results []notify.Result) (string, string, error) {
	// A CAS service stashed before registration wins outright; the CAS
	// round-trip will establish the session, so no new one is minted here.
	if in.StashedCASService != "" {
		return in.StashedCASService, "", nil
	}

	if in.PostRegisterRedirect != "" {
		assertion, err := a.ssoMinter.Mint(user.UUID)
		if err != nil {
			return "", "", fmt.Errorf("failed to mint sso assertion: %w", err)
		}
		return in.PostRegisterRedirect, assertion, nil
	}

	if in.Source == "adapt" && a.cfg.ADAPTDeepLinkURL != "" {
		for _, r := range results {
			if r.Target == "adapt" && r.Err == nil && r.LoginToken != "" {
				return a.cfg.ADAPTDeepLinkURL + "?login_token=" + url.QueryEscape(r.LoginToken), "", nil
			}
		}
	}

	return a.cfg.RegistrationCompleteURL, "", nil
}

// InitPasswordRecovery issues a one-time reset token. An unknown email is a
// silent no-op so account existence is not leaked.
func (a *Auth) InitPasswordRecovery(ctx context.Context, email string) error {
	user, err := a.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			a.logger.Info("Auth service: password recovery for unknown email",
				"email", email)
			return nil
		}
		return fmt.Errorf("failed to get user by email: %w", err)
	}

	if err := a.resetTokens.DeleteByUser(ctx, user.UUID); err != nil {
		a.logger.Error("Auth service: failed to clear prior reset tokens",
			"user_id", user.UUID,
			"error", err.Error())
	}

	tokenValue, err := randomHex(32)
	if err != nil {
		return fmt.Errorf("failed to generate reset token: %w", err)
	}

	reset := model.ResetPasswordToken{
		Token:     tokenValue,
		UserID:    user.UUID,
		ExpiresAt: time.Now().Add(model.ResetPasswordTokenTTL).Unix(),
	}
	if err := a.resetTokens.Create(ctx, reset); err != nil {
		return fmt.Errorf("failed to create reset token: %w", err)
	}

	resetLink := a.cfg.ResetPasswordURL + "?token=" + url.QueryEscape(tokenValue)
	if err := a.mailer.SendPasswordReset(ctx, email, resetLink); err != nil {
		a.logger.Error("Auth service: failed to send reset mail",
			"email", email,
			"error", err.Error())
	}

	a.logger.Info("Auth service: password recovery initiated",
		"user_id", user.UUID)

	return nil
}

// CompletePasswordRecovery consumes the token and sets the new password.
// The token is destroyed on use and on expiry detection.
func (a *Auth) CompletePasswordRecovery(ctx context.Context, tokenValue, newPassword string) error {
	reset, err := a.resetTokens.GetByToken(ctx, tokenValue)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return model.ErrTokenInvalid
		}
		return fmt.Errorf("failed to get reset token: %w", err)
	}

	if reset.Expired(time.Now()) {
		_ = a.resetTokens.Delete(ctx, tokenValue)
		return model.ErrTokenExpired
	}

	user, err := a.users.GetByUUID(ctx, reset.UserID)
	if err != nil {
		return fmt.Errorf("failed to get user: %w", err)
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}
	hashedStr := string(hashed)
	user.Password = &hashedStr

	if _, err := a.users.Update(ctx, user); err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}

	if err := a.resetTokens.Delete(ctx, tokenValue); err != nil {
		a.logger.Error("Auth service: failed to delete used reset token",
			"user_id", user.UUID,
			"error", err.Error())
	}

	a.logger.Info("Auth service: password recovery completed",
		"user_id", user.UUID)

	return nil
}

// HandleBackChannelSLO invalidates the single session correlated with the
// logout notice's ticket. No match is an idempotent no-op: existence must
// not leak to the caller.
func (a *Auth) HandleBackChannelSLO(ctx context.Context, payload string) error {
	notice, err := cas.ParseLogoutRequest(payload)
	if err != nil {
		return err
	}

	user, err := a.resolveSLOUser(ctx, notice.NameID)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			a.logger.Info("Auth service: SLO for unknown principal",
				"name_id", notice.NameID)
			return nil
		}
		return err
	}

	if err := a.sessions.InvalidateByTicket(ctx, notice.SessionIndex, user.UUID); err != nil {
		return err
	}

	a.logger.Info("Auth service: back-channel logout processed",
		"user_id", user.UUID,
		"ticket", notice.SessionIndex)

	return nil
}

func (a *Auth) resolveSLOUser(ctx context.Context, nameID string) (model.User, error) {
	if id, err := uuid.Parse(nameID); err == nil {
		user, err := a.users.GetByUUID(ctx, id)
		if err == nil {
			return user, nil
		}
		if !errors.Is(err, model.ErrNotFound) {
			return model.User{}, fmt.Errorf("failed to resolve SLO user by uuid: %w", err)
		}
	}

	user, err := a.users.GetByEmail(ctx, nameID)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return model.User{}, model.ErrNotFound
		}
		return model.User{}, fmt.Errorf("failed to resolve SLO user by email: %w", err)
	}
	return user, nil
}

func sixDigitCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1000000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}

func randomHex(bytes int) (string, error) {
	buf := make([]byte, bytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

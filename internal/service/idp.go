package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/lestrrat-go/jwx/v2/jwk"
	jwxjwt "github.com/lestrrat-go/jwx/v2/jwt"

	"github.com/libreone/libreone-server/internal/events"
	"github.com/libreone/libreone-server/internal/logger"
	"github.com/libreone/libreone-server/internal/model"
)

// idpProvider describes a supported external identity provider.
type idpProvider struct {
	DiscoveryURL string
	EmailClaim   string
	IDPName      string
}

var idpProviders = map[string]idpProvider{
	"google": {
		DiscoveryURL: "https://accounts.google.com/.well-known/openid-configuration",
		EmailClaim:   "email",
		IDPName:      "google-workspace",
	},
	"microsoft": {
		DiscoveryURL: "https://login.microsoftonline.com/common/v2.0/.well-known/openid-configuration",
		EmailClaim:   "preferred_username",
		IDPName:      "microsoft-ad",
	},
}

// ErrUnknownProvider is returned for client names with no configured IdP.
var ErrUnknownProvider = errors.New("unknown identity provider")

type discoveryDocument struct {
	Issuer  string `json:"issuer"`
	JWKSURI string `json:"jwks_uri"`
}

// ExternalIdP verifies third-party OIDC assertions and materializes local
// user records for a subsequent CAS ticket issuance. It never creates a
// session itself.
type ExternalIdP struct {
	users    model.UserStore
	emitter  *events.Emitter
	audience string
	client   *http.Client
	logger   *logger.Logger

	mu        sync.Mutex
	discovery map[string]discoveryDocument
}

func NewExternalIdP(users model.UserStore, emitter *events.Emitter, audience string, logger *logger.Logger) *ExternalIdP {
	return &ExternalIdP{
		users:     users,
		emitter:   emitter,
		audience:  audience,
		client:    &http.Client{Timeout: 10 * time.Second},
		logger:    logger,
		discovery: make(map[string]discoveryDocument),
	}
}

// CreateUserFromExternalIdP verifies the assertion against the named
// provider's JWKS and upserts a user matched by external subject id or
// email. Created users fire user:created, updated ones user:updated.
func (s *ExternalIdP) CreateUserFromExternalIdP(ctx context.Context, clientName, assertion string) (model.User, error) {
	provider, ok := idpProviders[clientName]
	if !ok {
		return model.User{}, ErrUnknownProvider
	}

	doc, err := s.discover(ctx, clientName, provider)
	if err != nil {
		return model.User{}, err
	}

	keySet, err := jwk.Fetch(ctx, doc.JWKSURI)
	if err != nil {
		return model.User{}, fmt.Errorf("failed to fetch provider jwks: %w", err)
	}

	tok, err := jwxjwt.Parse([]byte(assertion),
		jwxjwt.WithKeySet(keySet),
		jwxjwt.WithIssuer(doc.Issuer),
		jwxjwt.WithAudience(s.audience),
		jwxjwt.WithValidate(true),
	)
	if err != nil {
		s.logger.Info("IdP service: assertion rejected",
			"provider", clientName,
			"error", err.Error())
		return model.User{}, model.ErrTokenInvalid
	}

	subjectID := tok.Subject()
	if subjectID == "" {
		return model.User{}, model.ErrTokenInvalid
	}

	email := stringClaim(tok, provider.EmailClaim)
	if email == "" {
		return model.User{}, model.ErrTokenInvalid
	}

	givenName, familyName := deriveNames(
		stringClaim(tok, "given_name"),
		stringClaim(tok, "family_name"),
		stringClaim(tok, "name"),
	)

	return s.upsert(ctx, provider.IDPName, subjectID, email, givenName, familyName)
}

func (s *ExternalIdP) discover(ctx context.Context, clientName string, provider idpProvider) (discoveryDocument, error) {
	s.mu.Lock()
	doc, cached := s.discovery[clientName]
	s.mu.Unlock()
	if cached {
		return doc, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, provider.DiscoveryURL, nil)
	if err != nil {
		return discoveryDocument{}, fmt.Errorf("failed to build discovery request: %w", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return discoveryDocument{}, fmt.Errorf("failed to fetch discovery document: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return discoveryDocument{}, fmt.Errorf("discovery responded with status %d", resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return discoveryDocument{}, fmt.Errorf("failed to decode discovery document: %w", err)
	}
	if doc.Issuer == "" || doc.JWKSURI == "" {
		return discoveryDocument{}, fmt.Errorf("discovery document for %s is incomplete", clientName)
	}

	s.mu.Lock()
	s.discovery[clientName] = doc
	s.mu.Unlock()

	return doc, nil
}

func (s *ExternalIdP) upsert(ctx context.Context, idpName, subjectID, email, givenName, familyName string) (model.User, error) {
	user, err := s.users.GetByExternalSubject(ctx, subjectID)
	if errors.Is(err, model.ErrNotFound) {
		user, err = s.users.GetByEmail(ctx, email)
	}
	if err != nil && !errors.Is(err, model.ErrNotFound) {
		return model.User{}, fmt.Errorf("failed to look up federated user: %w", err)
	}

	if errors.Is(err, model.ErrNotFound) {
		now := time.Now()
		user = model.User{
			UUID:              uuid.New(),
			Email:             email,
			FirstName:         givenName,
			LastName:          familyName,
			ExternalIDP:       &idpName,
			ExternalSubjectID: &subjectID,
			VerifyStatus:      model.VerifyNotAttempted,
			UserType:          model.UserTypeStudent,
			CreatedAt:         now,
			UpdatedAt:         now,
		}
		created, err := s.users.Create(ctx, user)
		if err != nil {
			return model.User{}, fmt.Errorf("failed to create federated user: %w", err)
		}

		s.emitter.Emit(ctx, model.EventUserCreated, map[string]any{
			"uuid":  created.UUID.String(),
			"email": created.Email,
		})

		s.logger.Info("IdP service: federated user created",
			"provider", idpName,
			"user_id", created.UUID)

		return created, nil
	}

	user.Email = email
	user.FirstName = givenName
	user.LastName = familyName
	user.ExternalIDP = &idpName
	user.ExternalSubjectID = &subjectID

	updated, err := s.users.Update(ctx, user)
	if err != nil {
		return model.User{}, fmt.Errorf("failed to update federated user: %w", err)
	}

	s.emitter.Emit(ctx, model.EventUserUpdated, map[string]any{
		"uuid":  updated.UUID.String(),
		"email": updated.Email,
	})

	s.logger.Info("IdP service: federated user updated",
		"provider", idpName,
		"user_id", updated.UUID)

	return updated, nil
}

func stringClaim(tok jwxjwt.Token, name string) string {
	v, ok := tok.Get(name)
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}

// deriveNames prefers explicit given/family claims, falling back to
// splitting a combined name on the first space.
func deriveNames(given, family, combined string) (string, string) {
	if given != "" || family != "" {
		return given, family
	}
	if combined == "" {
		return "", ""
	}
	parts := strings.SplitN(combined, " ", 2)
	if len(parts) == 1 {
		return parts[0], ""
	}
	return parts[0], parts[1]
}

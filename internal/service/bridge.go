package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/libreone/libreone-server/internal/keys"
	"github.com/libreone/libreone-server/internal/logger"
	"github.com/libreone/libreone-server/internal/model"
)

// BridgeClaims are the profile claims embedded in a CAS-bridge token.
type BridgeClaims struct {
	jwt.RegisteredClaims
	Email     string `json:"email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Verified  bool   `json:"verified"`
}

// BridgeResult is an issued bridge token plus the cookie markers the
// handler should set alongside it.
type BridgeResult struct {
	Token string
	KeyID string
	// Authorized marks explicit access to the requesting library.
	Authorized bool
	// Unverified marks an instructor whose identity check is pending.
	Unverified bool
}

// Bridge issues short-lived asymmetrically-signed tokens letting embedded
// library apps establish trust without a full CAS redirect round-trip. Key
// material comes from the injected provider, which caches after one fetch.
type Bridge struct {
	users  model.UserStore
	apps   model.ApplicationStore
	grants model.UserApplicationStore
	keys   keys.Provider
	issuer string
	logger *logger.Logger
}

func NewBridge(
	users model.UserStore,
	apps model.ApplicationStore,
	grants model.UserApplicationStore,
	keyProvider keys.Provider,
	issuer string,
	logger *logger.Logger,
) *Bridge {
	return &Bridge{
		users:  users,
		apps:   apps,
		grants: grants,
		keys:   keyProvider,
		issuer: issuer,
		logger: logger,
	}
}

// IssueToken resolves the principal (uuid first, external-subject-id as
// fallback) and signs a 7-day bridge token for the requesting library.
func (b *Bridge) IssueToken(ctx context.Context, principal string, libraryID int64) (BridgeResult, error) {
	user, err := b.resolvePrincipal(ctx, principal)
	if err != nil {
		return BridgeResult{}, err
	}

	library, err := b.apps.GetByID(ctx, libraryID)
	if err != nil {
		return BridgeResult{}, fmt.Errorf("failed to get library: %w", err)
	}
	if library.AppType != model.AppTypeLibrary {
		return BridgeResult{}, model.ErrForbidden
	}

	material, err := b.keys.Material(ctx)
	if err != nil {
		return BridgeResult{}, fmt.Errorf("failed to load bridge keys: %w", err)
	}

	privateKey, err := jwt.ParseRSAPrivateKeyFromPEM([]byte(material.PrivateKeyPEM))
	if err != nil {
		return BridgeResult{}, fmt.Errorf("failed to parse bridge signing key: %w", err)
	}

	now := time.Now()
	tok := jwt.NewWithClaims(jwt.SigningMethodRS256, BridgeClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.UUID.String(),
			Issuer:    b.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(model.SessionDuration)),
		},
		Email:     user.Email,
		FirstName: user.FirstName,
		LastName:  user.LastName,
		Verified:  user.VerifyStatus == model.VerifyVerified,
	})
	tok.Header["kid"] = material.KeyID

	signed, err := tok.SignedString(privateKey)
	if err != nil {
		return BridgeResult{}, fmt.Errorf("failed to sign bridge token: %w", err)
	}

	authorized := library.DefaultAccess == model.DefaultAccessAll
	if !authorized {
		authorized, err = b.grants.HasGrant(ctx, user.UUID, library.ID)
		if err != nil {
			return BridgeResult{}, fmt.Errorf("failed to check library grant: %w", err)
		}
	}

	unverified := user.UserType == model.UserTypeInstructor && user.VerifyStatus != model.VerifyVerified

	b.logger.Info("Bridge service: token issued",
		"user_id", user.UUID,
		"library_id", library.ID,
		"authorized", authorized)

	return BridgeResult{
		Token:      signed,
		KeyID:      material.KeyID,
		Authorized: authorized,
		Unverified: unverified,
	}, nil
}

func (b *Bridge) resolvePrincipal(ctx context.Context, principal string) (model.User, error) {
	if id, err := uuid.Parse(principal); err == nil {
		user, err := b.users.GetByUUID(ctx, id)
		if err == nil {
			return user, nil
		}
		if !errors.Is(err, model.ErrNotFound) {
			return model.User{}, fmt.Errorf("failed to resolve principal by uuid: %w", err)
		}
	}

	user, err := b.users.GetByExternalSubject(ctx, principal)
	if err != nil {
		return model.User{}, fmt.Errorf("failed to resolve principal: %w", err)
	}
	return user, nil
}

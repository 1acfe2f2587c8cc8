package service

import (
	"context"
	"fmt"
	"io"

	"github.com/google/uuid"

	"github.com/libreone/libreone-server/internal/events"
	"github.com/libreone/libreone-server/internal/logger"
	"github.com/libreone/libreone-server/internal/model"
)

// Profile manages user-editable account data and the avatar object.
type Profile struct {
	users   model.UserStore
	avatars model.Storage
	emitter *events.Emitter
	logger  *logger.Logger
}

func NewProfile(users model.UserStore, avatars model.Storage, emitter *events.Emitter, logger *logger.Logger) *Profile {
	return &Profile{
		users:   users,
		avatars: avatars,
		emitter: emitter,
		logger:  logger,
	}
}

// UpdateProfileInput carries optional field updates; nil means unchanged.
type UpdateProfileInput struct {
	FirstName *string
	LastName  *string
	UserType  *model.UserType
}

func (s *Profile) Get(ctx context.Context, userID uuid.UUID) (model.User, error) {
	user, err := s.users.GetByUUID(ctx, userID)
	if err != nil {
		return model.User{}, fmt.Errorf("failed to get user: %w", err)
	}
	return user, nil
}

func (s *Profile) Update(ctx context.Context, userID uuid.UUID, input UpdateProfileInput) (model.User, error) {
	user, err := s.users.GetByUUID(ctx, userID)
	if err != nil {
		return model.User{}, fmt.Errorf("failed to get user: %w", err)
	}

	if input.FirstName != nil {
		user.FirstName = *input.FirstName
	}
	if input.LastName != nil {
		user.LastName = *input.LastName
	}
	if input.UserType != nil {
		user.UserType = *input.UserType
	}

	updated, err := s.users.Update(ctx, user)
	if err != nil {
		return model.User{}, fmt.Errorf("failed to update user: %w", err)
	}

	s.emitter.Emit(ctx, model.EventUserUpdated, map[string]any{
		"uuid":  updated.UUID.String(),
		"email": updated.Email,
	})

	return updated, nil
}

// SetAvatar stores the image and records the object key on the user. A
// previous avatar object is removed after the new one is in place.
func (s *Profile) SetAvatar(ctx context.Context, userID uuid.UUID, image io.Reader) (model.User, error) {
	user, err := s.users.GetByUUID(ctx, userID)
	if err != nil {
		return model.User{}, fmt.Errorf("failed to get user: %w", err)
	}

	key := fmt.Sprintf("avatars/%s/%s", user.UUID, uuid.NewString())
	if err := s.avatars.Upload(ctx, key, image); err != nil {
		return model.User{}, fmt.Errorf("failed to upload avatar: %w", err)
	}

	previous := user.AvatarKey
	user.AvatarKey = &key

	updated, err := s.users.Update(ctx, user)
	if err != nil {
		return model.User{}, fmt.Errorf("failed to update user: %w", err)
	}

	if previous != nil && *previous != "" {
		if err := s.avatars.Delete(ctx, *previous); err != nil {
			s.logger.Error("profile service: failed to delete previous avatar",
				"user_id", user.UUID,
				"error", err.Error())
		}
	}

	return updated, nil
}

func (s *Profile) GetAvatar(ctx context.Context, userID uuid.UUID) (io.ReadCloser, error) {
	user, err := s.users.GetByUUID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	if user.AvatarKey == nil || *user.AvatarKey == "" {
		return nil, model.ErrNotFound
	}

	reader, err := s.avatars.Download(ctx, *user.AvatarKey)
	if err != nil {
		return nil, fmt.Errorf("failed to download avatar: %w", err)
	}
	return reader, nil
}

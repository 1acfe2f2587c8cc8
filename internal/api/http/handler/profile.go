package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/libreone/libreone-server/internal/api/http/middleware"
	"github.com/libreone/libreone-server/internal/logger"
	"github.com/libreone/libreone-server/internal/model"
	"github.com/libreone/libreone-server/internal/service"
)

// maxAvatarBytes caps avatar uploads.
const maxAvatarBytes = 5 << 20

// Profile serves the authenticated user's own account data.
type Profile struct {
	profiles *service.Profile
	logger   *logger.Logger
}

func NewProfile(profiles *service.Profile, logger *logger.Logger) *Profile {
	return &Profile{profiles: profiles, logger: logger}
}

// authorize resolves the principal and checks its role against the profile
// resource. Every role reaches its own profile today; the check still runs
// through the decision table so narrower roles stay enforceable.
func (h *Profile) authorize(w http.ResponseWriter, r *http.Request, action service.Action) (middleware.Principal, bool) {
	principal, ok := middleware.PrincipalFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "session_invalid", "Authentication required", "")
		return middleware.Principal{}, false
	}
	if !service.Permits(principal.Role, action, service.Resource{Kind: service.ResourceOwnProfile}) {
		writeError(w, http.StatusForbidden, "forbidden", "Profile access denied", "")
		return middleware.Principal{}, false
	}
	return principal, true
}

type profileResponse struct {
	UUID         string  `json:"uuid"`
	Email        string  `json:"email"`
	FirstName    string  `json:"first_name"`
	LastName     string  `json:"last_name"`
	UserType     string  `json:"user_type"`
	VerifyStatus string  `json:"verify_status"`
	AvatarKey    *string `json:"avatar_key,omitempty"`
}

func toProfileResponse(user model.User) profileResponse {
	return profileResponse{
		UUID:         user.UUID.String(),
		Email:        user.Email,
		FirstName:    user.FirstName,
		LastName:     user.LastName,
		UserType:     string(user.UserType),
		VerifyStatus: string(user.VerifyStatus),
		AvatarKey:    user.AvatarKey,
	}
}

func (h *Profile) Get(w http.ResponseWriter, r *http.Request) {
	principal, ok := h.authorize(w, r, service.ActionRead)
	if !ok {
		return
	}

	user, err := h.profiles.Get(r.Context(), principal.UserID)
	if err != nil {
		h.logger.Error("failed to load profile", "error", err.Error())
		writeError(w, http.StatusInternalServerError, "internal", "Internal server error", "")
		return
	}

	writeJSON(w, http.StatusOK, toProfileResponse(user))
}

type updateProfileRequest struct {
	FirstName *string `json:"first_name"`
	LastName  *string `json:"last_name"`
	UserType  *string `json:"user_type"`
}

func (h *Profile) Update(w http.ResponseWriter, r *http.Request) {
	principal, ok := h.authorize(w, r, service.ActionWrite)
	if !ok {
		return
	}

	var req updateProfileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "Malformed request body", "")
		return
	}

	input := service.UpdateProfileInput{
		FirstName: req.FirstName,
		LastName:  req.LastName,
	}
	if req.UserType != nil {
		ut := model.UserType(*req.UserType)
		if ut != model.UserTypeStudent && ut != model.UserTypeInstructor {
			writeError(w, http.StatusBadRequest, "bad_request", "Unknown user type", "")
			return
		}
		input.UserType = &ut
	}

	user, err := h.profiles.Update(r.Context(), principal.UserID, input)
	if err != nil {
		h.logger.Error("failed to update profile", "error", err.Error())
		writeError(w, http.StatusInternalServerError, "internal", "Internal server error", "")
		return
	}

	writeJSON(w, http.StatusOK, toProfileResponse(user))
}

func (h *Profile) UploadAvatar(w http.ResponseWriter, r *http.Request) {
	principal, ok := h.authorize(w, r, service.ActionWrite)
	if !ok {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxAvatarBytes)
	if err := r.ParseMultipartForm(maxAvatarBytes); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "Expected a multipart avatar upload", "")
		return
	}
	file, _, err := r.FormFile("avatar")
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "Missing avatar file", "")
		return
	}
	defer file.Close()

	user, err := h.profiles.SetAvatar(r.Context(), principal.UserID, file)
	if err != nil {
		h.logger.Error("failed to store avatar", "error", err.Error())
		writeError(w, http.StatusInternalServerError, "internal", "Internal server error", "")
		return
	}

	writeJSON(w, http.StatusOK, toProfileResponse(user))
}

func (h *Profile) GetAvatar(w http.ResponseWriter, r *http.Request) {
	principal, ok := h.authorize(w, r, service.ActionRead)
	if !ok {
		return
	}

	reader, err := h.profiles.GetAvatar(r.Context(), principal.UserID)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			writeError(w, http.StatusNotFound, "not_found", "No avatar set", "")
			return
		}
		h.logger.Error("failed to load avatar", "error", err.Error())
		writeError(w, http.StatusInternalServerError, "internal", "Internal server error", "")
		return
	}
	defer reader.Close()

	w.Header().Set("Content-Type", "application/octet-stream")
	if _, err := io.Copy(w, reader); err != nil {
		h.logger.Error("failed to stream avatar", "error", err.Error())
	}
}

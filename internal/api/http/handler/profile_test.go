package handler

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/libreone/libreone-server/internal/api/http/middleware"
	"github.com/libreone/libreone-server/internal/events"
	"github.com/libreone/libreone-server/internal/mocks"
	"github.com/libreone/libreone-server/internal/model"
	"github.com/libreone/libreone-server/internal/service"
	"github.com/libreone/libreone-server/internal/testutil"
)

type profileHandlerFixture struct {
	users   *mocks.MockUserStore
	handler *Profile
}

func newProfileHandlerFixture(t *testing.T) *profileHandlerFixture {
	t.Helper()

	f := &profileHandlerFixture{users: &mocks.MockUserStore{}}

	logger := testutil.MakeNoopLogger()
	subscribers := &mocks.MockEventSubscriberStore{}
	subscribers.On("ListForEvent", mock.Anything, mock.Anything).Return([]model.EventSubscriber(nil), nil)

	profiles := service.NewProfile(
		f.users, &mocks.MockStorage{},
		events.NewEmitter(subscribers, "https://one.example.org", logger),
		logger,
	)
	f.handler = NewProfile(profiles, logger)
	return f
}

func asPrincipal(r *http.Request, p middleware.Principal) *http.Request {
	return r.WithContext(middleware.WithPrincipal(r.Context(), p))
}

func TestProfile_Get(t *testing.T) {
	f := newProfileHandlerFixture(t)
	userID := uuid.New()

	f.users.On("GetByUUID", mock.Anything, userID).Return(model.User{
		UUID:      userID,
		Email:     "a@x.org",
		FirstName: "Ada",
		UserType:  model.UserTypeInstructor,
	}, nil)

	r := asPrincipal(httptest.NewRequest(http.MethodGet, "/api/v1/users/me", nil), middleware.Principal{
		UserID: userID,
		Role:   service.Member(),
	})
	w := httptest.NewRecorder()

	f.handler.Get(w, r)

	assert.Equal(t, http.StatusOK, w.Code)
	var body map[string]any
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	assert.Equal(t, "a@x.org", body["email"])
	assert.Equal(t, "Ada", body["first_name"])
}

func TestProfile_Get_Unauthenticated(t *testing.T) {
	f := newProfileHandlerFixture(t)

	w := httptest.NewRecorder()
	f.handler.Get(w, httptest.NewRequest(http.MethodGet, "/api/v1/users/me", nil))

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestProfile_RoleWithoutProfileAccessIsForbidden(t *testing.T) {
	f := newProfileHandlerFixture(t)

	// A role the decision table does not recognize permits nothing.
	principal := middleware.Principal{
		UserID: uuid.New(),
		Role:   service.Role{Kind: service.RoleKind(-1)},
	}

	r := asPrincipal(httptest.NewRequest(http.MethodGet, "/api/v1/users/me", nil), principal)
	w := httptest.NewRecorder()
	f.handler.Get(w, r)
	assert.Equal(t, http.StatusForbidden, w.Code)

	r = asPrincipal(httptest.NewRequest(http.MethodPatch, "/api/v1/users/me", nil), principal)
	w = httptest.NewRecorder()
	f.handler.Update(w, r)
	assert.Equal(t, http.StatusForbidden, w.Code)

	f.users.AssertNotCalled(t, "GetByUUID", mock.Anything, mock.Anything)
}

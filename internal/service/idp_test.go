package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/libreone/libreone-server/internal/events"
	"github.com/libreone/libreone-server/internal/mocks"
	"github.com/libreone/libreone-server/internal/testutil"
)

func TestExternalIdP_UnknownProvider(t *testing.T) {
	subscribers := &mocks.MockEventSubscriberStore{}
	svc := NewExternalIdP(
		&mocks.MockUserStore{},
		events.NewEmitter(subscribers, "https://one.example.org", testutil.MakeNoopLogger()),
		"https://one.example.org",
		testutil.MakeNoopLogger(),
	)

	_, err := svc.CreateUserFromExternalIdP(context.Background(), "okta", "assertion")
	assert.ErrorIs(t, err, ErrUnknownProvider)
}

func TestDeriveNames(t *testing.T) {
	tests := []struct {
		name       string
		given      string
		family     string
		combined   string
		wantFirst  string
		wantLast   string
	}{
		{name: "explicit claims win", given: "Ada", family: "Lovelace", combined: "Someone Else", wantFirst: "Ada", wantLast: "Lovelace"},
		{name: "given only", given: "Ada", wantFirst: "Ada"},
		{name: "combined split on first space", combined: "Ada King Lovelace", wantFirst: "Ada", wantLast: "King Lovelace"},
		{name: "single word combined", combined: "Ada", wantFirst: "Ada"},
		{name: "nothing", wantFirst: "", wantLast: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			first, last := deriveNames(tt.given, tt.family, tt.combined)
			assert.Equal(t, tt.wantFirst, first)
			assert.Equal(t, tt.wantLast, last)
		})
	}
}

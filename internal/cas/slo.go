package cas

import (
	"encoding/xml"
	"errors"
)

// ErrBadLogoutRequest is returned for SLO payloads missing a session index
// or name identifier.
var ErrBadLogoutRequest = errors.New("malformed logout request")

// logoutRequest is the SAML-style back-channel single logout payload.
type logoutRequest struct {
	XMLName      xml.Name `xml:"LogoutRequest"`
	NameID       string   `xml:"NameID"`
	SessionIndex string   `xml:"SessionIndex"`
}

// LogoutNotice is the parsed content of a back-channel SLO request.
type LogoutNotice struct {
	// SessionIndex is the CAS ticket that produced the session being
	// terminated.
	SessionIndex string
	// NameID identifies the principal, as either a uuid or an email.
	NameID string
}

// ParseLogoutRequest extracts the session index and name identifier from a
// back-channel logout payload.
func ParseLogoutRequest(payload string) (LogoutNotice, error) {
	var lr logoutRequest
	if err := xml.Unmarshal([]byte(payload), &lr); err != nil {
		return LogoutNotice{}, ErrBadLogoutRequest
	}
	if lr.SessionIndex == "" || lr.NameID == "" {
		return LogoutNotice{}, ErrBadLogoutRequest
	}
	return LogoutNotice{SessionIndex: lr.SessionIndex, NameID: lr.NameID}, nil
}

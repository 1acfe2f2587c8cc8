// Package cas implements the client side of the CAS SSO protocol: login and
// logout URL construction, p3 service ticket validation, and back-channel
// single logout parsing.
package cas

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/libreone/libreone-server/internal/logger"
	"github.com/libreone/libreone-server/internal/model"
)

const validateTimeout = 10 * time.Second

// Client talks to an external CAS server.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *logger.Logger
}

// NewClient creates a CAS client for the given protocol and domain.
func NewClient(protocol, domain string, logger *logger.Logger) *Client {
	return &Client{
		baseURL:    fmt.Sprintf("%s://%s/cas", protocol, domain),
		httpClient: &http.Client{Timeout: validateTimeout},
		logger:     logger,
	}
}

// LoginURL builds the CAS login redirect for the given callback service.
// Gateway mode asks CAS to silently fail instead of prompting credentials.
func (c *Client) LoginURL(service string, gateway bool) string {
	q := url.Values{}
	q.Set("service", service)
	if gateway {
		q.Set("gateway", "true")
	}
	return c.baseURL + "/login?" + q.Encode()
}

// LoginURLWithToken builds a login redirect carrying an opaque SSO
// completion assertion alongside the service parameter.
func (c *Client) LoginURLWithToken(service, assertion string) string {
	q := url.Values{}
	q.Set("service", service)
	q.Set("token", assertion)
	return c.baseURL + "/login?" + q.Encode()
}

// LogoutURL builds the CAS single-logout redirect.
func (c *Client) LogoutURL() string {
	return c.baseURL + "/logout"
}

// serviceResponse is the CAS p3 serviceValidate envelope.
type serviceResponse struct {
	XMLName xml.Name        `xml:"serviceResponse"`
	Success *authSuccess    `xml:"authenticationSuccess"`
	Failure *authFailure    `xml:"authenticationFailure"`
}

type authSuccess struct {
	User       string         `xml:"user"`
	Attributes authAttributes `xml:"attributes"`
}

type authAttributes struct {
	Email     string `xml:"email"`
	FirstName string `xml:"firstName"`
	LastName  string `xml:"lastName"`
}

type authFailure struct {
	Code    string `xml:"code,attr"`
	Message string `xml:",chardata"`
}

// Principal is the CAS-asserted identity from a validated ticket.
type Principal struct {
	ID        string
	Email     string
	FirstName string
	LastName  string
}

// ValidateTicket validates a service ticket against the CAS p3
// serviceValidate endpoint and returns the asserted principal.
func (c *Client) ValidateTicket(ctx context.Context, ticket, service string) (Principal, error) {
	q := url.Values{}
	q.Set("ticket", ticket)
	q.Set("service", service)
	endpoint := c.baseURL + "/p3/serviceValidate?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return Principal{}, fmt.Errorf("failed to build validate request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Principal{}, fmt.Errorf("failed to call cas validate: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Principal{}, fmt.Errorf("failed to read validate response: %w", err)
	}

	principal, err := ParseValidateResponse(body)
	if err != nil {
		c.logger.Info("CAS client: ticket validation rejected",
			"ticket", ticket,
			"error", err.Error())
		return Principal{}, err
	}

	return principal, nil
}

// ParseValidateResponse parses a p3 serviceValidate XML body.
func ParseValidateResponse(body []byte) (Principal, error) {
	var sr serviceResponse
	if err := xml.Unmarshal(body, &sr); err != nil {
		return Principal{}, fmt.Errorf("failed to parse validate response: %w", err)
	}

	if sr.Success == nil || sr.Success.User == "" {
		return Principal{}, model.ErrWrongCredentials
	}

	return Principal{
		ID:        sr.Success.User,
		Email:     sr.Success.Attributes.Email,
		FirstName: sr.Success.Attributes.FirstName,
		LastName:  sr.Success.Attributes.LastName,
	}, nil
}

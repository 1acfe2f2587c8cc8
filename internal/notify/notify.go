// Package notify delivers partner notifications (Conductor, ADAPT) after
// registration completion. Targets are notified concurrently and
// independently; a failure in one never blocks the others or the caller.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/libreone/libreone-server/internal/logger"
	"github.com/libreone/libreone-server/internal/model"
	"github.com/libreone/libreone-server/internal/token"
)

const callTimeout = 10 * time.Second

// Notifier pushes a registered-user notice to one downstream system. A
// target may hand back a login token for a partner-specific deep link.
type Notifier interface {
	Name() string
	NotifyUserRegistered(ctx context.Context, user model.User, role string) (loginToken string, err error)
}

// Result is the per-target outcome of a fan-out.
type Result struct {
	Target     string
	LoginToken string
	Err        error
}

// HTTPNotifier signs a fresh bearer JWT per call and posts to the target's
// registration endpoint.
type HTTPNotifier struct {
	name    string
	baseURL string
	apiKey  string
	issuer  string
	client  *http.Client
}

func NewHTTPNotifier(name, baseURL, apiKey, issuer string) *HTTPNotifier {
	return &HTTPNotifier{
		name:    name,
		baseURL: baseURL,
		apiKey:  apiKey,
		issuer:  issuer,
		client:  &http.Client{Timeout: callTimeout},
	}
}

func (n *HTTPNotifier) Name() string { return n.name }

func (n *HTTPNotifier) NotifyUserRegistered(ctx context.Context, user model.User, role string) (string, error) {
	body, err := json.Marshal(map[string]any{
		"uuid":       user.UUID.String(),
		"email":      user.Email,
		"first_name": user.FirstName,
		"last_name":  user.LastName,
		"role":       role,
	})
	if err != nil {
		return "", fmt.Errorf("failed to encode notification: %w", err)
	}

	bearer, err := token.SignWebhook(n.apiKey, n.issuer, string(model.EventUserCreated), body, 10*time.Minute)
	if err != nil {
		return "", fmt.Errorf("failed to sign notification token: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.baseURL, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to build notification request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+bearer)

	resp, err := n.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to deliver notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("notification rejected with status %d", resp.StatusCode)
	}

	var reply struct {
		LoginToken string `json:"login_token"`
	}
	_ = json.NewDecoder(resp.Body).Decode(&reply)

	return reply.LoginToken, nil
}

// Fanout notifies every target concurrently, joining all of them. It never
// fails fast: each target gets its own Result and the aggregate is the
// caller's to log, not to propagate.
func Fanout(ctx context.Context, log *logger.Logger, user model.User, role string, notifiers ...Notifier) []Result {
	results := make([]Result, len(notifiers))

	g, ctx := errgroup.WithContext(ctx)
	for i, n := range notifiers {
		i, n := i, n
		g.Go(func() error {
			loginToken, err := n.NotifyUserRegistered(ctx, user, role)
			results[i] = Result{Target: n.Name(), LoginToken: loginToken, Err: err}
			return nil
		})
	}
	_ = g.Wait()

	for _, r := range results {
		if r.Err != nil {
			log.Error("Notify: partner notification failed",
				"target", r.Target,
				"user_id", user.UUID,
				"error", r.Err.Error())
		}
	}

	return results
}

package http

import (
	"net/http"
	"time"
)

// Cookie names are part of the wire contract with the frontend and the
// embedded library apps.
const (
	CookieAccess             = "one_access"
	CookieSigned             = "one_signed"
	CookieCASState           = "cas_state"
	CookieTriedGateway       = "one_tried_gateway"
	CookiePostRegisterTarget = "post_register_service_url"
	CookieBridgeRedirect     = "cas_bridge_redirect"
	CookieBridgeSource       = "cas_bridge_source"
	CookieBridgeUsed         = "cas_bridge_used"
)

// BridgeTokenCookie names the per-source bridge token cookie.
func BridgeTokenCookie(source string) string { return "cas_bridge_token_" + source }

// BridgeAuthorizedCookie marks that the bridge principal holds access to
// the requesting library.
func BridgeAuthorizedCookie(source string) string { return "cas_bridge_authorized_" + source }

// BridgeUnverifiedCookie marks an unverified instructor principal.
func BridgeUnverifiedCookie(source string) string { return "cas_bridge_unverified_" + source }

// Jar writes cookies with the deployment's domain and security flags.
// Production cookies are Secure and SameSite=Lax on the shared cookie
// domain; non-production relaxes both so local HTTP works.
type Jar struct {
	domain     string
	production bool
}

func NewJar(domain string, production bool) *Jar {
	return &Jar{domain: domain, production: production}
}

func (j *Jar) Set(w http.ResponseWriter, name, value string, ttl time.Duration, httpOnly bool) {
	c := &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		Domain:   j.domain,
		MaxAge:   int(ttl.Seconds()),
		HttpOnly: httpOnly,
	}
	if j.production {
		c.Secure = true
		c.SameSite = http.SameSiteLaxMode
	}
	http.SetCookie(w, c)
}

func (j *Jar) Clear(w http.ResponseWriter, name string) {
	c := &http.Cookie{
		Name:   name,
		Value:  "",
		Path:   "/",
		Domain: j.domain,
		MaxAge: -1,
	}
	if j.production {
		c.Secure = true
		c.SameSite = http.SameSiteLaxMode
	}
	http.SetCookie(w, c)
}

// ClearSession removes every session-related cookie. Local clearing always
// happens even when the downstream CAS logout fails.
func (j *Jar) ClearSession(w http.ResponseWriter) {
	for _, name := range []string{
		CookieAccess,
		CookieSigned,
		CookieCASState,
		CookieTriedGateway,
		CookiePostRegisterTarget,
	} {
		j.Clear(w, name)
	}
}

// Read returns the named cookie's value, empty when absent.
func Read(r *http.Request, name string) string {
	c, err := r.Cookie(name)
	if err != nil {
		return ""
	}
	return c.Value
}

package middleware

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

const (
	// CSRFHeader carries the token on htmx and API requests.
	CSRFHeader = "X-CSRF-Token"
	// CSRFFormField carries the token on plain form posts.
	CSRFFormField = "csrf_token"
	// CSRFLocalKey is where the token for the current session is stored in locals.
	CSRFLocalKey = "csrf_token"
)

var (
	ErrCSRFMissing = fiber.NewError(fiber.StatusForbidden, "csrf token missing")
	ErrCSRFInvalid = fiber.NewError(fiber.StatusForbidden, "csrf token invalid")
)

// CSRFConfig configures the CSRF middleware.
type CSRFConfig struct {
	// Secret keys the HMAC. Required.
	Secret string
	// CookieName is the session cookie, "hxnotes_session" if empty.
	CookieName   string
	CookieSecure bool
	// Exempt skips the check for matching requests.
	Exempt func(c *fiber.Ctx) bool
	// OnReject is called with "missing" or "invalid" before a request is refused.
	OnReject func(reason string)
}

// CSRF protects state-changing requests with a token bound to an anonymous
// session cookie. The token is base64url(HMAC-SHA256(secret, session id)), so
// nothing has to be stored server side.
//
// Safe methods only make sure a session exists and expose its token through
// CSRFToken. Every other method must echo the token in the X-CSRF-Token header
// or the csrf_token form field; otherwise the request fails with 403 before
// any later handler runs.
func CSRF(cfg CSRFConfig) fiber.Handler {
	if cfg.Secret == "" {
		panic("csrf: secret is required")
	}
	if cfg.CookieName == "" {
		cfg.CookieName = "hxnotes_session"
	}
	secret := []byte(cfg.Secret)
	reject := func(err error) error {
		if cfg.OnReject != nil {
			reason := "invalid"
			if errors.Is(err, ErrCSRFMissing) {
				reason = "missing"
			}
			cfg.OnReject(reason)
		}
		return err
	}

	return func(c *fiber.Ctx) error {
		if cfg.Exempt != nil && cfg.Exempt(c) {
			return c.Next()
		}

		sessionID := c.Cookies(cfg.CookieName)
		if _, err := uuid.Parse(sessionID); err != nil {
			sessionID = ""
		}

		if safeMethod(c.Method()) {
			if sessionID == "" {
				sessionID = uuid.NewString()
				c.Cookie(&fiber.Cookie{
					Name:     cfg.CookieName,
					Value:    sessionID,
					Path:     "/",
					HTTPOnly: true,
					Secure:   cfg.CookieSecure,
					SameSite: fiber.CookieSameSiteLaxMode,
				})
			}
			c.Locals(CSRFLocalKey, csrfToken(secret, sessionID))
			return c.Next()
		}

		sent := c.Get(CSRFHeader)
		if sent == "" {
			sent = c.FormValue(CSRFFormField)
		}
		if sent == "" {
			return reject(ErrCSRFMissing)
		}
		if sessionID == "" {
			return reject(ErrCSRFInvalid)
		}
		want := csrfToken(secret, sessionID)
		if !hmac.Equal([]byte(sent), []byte(want)) {
			return reject(ErrCSRFInvalid)
		}

		c.Locals(CSRFLocalKey, want)
		return c.Next()
	}
}

// CSRFToken returns the token of the current session, or "" outside the middleware.
func CSRFToken(c *fiber.Ctx) string {
	t, _ := c.Locals(CSRFLocalKey).(string)
	return t
}

func csrfToken(secret []byte, sessionID string) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(sessionID))
	return base64.URLEncoding.EncodeToString(mac.Sum(nil))
}

func safeMethod(m string) bool {
	switch m {
	case fiber.MethodGet, fiber.MethodHead, fiber.MethodOptions, fiber.MethodTrace:
		return true
	}
	return false
}

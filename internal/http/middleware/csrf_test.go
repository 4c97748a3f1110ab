package middleware

import (
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func newCSRFApp(t *testing.T, rejected *[]string, calls *int) *fiber.App {
	t.Helper()
	app := fiber.New()
	app.Use(CSRF(CSRFConfig{
		Secret: testSecret,
		Exempt: func(c *fiber.Ctx) bool { return c.Path() == "/hook" },
		OnReject: func(reason string) {
			*rejected = append(*rejected, reason)
		},
	}))
	app.Get("/form", func(c *fiber.Ctx) error {
		return c.SendString(CSRFToken(c))
	})
	handler := func(c *fiber.Ctx) error {
		*calls++
		return c.SendString("saved " + CSRFToken(c))
	}
	app.Post("/notes", handler)
	app.Delete("/notes/:id", handler)
	app.Post("/hook", handler)
	return app
}

// session performs a GET and returns the session cookie and token it was given.
func session(t *testing.T, app *fiber.App) (*http.Cookie, string) {
	t.Helper()
	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/form", nil))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var cookie *http.Cookie
	for _, c := range resp.Cookies() {
		if c.Name == "hxnotes_session" {
			cookie = c
		}
	}
	require.NotNil(t, cookie, "session cookie must be set on first visit")
	assert.True(t, cookie.HttpOnly)
	assert.Equal(t, http.SameSiteLaxMode, cookie.SameSite)

	body, _ := io.ReadAll(resp.Body)
	require.NotEmpty(t, body)
	return cookie, string(body)
}

func TestCSRF_SafeMethods(t *testing.T) {
	var rejected []string
	var calls int
	app := newCSRFApp(t, &rejected, &calls)

	cookie, token := session(t, app)
	assert.Equal(t, csrfToken([]byte(testSecret), cookie.Value), token)

	t.Run("existing session keeps its token", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/form", nil)
		req.AddCookie(cookie)
		resp, err := app.Test(req)
		require.NoError(t, err)

		body, _ := io.ReadAll(resp.Body)
		assert.Equal(t, token, string(body))
		assert.Empty(t, resp.Cookies(), "no new cookie for an existing session")
	})

	t.Run("forged session cookie is replaced", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/form", nil)
		req.AddCookie(&http.Cookie{Name: "hxnotes_session", Value: "not-a-uuid"})
		resp, err := app.Test(req)
		require.NoError(t, err)
		require.Len(t, resp.Cookies(), 1)
		assert.NotEqual(t, "not-a-uuid", resp.Cookies()[0].Value)
	})
}

func TestCSRF_UnsafeMethods(t *testing.T) {
	var rejected []string
	var calls int
	app := newCSRFApp(t, &rejected, &calls)
	cookie, token := session(t, app)

	_, otherToken := session(t, app)

	tests := []struct {
		name       string
		method     string
		path       string
		header     string
		form       string
		withCookie bool
		wantStatus int
		wantReason string
	}{
		{name: "header token", method: http.MethodPost, path: "/notes", header: token, withCookie: true, wantStatus: http.StatusOK},
		{name: "form field token", method: http.MethodPost, path: "/notes", form: token, withCookie: true, wantStatus: http.StatusOK},
		{name: "delete with header", method: http.MethodDelete, path: "/notes/1", header: token, withCookie: true, wantStatus: http.StatusOK},
		{name: "missing token", method: http.MethodPost, path: "/notes", withCookie: true, wantStatus: http.StatusForbidden, wantReason: "missing"},
		{name: "wrong token", method: http.MethodPost, path: "/notes", header: "bogus", withCookie: true, wantStatus: http.StatusForbidden, wantReason: "invalid"},
		{name: "token of another session", method: http.MethodDelete, path: "/notes/1", header: otherToken, withCookie: true, wantStatus: http.StatusForbidden, wantReason: "invalid"},
		{name: "no session cookie", method: http.MethodPost, path: "/notes", header: token, wantStatus: http.StatusForbidden, wantReason: "invalid"},
		{name: "exempt path", method: http.MethodPost, path: "/hook", wantStatus: http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rejected = nil
			calls = 0

			var body io.Reader
			if tt.form != "" {
				body = strings.NewReader(url.Values{CSRFFormField: {tt.form}, "title": {"x"}}.Encode())
			}
			req := httptest.NewRequest(tt.method, tt.path, body)
			if tt.form != "" {
				req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
			}
			if tt.header != "" {
				req.Header.Set(CSRFHeader, tt.header)
			}
			if tt.withCookie {
				req.AddCookie(cookie)
			}

			resp, err := app.Test(req)
			require.NoError(t, err)
			assert.Equal(t, tt.wantStatus, resp.StatusCode)

			if tt.wantReason != "" {
				assert.Equal(t, []string{tt.wantReason}, rejected)
				assert.Zero(t, calls, "handler must not run when the token is rejected")
			} else {
				assert.Empty(t, rejected)
				assert.Equal(t, 1, calls)
			}
		})
	}
}

func TestCSRF_RequiresSecret(t *testing.T) {
	assert.Panics(t, func() { CSRF(CSRFConfig{}) })
}

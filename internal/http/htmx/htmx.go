// Package htmx reads the request headers htmx sends and writes the response
// headers it understands. Handlers use IsFragment to choose between a full
// page and a partial; everything else in the request flow is identical.
package htmx

import (
	"encoding/json"
	"fmt"

	"github.com/gofiber/fiber/v2"
)

// Request headers.
const (
	HeaderRequest        = "HX-Request"
	HeaderBoosted        = "HX-Boosted"
	HeaderTarget         = "HX-Target"
	HeaderTrigger        = "HX-Trigger"
	HeaderTriggerName    = "HX-Trigger-Name"
	HeaderCurrentURL     = "HX-Current-URL"
	HeaderHistoryRestore = "HX-History-Restore-Request"
)

// Response headers.
const (
	HeaderReswap   = "HX-Reswap"
	HeaderRetarget = "HX-Retarget"
	HeaderRedirect = "HX-Redirect"
	HeaderRefresh  = "HX-Refresh"
	HeaderPushURL  = "HX-Push-Url"
)

// Request is a view over the htmx request headers of one request.
type Request struct {
	IsHTMX         bool
	Boosted        bool
	Target         string
	Trigger        string
	TriggerName    string
	CurrentURL     string
	HistoryRestore bool
}

// FromCtx reads the htmx headers from c.
func FromCtx(c *fiber.Ctx) Request {
	return Request{
		IsHTMX:         c.Get(HeaderRequest) == "true",
		Boosted:        c.Get(HeaderBoosted) == "true",
		Target:         c.Get(HeaderTarget),
		Trigger:        c.Get(HeaderTrigger),
		TriggerName:    c.Get(HeaderTriggerName),
		CurrentURL:     c.Get(HeaderCurrentURL),
		HistoryRestore: c.Get(HeaderHistoryRestore) == "true",
	}
}

// Fragment reports whether the request wants a partial rather than a full page.
// Boosted navigations and history restores replace the whole body, so they get the page.
func (r Request) Fragment() bool {
	return r.IsHTMX && !r.Boosted && !r.HistoryRestore
}

// IsFragment is shorthand for FromCtx(c).Fragment().
func IsFragment(c *fiber.Ctx) bool {
	return FromCtx(c).Fragment()
}

// Vary marks the response as depending on HX-Request so caches keep both variants.
func Vary(c *fiber.Ctx) {
	c.Vary(HeaderRequest)
}

// Reswap overrides the swap strategy declared on the triggering element.
func Reswap(c *fiber.Ctx, s Swap) {
	c.Set(HeaderReswap, s.String())
}

// Retarget points the swap at another element, given as a CSS selector.
func Retarget(c *fiber.Ctx, selector string) {
	c.Set(HeaderRetarget, selector)
}

// Redirect asks the client to perform a full navigation to url.
func Redirect(c *fiber.Ctx, url string) {
	c.Set(HeaderRedirect, url)
}

// Refresh asks the client to reload the page.
func Refresh(c *fiber.Ctx) {
	c.Set(HeaderRefresh, "true")
}

// PushURL pushes url into the browser history.
func PushURL(c *fiber.Ctx, url string) {
	c.Set(HeaderPushURL, url)
}

// Trigger adds a client-side event to the HX-Trigger response header. Events
// already set on the response are kept; detail may be nil.
func Trigger(c *fiber.Ctx, event string, detail any) error {
	events := map[string]any{}
	if cur := c.GetRespHeader(HeaderTrigger); cur != "" {
		if err := json.Unmarshal([]byte(cur), &events); err != nil {
			// a plain event name set elsewhere
			events = map[string]any{cur: nil}
		}
	}
	events[event] = detail
	b, err := json.Marshal(events)
	if err != nil {
		return fmt.Errorf("encode %s: %w", HeaderTrigger, err)
	}
	c.Set(HeaderTrigger, string(b))
	return nil
}

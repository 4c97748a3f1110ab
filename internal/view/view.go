// Package view renders the HTML pages and fragments. Every page template
// defines a "content" block: a normal request gets it inside the layout, an
// htmx fragment request gets the block alone. Partials are rendered directly
// by name, e.g. "partials/note".
package view

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"io/fs"
	"net/url"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"hxnotes/internal/http/htmx"
	"hxnotes/internal/http/middleware"
	"hxnotes/internal/markdown"
	"hxnotes/internal/validate"
)

//go:embed templates
var templateFS embed.FS

// Options configures a Renderer.
type Options struct {
	// StaticURL prefixes asset paths, e.g. "/static/".
	StaticURL string
	// AppName is shown in the title and header.
	AppName  string
	Location *time.Location
	Markdown *markdown.Renderer
}

// Renderer holds the parsed templates. It is safe for concurrent use.
type Renderer struct {
	opts     Options
	partials *template.Template
	pages    map[string]*template.Template
}

// View is the value every template executes with. Data holds the
// page-specific payload; the other fields are per request.
type View struct {
	AppName  string
	Title    string
	CSRF     string
	Path     string
	Fragment bool
	Data     any
}

// With returns a copy of v carrying data, for passing into nested templates.
func (v View) With(data any) View {
	v.Data = data
	return v
}

// New parses every embedded template once.
func New(opts Options) (*Renderer, error) {
	if opts.StaticURL == "" {
		opts.StaticURL = "/static/"
	}
	if opts.AppName == "" {
		opts.AppName = "hxnotes"
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.Markdown == nil {
		opts.Markdown = markdown.New()
	}

	r := &Renderer{opts: opts, pages: make(map[string]*template.Template)}

	base, err := template.New("").Funcs(r.funcs()).ParseFS(templateFS, "templates/layout.html", "templates/partials/*.html")
	if err != nil {
		return nil, fmt.Errorf("parse layout and partials: %w", err)
	}
	r.partials = base

	pageFiles, err := fs.Glob(templateFS, "templates/*.html")
	if err != nil {
		return nil, err
	}
	nested, err := fs.Glob(templateFS, "templates/notes/*.html")
	if err != nil {
		return nil, err
	}
	for _, file := range append(pageFiles, nested...) {
		if path.Base(file) == "layout.html" {
			continue
		}
		name := strings.TrimSuffix(strings.TrimPrefix(file, "templates/"), ".html")
		t, err := base.Clone()
		if err != nil {
			return nil, err
		}
		if _, err := t.ParseFS(templateFS, file); err != nil {
			return nil, fmt.Errorf("parse page %s: %w", name, err)
		}
		r.pages[name] = t
	}
	return r, nil
}

func (r *Renderer) funcs() template.FuncMap {
	return template.FuncMap{
		"csrfField": func(token string) template.HTML {
			return template.HTML(`<input type="hidden" name="` + middleware.CSRFFormField + `" value="` +
				template.HTMLEscapeString(token) + `">`)
		},
		"static": func(p string) string {
			return r.opts.StaticURL + strings.TrimPrefix(p, "/")
		},
		"markdown": r.opts.Markdown.Render,
		// swap rejects unknown hx-swap values at render time
		"swap": func(v string) (string, error) {
			if _, err := htmx.ParseSwap(v); err != nil {
				return "", err
			}
			return v, nil
		},
		"formatTime": func(t time.Time) string {
			if t.IsZero() {
				return ""
			}
			return t.In(r.opts.Location).Format("2 Jan 2006 15:04")
		},
		"isoTime": func(t time.Time) string {
			return t.In(r.opts.Location).Format(time.RFC3339)
		},
		"fieldError": func(errs validate.FieldErrors, field string) string {
			return errs.Get(field)
		},
		"humanSize": humanSize,
		"pageURL":   pageURL,
	}
}

func humanSize(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}

func pageURL(page int, search string) string {
	q := url.Values{}
	q.Set("page", strconv.Itoa(page))
	if search != "" {
		q.Set("q", search)
	}
	return "/notes?" + q.Encode()
}

func (r *Renderer) view(c *fiber.Ctx, title string, data any) View {
	return View{
		AppName:  r.opts.AppName,
		Title:    title,
		CSRF:     middleware.CSRFToken(c),
		Path:     c.Path(),
		Fragment: htmx.IsFragment(c),
		Data:     data,
	}
}

func send(c *fiber.Ctx, status int, buf *bytes.Buffer) error {
	htmx.Vary(c)
	c.Type("html", "utf-8")
	return c.Status(status).Send(buf.Bytes())
}

// Page renders the page template name. A fragment request receives only the
// page's content block; anything else receives the full layout.
func (r *Renderer) Page(c *fiber.Ctx, status int, name, title string, data any) error {
	t, ok := r.pages[name]
	if !ok {
		return fmt.Errorf("view: unknown page %q", name)
	}
	v := r.view(c, title, data)
	entry := "layout"
	if v.Fragment {
		entry = "content"
	}
	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, entry, v); err != nil {
		return fmt.Errorf("view: render %s: %w", name, err)
	}
	return send(c, status, &buf)
}

// Part is one partial of a fragment response.
type Part struct {
	Name string
	Data any
}

// Fragment renders a partial template by name, without the layout.
func (r *Renderer) Fragment(c *fiber.Ctx, status int, name string, data any) error {
	return r.Fragments(c, status, Part{Name: name, Data: data})
}

// Fragments renders several partials back to back, typically a main
// fragment followed by out-of-band swaps such as partials/flash.
func (r *Renderer) Fragments(c *fiber.Ctx, status int, parts ...Part) error {
	var buf bytes.Buffer
	for _, p := range parts {
		if err := r.partials.ExecuteTemplate(&buf, p.Name, r.view(c, "", p.Data)); err != nil {
			return fmt.Errorf("view: render %s: %w", p.Name, err)
		}
	}
	return send(c, status, &buf)
}

// HasPage reports whether name is a known page template.
func (r *Renderer) HasPage(name string) bool {
	_, ok := r.pages[name]
	return ok
}

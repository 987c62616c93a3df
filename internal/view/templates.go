package view

import (
	"bytes"
	"fmt"
	"html/template"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/storedash/storedash/internal/rbac"
	"github.com/storedash/storedash/internal/shared"
	"github.com/storedash/storedash/web"
)

// Engine renders HTML templates.
type Engine struct {
	templates *template.Template
	prefix    string
}

// NavItem is one entry of the admin navigation.
type NavItem struct {
	Label  string
	Path   string
	Active bool
}

// TemplateData contains values shared across templates.
type TemplateData struct {
	Title       string
	CurrentPath string
	Prefix      string
	Claim       shared.Claim
	SignedIn    bool
	Nav         []NavItem
	Data        any
}

// titleCase builds a fresh caser per call; a cases.Caser is stateful and not
// safe for concurrent use.
func titleCase(s string) string {
	return cases.Title(language.English).String(s)
}

// NewEngine parses the embedded templates. prefix is the admin path prefix
// used to build navigation links.
func NewEngine(prefix string) (*Engine, error) {
	funcMap := template.FuncMap{
		"formatDate": func(t time.Time) string {
			if t.IsZero() {
				return ""
			}
			return t.Format("02 Jan 2006 15:04")
		},
		"money": func(v any) string {
			switch n := v.(type) {
			case decimal.Decimal:
				return n.StringFixed(2)
			case float64:
				return decimal.NewFromFloat(n).StringFixed(2)
			case int:
				return decimal.NewFromInt(int64(n)).StringFixed(2)
			default:
				return fmt.Sprint(v)
			}
		},
		"label": func(s string) string {
			return titleCase(strings.ReplaceAll(s, "-", " "))
		},
	}
	tpl, err := template.New("root").Funcs(funcMap).ParseFS(web.Templates, "templates/layouts/*.html", "templates/partials/*.html", "templates/pages/*.html")
	if err != nil {
		return nil, err
	}
	return &Engine{templates: tpl, prefix: prefix}, nil
}

// Page assembles TemplateData for r. Navigation lists only the sections the
// claim's role may open.
func (e *Engine) Page(r *http.Request, title string, data any) TemplateData {
	td := TemplateData{
		Title:       title,
		CurrentPath: r.URL.Path,
		Prefix:      e.prefix,
		Data:        data,
	}
	claim, ok := shared.ClaimFromContext(r.Context())
	if !ok {
		return td
	}
	td.Claim = claim
	td.SignedIn = true
	for _, section := range rbac.Sections(rbac.Role(claim.Role)) {
		path := e.prefix + "/" + string(section)
		td.Nav = append(td.Nav, NavItem{
			Label:  titleCase(string(section)),
			Path:   path,
			Active: strings.HasPrefix(r.URL.Path, path),
		})
	}
	return td
}

// Render executes a named template with TemplateData and status 200.
func (e *Engine) Render(w http.ResponseWriter, name string, data TemplateData) error {
	return e.RenderStatus(w, http.StatusOK, name, data)
}

// RenderStatus executes a named template into a buffer and writes it with
// status. Nothing is written when execution fails.
func (e *Engine) RenderStatus(w http.ResponseWriter, status int, name string, data TemplateData) error {
	if e == nil {
		return fmt.Errorf("template engine not initialised")
	}
	var buf bytes.Buffer
	if err := e.templates.ExecuteTemplate(&buf, name, data); err != nil {
		return err
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, err := buf.WriteTo(w)
	return err
}

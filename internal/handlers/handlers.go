package handlers

import (
	"fmt"
	"html/template"
	"io/fs"
	"net/http"

	"github.com/microcosm-cc/bluemonday"

	"github.com/felo/eml2doc/internal/attachments"
	"github.com/felo/eml2doc/internal/config"
	"github.com/felo/eml2doc/internal/db"
	"github.com/felo/eml2doc/internal/logger"
)

// pageSize is the number of conversions listed per page
const pageSize = 50

// Handlers holds all HTTP handlers and their dependencies
type Handlers struct {
	db        *db.DB
	cfg       *config.Config
	log       logger.Logger
	templates *template.Template
	snippets  *bluemonday.Policy
}

// New creates a new Handlers instance
func New(database *db.DB, cfg *config.Config, log logger.Logger) *Handlers {
	if log == nil {
		log = logger.NopLogger()
	}
	return &Handlers{
		db:  database,
		cfg: cfg,
		log: log,
		// search snippets are plain message text with <mark> highlights
		snippets: bluemonday.NewPolicy().AllowElements("mark"),
	}
}

// LoadTemplates loads HTML templates from the embedded filesystem
func (h *Handlers) LoadTemplates(files fs.FS) error {
	tmpl, err := template.New("").Funcs(h.funcs()).ParseFS(files,
		"templates/*.html",
		"templates/components/*.html",
	)
	if err != nil {
		return err
	}
	h.templates = tmpl
	return nil
}

func (h *Handlers) funcs() template.FuncMap {
	return template.FuncMap{
		"formatDate": func(t db.NullTime) string {
			if !t.Valid {
				return ""
			}
			return t.Time.Format("Jan 2, 2006 15:04")
		},
		"snippet": func(s string) template.HTML {
			return template.HTML(h.snippets.Sanitize(s))
		},
		"sizeLabel":   attachments.FormatSize,
		"documentURL": documentURL,
		"shortID": func(id string) string {
			if len(id) > 8 {
				return id[:8]
			}
			return id
		},
	}
}

// documentURL links to the converted output, at the message's section when
// the output is a combined HTML page.
func documentURL(c db.Conversion) string {
	u := fmt.Sprintf("/documents/%d", c.ID)
	if c.Anchor != "" && c.Format == "html" {
		u += "#" + c.Anchor
	}
	return u
}

// page is the data every template renders from
type page struct {
	PageTitle   string
	Query       string
	LastRun     *db.Run
	Total       int
	Results     []*db.SearchResult
	PrevPage    int
	NextPage    int
	Conversion  *db.Conversion
	Attachments []*db.Attachment
}

func (h *Handlers) render(w http.ResponseWriter, name string, p *page) {
	if run, err := h.db.LastRun(); err != nil {
		h.log.Warnw("failed to load last run", "error", err)
	} else {
		p.LastRun = run
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := h.templates.ExecuteTemplate(w, name, p); err != nil {
		h.log.Errorw("template error", "template", name, "error", err)
		http.Error(w, "Failed to render page", http.StatusInternalServerError)
	}
}

// roots are the directories files may be served from
func (h *Handlers) roots() []string {
	return []string{h.cfg.OutputDir, h.cfg.AttachmentsPath()}
}

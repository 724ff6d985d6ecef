package web

import (
	"fmt"
	"html/template"
	"io"
	"io/fs"
	"path/filepath"
	"strings"
	"time"

	"github.com/justestif/song-posts/internal/dashboard"
	"github.com/justestif/song-posts/internal/db"
	"github.com/justestif/song-posts/internal/spotify"
)

// Templates manages HTML template rendering.
type Templates struct {
	templates map[string]*template.Template
	partials  map[string]*template.Template
	funcs     template.FuncMap
}

// NewTemplates creates a new template manager by loading templates from the given filesystem.
func NewTemplates(templatesFS fs.FS) (*Templates, error) {
	t := &Templates{
		templates: make(map[string]*template.Template),
		partials:  make(map[string]*template.Template),
		funcs:     defaultFuncs(),
	}

	if err := t.load(templatesFS); err != nil {
		return nil, err
	}

	return t, nil
}

// Render renders a page template with the given data.
func (t *Templates) Render(w io.Writer, page string, data any) error {
	tmpl, ok := t.templates[page]
	if !ok {
		return fmt.Errorf("template %q not found", page)
	}

	// Execute the "base" template which includes the page content
	return tmpl.ExecuteTemplate(w, "base", data)
}

// RenderPartial renders a partial template (without base layout) with the given data.
// Partial files define a template named after the file.
func (t *Templates) RenderPartial(w io.Writer, partial string, data any) error {
	tmpl, ok := t.partials[partial]
	if !ok {
		return fmt.Errorf("partial %q not found", partial)
	}
	return tmpl.ExecuteTemplate(w, partial, data)
}

// load parses all templates from the filesystem.
func (t *Templates) load(templatesFS fs.FS) error {
	layouts, err := fs.Glob(templatesFS, "layouts/*.html")
	if err != nil {
		return fmt.Errorf("finding layouts: %w", err)
	}

	partials, err := fs.Glob(templatesFS, "partials/*.html")
	if err != nil {
		return fmt.Errorf("finding partials: %w", err)
	}

	pages, err := fs.Glob(templatesFS, "pages/*.html")
	if err != nil {
		return fmt.Errorf("finding pages: %w", err)
	}

	// Common files to include with every page
	commonFiles := append(layouts, partials...)

	for _, page := range pages {
		name := templateName(page)
		files := append([]string{page}, commonFiles...)

		tmpl, err := template.New(name).Funcs(t.funcs).ParseFS(templatesFS, files...)
		if err != nil {
			return fmt.Errorf("parsing template %s: %w", name, err)
		}
		t.templates[name] = tmpl
	}

	// Partials also stand alone for HTMX fragments. They may reference
	// each other, so every partial file is parsed into each set.
	for _, partial := range partials {
		name := templateName(partial)

		tmpl, err := template.New(name).Funcs(t.funcs).ParseFS(templatesFS, partials...)
		if err != nil {
			return fmt.Errorf("parsing partial %s: %w", name, err)
		}
		t.partials[name] = tmpl
	}

	return nil
}

func templateName(path string) string {
	return strings.TrimSuffix(filepath.Base(path), ".html")
}

// defaultFuncs returns the default template functions.
func defaultFuncs() template.FuncMap {
	return template.FuncMap{
		// formatDate formats a time as "Jan 2, 2006"
		"formatDate": func(t time.Time) string {
			return t.Format("Jan 2, 2006")
		},

		// add adds two integers (for 1-based indexing in loops)
		"add": func(a, b int) int {
			return a + b
		},
	}
}

// PageData contains common data passed to all page templates.
type PageData struct {
	Title       string
	User        *UserData
	Flash       *FlashMessage
	CurrentPath string
}

// UserData contains authenticated user information.
type UserData struct {
	ID       string
	Name     string
	ImageURL string
}

// FlashMessage represents a temporary notification message.
type FlashMessage struct {
	Type    string // "success", "error", "warning", "info"
	Message string
}

// HomePageData contains data for the home page template.
type HomePageData struct {
	PageData
	Authenticated bool
	Posts         PostsData
}

// DashboardPageData contains data for the dashboard page template.
type DashboardPageData struct {
	PageData
	Results  ResultsData
	Composer ComposerData
	Posts    PostsData
}

// ResultsData feeds the search results partial.
type ResultsData struct {
	Query  string
	Tracks []TrackData
	Error  string
}

// TrackData contains data for a single search result in templates.
type TrackData struct {
	ID         string
	Name       string
	Artist     string
	Album      string
	AlbumCover string
	PreviewURL string
}

// ComposerData feeds the draft composer partial. ClearResults empties the
// results container out of band after a selection.
type ComposerData struct {
	Draft        *dashboard.DraftPost
	Error        string
	Notice       string
	ClearResults bool
}

// PostsData feeds the post list partial. OOB marks an out-of-band swap.
type PostsData struct {
	Posts []PostData
	OOB   bool
}

// PostData contains data for a single post in templates.
type PostData struct {
	ID          string
	Title       string
	Artist      string
	Album       string
	AlbumCover  string
	PreviewURL  string
	Description string
	Author      string
	CreatedAt   time.Time
}

func trackData(tracks []spotify.Track) []TrackData {
	out := make([]TrackData, len(tracks))
	for i, t := range tracks {
		out[i] = TrackData{
			ID:         t.ID,
			Name:       t.Name,
			Artist:     t.Artist(),
			Album:      t.AlbumName,
			AlbumCover: t.AlbumCover(),
			PreviewURL: t.PreviewURL,
		}
	}
	return out
}

func postData(posts []db.Post) []PostData {
	out := make([]PostData, len(posts))
	for i, p := range posts {
		out[i] = PostData{
			ID:          p.ID.String(),
			Title:       p.Title,
			Artist:      p.Artist,
			Album:       p.Album,
			AlbumCover:  p.AlbumCover,
			PreviewURL:  p.PreviewURL,
			Description: p.Description,
			Author:      p.UserID,
			CreatedAt:   p.CreatedAt,
		}
	}
	return out
}

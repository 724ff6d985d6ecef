package web

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/charmbracelet/log"
	spotifyauth "github.com/zmb3/spotify/v2/auth"

	"github.com/justestif/song-posts/internal/backend"
	"github.com/justestif/song-posts/internal/credential"
	"github.com/justestif/song-posts/internal/dashboard"
	"github.com/justestif/song-posts/internal/db"
	"github.com/justestif/song-posts/internal/logging"
	"github.com/justestif/song-posts/internal/spotify"
)

const maxBodyBytes = 1 << 20

// Handlers contains HTTP handlers for the web application.
type Handlers struct {
	auth      *spotifyauth.Authenticator
	sessions  SessionManager
	users     UserStore
	posts     PostStore
	catalog   dashboard.Catalog
	templates *Templates
	pages     *pageRegistry
	logger    *log.Logger
}

// HandlerDeps holds the collaborators of Handlers.
type HandlerDeps struct {
	Auth      *spotifyauth.Authenticator
	Sessions  SessionManager
	Users     UserStore
	Posts     PostStore
	Catalog   dashboard.Catalog
	Templates *Templates
	Logger    *log.Logger
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(deps HandlerDeps) *Handlers {
	if deps.Logger == nil {
		deps.Logger = logging.Discard()
	}
	return &Handlers{
		auth:      deps.Auth,
		sessions:  deps.Sessions,
		users:     deps.Users,
		posts:     deps.Posts,
		catalog:   deps.Catalog,
		templates: deps.Templates,
		pages:     newPageRegistry(),
		logger:    deps.Logger,
	}
}

// ============================================================================
// Pages
// ============================================================================

// Home handles the home page (GET /).
func (h *Handlers) Home(w http.ResponseWriter, r *http.Request) {
	session := h.sessions.GetFromRequest(r)

	posts, err := h.posts.ListRecent(r.Context(), postListLimit)
	if err != nil {
		h.logger.Error("listing posts", "err", err)
	}

	data := HomePageData{
		PageData: PageData{
			Title:       "Song Posts",
			CurrentPath: r.URL.Path,
		},
		Authenticated: session != nil,
		Posts:         PostsData{Posts: postData(posts)},
	}

	if session != nil {
		data.User = &UserData{
			ID:   session.UserID,
			Name: session.UserName,
		}
	}

	h.render(w, "home", data)
}

// Dashboard loads the composer page (GET /dashboard). The credential gate
// runs once per load; an unusable credential redirects to authorization.
func (h *Handlers) Dashboard(w http.ResponseWriter, r *http.Request) {
	session := h.sessions.GetFromRequest(r)

	var userID string
	if session != nil {
		userID = session.UserID
	}

	pg := &page{store: h.posts}
	pg.dash = dashboard.New(dashboard.Config{
		Sessions: credential.SourceFunc(func(_ context.Context) (credential.Credential, error) {
			return session.Credential(), nil
		}),
		Catalog:   h.catalog,
		Users:     sessionUsers{store: h.users, userID: userID},
		Posts:     sessionPosts{store: h.posts, userID: userID},
		Refresher: pg,
		Author:    userID,
		Logger:    h.logger.With("user", userID),
	})

	res, err := pg.dash.Load(r.Context())
	if err != nil {
		h.dropPage(session)
		h.logger.Error("loading dashboard", "err", err)
		http.Error(w, "Failed to load dashboard", http.StatusInternalServerError)
		return
	}
	if !res.Decision.Allowed() {
		h.dropPage(session)
		http.Redirect(w, r, res.Decision.Redirect, http.StatusSeeOther)
		return
	}

	if err := pg.Refresh(r.Context()); err != nil {
		h.logger.Error("listing posts", "err", err)
	}
	h.pages.put(session.ID, pg)

	data := DashboardPageData{
		PageData: PageData{
			Title:       "Post a song",
			CurrentPath: r.URL.Path,
			User:        &UserData{ID: session.UserID, Name: session.UserName},
		},
		Posts: PostsData{Posts: postData(pg.Posts())},
	}
	if u := pg.dash.User(); u != nil {
		data.User.Name = u.DisplayName
		data.User.ImageURL = u.ImageURL
	}
	if res.SyncErr != nil || (res.Sync != nil && res.Sync.Err() != nil) {
		data.Flash = &FlashMessage{Type: "warning", Message: "Could not sync your Spotify profile."}
	}

	h.render(w, "dashboard", data)
}

// DashboardSearch updates the search text (GET /dashboard/search?q=).
func (h *Handlers) DashboardSearch(w http.ResponseWriter, r *http.Request) {
	pg := h.pageFor(w, r)
	if pg == nil {
		return
	}

	q := r.URL.Query().Get("q")
	data := ResultsData{Query: q}
	if err := pg.dash.SetSearchText(r.Context(), q); err != nil {
		data.Error = "Search failed. Try again."
	}
	data.Tracks = trackData(pg.dash.Results())

	h.renderPartials(w, partial{"results", data})
}

// DashboardSelect turns a search result into the draft (POST /dashboard/select).
func (h *Handlers) DashboardSelect(w http.ResponseWriter, r *http.Request) {
	pg := h.pageFor(w, r)
	if pg == nil {
		return
	}

	draft, err := pg.dash.SelectTrackByID(r.FormValue("track_id"))
	if err != nil {
		data := ComposerData{Error: "That track is no longer in the results."}
		if d, ok := pg.dash.Draft(); ok {
			data.Draft = &d
		}
		h.renderPartials(w, partial{"composer", data})
		return
	}

	h.renderPartials(w, partial{"composer", ComposerData{Draft: &draft, ClearResults: true}})
}

// DashboardDescription edits the draft description (POST /dashboard/description).
func (h *Handlers) DashboardDescription(w http.ResponseWriter, r *http.Request) {
	pg := h.pageFor(w, r)
	if pg == nil {
		return
	}

	if err := pg.dash.EditDescription(r.FormValue("description")); err != nil {
		http.Error(w, "No draft to edit", http.StatusConflict)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// DashboardSubmit publishes the draft (POST /dashboard/submit). A description
// sent along with the form is applied first.
func (h *Handlers) DashboardSubmit(w http.ResponseWriter, r *http.Request) {
	pg := h.pageFor(w, r)
	if pg == nil {
		return
	}

	if err := r.ParseForm(); err == nil && r.PostForm.Has("description") {
		_ = pg.dash.EditDescription(r.PostForm.Get("description"))
	}

	err := pg.dash.Submit(r.Context())
	switch {
	case errors.Is(err, dashboard.ErrNoDraft):
		http.Error(w, "No draft to submit", http.StatusConflict)
		return
	case errors.Is(err, dashboard.ErrSubmissionFailed), errors.Is(err, dashboard.ErrSubmitInProgress):
		msg := "Could not publish the post. Try again."
		if errors.Is(err, dashboard.ErrSubmitInProgress) {
			msg = "Already publishing this post."
		}
		data := ComposerData{Error: msg}
		if d, ok := pg.dash.Draft(); ok {
			data.Draft = &d
		}
		h.renderPartials(w, partial{"composer", data})
		return
	case errors.Is(err, dashboard.ErrRefreshFailed):
		h.renderPartials(w, partial{"composer", composerAfterSubmit(pg, "Posted. Reload to see it in the list.")})
		return
	case err != nil:
		h.logger.Error("submitting post", "err", err)
		http.Error(w, "Failed to submit post", http.StatusInternalServerError)
		return
	}

	h.renderPartials(w,
		partial{"composer", composerAfterSubmit(pg, "Posted.")},
		partial{"posts", PostsData{Posts: postData(pg.Posts()), OOB: true}},
	)
}

// composerAfterSubmit keeps showing a draft that changed while it was sent.
func composerAfterSubmit(pg *page, notice string) ComposerData {
	data := ComposerData{Notice: notice}
	if d, ok := pg.dash.Draft(); ok {
		data.Draft = &d
	}
	return data
}

// pageFor returns the loaded dashboard of the request's session. Without one,
// or once the session token is no longer usable, the client is told to reload
// the dashboard so the credential gate runs again.
func (h *Handlers) pageFor(w http.ResponseWriter, r *http.Request) *page {
	session := h.sessions.GetFromRequest(r)
	if session != nil {
		if pg := h.pages.get(session.ID); pg != nil {
			if session.CanSearch(time.Now()) {
				return pg
			}
			h.pages.drop(session.ID)
		}
	}
	w.Header().Set("HX-Redirect", "/dashboard")
	http.Error(w, "Dashboard not loaded", http.StatusUnauthorized)
	return nil
}

func (h *Handlers) dropPage(session *Session) {
	if session != nil {
		h.pages.drop(session.ID)
	}
}

// prunePages drops dashboards whose session is gone or whose token expired.
func (h *Handlers) prunePages(ctx context.Context) int {
	now := time.Now()
	var n int
	for _, id := range h.pages.ids() {
		if h.sessions.Get(ctx, id).CanSearch(now) {
			continue
		}
		h.pages.drop(id)
		n++
	}
	return n
}

// ============================================================================
// OAuth
// ============================================================================

// Login initiates the Spotify OAuth flow (GET /authorize-spotify).
func (h *Handlers) Login(w http.ResponseWriter, r *http.Request) {
	// Generate state for CSRF protection
	state, err := generateOAuthState()
	if err != nil {
		http.Error(w, "Failed to generate state", http.StatusInternalServerError)
		return
	}

	// Store state in cookie for validation on callback
	http.SetCookie(w, &http.Cookie{
		Name:     "oauth_state",
		Value:    state,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   300, // 5 minutes
	})

	http.Redirect(w, r, h.auth.AuthURL(state), http.StatusTemporaryRedirect)
}

// Callback handles the OAuth callback from Spotify (GET /callback).
func (h *Handlers) Callback(w http.ResponseWriter, r *http.Request) {
	stateCookie, err := r.Cookie("oauth_state")
	if err != nil {
		http.Error(w, "Missing state cookie", http.StatusBadRequest)
		return
	}

	state := r.URL.Query().Get("state")
	if state != stateCookie.Value {
		http.Error(w, "State mismatch", http.StatusBadRequest)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     "oauth_state",
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		MaxAge:   -1,
	})

	if errMsg := r.URL.Query().Get("error"); errMsg != "" {
		http.Error(w, fmt.Sprintf("Spotify auth error: %s", errMsg), http.StatusBadRequest)
		return
	}

	token, err := h.auth.Token(r.Context(), state, r)
	if err != nil {
		h.logger.Error("exchanging oauth code", "err", err)
		http.Error(w, "Failed to get token", http.StatusInternalServerError)
		return
	}

	profile, err := h.catalog.CurrentProfile(r.Context(), credential.FromOAuth2(token))
	if err != nil {
		h.logger.Error("fetching spotify profile", "err", err)
		http.Error(w, "Failed to get user info", http.StatusInternalServerError)
		return
	}

	user := &db.User{ID: profile.ID, DisplayName: profile.DisplayName}
	if err := h.users.Upsert(r.Context(), user); err != nil {
		h.logger.Error("saving user", "user", profile.ID, "err", err)
		http.Error(w, "Failed to save user", http.StatusInternalServerError)
		return
	}

	// A re-authorization refreshes the token of the existing session.
	if existing := h.sessions.GetFromRequest(r); existing != nil && existing.UserID == profile.ID {
		h.sessions.UpdateToken(r.Context(), existing.ID, token)
		http.Redirect(w, r, "/dashboard", http.StatusTemporaryRedirect)
		return
	}

	session, err := h.sessions.Create(r.Context(), token, profile.ID, profile.DisplayName)
	if err != nil {
		h.logger.Error("creating session", "user", profile.ID, "err", err)
		http.Error(w, "Failed to create session", http.StatusInternalServerError)
		return
	}

	h.sessions.SetCookie(w, session)
	h.logger.Info("user signed in", "user", profile.ID)

	http.Redirect(w, r, "/dashboard", http.StatusTemporaryRedirect)
}

// Logout clears the session and redirects to home (POST /auth/logout).
func (h *Handlers) Logout(w http.ResponseWriter, r *http.Request) {
	session := h.sessions.GetFromRequest(r)
	if session != nil {
		h.pages.drop(session.ID)
		h.sessions.Delete(r.Context(), session.ID)
	}

	h.sessions.ClearCookie(w)
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// generateOAuthState creates a random state string for OAuth.
func generateOAuthState() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// ============================================================================
// JSON API
// ============================================================================

// SpotifySession returns the session's Spotify token (GET /api/spotify-session).
// Without a session the token is empty, which clients treat as unavailable.
func (h *Handlers) SpotifySession(w http.ResponseWriter, r *http.Request) {
	session := h.sessions.GetFromRequest(r)
	writeJSON(w, http.StatusOK, credential.NewSessionPayload(session.Credential()))
}

// UpdateUserImage stores the profile image (POST /update-user-image).
func (h *Handlers) UpdateUserImage(w http.ResponseWriter, r *http.Request) {
	session := h.requireSession(w, r)
	if session == nil {
		return
	}

	var body struct {
		ProfileURL string `json:"profile_url"`
	}
	if err := decodeJSON(w, r, &body); err != nil || body.ProfileURL == "" {
		writeError(w, http.StatusBadRequest, "profile_url is required")
		return
	}

	if err := h.users.UpdateImage(r.Context(), session.UserID, body.ProfileURL); err != nil {
		h.logger.Error("updating user image", "user", session.UserID, "err", err)
		writeError(w, http.StatusInternalServerError, "failed to update image")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// UpdateUserName stores the display name (POST /update-user-name).
func (h *Handlers) UpdateUserName(w http.ResponseWriter, r *http.Request) {
	session := h.requireSession(w, r)
	if session == nil {
		return
	}

	var body struct {
		Name string `json:"name"`
	}
	if err := decodeJSON(w, r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}

	if err := h.users.UpdateName(r.Context(), session.UserID, body.Name); err != nil {
		h.logger.Error("updating user name", "user", session.UserID, "err", err)
		writeError(w, http.StatusInternalServerError, "failed to update name")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListPosts returns recent posts, newest first (GET /posts?limit=).
func (h *Handlers) ListPosts(w http.ResponseWriter, r *http.Request) {
	limit := postListLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 100 {
			writeError(w, http.StatusBadRequest, "limit must be between 1 and 100")
			return
		}
		limit = n
	}

	posts, err := h.posts.ListRecent(r.Context(), limit)
	if err != nil {
		h.logger.Error("listing posts", "err", err)
		writeError(w, http.StatusInternalServerError, "failed to list posts")
		return
	}

	out := make([]backend.Post, len(posts))
	for i, p := range posts {
		out[i] = wirePost(p)
	}
	writeJSON(w, http.StatusOK, out)
}

// CreatePost stores a new post from a draft (POST /posts). The author is
// always the session user.
func (h *Handlers) CreatePost(w http.ResponseWriter, r *http.Request) {
	session := h.requireSession(w, r)
	if session == nil {
		return
	}

	var draft dashboard.DraftPost
	if err := decodeJSON(w, r, &draft); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	if draft.TrackID == "" || draft.Title == "" {
		writeError(w, http.StatusBadRequest, "song_id and title are required")
		return
	}

	post := postFromDraft(draft, session.UserID)
	if err := h.posts.Create(r.Context(), &post); err != nil {
		h.logger.Error("creating post", "user", session.UserID, "song_id", draft.TrackID, "err", err)
		writeError(w, http.StatusInternalServerError, "failed to create post")
		return
	}

	h.logger.Info("post created", "user", session.UserID, "post", post.ID)
	writeJSON(w, http.StatusCreated, wirePost(post))
}

// Favorites returns the session user's top items
// (GET /api/favorites?type=&time_range=&limit=&offset=).
func (h *Handlers) Favorites(w http.ResponseWriter, r *http.Request) {
	session := h.requireSession(w, r)
	if session == nil {
		return
	}

	q, err := parseTopItemsQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	gate := credential.NewGate(credential.SourceFunc(func(_ context.Context) (credential.Credential, error) {
		return session.Credential(), nil
	}))
	decision, err := gate.Evaluate(r.Context())
	if err != nil || !decision.Allowed() {
		writeJSON(w, http.StatusUnauthorized, map[string]string{
			"error":    credential.ErrUnavailable.Error(),
			"redirect": credential.AuthorizePath,
		})
		return
	}

	items, err := h.catalog.TopItems(r.Context(), decision.Credential, q)
	switch {
	case errors.Is(err, spotify.ErrInvalidQuery):
		writeError(w, http.StatusBadRequest, err.Error())
		return
	case err != nil:
		h.logger.Error("fetching top items", "user", session.UserID, "err", err)
		writeError(w, http.StatusBadGateway, "failed to fetch favorites")
		return
	}
	writeJSON(w, http.StatusOK, items)
}

func parseTopItemsQuery(r *http.Request) (spotify.TopItemsQuery, error) {
	v := r.URL.Query()
	q := spotify.TopItemsQuery{
		Type:      spotify.ItemType(v.Get("type")),
		TimeRange: spotify.TimeRange(v.Get("time_range")),
	}
	if s := v.Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil {
			return q, fmt.Errorf("invalid limit %q", s)
		}
		q.Limit = n
	}
	if s := v.Get("offset"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil {
			return q, fmt.Errorf("invalid offset %q", s)
		}
		q.Offset = n
	}
	return q, nil
}

// requireSession returns the request's session or answers 401.
func (h *Handlers) requireSession(w http.ResponseWriter, r *http.Request) *Session {
	session := h.sessions.GetFromRequest(r)
	if session == nil {
		writeError(w, http.StatusUnauthorized, "not signed in")
	}
	return session
}

// ============================================================================
// Rendering
// ============================================================================

type partial struct {
	name string
	data any
}

func (h *Handlers) render(w http.ResponseWriter, page string, data any) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := h.templates.Render(w, page, data); err != nil {
		h.logger.Error("rendering page", "page", page, "err", err)
		http.Error(w, "Failed to render template", http.StatusInternalServerError)
	}
}

func (h *Handlers) renderPartials(w http.ResponseWriter, parts ...partial) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	for _, p := range parts {
		if err := h.templates.RenderPartial(w, p.name, p.data); err != nil {
			h.logger.Error("rendering partial", "partial", p.name, "err", err)
			http.Error(w, "Failed to render template", http.StatusInternalServerError)
			return
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	return json.NewDecoder(r.Body).Decode(v)
}

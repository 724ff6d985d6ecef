package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/charmbracelet/log"
	"github.com/urfave/cli/v3"

	"github.com/justestif/song-posts/internal/backend"
	"github.com/justestif/song-posts/internal/config"
	"github.com/justestif/song-posts/internal/dashboard"
	"github.com/justestif/song-posts/internal/db"
	"github.com/justestif/song-posts/internal/logging"
	"github.com/justestif/song-posts/internal/spotify"
	"github.com/justestif/song-posts/internal/web"
	webfs "github.com/justestif/song-posts/web"
)

// errNoSession is returned by client commands before login.
var errNoSession = errors.New("no saved session; run `song-posts login --session <id>` first")

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:   "serve",
		Usage:  "Run the web server",
		Action: serve,
	}
}

func loginCommand() *cli.Command {
	return &cli.Command{
		Name:  "login",
		Usage: "Save a browser session for CLI commands",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "session",
				Usage:    "Value of the session_id cookie after signing in with Spotify",
				Required: true,
			},
			&cli.StringFlag{
				Name:  "server",
				Usage: "Server URL (defaults to the configured backend URL)",
			},
		},
		Action: login,
	}
}

func logoutCommand() *cli.Command {
	return &cli.Command{
		Name:   "logout",
		Usage:  "Forget the saved session",
		Action: logout,
	}
}

func postCommand() *cli.Command {
	return &cli.Command{
		Name:  "post",
		Usage: "Search for a track and publish a post about it",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "query",
				Aliases:  []string{"q"},
				Usage:    "Search text",
				Required: true,
			},
			&cli.IntFlag{
				Name:  "pick",
				Usage: "1-based index of the result to post",
				Value: 1,
			},
			&cli.StringFlag{
				Name:    "description",
				Aliases: []string{"d"},
				Usage:   "Post description",
			},
			&cli.BoolFlag{
				Name:  "dry-run",
				Usage: "List results and the draft without posting",
			},
		},
		Action: post,
	}
}

func favoritesCommand() *cli.Command {
	return &cli.Command{
		Name:  "favorites",
		Usage: "Show your top tracks or artists",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "type",
				Usage: "tracks or artists",
				Value: string(spotify.ItemTracks),
			},
			&cli.StringFlag{
				Name:  "range",
				Usage: "short_term, medium_term or long_term",
				Value: string(spotify.ShortTerm),
			},
			&cli.IntFlag{
				Name:  "limit",
				Usage: "Number of items (1-50)",
				Value: 5,
			},
			&cli.IntFlag{
				Name:  "offset",
				Usage: "Index of the first item",
			},
			&cli.BoolFlag{
				Name:  "json",
				Usage: "Output raw JSON",
			},
		},
		Action: favorites,
	}
}

// setup loads configuration and builds the logger.
func setup(cmd *cli.Command) (*config.Config, *log.Logger, error) {
	cfg, err := config.Load(cmd.String("config"))
	if err != nil {
		return nil, nil, fmt.Errorf("loading config: %w", err)
	}
	logger, err := logging.New(os.Stderr, cfg.Log.Level)
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}

func newCatalog(cfg *config.Config) *spotify.Client {
	return spotify.New(spotify.WithRateLimit(cfg.Spotify.RPS, 1))
}

func serve(ctx context.Context, cmd *cli.Command) error {
	cfg, logger, err := setup(cmd)
	if err != nil {
		return err
	}
	if err := cfg.RequireSpotify(); err != nil {
		return err
	}

	templates, err := fs.Sub(webfs.TemplatesFS, "templates")
	if err != nil {
		return fmt.Errorf("creating templates filesystem: %w", err)
	}
	static, err := fs.Sub(webfs.StaticFS, "static")
	if err != nil {
		return fmt.Errorf("creating static filesystem: %w", err)
	}

	serverCfg := web.ServerConfig{
		Addr:         cfg.Server.Addr,
		ClientID:     cfg.Spotify.ClientID,
		ClientSecret: cfg.Spotify.ClientSecret,
		RedirectURI:  cfg.Spotify.RedirectURI,
		TemplatesFS:  templates,
		StaticFS:     static,
		Catalog:      newCatalog(cfg),
		Logger:       logger,
	}

	if cfg.Database.URL != "" {
		database, err := db.New(ctx, cfg.Database.URL)
		if err != nil {
			return fmt.Errorf("connecting to database: %w", err)
		}
		defer database.Close()

		if err := database.Migrate(ctx); err != nil {
			return err
		}
		serverCfg.Sessions = web.NewDBSessionStore(database)
		serverCfg.Users = database.Users()
		serverCfg.Posts = database.Posts()
		logger.Info("using postgres storage")
	} else {
		logger.Warn("DATABASE_URL not set, using in-memory storage")
	}

	server, err := web.NewServer(serverCfg)
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}
	return server.Run(ctx)
}

func login(_ context.Context, cmd *cli.Command) error {
	cfg, logger, err := setup(cmd)
	if err != nil {
		return err
	}

	server := cmd.String("server")
	if server == "" {
		server = cfg.Server.BackendURL
	}

	cache, err := backend.DefaultSessionCache()
	if err != nil {
		return err
	}
	if err := cache.Save(&backend.CachedSession{
		ID:        cmd.String("session"),
		ServerURL: server,
		SavedAt:   time.Now(),
	}); err != nil {
		return err
	}

	logger.Info("session saved", "path", cache.Path(), "server", server)
	return nil
}

func logout(_ context.Context, cmd *cli.Command) error {
	_, logger, err := setup(cmd)
	if err != nil {
		return err
	}

	cache, err := backend.DefaultSessionCache()
	if err != nil {
		return err
	}
	if err := cache.Delete(); err != nil {
		return err
	}
	logger.Info("session removed", "path", cache.Path())
	return nil
}

// loadDashboard builds a dashboard backed by the saved session and runs the
// credential gate and profile sync.
func loadDashboard(ctx context.Context, cmd *cli.Command) (*dashboard.Dashboard, *backend.Client, error) {
	cfg, logger, err := setup(cmd)
	if err != nil {
		return nil, nil, err
	}

	cache, err := backend.DefaultSessionCache()
	if err != nil {
		return nil, nil, err
	}
	saved, err := cache.Load()
	if err != nil {
		return nil, nil, err
	}
	if saved == nil {
		return nil, nil, errNoSession
	}

	serverURL := saved.ServerURL
	if serverURL == "" {
		serverURL = cfg.Server.BackendURL
	}
	client := backend.New(serverURL, saved.ID)

	d := dashboard.New(dashboard.Config{
		Sessions:  client,
		Catalog:   newCatalog(cfg),
		Users:     client,
		Posts:     client,
		Refresher: client,
		Logger:    logger,
	})

	res, err := d.Load(ctx)
	if err != nil {
		return nil, nil, err
	}
	if !res.Decision.Allowed() {
		return nil, nil, fmt.Errorf("%w: sign in again at %s%s", res.Decision.Err(), serverURL, res.Decision.Redirect)
	}
	if res.SyncErr != nil {
		logger.Warn("profile sync failed", "err", res.SyncErr)
	}
	return d, client, nil
}

func post(ctx context.Context, cmd *cli.Command) error {
	d, client, err := loadDashboard(ctx, cmd)
	if err != nil {
		return err
	}

	if err := d.SetSearchText(ctx, cmd.String("query")); err != nil {
		return err
	}
	results := d.Results()
	if len(results) == 0 {
		return fmt.Errorf("no tracks found for %q", cmd.String("query"))
	}

	for i, t := range results {
		fmt.Printf("%2d. %s - %s (%s)\n", i+1, t.Name, t.Artist(), t.AlbumName)
	}

	pick := int(cmd.Int("pick"))
	if pick < 1 || pick > len(results) {
		return fmt.Errorf("pick %d out of range 1-%d", pick, len(results))
	}

	draft := d.SelectTrack(results[pick-1])
	if err := d.EditDescription(cmd.String("description")); err != nil {
		return err
	}

	fmt.Printf("\nDraft: %s - %s\n", draft.Title, draft.Artist)
	if cmd.Bool("dry-run") {
		return nil
	}

	if err := d.Submit(ctx); err != nil {
		return err
	}

	fmt.Printf("Posted. %d posts on the server.\n", len(client.Posts()))
	return nil
}

func favorites(ctx context.Context, cmd *cli.Command) error {
	d, _, err := loadDashboard(ctx, cmd)
	if err != nil {
		return err
	}

	items, err := d.Favorites(ctx, spotify.TopItemsQuery{
		Type:      spotify.ItemType(cmd.String("type")),
		TimeRange: spotify.TimeRange(cmd.String("range")),
		Limit:     int(cmd.Int("limit")),
		Offset:    int(cmd.Int("offset")),
	})
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(items)
	}

	for i, t := range items.Tracks {
		fmt.Printf("%2d. %s - %s\n", i+1, t.Name, t.Artist())
	}
	for i, a := range items.Artists {
		fmt.Printf("%2d. %s\n", i+1, a.Name)
	}
	return nil
}

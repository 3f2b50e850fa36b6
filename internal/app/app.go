package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	stdhttp "net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/robceliesius/plugin-ably/internal/config"
	"github.com/robceliesius/plugin-ably/internal/host"
	"github.com/robceliesius/plugin-ably/internal/plugin"
	"github.com/robceliesius/plugin-ably/internal/realtime"
	"github.com/robceliesius/plugin-ably/internal/realtime/ablyrt"
	"github.com/robceliesius/plugin-ably/internal/realtime/memory"
	"github.com/robceliesius/plugin-ably/internal/store"
	"github.com/robceliesius/plugin-ably/internal/store/sqlite"
	"github.com/robceliesius/plugin-ably/internal/token"
	transporthttp "github.com/robceliesius/plugin-ably/internal/transport/http"
)

// App wires together the adapter, realtime driver and transport layers.
type App struct {
	server          *stdhttp.Server
	shutdownTimeout time.Duration
	hub             *host.Hub
	plugin          *plugin.Plugin
	settings        plugin.Settings
	store           store.HistoryStore
	log             *zerolog.Logger
}

// New constructs the application with provided configuration.
func New(cfg *config.Config, logger *zerolog.Logger) (*App, error) {
	st, err := sqlite.New(cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("init store: %w", err)
	}
	logger.Info().Str("db_path", cfg.DatabasePath).Msg("database initialized")

	var issuer *token.Issuer
	if cfg.Token.Secret != "" {
		issuer = token.NewIssuer(token.IssuerConfig{
			Secret:   []byte(cfg.Token.Secret),
			Issuer:   cfg.Token.Issuer,
			Audience: cfg.Token.Audience,
			TTL:      cfg.Token.TTL,
		})
	}

	dialer, err := newDialer(cfg.Driver, st, issuer, logger)
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	var user *host.User
	if cfg.User.ID != "" {
		u := cfg.User
		user = &u
	}
	hub := host.NewHub(user, logger)

	p := plugin.New(plugin.Options{
		Dialer: dialer,
		Host:   hub,
		Logger: logger,
	})

	deps := transporthttp.Deps{Adapter: p, Hub: hub}
	if issuer != nil {
		deps.Issuer = issuer
	}
	server := transporthttp.NewServer(deps, transporthttp.ServerConfig{
		Addr:              cfg.Addr,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WSActionLimit:     cfg.WSActionLimit,
	}, logger)

	settings := cfg.Plugin
	if settings.TokenEndpoint == "" && issuer != nil {
		settings.TokenEndpoint = selfTokenEndpoint(cfg.Addr)
		logger.Info().Str("endpoint", settings.TokenEndpoint).Msg("using built-in token endpoint")
	}

	return &App{
		server:          server,
		shutdownTimeout: cfg.ShutdownTimeout,
		hub:             hub,
		plugin:          p,
		settings:        settings,
		store:           st,
		log:             logger,
	}, nil
}

func newDialer(driver string, st store.HistoryStore, issuer *token.Issuer, logger *zerolog.Logger) (realtime.Dialer, error) {
	switch driver {
	case config.DriverAbly:
		return ablyrt.Dial, nil
	case config.DriverMemory:
		opts := []memory.Option{memory.WithLogger(logger)}
		if issuer != nil {
			opts = append(opts, memory.WithVerifier(func(tok string) (string, error) {
				claims, err := issuer.Verify(tok)
				if err != nil {
					return "", err
				}
				return claims.ClientID, nil
			}))
		}
		return memory.NewService(st, opts...).Dial, nil
	}
	return nil, fmt.Errorf("unknown driver %q", driver)
}

// selfTokenEndpoint points the plugin at this server's /token route.
func selfTokenEndpoint(addr string) string {
	h, port, err := net.SplitHostPort(addr)
	if err != nil {
		return "http://" + addr + "/token"
	}
	if h == "" || h == "0.0.0.0" || h == "::" {
		h = "127.0.0.1"
	}
	return "http://" + net.JoinHostPort(h, port) + "/token"
}

// Run starts the HTTP server, loads the plugin and blocks until context
// cancellation or fatal error.
func (a *App) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", a.server.Addr)
	if err != nil {
		a.cleanup()
		return fmt.Errorf("listen: %w", err)
	}
	a.log.Info().Str("addr", ln.Addr().String()).Msg("http server listening")

	serverErr := make(chan error, 1)

	go a.hub.Run(ctx)

	go func() {
		if err := a.server.Serve(ln); err != nil && !errors.Is(err, stdhttp.ErrServerClosed) {
			serverErr <- err
			return
		}
		serverErr <- nil
	}()

	// The listener is up, so a built-in token endpoint can already answer.
	if err := a.plugin.Load(ctx, a.settings); err != nil {
		a.log.Warn().Err(err).Msg("plugin failed to load")
	}

	select {
	case err := <-serverErr:
		a.plugin.Destroy(context.Background())
		a.cleanup()
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.shutdownTimeout)
		defer cancel()

		a.plugin.Destroy(shutdownCtx)

		a.log.Info().Msg("shutting down http server")
		if err := a.server.Shutdown(shutdownCtx); err != nil {
			a.cleanup()
			return err
		}

		a.cleanup()
		return <-serverErr
	}
}

// cleanup closes database and other resources.
func (a *App) cleanup() {
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.log.Warn().Err(err).Msg("failed to close store")
		} else {
			a.log.Info().Msg("store closed")
		}
	}
}

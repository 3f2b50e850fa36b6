// Package plugin adapts a realtime client to a low-code host. Host actions
// become client calls; client events become host workflow triggers.
//
// A Plugin owns one realtime client, the registry of subscribed channels and
// the registry of entered spaces. Registries and the projected state are
// guarded by a mutex that is never held across network calls.
package plugin

import (
	"context"
	"errors"
	"math/rand/v2"
	"net/http"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/robceliesius/plugin-ably/internal/bridge"
	"github.com/robceliesius/plugin-ably/internal/host"
	"github.com/robceliesius/plugin-ably/internal/identity"
	"github.com/robceliesius/plugin-ably/internal/metrics"
	"github.com/robceliesius/plugin-ably/internal/realtime"
	"github.com/robceliesius/plugin-ably/internal/token"
)

const (
	DefaultPluginID          = "ably"
	DefaultIdentityNamespace = "weweb"
)

// Settings are the host-supplied plugin settings.
type Settings struct {
	TokenEndpoint     string `mapstructure:"token_endpoint" yaml:"token_endpoint"`
	EchoMessages      bool   `mapstructure:"echo_messages" yaml:"echo_messages"`
	AutoConnect       bool   `mapstructure:"auto_connect" yaml:"auto_connect"`
	ClientID          string `mapstructure:"client_id" yaml:"client_id"`
	PluginID          string `mapstructure:"plugin_id" yaml:"plugin_id"`
	IdentityNamespace string `mapstructure:"identity_namespace" yaml:"identity_namespace"`
}

// DefaultSettings returns settings with every default applied and no endpoint.
func DefaultSettings() Settings {
	return Settings{
		EchoMessages:      true,
		AutoConnect:       true,
		PluginID:          DefaultPluginID,
		IdentityNamespace: DefaultIdentityNamespace,
	}
}

// Validate reports a ConfigurationError when the settings cannot be used.
func (s Settings) Validate() error {
	if strings.TrimSpace(s.TokenEndpoint) == "" {
		return &ConfigurationError{Message: "token endpoint not configured"}
	}
	return nil
}

// Options configure a Plugin.
type Options struct {
	// Dialer creates the realtime client. Required.
	Dialer realtime.Dialer
	// Host receives triggers and notifications. May be nil.
	Host host.Host
	// HTTPClient is used for token requests. Defaults to a client with a timeout.
	HTTPClient *http.Client
	Logger     *zerolog.Logger
}

// Plugin is the host adapter.
type Plugin struct {
	dialer     realtime.Dialer
	host       host.Host
	httpClient *http.Client
	log        *zerolog.Logger

	now  func() time.Time
	rand func(n int) int

	mu       sync.Mutex
	settings Settings
	client   realtime.Client
	spaces   realtime.Spaces
	offConn  func()
	provider *token.Provider
	resolver *identity.Resolver
	bridge   *bridge.Bridge
	clientID string
	channels map[string]*channelEntry
	entered  map[string]*spaceEntry
	state    State
}

// New creates an uninitialized plugin. Call Load before running actions.
func New(opts Options) *Plugin {
	logger := opts.Logger
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Plugin{
		dialer:     opts.Dialer,
		host:       opts.Host,
		httpClient: opts.HTTPClient,
		log:        logger,
		now:        time.Now,
		rand:       rand.IntN,
		channels:   make(map[string]*channelEntry),
		entered:    make(map[string]*spaceEntry),
		state:      State{ConnectionState: StatusDisconnected},
	}
}

// Load is called when the host loads the plugin.
func (p *Plugin) Load(ctx context.Context, settings Settings) error {
	return p.Init(ctx, settings)
}

// Init (re)initializes the realtime client from settings. Missing settings
// are reported to the host as a warning and leave the plugin uninitialized
// without returning an error.
func (p *Plugin) Init(ctx context.Context, settings Settings) error {
	if settings.PluginID == "" {
		settings.PluginID = DefaultPluginID
	}
	if settings.IdentityNamespace == "" {
		settings.IdentityNamespace = DefaultIdentityNamespace
	}

	if err := settings.Validate(); err != nil {
		p.log.Warn().Err(err).Msg("plugin not initialized")
		p.notify(host.LevelWarning, "Ably token endpoint not configured")
		return nil
	}

	p.mu.Lock()
	existing := p.client
	p.mu.Unlock()
	if existing != nil {
		p.Disconnect(ctx)
		p.release()
	}

	if err := p.initialize(settings); err != nil {
		p.log.Error().Err(err).Msg("plugin initialization failed")
		p.notify(host.LevelError, "Failed to initialize Ably: "+err.Error())
		return err
	}
	return nil
}

func (p *Plugin) initialize(settings Settings) error {
	if p.dialer == nil {
		return &ConfigurationError{Message: "no realtime driver configured"}
	}

	provider := token.NewProvider(settings.TokenEndpoint, p.httpClient, p.log)
	resolver := identity.NewResolver(settings.ClientID, settings.IdentityNamespace, p.host, p.log)
	clientID := resolver.Resolve()

	p.log.Info().Str("client_id", clientID).Msg("initializing realtime client")

	p.mu.Lock()
	p.settings = settings
	p.provider = provider
	p.resolver = resolver
	p.clientID = clientID
	p.bridge = bridge.New(settings.PluginID, p.host)
	p.mu.Unlock()

	client, err := p.dialer(realtime.ClientOptions{
		ClientID:     clientID,
		EchoMessages: settings.EchoMessages,
		AuthCallback: p.fetchToken,
	})
	if err != nil {
		return err
	}

	spaces, err := client.Spaces()
	if err != nil {
		if !errors.Is(err, realtime.ErrSpacesUnsupported) {
			client.Close()
			return err
		}
		p.log.Info().Msg("realtime driver has no spaces support, space actions are disabled")
		spaces = nil
	}

	off := client.OnConnectionChange(p.onConnectionChange)

	p.mu.Lock()
	p.client = client
	p.spaces = spaces
	p.offConn = off
	p.mu.Unlock()

	// Connecting is started here, after the state listener is attached, so
	// no transition is missed.
	if settings.AutoConnect {
		client.Connect()
	}

	p.log.Info().Msg("plugin initialized successfully")
	return nil
}

// fetchToken is the realtime client's auth callback.
func (p *Plugin) fetchToken(ctx context.Context, params realtime.TokenParams) (*realtime.Token, error) {
	p.mu.Lock()
	provider := p.provider
	clientID := p.clientID
	p.mu.Unlock()

	req := token.Request{ClientID: clientID}
	if params.ClientID != "" {
		req.ClientID = params.ClientID
	}
	if p.host != nil {
		if u := p.host.User(); u != nil {
			req.UserID = u.ID
			req.UserEmail = u.Email
		}
	}

	// The provider logs the request and its outcome.
	return provider.Fetch(ctx, req)
}

// Destroy disconnects and drops every reference to the client.
func (p *Plugin) Destroy(ctx context.Context) {
	p.log.Info().Msg("destroying plugin")
	p.Disconnect(ctx)
	p.release()
}

func (p *Plugin) release() {
	p.mu.Lock()
	off := p.offConn
	p.offConn = nil
	p.client = nil
	p.spaces = nil
	p.channels = make(map[string]*channelEntry)
	p.entered = make(map[string]*spaceEntry)
	p.state.ActiveChannels = nil
	p.state.ActiveSpaces = nil
	p.state.CurrentSpace = ""
	p.mu.Unlock()

	if off != nil {
		off()
	}
}

// ClientID returns the identity the client connects with.
func (p *Plugin) ClientID() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.clientID
}

func (p *Plugin) currentClient() realtime.Client {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.client
}

func (p *Plugin) emit(event string, payload any) {
	p.mu.Lock()
	b := p.bridge
	p.mu.Unlock()
	b.Emit(event, payload)
}

func (p *Plugin) notify(level host.Level, text string) {
	if p.host != nil {
		p.host.Notify(level, text)
	}
}

func (p *Plugin) millis() int64 {
	return p.now().UnixMilli()
}

func (p *Plugin) recordRegistries() {
	metrics.SetRegistryEntries("channels", len(p.channels))
	metrics.SetRegistryEntries("spaces", len(p.entered))
}

// removeName deletes name from a state name list. Callers hold p.mu.
func removeName(names []string, name string) []string {
	if i := slices.Index(names, name); i >= 0 {
		return slices.Delete(names, i, i+1)
	}
	return names
}

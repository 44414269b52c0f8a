package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/dsa-judge/dsactl/pkg/api"
	"github.com/dsa-judge/dsactl/pkg/auth"
	"github.com/dsa-judge/dsactl/pkg/logging"
	"github.com/dsa-judge/dsactl/pkg/metrics"
	"github.com/dsa-judge/dsactl/pkg/payload"
	"github.com/dsa-judge/dsactl/pkg/progress"
	"github.com/dsa-judge/dsactl/pkg/ratelimit"
	"github.com/dsa-judge/dsactl/pkg/retry"
	"github.com/dsa-judge/dsactl/pkg/store"
	dsatls "github.com/dsa-judge/dsactl/pkg/tls"
	"github.com/dsa-judge/dsactl/pkg/tracing"
)

const version = "0.4.0"

// app holds everything a command needs to talk to the API
type app struct {
	logger    *logging.Logger
	client    *api.Client
	session   *auth.Manager
	store     store.SessionStore
	metrics   *metrics.Registry
	tracer    *tracing.Provider
	unwrapper *payload.Unwrapper
	dialer    *websocket.Dialer
}

// newApp builds the client stack from the effective configuration
func newApp(cmd *cobra.Command) (*app, error) {
	logger := logging.NewLogger(logging.ParseLevel(viper.GetString("log_level")), viper.GetBool("log_json"))

	tlsOpts := dsatls.Options{
		CAFile:             viper.GetString("ca_file"),
		InsecureSkipVerify: viper.GetBool("insecure"),
	}
	transport, err := dsatls.Transport(tlsOpts)
	if err != nil {
		return nil, err
	}
	if tlsOpts.InsecureSkipVerify {
		logger.Warn("TLS certificate verification is disabled")
	}

	tracer, err := tracing.InitTracer(tracing.Config{
		ServiceName:    "dsactl",
		ServiceVersion: version,
		OTLPEndpoint:   viper.GetString("otlp_endpoint"),
		Enabled:        viper.GetString("otlp_endpoint") != "",
	})
	if err != nil {
		return nil, err
	}

	var rt http.RoundTripper = transport
	rt = ratelimit.NewLimiter(viper.GetFloat64("rate_limit"), 1).Transport(rt)
	rt = tracer.Transport(rt)

	client, err := api.NewClientWithTransport(GetAPIURL(), rt)
	if err != nil {
		return nil, err
	}
	reg := metrics.NewRegistry()
	client.SetLogger(logger)
	client.SetRetryConfig(retry.DefaultConfig())
	client.SetMetrics(reg.API)

	sessionStore, err := openSessionStore()
	if err != nil {
		return nil, err
	}

	errOut := cmd.ErrOrStderr()
	manager, err := auth.NewManager(sessionStore, client,
		auth.WithCookieHolder(client),
		auth.WithLogger(logger),
		auth.WithNotifier(auth.WriterNotifier{W: errOut}),
		auth.WithLogoutHook(func() {
			fmt.Fprintln(errOut, "Logged out. Run 'dsactl login' to sign in.")
		}),
	)
	if err != nil {
		sessionStore.Close()
		return nil, err
	}

	return &app{
		logger:    logger,
		client:    client,
		session:   manager,
		store:     sessionStore,
		metrics:   reg,
		tracer:    tracer,
		unwrapper: payload.New(logger),
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: 15 * time.Second,
			TLSClientConfig:  transport.TLSClientConfig,
		},
	}, nil
}

// Close flushes traces and logs and releases the session store
func (a *app) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.tracer.Shutdown(ctx); err != nil {
		a.logger.Warn("failed to flush traces", map[string]interface{}{"error": err.Error()})
	}
	if err := a.store.Close(); err != nil {
		a.logger.Warn("failed to close session store", map[string]interface{}{"error": err.Error()})
	}
	_ = a.logger.Sync()
}

// wsURL returns the configured websocket base or derives it from the API URL
func (a *app) wsURL() (string, error) {
	if u := viper.GetString("ws_url"); u != "" {
		return u, nil
	}
	return progress.WSURL(GetAPIURL())
}

func openSessionStore() (store.SessionStore, error) {
	path := viper.GetString("session_path")

	switch kind := viper.GetString("session_store"); kind {
	case "", "file":
		if path == "" {
			path = filepath.Join(configDir(), "session.yaml")
		}
		return store.NewFileStore(path), nil
	case "sqlite":
		if path == "" {
			path = filepath.Join(configDir(), "session.db")
		}
		if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
			return nil, fmt.Errorf("failed to create %s: %w", filepath.Dir(path), err)
		}
		return store.NewSQLiteStore(path)
	case "memory":
		return store.NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown session store %q (want file, sqlite or memory)", kind)
	}
}

// withApp wraps a RunE so that the app is built before and closed after it
func withApp(run func(cmd *cobra.Command, args []string, a *app) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()
		return run(cmd, args, a)
	}
}

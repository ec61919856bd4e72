package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/arjunv/quotaproxy/internal/config"
	"github.com/arjunv/quotaproxy/internal/health"
	"github.com/arjunv/quotaproxy/internal/keyengine"
	"github.com/arjunv/quotaproxy/internal/ratelimit"
	"github.com/arjunv/quotaproxy/internal/respcache"
	"github.com/arjunv/quotaproxy/internal/transport"
)

var (
	logLevel    string
	logFormat   string
	enableHTTP2 bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the quotaproxy server",
	Long: `Start the proxy server that accepts Generative Language API requests,
picks a (model, key) pair via the key engine, and relays the request
upstream.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&logLevel, "log-level", "",
		"log level (debug, info, warn, error) - overrides config")
	serveCmd.Flags().StringVar(&logFormat, "log-format", "",
		"log format (json, console) - overrides config")
	serveCmd.Flags().BoolVar(&enableHTTP2, "h2c", false,
		"accept HTTP/2 cleartext connections")
}

func runServe(_ *cobra.Command, _ []string) error {
	configPath := resolveConfigPath()

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Error().Err(err).Str("path", configPath).Msg("failed to load config")
		return err
	}

	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	if logFormat != "" {
		cfg.Logging.Format = logFormat
	}

	if err := cfg.Validate(); err != nil {
		log.Error().Err(err).Str("path", configPath).Msg("invalid config")
		return err
	}

	logger, err := transport.NewLogger(cfg.Logging)
	if err != nil {
		return err
	}
	log.Logger = logger
	zerolog.DefaultContextLogger = &logger

	engine, checker, router, err := buildServer(cfg, configPath, &logger)
	if err != nil {
		log.Error().Err(err).Msg("failed to build server")
		return err
	}
	checker.Start()
	defer checker.Stop()

	runtime := config.NewRuntime(cfg)
	stopWatch, err := watchConfig(configPath, runtime, engine, &logger)
	if err != nil {
		log.Warn().Err(err).Msg("config hot-reload disabled")
	} else {
		defer stopWatch()
	}

	server := transport.NewServer(cfg.Server.GetListenAddr(), router, enableHTTP2)
	return runWithGracefulShutdown(server, engine)
}

// buildServer wires the config into a running key engine and HTTP router:
// engine -> response cache -> upstream client (circuit-breaker guarded)
// -> handler -> router.
func buildServer(cfg *config.Config, configPath string, logger *zerolog.Logger) (*keyengine.Engine, *health.Checker, http.Handler, error) {
	usagePath, unavailablePath := config.DefaultStatePaths(configPath)

	engineCfg, err := cfg.ToEngineConfig(config.EngineOptions{
		UsageFilePath:       usagePath,
		UnavailableFilePath: unavailablePath,
		Logger:              logger,
		ConfigPath:          configPath,
	})
	if err != nil {
		return nil, nil, nil, err
	}

	engine, err := keyengine.NewEngine(engineCfg)
	if err != nil {
		return nil, nil, nil, err
	}

	cacheCfg := respcache.FromEngineConfig(cfg.Cache.Enabled, cfg.Cache.MaxEntries, cfg.Cache.MaxCostBytes)
	cache, err := respcache.New(context.Background(), &cacheCfg)
	if err != nil {
		return nil, nil, nil, err
	}

	upstreamBaseURL := cfg.Server.GetUpstreamBaseURL()
	httpClient := &http.Client{Timeout: cfg.Server.GetRequestTimeout()}

	tracker := health.NewTracker(cfg.Health.CircuitBreaker, logger)
	checker := health.NewChecker(tracker, cfg.Health.HealthCheck, logger)
	checker.Register(health.NewUpstreamHealthCheck(upstreamCircuitName, upstreamBaseURL, nil))

	upstream := transport.NewUpstreamClient(upstreamBaseURL, httpClient).WithHealthTracker(tracker)

	handler := transport.NewHandler(engine, cache, upstream, cfg.Server.GetMaxRetries())

	var limiter ratelimit.RateLimiter
	if cfg.Server.IngressRPM > 0 || cfg.Server.IngressTPM > 0 {
		limiter = ratelimit.NewTokenBucketLimiter(cfg.Server.IngressRPM, cfg.Server.IngressTPM)
	}

	return engine, checker, transport.NewRouter(handler, limiter), nil
}

// upstreamCircuitName identifies the Gemini upstream in the health
// tracker and checker registry.
const upstreamCircuitName = "generativelanguage"

// watchConfig watches the config file for changes so operators can edit
// key pools without restarting the process. Each reloaded document is
// stored into runtime (so any component holding a config.RuntimeConfig
// observes it immediately) and its key pools are pushed into the
// running engine via ReloadKeyPools. Everything else in the document
// (model limits, fallback strategy, server settings, ...) still
// requires a restart to take effect: only pool membership is safe to
// swap under a live engine.
func watchConfig(configPath string, runtime *config.Runtime, engine *keyengine.Engine, logger *zerolog.Logger) (func(), error) {
	w, err := config.NewWatcher(configPath)
	if err != nil {
		return nil, err
	}

	w.OnReload(func(reloaded *config.Config) error {
		if err := reloaded.Validate(); err != nil {
			logger.Error().Err(err).Str("path", configPath).Msg("reloaded config is invalid; keeping previous key pools")
			return err
		}
		runtime.Store(reloaded)

		priority, secondary := reloaded.KeyPools()
		if err := engine.ReloadKeyPools(priority, secondary); err != nil {
			logger.Error().Err(err).Str("path", configPath).Msg("failed to reload key pools")
			return err
		}

		logger.Info().Str("path", configPath).Msg("config file changed on disk; key pools reloaded")
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		if err := w.Watch(ctx); err != nil {
			logger.Warn().Err(err).Msg("config watcher stopped")
		}
	}()

	return func() {
		cancel()
		_ = w.Close()
	}, nil
}

// runWithGracefulShutdown handles signal-based graceful shutdown,
// ticking the engine's reset scheduler once a minute while serving.
func runWithGracefulShutdown(server *transport.Server, engine *keyengine.Engine) error {
	done := make(chan struct{})
	go func() {
		sigint := make(chan os.Signal, 1)
		signal.Notify(sigint, os.Interrupt, syscall.SIGTERM)
		<-sigint

		log.Info().Msg("shutting down...")

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := server.Shutdown(ctx); err != nil {
			log.Error().Err(err).Msg("server shutdown error")
		}

		close(done)
	}()

	go tickEngine(engine, done)

	log.Info().Str("listen", server.Addr()).Msg("starting quotaproxy")

	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Error().Err(err).Msg("server error")
		return err
	}

	<-done
	log.Info().Msg("server stopped")
	return nil
}

// tickEngine calls Engine.Tick once a minute so the daily reset
// scheduler fires even during quiet periods with no inbound requests.
func tickEngine(engine *keyengine.Engine, done <-chan struct{}) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			engine.Tick()
		case <-done:
			return
		}
	}
}

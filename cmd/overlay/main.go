// Command overlay runs the StreamGlass overlay service: the state store, the
// bot socket client, the mirror and archive side channels, and the HTTP/WS
// surface the browser sources attach to.
package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"streamglass/internal/action"
	"streamglass/internal/admission"
	"streamglass/internal/api"
	"streamglass/internal/archive"
	"streamglass/internal/bot"
	"streamglass/internal/hub"
	"streamglass/internal/mirror"
	"streamglass/internal/observability/logging"
	"streamglass/internal/observability/metrics"
	"streamglass/internal/presenter"
	"streamglass/internal/server"
	"streamglass/internal/state"
	"streamglass/internal/store"
)

const healthInterval = 30 * time.Second

func main() {
	addr := flag.String("addr", "", "HTTP listen address")
	tlsCert := flag.String("tls-cert", "", "path to TLS certificate file")
	tlsKey := flag.String("tls-key", "", "path to TLS private key file")
	logLevel := flag.String("log-level", "info", "log level (debug, info, warn, error)")
	logFormat := flag.String("log-format", "", "log format (json or text)")
	botURL := flag.String("bot-url", "", "websocket URL of the automation bot event feed")
	botToken := flag.String("bot-token", "", "bearer token for the bot socket")
	botLocale := flag.String("bot-locale", "", "locale tag for donation amount formatting")
	mirrorRedisAddr := flag.String("mirror-redis-addr", "", "Redis address for the latest-event mirror")
	mirrorRedisPassword := flag.String("mirror-redis-password", "", "Redis password for the latest-event mirror")
	mirrorRedisDB := flag.Int("mirror-redis-db", 0, "Redis database for the latest-event mirror")
	mirrorPrefix := flag.String("mirror-prefix", "", "variable name prefix for mirrored entries")
	archiveDSN := flag.String("archive-postgres-dsn", "", "Postgres DSN for the dismissed-alert archive")
	maxVisible := flag.Int("max-visible", 0, "maximum alerts on screen at once")
	maxQueue := flag.Int("max-queue", 0, "maximum pending alerts before drop-oldest kicks in")
	maxDismissed := flag.Int("max-dismissed", 0, "size of the recently-dismissed dedupe ring")
	activityMax := flag.Int("activity-max", 0, "maximum rows kept in the activity feed")
	alertDisplay := flag.Duration("alert-display", 0, "how long an alert stays fully visible")
	alertExit := flag.Duration("alert-exit", 0, "length of the alert exit transition")
	counters := flag.String("counters", "", "comma separated counter slot ids")
	controlToken := flag.String("control-token", "", "bearer token guarding the alert control endpoints")
	flag.Parse()

	logger := logging.Init(logging.Config{
		Level:  firstNonEmpty(*logLevel, os.Getenv("STREAMGLASS_LOG_LEVEL")),
		Format: firstNonEmpty(*logFormat, os.Getenv("STREAMGLASS_LOG_FORMAT")),
	})
	recorder := metrics.Default()

	tree := state.NewTree(state.Options{
		MaxVisible:   resolveInt(*maxVisible, "STREAMGLASS_MAX_VISIBLE"),
		MaxQueueSize: resolveInt(*maxQueue, "STREAMGLASS_MAX_QUEUE"),
		MaxDismissed: resolveInt(*maxDismissed, "STREAMGLASS_MAX_DISMISSED"),
		ActivityMax:  resolveInt(*activityMax, "STREAMGLASS_ACTIVITY_MAX"),
		CounterIDs:   splitAndTrim(firstNonEmpty(*counters, os.Getenv("STREAMGLASS_COUNTERS"))),
	})
	st := store.New(store.Config{Initial: tree, Logger: logger, Metrics: recorder})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// The bot client doubles as a mirror target: its variable writes land in
	// the bot's own global variable store.
	var botClient *bot.Client
	if url := firstNonEmpty(*botURL, os.Getenv("STREAMGLASS_BOT_URL")); url != "" {
		client, err := bot.New(bot.Config{
			URL:     url,
			Token:   firstNonEmpty(*botToken, os.Getenv("STREAMGLASS_BOT_TOKEN")),
			Locale:  firstNonEmpty(*botLocale, os.Getenv("STREAMGLASS_BOT_LOCALE")),
			Logger:  logger,
			Metrics: recorder,
		}, st.Send)
		if err != nil {
			logger.Error("failed to configure bot client", "error", err)
			os.Exit(1)
		}
		botClient = client
	}

	var (
		mirrorTargets []mirror.VariableStore
		redisStore    *mirror.RedisStore
	)
	prefix := firstNonEmpty(*mirrorPrefix, os.Getenv("STREAMGLASS_MIRROR_PREFIX"))
	if redisAddrValue := firstNonEmpty(*mirrorRedisAddr, os.Getenv("STREAMGLASS_MIRROR_REDIS_ADDR")); redisAddrValue != "" {
		rs, err := mirror.NewRedisStore(ctx, mirror.RedisConfig{
			Addr:     redisAddrValue,
			Password: firstNonEmpty(*mirrorRedisPassword, os.Getenv("STREAMGLASS_MIRROR_REDIS_PASSWORD")),
			DB:       resolveInt(*mirrorRedisDB, "STREAMGLASS_MIRROR_REDIS_DB"),
		})
		if err != nil {
			logger.Error("failed to connect mirror redis", "error", err)
			os.Exit(1)
		}
		redisStore = rs
		defer redisStore.Close()
		mirrorTargets = append(mirrorTargets, redisStore)
	}
	if botClient != nil {
		mirrorTargets = append(mirrorTargets, botClient)
	}

	var archiveRecorder *archive.Recorder
	if dsn := firstNonEmpty(*archiveDSN, os.Getenv("STREAMGLASS_ARCHIVE_POSTGRES_DSN")); dsn != "" {
		rec, err := archive.Open(ctx, dsn, logger, recorder)
		if err != nil {
			logger.Error("failed to open alert archive", "error", err)
			os.Exit(1)
		}
		archiveRecorder = rec
		defer archiveRecorder.Close()
	}

	// Ordering matters: logging sees every action first, admission decides
	// promotions, and the best-effort side channels observe committed state.
	st.Use(store.LoggingMiddleware(logger))
	st.Use(admission.Middleware(logger, recorder))
	st.Use(mirror.Middleware(mirrorTargets, prefix, logger, recorder))
	st.Use(archiveRecorder.Middleware())

	if redisStore != nil {
		if err := mirror.Restore(ctx, redisStore, prefix, st.Send, logger); err != nil {
			logger.Warn("latest-event restore failed", "error", err)
		}
	}

	overlayHub := hub.New(hub.Config{Store: st, Logger: logger, Metrics: recorder})
	defer overlayHub.Close()

	alertPresenter := presenter.New(presenter.Config{
		Store:   st,
		Display: resolveDuration(*alertDisplay, "STREAMGLASS_ALERT_DISPLAY"),
		Exit:    resolveDuration(*alertExit, "STREAMGLASS_ALERT_EXIT"),
		Logger:  logger,
	})
	defer alertPresenter.Close()

	handler := api.NewHandler(st, firstNonEmpty(*controlToken, os.Getenv("STREAMGLASS_CONTROL_TOKEN")))
	listenAddr := firstNonEmpty(*addr, os.Getenv("STREAMGLASS_ADDR"), ":8470")
	srv, err := server.New(handler, overlayHub, server.Config{
		Addr: listenAddr,
		TLS: server.TLSConfig{
			CertFile: firstNonEmpty(*tlsCert, os.Getenv("STREAMGLASS_TLS_CERT")),
			KeyFile:  firstNonEmpty(*tlsKey, os.Getenv("STREAMGLASS_TLS_KEY")),
		},
		Logger:  logger,
		Metrics: recorder,
	})
	if err != nil {
		logger.Error("failed to initialise server", "error", err)
		os.Exit(1)
	}

	startedAt := time.Now()
	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		err := st.Run(groupCtx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
	if botClient != nil {
		group.Go(func() error {
			err := botClient.Run(groupCtx)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})
	}
	group.Go(func() error {
		ticker := time.NewTicker(healthInterval)
		defer ticker.Stop()
		for {
			select {
			case <-groupCtx.Done():
				return nil
			case <-ticker.C:
				_ = st.Send(action.NewHealthReport(action.HealthReport{
					Status:        "ok",
					UptimeSeconds: int64(time.Since(startedAt).Seconds()),
				}))
			}
		}
	})
	group.Go(func() error {
		logger.Info("StreamGlass overlay listening", "addr", listenAddr)
		logger.Info("metrics endpoint available", "path", "/metrics")
		return srv.Run(groupCtx)
	})

	if err := group.Wait(); err != nil {
		logger.Error("overlay stopped with error", "error", err)
		os.Exit(1)
	}
	logger.Info("overlay stopped")
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		trimmed := strings.TrimSpace(value)
		if trimmed != "" {
			return trimmed
		}
	}
	return ""
}

func splitAndTrim(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			out = append(out, trimmed)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func resolveDuration(flagValue time.Duration, envKey string) time.Duration {
	if flagValue > 0 {
		return flagValue
	}
	if env := os.Getenv(envKey); env != "" {
		if value, err := time.ParseDuration(strings.TrimSpace(env)); err == nil {
			return value
		}
	}
	return 0
}

func resolveInt(flagValue int, envKey string) int {
	if flagValue > 0 {
		return flagValue
	}
	if env := os.Getenv(envKey); env != "" {
		if value, err := strconv.Atoi(strings.TrimSpace(env)); err == nil {
			return value
		}
	}
	return 0
}

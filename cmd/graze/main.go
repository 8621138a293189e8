package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/Graze/Graze/internal/analytics"
	"github.com/Graze/Graze/internal/api"
	"github.com/Graze/Graze/internal/buildinfo"
	"github.com/Graze/Graze/internal/claim"
	"github.com/Graze/Graze/internal/config"
	"github.com/Graze/Graze/internal/engine"
	"github.com/Graze/Graze/internal/logbuf"
	"github.com/Graze/Graze/internal/maintenance"
	"github.com/Graze/Graze/internal/poller"
	"github.com/Graze/Graze/internal/pubsub"
	"github.com/Graze/Graze/internal/registry"
	"github.com/Graze/Graze/internal/router"
	"github.com/Graze/Graze/internal/service"
	"github.com/Graze/Graze/internal/twitch"
	"github.com/Graze/Graze/internal/watch"
)

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
	os.Exit(1)
}

func buildLogger(ring *logbuf.Ring, logFile string) (zerolog.Logger, func(), error) {
	console := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	captured := zerolog.ConsoleWriter{Out: ring, TimeFormat: time.RFC3339}

	writers := []io.Writer{console, captured}
	cleanup := func() {}
	if logFile != "" {
		f, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return zerolog.Logger{}, nil, fmt.Errorf("open log file: %w", err)
		}
		writers = append(writers, f)
		cleanup = func() { f.Close() }
	}
	log := zerolog.New(zerolog.MultiLevelWriter(writers...)).With().Timestamp().Logger()
	return log, cleanup, nil
}

func main() {
	simulateDefault, err := config.EnvBool("SIMULATE", false)
	if err != nil {
		fatal(err)
	}
	var (
		configPath  = flag.String("config", config.EnvString("CONFIG", "config.yaml"), "path to the YAML config file")
		address     = flag.String("address", config.EnvString("ADDRESS", "0.0.0.0:3000"), "listen address for the HTTP API")
		simulate    = flag.Bool("simulate", simulateDefault, "evaluate bets without spending points")
		tokenPath   = flag.String("token", config.EnvString("TOKEN", "tokens.json"), "path to the token file")
		logFile     = flag.String("log-file", config.EnvString("LOG_FILE", ""), "append JSON logs to this file")
		analyticsDB = flag.String("analytics-db", config.EnvString("ANALYTICS_DB", ""), "path to the analytics database (default from config, else analytics.db)")
	)
	flag.Parse()

	ring := logbuf.New(1000)
	log, cleanupLog, err := buildLogger(ring, *logFile)
	if err != nil {
		fatal(err)
	}
	defer cleanupLog()
	log.Info().Str("version", buildinfo.Version).Bool("simulate", *simulate).Msg("starting")

	token, err := twitch.LoadToken(*tokenPath)
	if err != nil {
		fatal(err)
	}
	cfg, err := config.Load(*configPath)
	if err != nil {
		fatal(err)
	}
	if err := cfg.ParseAndValidate(); err != nil {
		fatal(fmt.Errorf("config: %w", err))
	}
	file := config.NewFile(*configPath)

	gql := twitch.NewGQLClient(twitch.GQLOptions{
		Token:    token.AccessToken,
		Simulate: *simulate,
		Logger:   log,
	})
	spade := twitch.NewSpadeClient("", token.AccessToken)

	ctx := context.Background()
	userIDStr, userLogin, err := gql.CurrentUser(ctx)
	if err != nil {
		fatal(fmt.Errorf("current user: %w", err))
	}
	userID, err := strconv.ParseInt(userIDStr, 10, 64)
	if err != nil {
		fatal(fmt.Errorf("current user id %q: %w", userIDStr, err))
	}
	log.Info().Str("login", userLogin).Int64("user_id", userID).Msg("authenticated")

	names := cfg.Streamers.Keys()
	infos, err := gql.StreamerMetadata(ctx, names)
	if err != nil {
		fatal(fmt.Errorf("resolve streamers: %w", err))
	}
	balances, err := gql.ChannelPoints(ctx, names)
	if err != nil {
		fatal(fmt.Errorf("fetch balances: %w", err))
	}

	dbPath := *analyticsDB
	if dbPath == "" {
		dbPath = cfg.AnalyticsDB
	}
	if dbPath == "" {
		dbPath = "analytics.db"
	}
	store, err := analytics.Open(dbPath, log)
	if err != nil {
		fatal(fmt.Errorf("analytics: %w", err))
	}
	defer store.Close()

	reg := registry.New(userID, userLogin)
	for i, name := range names {
		if infos[i] == nil {
			fatal(fmt.Errorf("configured streamer %q does not exist", name))
		}
		ct, _ := cfg.Streamers.Get(name)
		presetName := ct.Preset
		var streamerCfg config.StreamerConfig
		if presetName != "" {
			streamerCfg, _ = cfg.Presets.Get(presetName)
		} else {
			streamerCfg = *ct.Specific
		}
		reg.Add(&registry.Broadcaster{
			ID:     infos[i].ID,
			Name:   name,
			Points: balances[i].Balance,
			Config: registry.NewConfigHandle(presetName, streamerCfg),
		})
		store.Submit(analytics.InsertStreamer{ChannelID: infos[i].ID, Name: name})
		store.Submit(analytics.InsertPoints{
			ChannelID: infos[i].ID,
			Value:     balances[i].Balance,
			Info:      analytics.FirstEntry(),
		})
	}

	var liveNames []string
	for i, name := range names {
		if infos[i].Live {
			liveNames = append(liveNames, name)
		}
	}
	if len(liveNames) > 0 {
		tracked, err := gql.ActivePredictions(ctx, liveNames)
		if err != nil {
			log.Warn().Err(err).Msg("seeding active predictions failed")
		} else {
			for i, events := range tracked {
				id, _ := reg.IDByName(liveNames[i])
				for _, te := range events {
					reg.UpsertPrediction(id, te.Event)
					if te.Placed {
						reg.MarkPlaced(id, te.Event.ID)
					}
					store.Submit(analytics.UpsertPrediction{ChannelID: id, Event: te.Event})
				}
			}
		}
	}

	pool := pubsub.NewPool(pubsub.Options{
		AuthToken: token.AccessToken,
		Logger:    log,
	})
	go pool.Run()
	defer pool.Close()

	rt := router.New(pool, reg, log)
	pool.Listen(pubsub.Topic{Kind: pubsub.CommunityPointsUserV1, ChannelID: userID})
	for _, snap := range reg.All() {
		rt.Attach(snap.ID)
	}

	cp := service.New(service.Options{
		Config:   cfg,
		File:     file,
		Registry: reg,
		Router:   rt,
		Store:    store,
		Platform: gql,
		Simulate: *simulate,
		Logger:   log,
	})

	stopCh := make(chan struct{})
	events := make(chan poller.Event, 64)

	var streaks chan int64
	if cfg.WatchStreakEnabled() {
		streaks = make(chan int64, 16)
	}

	pol := poller.New(poller.Options{
		Metadata: gql,
		Spade:    spade,
		Roster:   reg,
		Events:   events,
		Logger:   log,
	})
	eng := engine.New(engine.Options{
		Registry: reg,
		Store:    store,
		Platform: gql,
		Streaks:  streaks,
		Logger:   log,
	})
	watcher := watch.New(watch.Options{
		Registry: reg,
		Sender:   spade,
		Priority: cp.WatchPriority,
		Streaks:  streaks,
		Logger:   log,
	})
	claimer := claim.New(claim.Options{
		Registry: reg,
		Platform: gql,
		Store:    store,
		Logger:   log,
	})
	jobs := maintenance.New(store, reg, log)

	go pol.Run(stopCh)
	go rt.Run(events, stopCh)
	go eng.Run(pool.Output(), stopCh)
	go watcher.Run(stopCh)
	go claimer.Run(stopCh)
	jobs.Start()
	defer jobs.Stop()

	srv := api.NewServer(*address, cp, ring, 0)
	go func() {
		log.Info().Str("address", *address).Msg("http server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("http server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	log.Info().Str("signal", sig.String()).Msg("shutting down")

	close(stopCh)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http shutdown failed")
	}
	store.Flush()
	log.Info().Msg("stopped")
}

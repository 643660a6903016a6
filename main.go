package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rjnmav/mongoscope/internal/config"
	"github.com/rjnmav/mongoscope/internal/core"
	"github.com/rjnmav/mongoscope/internal/logging"
	"github.com/rjnmav/mongoscope/internal/types"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	cfg := config.LoadOrDefault(*configPath)
	logging.Init(cfg.Logging.Level, cfg.Logging.Format)
	log := logging.Root()

	channel := &core.CallbackChannel{
		OnConnectionState: func(state types.ConnectionState) {
			log.Info().
				Str("signature", state.Signature).
				Str("phase", string(state.Phase)).
				Str("reason", state.Reason).
				Msg("connection state")
		},
		OnQueryCompleted: func(token uint64, result *types.QueryResult) {
			log.Info().
				Uint64("token", token).
				Int("documents", len(result.Documents)).
				Dur("elapsed", result.Elapsed).
				Msg("query completed")
		},
		OnQueryFailed: func(token uint64, err error) {
			log.Warn().Uint64("token", token).Err(err).Msg("query failed")
		},
		OnStatistics: func(token uint64, stats map[string]types.FieldStatistic) {
			log.Info().Uint64("token", token).Int("fields", len(stats)).Msg("statistics ready")
		},
	}

	app := NewApp(cfg, channel, log)

	timer := time.AfterFunc(cfg.Database.AutoConnectDelay, app.AutoConnect)
	defer timer.Stop()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	log.Info().Msg("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), core.DefaultConnectTimeout)
	defer cancel()
	app.Shutdown(ctx)
}

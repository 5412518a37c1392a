package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"

	"github.com/artifactgaming/carlbot/internal/authority"
	"github.com/artifactgaming/carlbot/internal/config"
	"github.com/artifactgaming/carlbot/internal/discord"
	"github.com/artifactgaming/carlbot/internal/logging"
	"github.com/artifactgaming/carlbot/internal/module"
	"github.com/artifactgaming/carlbot/internal/persistence"
	"github.com/artifactgaming/carlbot/internal/quotes"
	"github.com/artifactgaming/carlbot/internal/router"
	"github.com/artifactgaming/carlbot/internal/schedule"
	"github.com/artifactgaming/carlbot/internal/statistics"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("configuration error")
	}
	logging.Setup(cfg.LogLevel, cfg.LogPath)
	log.Info().Str("prefix", cfg.CommandPrefix).Msg("starting carlbot")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, err := persistence.Open(cfg.StoragePath)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.StoragePath).Msg("failed to open database")
	}
	defer store.Close()

	top := router.New("")

	stats, err := statistics.NewModule(store)
	if err != nil {
		log.Fatal().Err(err).Msg("statistics module failed to load")
	}

	bot, err := discord.New(cfg, top, []module.MessageReader{stats})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create session")
	}

	engine, err := authority.NewEngine(store, bot)
	if err != nil {
		log.Fatal().Err(err).Msg("authority engine failed to load")
	}

	schedules, err := schedule.NewEngine(store, top, bot.ScheduleContext)
	if err != nil {
		log.Fatal().Err(err).Msg("schedule engine failed to load")
	}
	bot.SetScheduleEngine(schedules)
	defer schedules.StopAll()

	quoteModule, err := quotes.NewModule(store, engine)
	if err != nil {
		log.Fatal().Err(err).Msg("quotes module failed to load")
	}

	modules := []module.Module{
		authority.NewManagementModule(engine),
		quoteModule,
		schedule.NewModule(schedules),
		stats,
	}
	for _, m := range modules {
		top.Register(m.Commands()...)
	}

	// The registry can only be built once every module declared its
	// capabilities, so it lands on the engine last.
	reg, err := authority.BuildRegistry(modules)
	if err != nil {
		log.Fatal().Err(err).Msg("capability registry failed to build")
	}
	if err := engine.SetRegistry(reg); err != nil {
		log.Fatal().Err(err).Msg("capability registry failed to install")
	}
	top.SetGate(engine.Gate())

	errCh := make(chan error, 1)
	go func() {
		errCh <- bot.Run(ctx)
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)

	select {
	case s := <-sig:
		log.Info().Str("signal", s.String()).Msg("shutting down")
		cancel()
		<-errCh
	case err := <-errCh:
		if err != nil {
			log.Error().Err(err).Msg("bot exited with error")
		}
		cancel()
	}

	log.Info().Msg("bot exited cleanly")
}

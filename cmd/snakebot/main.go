package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"example.com/snakebot/internal/bot"
	"example.com/snakebot/internal/config"
	"example.com/snakebot/internal/msclient"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.DebugLevel)

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("config")
	}

	m, err := bot.New(bot.Options{
		Name:  cfg.Name,
		Rooms: cfg.Rooms,
		Bot: bot.BotOptions{
			ServerURL: cfg.ServerURL,
			APIKey:    cfg.APIKey,
			UID:       cfg.UID,
		},
		Log:             cfg.Log,
		PollInterval:    cfg.PollInterval,
		OnNeedDirection: onNeedDirection,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("bot")
	}

	m.IsCommand = func(message string) bool {
		return strings.HasPrefix(message, "/")
	}
	m.OnCommand = func(from, message string, reply bot.ReplyFunc, room string) {
		if message == "/ping" {
			reply("pong")
			return
		}
		log.Debug().Str("from", from).Str("room", room).Str("cmd", message).Msg("unknown command")
	}

	if err := m.Start(); err != nil {
		log.Fatal().Err(err).Msg("start")
	}
	defer m.Stop()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info().Msg("running… press Ctrl+C to stop")
	<-ctx.Done()
}

// простейший пример решающего колбэка: всегда налево
func onNeedDirection(board *msclient.Board, room string) msclient.Direction {
	return msclient.DirectionLeft
}

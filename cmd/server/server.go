package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"jormun/internal/book"
	"jormun/internal/config"
	"jormun/internal/net"
)

func main() {
	ctx, stop := signal.NotifyContext(
		context.Background(),
		syscall.SIGTERM,
		syscall.SIGINT,
	)
	defer stop()

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("unable to load configuration")
	}

	bookConfig := book.Config{
		CrossedBookTolerance: cfg.CrossedBookTolerance,
		ValidateSequence:     cfg.ValidateSequence,
		BufferDeltas:         cfg.BufferDeltas,
		Lenient:              cfg.Lenient,
	}

	srv := net.New(cfg.ListenAddress, cfg.ListenPort, cfg.Workers, bookConfig, cfg.AcceptedBufferNs)

	go srv.Run(ctx)
	// Block on running the server.
	<-ctx.Done()
}

// Command usersvc manages accounts stored through sqlt.
//
//	usersvc get 1
//	usersvc add --account gugu --password secret --email gugu@example.com
//	usersvc change-password 1 --password new --by admin
package main

import (
	"context"
	"os"
	"os/signal"

	"github.com/rs/zerolog"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr})
		log.Error().Err(err).Msg("usersvc failed")
		stop()
		os.Exit(1)
	}
}

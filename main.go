// gosock - a pooled, buffered TCP message server and client.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	_ "go.uber.org/automaxprocs"

	"gosock/cmd"
)

func main() {
	// util.Logger filters per logger; -vvv debug output uses trace.
	zerolog.SetGlobalLevel(zerolog.TraceLevel)

	ctx, cancel := signal.NotifyContext(context.Background(),
		os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := cmd.Execute(ctx, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "gosock: %v\n", err)
		os.Exit(1)
	}
}

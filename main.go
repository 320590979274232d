package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/tphakala/mcmigrate/cmd"
	"github.com/tphakala/mcmigrate/internal/buildinfo"
	"github.com/tphakala/mcmigrate/internal/conf"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd := cmd.RootCommand(&conf.Settings{}, buildinfo.Current())
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}

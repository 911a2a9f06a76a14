package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	replaycmd "github.com/storyweft/storyweft/internal/cmd/replay"
	"github.com/storyweft/storyweft/internal/platform/config"
)

// main replays a chat's journal from the database and prints the result.
func main() {
	cfg, err := replaycmd.ParseConfig(flag.CommandLine, os.Args[1:])
	if err != nil {
		config.Exitf("parse flags: %v", err)
	}
	log.SetPrefix("[REPLAY] ")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := replaycmd.Run(ctx, cfg, os.Stdout); err != nil {
		config.Exitf("replay: %v", err)
	}
}

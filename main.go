package main

import (
	"log"

	"github.com/shaharia-lab/notifyd/cmd"
	"github.com/shaharia-lab/notifyd/internal/config"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}
	cmd.Execute(cfg)
}

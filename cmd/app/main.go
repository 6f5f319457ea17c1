package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"TradeDesk/internal/di"
	"TradeDesk/pkg/config"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "config file path")
	checkOnly := flag.Bool("check", false, "validate the configuration and exit")
	flag.Parse()

	cfg, err := config.LoadWithEnv(*configPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	if *checkOnly {
		fmt.Printf("config ok: env=%s backend=%s port=%d api_key=%t\n",
			cfg.Environment, cfg.Backend.Type, cfg.Server.Port, cfg.HasAPIKey())
		return
	}

	// the structured logger is built by the injector; until then the std logger reports
	app, err := di.InitializeApp(cfg)
	if err != nil {
		log.Fatalf("init: %v", err)
	}

	if err := app.Run(); err != nil {
		log.Printf("tradedesk: %v", err)
		os.Exit(1)
	}
}

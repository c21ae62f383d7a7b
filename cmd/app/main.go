package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/MrDecryptDecipher/VPropTrader-sub001/internal/di"
	"github.com/MrDecryptDecipher/VPropTrader-sub001/pkg/config"
)

// version is stamped at build time via -ldflags "-X main.version=...".
var version = "dev"

func main() {
	configPath := flag.String("config", "config/config.yaml", "config file path")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(version)
		return
	}

	cfg, err := config.LoadWithEnv(*configPath)
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}

	log.Printf("vproptrader %s env=%s symbols=%v timeframes=%v",
		version, cfg.Environment, cfg.Scanner.Symbols, cfg.Scanner.Timeframes)

	app, err := di.InitializeApp(cfg)
	if err != nil {
		log.Fatalf("app initialization failed: %v", err)
	}

	if err := app.Run(); err != nil {
		log.Printf("app error: %v", err)
		os.Exit(1)
	}
}

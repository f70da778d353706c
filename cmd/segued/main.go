package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"segue/internal/config"
	"segue/internal/daemonrun"
)

func main() {
	configPath := flag.String("config", "", "path to the configuration file")
	logLevel := flag.String("log-level", "", "override the configured log level")
	socketPath := flag.String("socket", "", "override the control socket path")
	flag.Parse()

	cfg, _, _, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	opts := buildRunOptions(cfg, *logLevel, *socketPath)
	if err := daemonrun.Run(context.Background(), cfg, opts); err != nil {
		fmt.Fprintf(os.Stderr, "segued: %v\n", err)
		os.Exit(1)
	}
}

package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/chainsafe/contract-jobs/pkg/app"
	"github.com/chainsafe/contract-jobs/pkg/app/dispatcher"
	"github.com/chainsafe/contract-jobs/pkg/config"
)

func main() {
	configPath := flag.String("config", "config.yaml", "Path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	var runner app.Runner = dispatcher.NewServer(cfg)
	if err := runner.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Dispatcher exited with error: %v\n", err)
		os.Exit(1)
	}
}

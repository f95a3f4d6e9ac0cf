// Command llmgateway runs the LLM governance gateway.
//
// Subcommands:
//
//	serve    run the gateway (default)
//	migrate  apply or roll back database migrations
//	keys     manage API keys
//	version  print the build version
package main

import (
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/BaSui01/llmgateway/config"
	"github.com/BaSui01/llmgateway/internal/telemetry"
)

var version = "dev"

func main() {
	args := os.Args[1:]
	cmd := "serve"
	if len(args) > 0 {
		cmd = args[0]
		args = args[1:]
	}

	switch cmd {
	case "serve":
		runServe(args)
	case "migrate":
		runMigrate(args)
	case "keys":
		runKeys(args)
	case "version":
		fmt.Println("llmgateway", version)
	case "help", "-h", "--help":
		usage()
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n", cmd)
		usage()
		os.Exit(2)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `usage: llmgateway <command> [flags]

commands:
  serve     run the gateway (default)
  migrate   apply or roll back database migrations
  keys      manage API keys (create | list | disable)
  version   print the build version`)
}

// mustConfig loads configuration or exits.
func mustConfig(path string) *config.Config {
	cfg, err := config.Load(path)
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}
	return cfg
}

// mustLogger builds the process logger or exits.
func mustLogger(cfg *config.Config) *zap.Logger {
	logger, err := telemetry.NewLogger(cfg.Log.Level, cfg.Log.Environment)
	if err != nil {
		fmt.Fprintln(os.Stderr, "logger:", err)
		os.Exit(1)
	}
	return logger
}

package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"flag"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/BaSui01/llmgateway/config"
	"github.com/BaSui01/llmgateway/internal/auth"
	"github.com/BaSui01/llmgateway/internal/store"
)

func runKeys(args []string) {
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, "usage: llmgateway keys <create|list|disable> [flags]")
		os.Exit(2)
	}
	sub := args[0]
	args = args[1:]

	switch sub {
	case "create":
		runKeysCreate(args)
	case "list":
		runKeysList(args)
	case "disable":
		runKeysDisable(args)
	default:
		fmt.Fprintf(os.Stderr, "unknown keys command %q\n", sub)
		os.Exit(2)
	}
}

func openKeyStore(configPath string) (*store.Store, *zap.Logger, *config.Config) {
	cfg := mustConfig(configPath)
	logger := mustLogger(cfg)
	if cfg.Database.URL == "" {
		logger.Fatal("DATABASE_URL is required")
	}
	st, err := store.Open(cfg.Database.URL, logger)
	if err != nil {
		logger.Fatal("open database", zap.Error(err))
	}
	return st, logger, cfg
}

func runKeysCreate(args []string) {
	fs := flag.NewFlagSet("keys create", flag.ExitOnError)
	configPath := fs.String("config", "", "path to YAML config file")
	name := fs.String("name", "", "human-readable key name")
	rpm := fs.Int("rpm", 60, "rate limit in requests per minute")
	_ = fs.Parse(args)

	st, logger, _ := openKeyStore(*configPath)

	var raw [16]byte
	if _, err := rand.Read(raw[:]); err != nil {
		logger.Fatal("generate key", zap.Error(err))
	}
	plaintext := "llmgw-" + hex.EncodeToString(raw[:])

	hash, err := auth.HashKey(plaintext)
	if err != nil {
		logger.Fatal("hash key", zap.Error(err))
	}

	key := &store.APIKey{
		KeyHash:            hash,
		Name:               *name,
		RateLimitPerMinute: *rpm,
		IsActive:           true,
	}
	if err := st.CreateAPIKey(context.Background(), key); err != nil {
		logger.Fatal("create key", zap.Error(err))
	}

	// The plaintext is printed exactly once; only the bcrypt hash is stored.
	fmt.Printf("id:   %s\nname: %s\nrpm:  %d\nkey:  %s\n", key.ID, key.Name, key.RateLimitPerMinute, plaintext)
}

func runKeysList(args []string) {
	fs := flag.NewFlagSet("keys list", flag.ExitOnError)
	configPath := fs.String("config", "", "path to YAML config file")
	_ = fs.Parse(args)

	st, logger, _ := openKeyStore(*configPath)

	keys, err := st.ListAPIKeys(context.Background())
	if err != nil {
		logger.Fatal("list keys", zap.Error(err))
	}
	for _, k := range keys {
		state := "active"
		if !k.IsActive {
			state = "disabled"
		}
		fmt.Printf("%s  %-20s rpm=%-5d %s  created=%s\n",
			k.ID, k.Name, k.RateLimitPerMinute, state, k.CreatedAt.Format("2006-01-02"))
	}
}

func runKeysDisable(args []string) {
	fs := flag.NewFlagSet("keys disable", flag.ExitOnError)
	configPath := fs.String("config", "", "path to YAML config file")
	id := fs.String("id", "", "API key id to disable")
	_ = fs.Parse(args)

	if *id == "" {
		fmt.Fprintln(os.Stderr, "keys disable: -id is required")
		os.Exit(2)
	}

	st, logger, _ := openKeyStore(*configPath)

	if err := st.DeactivateAPIKey(context.Background(), *id); err != nil {
		logger.Fatal("disable key", zap.Error(err))
	}
	fmt.Println("disabled", *id)
}

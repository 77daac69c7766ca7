package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"channel-snapshot/internal/capture"
	"channel-snapshot/internal/config"
	"channel-snapshot/internal/telegram"
)

func main() {
	if err := config.LoadDotEnv(os.Getenv("ROOT_PATH")); err != nil {
		log.Fatalf("Failed to load .env: %v", err)
	}

	var indent bool
	flag.BoolVar(&indent, "indent", config.EnvOrDefaultValue("INDENT", false), "Indent the JSON output")
	finish := config.BindCaptureFlags(flag.CommandLine)
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		log.Fatalf("channel url not specified")
	}

	c, err := finish()
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	logger, err := config.NewLogger(c.Verbosity, true)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}

	if c.Install {
		if err := capture.InstallPlaywright(c.Pool); err != nil {
			log.Fatalf("Failed to install playwright: %v", err)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := capture.NewPlaywrightPool(ctx, c.Pool, logger)
	if err != nil {
		log.Fatalf("Failed to create browser pool: %v", err)
	}
	defer pool.Close()

	channel, err := telegram.NewChannelCapture(c.Settings, pool, logger, nil)
	if err != nil {
		log.Fatalf("Failed to create extractor: %v", err)
	}

	result := channel.ExtractChannelPosts(ctx, args[0])
	if !result.OK() {
		pool.Close()
		log.Fatalf("Failed to extract posts: %v", result.Err)
	}

	encoder := json.NewEncoder(os.Stdout)
	if indent {
		encoder.SetIndent("", "  ")
	}
	if err := encoder.Encode(result.Posts); err != nil {
		log.Fatalf("Failed to encode posts: %v", err)
	}
}

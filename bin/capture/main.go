package main

import (
	"context"
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

	var output string
	flag.StringVar(&output, "output", config.EnvOrDefaultValue("OUTPUT", ""), "PNG output path (stdout when empty)")
	finish := config.BindCaptureFlags(flag.CommandLine)
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		log.Fatalf("url not specified")
	}
	url := args[0]

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
		log.Fatalf("Failed to create capturer: %v", err)
	}

	result := channel.Capture(ctx, capture.Request{URL: url})
	if !result.OK() {
		pool.Close()
		log.Fatalf("Failed to capture screenshot: %v", result.Err)
	}

	if output == "" {
		if _, err := os.Stdout.Write(result.Image); err != nil {
			log.Fatalf("Failed to write image: %v", err)
		}
		return
	}
	if err := os.WriteFile(output, result.Image, 0644); err != nil {
		log.Fatalf("Failed to write %s: %v", output, err)
	}
}

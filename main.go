package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"channel-snapshot/internal/capture"
	"channel-snapshot/internal/config"
	"channel-snapshot/internal/runnable"
	"channel-snapshot/internal/telegram"
)

func main() {
	// .env is read before flags so that it can feed the flag defaults.
	if err := config.LoadDotEnv(os.Getenv("ROOT_PATH")); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	var debug bool
	flag.BoolVar(&debug, "debug", config.EnvOrDefaultValue("DEBUG", false), "Serve pprof endpoints and log in text")
	finish := config.BindCaptureFlags(flag.CommandLine)
	flag.Parse()

	runnable.Debug = debug

	c, err := finish()
	if err != nil {
		// no logger yet
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	log, err := config.NewLogger(c.Verbosity, debug)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	entrypointLogger := log.WithName("entrypoint")

	if c.Install {
		if err := capture.InstallPlaywright(c.Pool); err != nil {
			entrypointLogger.Error(err, "unable to install playwright")
			os.Exit(1)
		}
	}

	ctx := context.Background()

	meter, err := runnable.NewMeter()
	if err != nil {
		entrypointLogger.Error(err, "unable to create meter")
		os.Exit(1)
	}
	metrics, err := capture.NewMetrics(meter)
	if err != nil {
		entrypointLogger.Error(err, "unable to create capture metrics")
		os.Exit(1)
	}

	pool, err := capture.NewPlaywrightPool(ctx, c.Pool, log)
	if err != nil {
		entrypointLogger.Error(err, "unable to create browser pool")
		os.Exit(1)
	}
	defer func() {
		if err := pool.Close(); err != nil {
			entrypointLogger.Error(err, "failed to close browser pool")
		}
	}()

	channel, err := telegram.NewChannelCapture(c.Settings, pool, log, metrics)
	if err != nil {
		entrypointLogger.Error(err, "unable to create channel capture")
		os.Exit(1)
	}

	logger, err := runnable.NewLogger()
	if err != nil {
		entrypointLogger.Error(err, "unable to create server logger")
		os.Exit(1)
	}

	entrypointLogger.Info("starting server")
	if err := runnable.NewServer(channel).Start(ctx, logger, meter); err != nil {
		entrypointLogger.Error(err, "problem running server")
		os.Exit(1)
	}
}

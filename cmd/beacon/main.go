package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	cliplugins "lanbeacon/internal/cli_plugins"
	"lanbeacon/internal/util/logger/handlers/slogpretty"
	"lanbeacon/pkg/cli"
)

const (
	envLocal = "local"
	envDev   = "dev"
	envProd  = "prod"
)

// version подставляется при сборке через -ldflags "-X main.version=..."
var version string

func main() {
	// Создаем контекст с отменой для graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	signalChannel := make(chan os.Signal, 1)
	signal.Notify(signalChannel, os.Interrupt, syscall.SIGTERM)

	app := &cliplugins.App{
		// stdout занят событиями и таблицами, логи пишем в stderr
		NewLogger: func(env string) *slog.Logger { return setupLogger(env, os.Stderr) },
	}

	go func() {
		sig := <-signalChannel
		if app.Log != nil {
			app.Log.Info("Shutdown signal received", slog.Any("signal", sig))
		}
		cancel()
	}()

	c := cli.NewCLI(ctx, "beacon", "Multicast heartbeat discovery for the local network")
	app.BindFlags(c.Root())

	c.RegisterPlugin(cliplugins.NewPublishCommand(app))
	c.RegisterPlugin(cliplugins.NewWatchCommand(app))
	c.RegisterPlugin(cliplugins.NewScanCommand(app))
	c.RegisterPlugin(cliplugins.NewHistoryCommand(app))
	c.RegisterPlugin(&cli.VersionCommand{Version: version})

	if err := c.Run(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		cancel()
		os.Exit(1)
	}
}

func setupLogger(env string, writer io.Writer) *slog.Logger {
	var log *slog.Logger

	switch env {
	case envLocal:
		log = setupPrettySlog(writer)
	case envDev:
		log = slog.New(slog.NewJSONHandler(writer, &slog.HandlerOptions{Level: slog.LevelDebug}))
	case envProd:
		log = slog.New(slog.NewJSONHandler(writer, &slog.HandlerOptions{Level: slog.LevelInfo}))
	default:
		log = setupPrettySlog(writer)
	}
	return log
}

func setupPrettySlog(writer io.Writer) *slog.Logger {
	opts := slogpretty.PrettyHandlerOptions{
		SlogOpts: &slog.HandlerOptions{
			Level: slog.LevelDebug,
		},
	}

	handler := opts.NewPrettyHandler(writer)

	return slog.New(handler)
}

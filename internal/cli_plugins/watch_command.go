package cliplugins

import (
	"context"
	"fmt"
	"log/slog"

	discoverymanager "lanbeacon/internal/discovery_manager"
	"lanbeacon/internal/metrics"
	eventstorage "lanbeacon/internal/storage/event_storage"
	"lanbeacon/internal/util/logger/sl"

	"github.com/spf13/cobra"
	"go.etcd.io/bbolt"
)

type WatchCommand struct {
	cmd *cobra.Command
	app *App

	// managerOpts подмешиваются в тестах
	managerOpts []discoverymanager.Option
}

func NewWatchCommand(app *App) *WatchCommand {
	return &WatchCommand{app: app}
}

func (w *WatchCommand) Meta() *cobra.Command {
	if w.cmd != nil {
		return w.cmd
	}
	w.cmd = &cobra.Command{
		Use:   "watch",
		Short: "Print FOUND/CHANGED/LOST events as they happen",
		Args:  cobra.NoArgs,
	}
	w.cmd.Flags().Bool("json", false, "print one JSON object per event")
	w.cmd.Flags().StringP("journal", "j", "", "also append events to this bbolt journal")
	w.cmd.Flags().String("metrics-addr", "", "serve Prometheus metrics on this address")
	w.cmd.MarkFlagFilename("journal", "db")
	return w.cmd
}

func (w *WatchCommand) Execute(ctx context.Context, cmd *cobra.Command, args []string) error {
	const op = "cliplugins.WatchCommand.Execute"
	log := w.app.Log.With(slog.String("op", op))
	cfg := w.app.Config

	asJSON, err := cmd.Flags().GetBool("json")
	if err != nil {
		return flagError("json", err)
	}
	journalPath, err := cmd.Flags().GetString("journal")
	if err != nil {
		return flagError("journal", err)
	}
	metricsAddr, err := cmd.Flags().GetString("metrics-addr")
	if err != nil {
		return flagError("metrics-addr", err)
	}
	if journalPath == "" {
		journalPath = cfg.Journal.Path
	}
	if metricsAddr == "" {
		metricsAddr = cfg.Metrics.Addr
	}

	dcfg, err := cfg.DiscoveryConfiguration()
	if err != nil {
		return err
	}

	reg := newRegistry()
	m := metrics.New(reg)
	if err := serveMetrics(ctx, metricsAddr, reg, w.app.Log); err != nil {
		return err
	}

	// журнал закрывается после Shutdown, когда очередь событий уже доставлена
	var journal *eventstorage.EventStorage
	if journalPath != "" {
		journal, err = eventstorage.New(eventstorage.Config{
			Path:    journalPath,
			Options: &bbolt.Options{Timeout: cfg.Journal.OpenTimeout},
		})
		if err != nil {
			return fmt.Errorf("open journal %s: %w", journalPath, err)
		}
		defer journal.Close()
	}

	opts := append([]discoverymanager.Option{
		discoverymanager.WithRecorder(m),
		discoverymanager.WithFailureRecorder(m),
	}, w.managerOpts...)
	manager, err := discoverymanager.NewDiscoveryManager(dcfg, w.app.Log, opts...)
	if err != nil {
		return err
	}
	defer func() {
		if err := manager.Shutdown(); err != nil {
			log.Warn("discovery shutdown", sl.Err(err))
		}
	}()

	manager.AddObserver(m)

	if journal != nil {
		manager.AddObserver(journal.Observer())
	}

	printer := newEventPrinter(cmd.OutOrStdout(), asJSON)
	events := manager.Subscribe(ctx, 64)

	if err := manager.Start(ctx); err != nil {
		return err
	}
	log.Info("watching for discoverables",
		slog.String("group", dcfg.MulticastAddress),
		slog.Int("port", dcfg.MulticastPort),
		slog.Duration("max_timeout", dcfg.MaxHeartbeatTimeout),
	)

	for {
		select {
		case <-ctx.Done():
			return nil
		case err, ok := <-manager.Err():
			if ok && err != nil {
				return err
			}
			return nil
		case e, ok := <-events:
			if !ok {
				return nil
			}
			if err := printer.printEvent(e); err != nil {
				return err
			}
		}
	}
}

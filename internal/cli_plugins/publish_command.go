package cliplugins

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"time"

	multicastdiscovery "lanbeacon/internal/discovery_manager/discovery_mechanism/multicast_discovery"
	"lanbeacon/internal/metrics"
	"lanbeacon/internal/util/logger/sl"
	"lanbeacon/internal/watcher"

	"github.com/spf13/cobra"
)

type PublishCommand struct {
	cmd *cobra.Command
	app *App

	// dialer подменяется в тестах
	dialer multicastdiscovery.Dialer
}

func NewPublishCommand(app *App) *PublishCommand {
	return &PublishCommand{app: app}
}

func (p *PublishCommand) Meta() *cobra.Command {
	if p.cmd != nil {
		return p.cmd
	}
	p.cmd = &cobra.Command{
		Use:   "publish",
		Short: "Advertise this host on the LAN until interrupted",
		Long: "Broadcasts a heartbeat with the given key/value payload every broadcast period.\n" +
			"The payload comes from --data pairs and an optional YAML file; --data wins on conflicts.",
		Args: cobra.NoArgs,
	}
	p.cmd.Flags().StringArrayP("data", "d", nil, "payload entry key=value, repeatable")
	p.cmd.Flags().StringP("payload-file", "f", "", "YAML file with a flat payload mapping")
	p.cmd.Flags().BoolP("watch", "w", false, "reload --payload-file when it changes")
	p.cmd.Flags().String("session", "", "fixed session id instead of a random UUID")
	p.cmd.Flags().String("metrics-addr", "", "serve Prometheus metrics on this address")
	p.cmd.MarkFlagFilename("payload-file", "yaml", "yml")
	return p.cmd
}

func (p *PublishCommand) Execute(ctx context.Context, cmd *cobra.Command, args []string) error {
	const op = "cliplugins.PublishCommand.Execute"
	log := p.app.Log.With(slog.String("op", op))
	cfg := p.app.Config

	pairs, err := cmd.Flags().GetStringArray("data")
	if err != nil {
		return flagError("data", err)
	}
	payloadFile, err := cmd.Flags().GetString("payload-file")
	if err != nil {
		return flagError("payload-file", err)
	}
	watch, err := cmd.Flags().GetBool("watch")
	if err != nil {
		return flagError("watch", err)
	}
	sessionID, err := cmd.Flags().GetString("session")
	if err != nil {
		return flagError("session", err)
	}
	metricsAddr, err := cmd.Flags().GetString("metrics-addr")
	if err != nil {
		return flagError("metrics-addr", err)
	}

	if payloadFile == "" {
		payloadFile = cfg.Publish.PayloadFile
	}
	if metricsAddr == "" {
		metricsAddr = cfg.Metrics.Addr
	}
	if watch && payloadFile == "" {
		return fmt.Errorf("--watch requires --payload-file")
	}

	overrides, err := parseData(pairs)
	if err != nil {
		return err
	}
	payload, err := composePayload(payloadFile, overrides)
	if err != nil {
		return err
	}

	dcfg, err := cfg.DiscoveryConfiguration()
	if err != nil {
		return err
	}

	reg := newRegistry()
	m := metrics.New(reg)
	if err := serveMetrics(ctx, metricsAddr, reg, p.app.Log); err != nil {
		return err
	}

	opts := []multicastdiscovery.PublisherOption{multicastdiscovery.WithRecorder(m)}
	if sessionID != "" {
		opts = append(opts, multicastdiscovery.WithSessionID(sessionID))
	}
	if p.dialer != nil {
		opts = append(opts, multicastdiscovery.WithDialer(p.dialer))
	}

	publisher, err := multicastdiscovery.NewPublisher(dcfg, payload, p.app.Log, opts...)
	if err != nil {
		return err
	}
	if err := publisher.Start(); err != nil {
		return err
	}
	defer func() {
		if err := publisher.Stop(); err != nil {
			log.Warn("failed to stop publisher", sl.Err(err))
		}
	}()

	var watchErrors <-chan error
	if watch {
		// --data перекрывает файл и после перезагрузки
		sink := &overlaySink{publisher: publisher, overrides: overrides}
		pw, err := watcher.NewPayloadWatcher(payloadFile, sink, watcher.Config{
			DebounceDuration: cfg.Publish.Debounce,
		}, p.app.Log)
		if err != nil {
			return err
		}
		defer pw.Close()
		watchErrors = pw.Errors()
	}

	fmt.Fprintf(cmd.OutOrStdout(), "publishing session %s every %s: %s\n",
		publisher.SessionID(), dcfg.BroadcastPeriod, formatPayload(payload))

	health := time.NewTicker(dcfg.BroadcastPeriod)
	defer health.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("publish interrupted")
			return nil
		case err := <-watchErrors:
			log.Warn("payload not applied, keeping previous data", sl.Err(err))
		case <-health.C:
			if !publisher.Running() {
				return fmt.Errorf("broadcasting stopped: %w", publisher.Err())
			}
		}
	}
}

// composePayload читает файл и накладывает на него пары из --data
func composePayload(path string, overrides map[string]string) (map[string]string, error) {
	payload := map[string]string{}
	if path != "" {
		fromFile, err := watcher.LoadPayload(path)
		if err != nil {
			return nil, err
		}
		payload = fromFile
	}
	maps.Copy(payload, overrides)
	return payload, nil
}

type overlaySink struct {
	publisher *multicastdiscovery.Publisher
	overrides map[string]string
}

func (s *overlaySink) SetDiscoveryData(payload map[string]string) error {
	merged := make(map[string]string, len(payload)+len(s.overrides))
	maps.Copy(merged, payload)
	maps.Copy(merged, s.overrides)
	return s.publisher.SetDiscoveryData(merged)
}

package cliplugins

import (
	"context"
	"log/slog"
	"time"

	discoverymanager "lanbeacon/internal/discovery_manager"

	"github.com/spf13/cobra"
)

type ScanCommand struct {
	cmd *cobra.Command
	app *App

	managerOpts []discoverymanager.Option
}

func NewScanCommand(app *App) *ScanCommand {
	return &ScanCommand{app: app}
}

func (s *ScanCommand) Meta() *cobra.Command {
	if s.cmd != nil {
		return s.cmd
	}
	s.cmd = &cobra.Command{
		Use:   "scan",
		Short: "Listen for a while and print the live discoverables",
		Args:  cobra.NoArgs,
	}
	s.cmd.Flags().Duration("for", 0, "how long to listen (default two broadcast periods)")
	return s.cmd
}

func (s *ScanCommand) Execute(ctx context.Context, cmd *cobra.Command, args []string) error {
	const op = "cliplugins.ScanCommand.Execute"
	log := s.app.Log.With(slog.String("op", op))

	duration, err := cmd.Flags().GetDuration("for")
	if err != nil {
		return flagError("for", err)
	}

	dcfg, err := s.app.Config.DiscoveryConfiguration()
	if err != nil {
		return err
	}
	if duration <= 0 {
		duration = 2 * dcfg.BroadcastPeriod
	}

	manager, err := discoverymanager.NewDiscoveryManager(dcfg, s.app.Log, s.managerOpts...)
	if err != nil {
		return err
	}
	defer manager.Shutdown()

	if err := manager.Start(ctx); err != nil {
		return err
	}
	log.Info("scanning", slog.Duration("for", duration))

	timer := time.NewTimer(duration)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	case err, ok := <-manager.Err():
		if ok && err != nil {
			return err
		}
	}

	return printDiscoverables(cmd.OutOrStdout(), manager.Discovered(), time.Now())
}

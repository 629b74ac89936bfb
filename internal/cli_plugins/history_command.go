package cliplugins

import (
	"context"
	"fmt"
	"strings"

	discoverymodels "lanbeacon/internal/discovery_manager/models"
	eventstorage "lanbeacon/internal/storage/event_storage"

	"github.com/spf13/cobra"
	"go.etcd.io/bbolt"
)

type HistoryCommand struct {
	cmd *cobra.Command
	app *App
}

func NewHistoryCommand(app *App) *HistoryCommand {
	return &HistoryCommand{app: app}
}

func (h *HistoryCommand) Meta() *cobra.Command {
	if h.cmd != nil {
		return h.cmd
	}
	h.cmd = &cobra.Command{
		Use:   "history",
		Short: "Print events recorded by watch --journal, newest first",
		Args:  cobra.NoArgs,
	}
	h.cmd.Flags().StringP("journal", "j", "", "bbolt journal written by watch")
	h.cmd.Flags().StringP("session", "s", "", "only this session id")
	h.cmd.Flags().StringP("kind", "k", "", "only FOUND, CHANGED or LOST")
	h.cmd.Flags().IntP("limit", "n", 50, "at most this many events, 0 for all")
	h.cmd.Flags().Bool("json", false, "print one JSON object per event")
	h.cmd.MarkFlagFilename("journal", "db")
	h.cmd.RegisterFlagCompletionFunc("kind", func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		kinds := []string{
			discoverymodels.EventFound.String(),
			discoverymodels.EventChanged.String(),
			discoverymodels.EventLost.String(),
		}
		return kinds, cobra.ShellCompDirectiveNoFileComp
	})
	return h.cmd
}

func (h *HistoryCommand) Execute(ctx context.Context, cmd *cobra.Command, args []string) error {
	journalPath, err := cmd.Flags().GetString("journal")
	if err != nil {
		return flagError("journal", err)
	}
	sessionID, err := cmd.Flags().GetString("session")
	if err != nil {
		return flagError("session", err)
	}
	kindName, err := cmd.Flags().GetString("kind")
	if err != nil {
		return flagError("kind", err)
	}
	limit, err := cmd.Flags().GetInt("limit")
	if err != nil {
		return flagError("limit", err)
	}
	asJSON, err := cmd.Flags().GetBool("json")
	if err != nil {
		return flagError("json", err)
	}

	if journalPath == "" {
		journalPath = h.app.Config.Journal.Path
	}
	if journalPath == "" {
		return fmt.Errorf("flag --journal is required")
	}

	filter := eventstorage.EventFilter{SessionID: sessionID, Limit: limit}
	if kindName != "" {
		filter.Kind, err = discoverymodels.ParseEventKind(strings.ToUpper(kindName))
		if err != nil {
			return err
		}
	}

	journal, err := eventstorage.New(eventstorage.Config{
		Path: journalPath,
		Options: &bbolt.Options{
			Timeout:  h.app.Config.Journal.OpenTimeout,
			ReadOnly: true,
		},
	})
	if err != nil {
		return fmt.Errorf("open journal %s: %w", journalPath, err)
	}
	defer journal.Close()

	records, err := journal.List(ctx, filter)
	if err != nil {
		return err
	}

	printer := newEventPrinter(cmd.OutOrStdout(), asJSON)
	for _, rec := range records {
		if err := printer.printRecord(rec); err != nil {
			return err
		}
	}
	return nil
}

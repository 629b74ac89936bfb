package cliplugins

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"
	"text/tabwriter"
	"time"

	discoverymodels "lanbeacon/internal/discovery_manager/models"
	eventstorage "lanbeacon/internal/storage/event_storage"

	"github.com/fatih/color"
	"golang.org/x/term"
)

// parseData разбирает пары key=value из флагов
func parseData(pairs []string) (map[string]string, error) {
	payload := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid --data %q, want key=value", pair)
		}
		payload[key] = value
	}
	return payload, nil
}

func formatPayload(payload map[string]string) string {
	keys := make([]string, 0, len(payload))
	for k := range payload {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+payload[k])
	}
	return strings.Join(parts, " ")
}

// isTerminal сообщает, можно ли раскрашивать вывод
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

type eventPrinter struct {
	out     io.Writer
	json    bool
	colored bool
}

func newEventPrinter(out io.Writer, asJSON bool) *eventPrinter {
	return &eventPrinter{
		out:     out,
		json:    asJSON,
		colored: !asJSON && isTerminal(out),
	}
}

type eventLine struct {
	Seq       uint64            `json:"seq,omitempty"`
	Kind      string            `json:"kind"`
	SessionID string            `json:"session_id"`
	Payload   map[string]string `json:"payload"`
	Source    string            `json:"source,omitempty"`
	Time      time.Time         `json:"time"`
}

func (p *eventPrinter) print(line eventLine) error {
	if p.json {
		return json.NewEncoder(p.out).Encode(line)
	}

	kind := fmt.Sprintf("%-7s", line.Kind)
	if p.colored {
		switch line.Kind {
		case discoverymodels.EventFound.String():
			kind = color.GreenString(kind)
		case discoverymodels.EventChanged.String():
			kind = color.YellowString(kind)
		case discoverymodels.EventLost.String():
			kind = color.RedString(kind)
		}
	}

	_, err := fmt.Fprintf(p.out, "%s %s %s %s %s\n",
		line.Time.Format("15:04:05.000"),
		kind,
		line.SessionID,
		line.Source,
		formatPayload(line.Payload),
	)
	return err
}

func (p *eventPrinter) printEvent(e discoverymodels.Event) error {
	return p.print(eventLine{
		Kind:      e.Kind.String(),
		SessionID: e.SessionID,
		Payload:   e.Payload,
		Source:    e.Source,
		Time:      e.Time,
	})
}

func (p *eventPrinter) printRecord(r eventstorage.EventRecord) error {
	return p.print(eventLine{
		Seq:       r.Seq,
		Kind:      r.Kind.String(),
		SessionID: r.SessionID,
		Payload:   r.Payload,
		Source:    r.Source,
		Time:      r.Time,
	})
}

func printDiscoverables(out io.Writer, list []discoverymodels.Discoverable, now time.Time) error {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "SESSION\tSOURCE\tPERIOD\tLAST SEEN\tPAYLOAD")
	for _, d := range list {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s ago\t%s\n",
			d.SessionID,
			d.Source,
			d.DeclaredPeriod,
			now.Sub(d.LastSeen).Truncate(time.Millisecond),
			formatPayload(d.Payload),
		)
	}
	return w.Flush()
}

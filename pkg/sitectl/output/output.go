// Package output renders sitectl results as tables, JSON or YAML.
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/diaspora-enterprise/website/pkg/sitectl/client"
)

type Format string

const (
	FormatTable Format = "table"
	FormatJSON  Format = "json"
	FormatYAML  Format = "yaml"
)

// ParseFormat validates a user-supplied format string, defaulting to table.
func ParseFormat(s string) (Format, error) {
	switch s {
	case "", "table":
		return FormatTable, nil
	case "json":
		return FormatJSON, nil
	case "yaml":
		return FormatYAML, nil
	default:
		return "", fmt.Errorf("unknown output format: %s", s)
	}
}

// WriteObject renders obj as JSON or YAML. Table output goes through the
// typed writers below.
func WriteObject(w io.Writer, format Format, obj any) error {
	switch format {
	case FormatJSON:
		data, err := json.MarshalIndent(obj, "", "  ")
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(w, string(data))
		return err
	case FormatYAML:
		data, err := yaml.Marshal(obj)
		if err != nil {
			return err
		}
		_, err = fmt.Fprint(w, string(data))
		return err
	case FormatTable:
		return fmt.Errorf("table format requires a specific formatter")
	default:
		return fmt.Errorf("unknown output format: %s", format)
	}
}

func WriteContactTable(w io.Writer, contacts []client.Contact) {
	tw := tabwriter.NewWriter(w, 2, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "ID\tNAME\tEMAIL\tSUBJECT\tREAD\tCREATED")
	for _, c := range contacts {
		read := "no"
		if c.Read {
			read = "yes"
		}
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			c.ID, c.Name, c.Email, truncate(c.Subject, 40), read, formatTime(c.CreatedAt))
	}
	_ = tw.Flush()
}

// WriteContactDetail prints one submission in full.
func WriteContactDetail(w io.Writer, c *client.Contact) {
	tw := tabwriter.NewWriter(w, 2, 4, 2, ' ', 0)
	_, _ = fmt.Fprintf(tw, "ID:\t%s\n", c.ID)
	_, _ = fmt.Fprintf(tw, "Name:\t%s\n", c.Name)
	_, _ = fmt.Fprintf(tw, "Email:\t%s\n", c.Email)
	if c.Phone != "" {
		_, _ = fmt.Fprintf(tw, "Phone:\t%s\n", c.Phone)
	}
	_, _ = fmt.Fprintf(tw, "Subject:\t%s\n", c.Subject)
	_, _ = fmt.Fprintf(tw, "Created:\t%s\n", formatTime(c.CreatedAt))
	read := "no"
	if c.Read {
		read = "yes"
	}
	_, _ = fmt.Fprintf(tw, "Read:\t%s\n", read)
	if c.Notes != "" {
		_, _ = fmt.Fprintf(tw, "Notes:\t%s\n", c.Notes)
	}
	_ = tw.Flush()
	_, _ = fmt.Fprintf(w, "\n%s\n", c.Message)
}

func WriteStats(w io.Writer, stats *client.Stats) {
	tw := tabwriter.NewWriter(w, 2, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "TOTAL\tUNREAD")
	_, _ = fmt.Fprintf(tw, "%d\t%d\n", stats.Total, stats.Unread)
	_ = tw.Flush()
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04")
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return strings.TrimSpace(s[:max-3]) + "..."
}

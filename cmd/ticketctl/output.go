package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/spec-kit/itsm-portal/internal/api/dto"
)

const (
	formatTable = "table"
	formatJSON  = "json"
	formatYAML  = "yaml"
)

func validateFormat(format string) error {
	switch format {
	case formatTable, formatJSON, formatYAML:
		return nil
	default:
		return fmt.Errorf("unknown output format %q (table|json|yaml)", format)
	}
}

func render(w io.Writer, format string, v any) error {
	switch format {
	case formatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case formatYAML:
		// go through JSON so the keys match the API field names
		raw, err := json.Marshal(v)
		if err != nil {
			return err
		}
		var doc any
		if err := yaml.Unmarshal(raw, &doc); err != nil {
			return err
		}
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(doc); err != nil {
			return err
		}
		return enc.Close()
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	switch val := v.(type) {
	case *dto.PrincipalSummary:
		roles := make([]string, len(val.Roles))
		for i, r := range val.Roles {
			roles[i] = string(r)
		}
		fmt.Fprintf(tw, "ID\t%s\n", val.ID)
		fmt.Fprintf(tw, "NAME\t%s\n", val.Name)
		fmt.Fprintf(tw, "EMAIL\t%s\n", val.Email)
		fmt.Fprintf(tw, "ROLES\t%s\n", strings.Join(roles, ", "))
	case *dto.TicketResponse:
		fmt.Fprintf(tw, "ID\t%s\n", val.ID)
		fmt.Fprintf(tw, "NUMBER\t%s\n", val.Number)
		fmt.Fprintf(tw, "TITLE\t%s\n", val.Title)
		fmt.Fprintf(tw, "STATUS\t%s\n", val.Status)
		fmt.Fprintf(tw, "PRIORITY\t%s\n", intOrDash(val.Priority))
		fmt.Fprintf(tw, "ASSIGNEE\t%s\n", stringOrDash(val.AssignedTo))
		fmt.Fprintf(tw, "VERSION\t%d\n", val.Version)
		fmt.Fprintf(tw, "UPDATED\t%s\n", val.UpdatedAt.Local().Format(time.DateTime))
		if val.Description != "" {
			fmt.Fprintf(tw, "\n%s\n", val.Description)
		}
	case []dto.TicketResponse:
		fmt.Fprintln(tw, "NUMBER\tSTATUS\tPRIORITY\tASSIGNEE\tVERSION\tTITLE\tID")
		for _, t := range val {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%s\t%s\n",
				t.Number, t.Status, intOrDash(t.Priority), stringOrDash(t.AssignedTo), t.Version, t.Title, t.ID)
		}
	case []dto.HistoryEntryResponse:
		fmt.Fprintln(tw, "WHEN\tCHANGE\tFROM\tTO\tBY\tNOTE")
		for _, e := range val {
			from := string(e.OldStatus)
			if from == "" {
				from = "-"
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
				e.ChangedAt.Local().Format(time.DateTime), e.ChangeType, from, e.NewStatus, e.ChangedBy, e.Note)
		}
	default:
		return render(w, formatYAML, v)
	}
	return tw.Flush()
}

func intOrDash(p *int) string {
	if p == nil {
		return "-"
	}
	return strconv.Itoa(*p)
}

func stringOrDash(p *string) string {
	if p == nil || *p == "" {
		return "-"
	}
	return *p
}

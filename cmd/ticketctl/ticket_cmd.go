package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/spec-kit/itsm-portal/internal/api/dto"
	"github.com/spec-kit/itsm-portal/internal/domain"
	"github.com/spec-kit/itsm-portal/internal/portalclient"
)

func newTicketCommand(app *cliApp) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "ticket",
		Aliases: []string{"tickets", "t"},
		Short:   "Create, inspect and work tickets",
	}
	cmd.AddCommand(
		newTicketCreateCommand(app),
		newTicketShowCommand(app),
		newTicketHistoryCommand(app),
		newTicketListCommand(app),
		newTicketAssignCommand(app),
		newTicketReassignCommand(app),
		newTicketStatusCommand(app),
		newTicketPriorityCommand(app),
		newTicketCloseCommand(app),
	)
	return cmd
}

func newTicketCreateCommand(app *cliApp) *cobra.Command {
	var req dto.CreateTicketRequest
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Open a new ticket",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ticket, err := app.client.CreateTicket(cmd.Context(), req)
			if err != nil {
				return err
			}
			return render(cmd.OutOrStdout(), app.format, ticket)
		},
	}
	cmd.Flags().StringVar(&req.Title, "title", "", "short summary")
	cmd.Flags().StringVar(&req.Description, "description", "", "full description")
	cmd.Flags().StringVar(&req.DepartmentID, "department", "", "department id")
	_ = cmd.MarkFlagRequired("title")
	_ = cmd.MarkFlagRequired("department")
	return cmd
}

func newTicketShowCommand(app *cliApp) *cobra.Command {
	return &cobra.Command{
		Use:   "show TICKET_ID",
		Short: "Show one ticket",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ticket, err := app.client.GetTicket(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return render(cmd.OutOrStdout(), app.format, ticket)
		},
	}
}

func newTicketHistoryCommand(app *cliApp) *cobra.Command {
	return &cobra.Command{
		Use:   "history TICKET_ID",
		Short: "Show the audit trail of a ticket",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			entries, err := app.client.History(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return render(cmd.OutOrStdout(), app.format, entries)
		},
	}
}

func newTicketListCommand(app *cliApp) *cobra.Command {
	var statuses []string
	var opts portalclient.ListOptions
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tickets you opened",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			for _, s := range statuses {
				opts.Statuses = append(opts.Statuses, parseStatus(s))
			}
			tickets, err := app.client.ListTickets(cmd.Context(), opts)
			if err != nil {
				return err
			}
			return render(cmd.OutOrStdout(), app.format, tickets)
		},
	}
	cmd.Flags().StringSliceVar(&statuses, "status", nil, "only these statuses (comma separated)")
	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "page size (server default 20, max 100)")
	cmd.Flags().IntVar(&opts.Offset, "offset", 0, "page offset")
	return cmd
}

func newTicketAssignCommand(app *cliApp) *cobra.Command {
	var to, note string
	var version int
	cmd := &cobra.Command{
		Use:   "assign TICKET_ID",
		Short: "Assign a ticket to yourself or a team member",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := dto.AssignRequest{Note: note, Version: versionFlag(cmd, version)}
			if to != "" {
				req.AssignedTo = &to
			}
			ticket, err := app.client.Assign(cmd.Context(), args[0], req)
			if err != nil {
				return err
			}
			return render(cmd.OutOrStdout(), app.format, ticket)
		},
	}
	cmd.Flags().StringVar(&to, "to", "", "assignee user id (default yourself)")
	cmd.Flags().StringVar(&note, "note", "", "history note")
	addVersionFlag(cmd, &version)
	return cmd
}

func newTicketReassignCommand(app *cliApp) *cobra.Command {
	var to, note string
	var version int
	cmd := &cobra.Command{
		Use:   "reassign TICKET_ID",
		Short: "Move an assigned ticket to someone else",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ticket, err := app.client.Reassign(cmd.Context(), args[0], dto.AssignRequest{
				AssignedTo: &to,
				Note:       note,
				Version:    versionFlag(cmd, version),
			})
			if err != nil {
				return err
			}
			return render(cmd.OutOrStdout(), app.format, ticket)
		},
	}
	cmd.Flags().StringVar(&to, "to", "", "new assignee user id")
	cmd.Flags().StringVar(&note, "note", "", "reason for the reassignment")
	addVersionFlag(cmd, &version)
	_ = cmd.MarkFlagRequired("to")
	_ = cmd.MarkFlagRequired("note")
	return cmd
}

func newTicketStatusCommand(app *cliApp) *cobra.Command {
	var note string
	var version int
	cmd := &cobra.Command{
		Use:   "status TICKET_ID STATUS",
		Short: "Move a ticket to another status",
		Long:  "Move a ticket to another status. STATUS is one of: " + statusNames() + ".",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ticket, err := app.client.UpdateStatus(cmd.Context(), args[0], dto.StatusRequest{
				Status:  parseStatus(args[1]),
				Note:    note,
				Version: versionFlag(cmd, version),
			})
			if err != nil {
				return err
			}
			return render(cmd.OutOrStdout(), app.format, ticket)
		},
	}
	cmd.Flags().StringVar(&note, "note", "", "history note")
	addVersionFlag(cmd, &version)
	return cmd
}

func newTicketPriorityCommand(app *cliApp) *cobra.Command {
	var note string
	var version int
	cmd := &cobra.Command{
		Use:   "priority TICKET_ID PRIORITY",
		Short: fmt.Sprintf("Set the priority of a ticket (%d highest, %d lowest)", domain.MinPriority, domain.MaxPriority),
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			priority, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("priority must be a number: %w", err)
			}
			ticket, err := app.client.UpdatePriority(cmd.Context(), args[0], dto.PriorityRequest{
				Priority: priority,
				Note:     note,
				Version:  versionFlag(cmd, version),
			})
			if err != nil {
				return err
			}
			return render(cmd.OutOrStdout(), app.format, ticket)
		},
	}
	cmd.Flags().StringVar(&note, "note", "", "history note")
	addVersionFlag(cmd, &version)
	return cmd
}

func newTicketCloseCommand(app *cliApp) *cobra.Command {
	var code, note string
	var version int
	cmd := &cobra.Command{
		Use:   "close TICKET_ID",
		Short: "Close a ticket with a closure code",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ticket, err := app.client.Close(cmd.Context(), args[0], dto.CloseRequest{
				ClosureCodeID: code,
				Note:          note,
				Version:       versionFlag(cmd, version),
			})
			if err != nil {
				return err
			}
			return render(cmd.OutOrStdout(), app.format, ticket)
		},
	}
	cmd.Flags().StringVar(&code, "code", "", "closure code id")
	cmd.Flags().StringVar(&note, "note", "", "resolution note")
	addVersionFlag(cmd, &version)
	return cmd
}

func addVersionFlag(cmd *cobra.Command, v *int) {
	cmd.Flags().IntVar(v, "version", 0, "expected ticket version; the change fails if someone else got there first")
}

// versionFlag returns nil unless --version was given.
func versionFlag(cmd *cobra.Command, v int) *int {
	if !cmd.Flags().Changed("version") {
		return nil
	}
	return &v
}

// parseStatus accepts any casing and underscores or dashes for spaces.
func parseStatus(raw string) domain.TicketStatus {
	norm := strings.NewReplacer("_", " ", "-", " ").Replace(strings.TrimSpace(raw))
	for _, s := range domain.AllTicketStatuses {
		if strings.EqualFold(string(s), norm) {
			return s
		}
	}
	return domain.TicketStatus(raw)
}

func statusNames() string {
	names := make([]string, len(domain.AllTicketStatuses))
	for i, s := range domain.AllTicketStatuses {
		names[i] = strconv.Quote(string(s))
	}
	return strings.Join(names, ", ")
}

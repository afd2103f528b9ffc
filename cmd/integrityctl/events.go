package main

import (
	"context"
	"encoding/json"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/jcmexdev/storefront-integrity/internal/audit"
	"github.com/jcmexdev/storefront-integrity/internal/storage/sqlite"
)

func eventsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "events",
		Short: "Inspect and resolve security events",
	}
	cmd.AddCommand(eventsListCmd(), eventsResolveCmd())
	return cmd
}

func eventsListCmd() *cobra.Command {
	var (
		f      audit.Filter
		since  time.Duration
		asJSON bool
	)
	var typ, severity, status string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List security events, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			f.Type = audit.EventType(typ)
			f.Severity = audit.Severity(severity)
			f.Status = audit.Resolution(status)
			if since > 0 {
				f.Since = time.Now().Add(-since)
			}
			return withStore(cmd, func(ctx context.Context, store *sqlite.Store) error {
				events, err := audit.NewSink(store).List(ctx, f)
				if err != nil {
					return err
				}
				if asJSON {
					enc := json.NewEncoder(cmd.OutOrStdout())
					enc.SetIndent("", "  ")
					return enc.Encode(events)
				}
				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "ID\tCREATED\tTYPE\tSEVERITY\tSTATUS\tIP\tDESCRIPTION")
				for _, e := range events {
					fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
						e.ID, e.CreatedAt.Format(time.RFC3339), e.Type, e.Severity, e.Status, e.IPAddress, e.Description)
				}
				return tw.Flush()
			})
		},
	}
	cmd.Flags().StringVar(&typ, "type", "", "event type")
	cmd.Flags().StringVar(&severity, "severity", "", "low, medium, high or critical")
	cmd.Flags().StringVar(&status, "status", "", "open, resolved or dismissed")
	cmd.Flags().StringVar(&f.IPAddress, "ip", "", "client IP")
	cmd.Flags().DurationVar(&since, "since", 0, "only events newer than this")
	cmd.Flags().IntVarP(&f.Limit, "limit", "n", 100, "maximum events")
	cmd.Flags().BoolVar(&asJSON, "json", false, "output as JSON")
	return cmd
}

func eventsResolveCmd() *cobra.Command {
	var dismiss bool
	cmd := &cobra.Command{
		Use:   "resolve <event-id>",
		Short: "Close an open security event",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			status := audit.ResolutionResolved
			if dismiss {
				status = audit.ResolutionDismissed
			}
			return withStore(cmd, func(ctx context.Context, store *sqlite.Store) error {
				if err := audit.NewSink(store).Resolve(ctx, args[0], status); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "event %s %s\n", args[0], status)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&dismiss, "dismiss", false, "mark as dismissed instead of resolved")
	return cmd
}

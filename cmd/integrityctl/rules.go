package main

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/jcmexdev/storefront-integrity/internal/payment-service/fraudrules"
	"github.com/jcmexdev/storefront-integrity/internal/storage/sqlite"
)

func rulesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rules",
		Short: "Manage fraud rules",
	}
	cmd.AddCommand(rulesListCmd(), rulesAddCmd(), rulesDisableCmd())
	return cmd
}

func rulesListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all fraud rules in evaluation order",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd, func(ctx context.Context, store *sqlite.Store) error {
				rules, err := store.ListRules(ctx)
				if err != nil {
					return err
				}
				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "ID\tPRIORITY\tNAME\tTYPE\tACTION\tACTIVE\tCONDITIONS")
				for _, r := range rules {
					cond, _ := fraudrules.EncodeCondition(r.Condition)
					fmt.Fprintf(tw, "%s\t%d\t%s\t%s\t%s\t%t\t%s\n",
						r.ID, r.Priority, r.Name, r.Type(), r.Action, r.IsActive, cond)
				}
				return tw.Flush()
			})
		},
	}
}

func rulesAddCmd() *cobra.Command {
	var (
		name       string
		ruleType   string
		conditions string
		action     string
		priority   int
		inactive   bool
	)
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a fraud rule",
		Example: `  integrityctl rules add --name "ip burst" --type velocity \
    --conditions '{"scope":"ip","window_minutes":10,"max_count":8}' --action block
  integrityctl rules add --name "large order" --type amount \
    --conditions '{"operator":"greater_than","threshold":"2500"}' --action flag --priority 50`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cond, err := fraudrules.DecodeCondition(fraudrules.RuleType(ruleType), []byte(conditions))
			if err != nil {
				return err
			}
			rule := &fraudrules.Rule{
				Name:      name,
				Condition: cond,
				Action:    fraudrules.Action(action),
				Priority:  priority,
				IsActive:  !inactive,
			}
			return withStore(cmd, func(ctx context.Context, store *sqlite.Store) error {
				if err := store.InsertRule(ctx, rule); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "added rule %s\n", rule.ID)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "rule name")
	cmd.Flags().StringVar(&ruleType, "type", "", "velocity, amount or location")
	cmd.Flags().StringVar(&conditions, "conditions", "", "JSON condition for the rule type")
	cmd.Flags().StringVar(&action, "action", string(fraudrules.ActionFlag), "flag or block")
	cmd.Flags().IntVar(&priority, "priority", 100, "lower runs first")
	cmd.Flags().BoolVar(&inactive, "inactive", false, "store the rule disabled")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("type")
	_ = cmd.MarkFlagRequired("conditions")
	return cmd
}

func rulesDisableCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "disable <rule-id>",
		Short: "Stop evaluating a fraud rule",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd, func(ctx context.Context, store *sqlite.Store) error {
				if err := store.SetRuleActive(ctx, args[0], false); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "disabled rule %s\n", args[0])
				return nil
			})
		},
	}
}

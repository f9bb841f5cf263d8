package cli

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/dmitrijs2005/storagecrypt/internal/common"
	"github.com/dmitrijs2005/storagecrypt/internal/documents"
	"github.com/dmitrijs2005/storagecrypt/internal/models"
	"github.com/spf13/cobra"
)

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid document id %q", s)
	}
	return id, nil
}

func syncStates(d *documents.Document) string {
	parts := make([]string, 0, len(d.SyncStates))
	for action, state := range d.SyncStates {
		parts = append(parts, string(action)+"="+string(state))
	}
	sort.Strings(parts)
	return strings.Join(parts, ",")
}

func NewLsCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "ls [folder-id]",
		Short: "List the roots or the children of a folder",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := opts.openUnlocked(cmd)
			if err != nil {
				return err
			}
			defer app.Close()
			ctx := cmd.Context()

			var list []*documents.Document
			if len(args) == 0 {
				list, err = app.docs.Roots(ctx)
			} else {
				id, perr := parseID(args[0])
				if perr != nil {
					return perr
				}
				var folder *documents.Document
				folder, err = app.docs.ByID(ctx, id)
				if err == nil && folder == nil {
					err = fmt.Errorf("document %d: %w", id, common.ErrNotFound)
				}
				if err == nil {
					list, err = folder.Children(ctx)
				}
			}
			if err != nil {
				return err
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tTYPE\tNAME\tSIZE\tALIAS\tSTATES")
			for _, d := range list {
				kind := "file"
				if d.IsFolder() {
					kind = "dir"
				}
				fmt.Fprintf(tw, "%d\t%s\t%s\t%d\t%s\t%s\n", d.ID, kind, d.DisplayName, d.Size, d.KeyAlias, syncStates(d))
			}
			return tw.Flush()
		},
	}
}

// planDeletion marks documents for removal by the next transfer run.
func planDeletion(cmd *cobra.Command, app *App, ids []int64) error {
	ctx := cmd.Context()
	for _, id := range ids {
		d, err := app.docs.ByID(ctx, id)
		if err != nil {
			return err
		}
		if d == nil {
			return fmt.Errorf("document %d: %w", id, common.ErrNotFound)
		}
		if d.IsRoot() {
			return fmt.Errorf("document %d is a root and cannot be removed", id)
		}
		if err := d.UpdateSyncState(ctx, models.ActionDeletion, models.StatePlanned); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Planned deletion of %s\n", d)
	}
	return nil
}

func NewRmCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "rm <id>...",
		Short: "Plan documents for deletion; the next sync removes them",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids := make([]int64, 0, len(args))
			for _, a := range args {
				id, err := parseID(a)
				if err != nil {
					return err
				}
				ids = append(ids, id)
			}

			app, err := opts.openUnlocked(cmd)
			if err != nil {
				return err
			}
			defer app.Close()
			return planDeletion(cmd, app, ids)
		},
	}
}

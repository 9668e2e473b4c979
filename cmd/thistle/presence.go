package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"

	"github.com/Ramsey-B/thistle/pkg/apperrors"
	"github.com/Ramsey-B/thistle/pkg/audit"
	"github.com/Ramsey-B/thistle/pkg/presence"
	"github.com/Ramsey-B/thistle/pkg/workspace"
	"github.com/spf13/cobra"
)

// newPresenceCmd groups the maintenance commands that run against a workspace
// file directly, without the HTTP server.
func newPresenceCmd(envFiles *[]string) *cobra.Command {
	var caseID string

	cmd := &cobra.Command{
		Use:   "presence",
		Short: "Maintain the presence index of a case",
	}
	cmd.PersistentFlags().StringVar(&caseID, "case", "", "case id")
	_ = cmd.MarkPersistentFlagRequired("case")

	cmd.AddCommand(&cobra.Command{
		Use:   "rebuild",
		Short: "Recompute every presence row of the case",
		RunE: func(c *cobra.Command, args []string) error {
			return withIndexer(c.Context(), *envFiles, func(ctx context.Context, indexer *presence.Indexer) error {
				result, err := indexer.RebuildCase(ctx, caseID)
				if err != nil {
					return err
				}
				return printJSON(c.OutOrStdout(), result)
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "verify",
		Short: "Compare the presence index with the current participant links",
		RunE: func(c *cobra.Command, args []string) error {
			return withIndexer(c.Context(), *envFiles, func(ctx context.Context, indexer *presence.Indexer) error {
				err := indexer.Verify(ctx, caseID)
				var inconsistent *apperrors.IndexInconsistencyError
				if errors.As(err, &inconsistent) {
					if printErr := printJSON(c.OutOrStdout(), inconsistent); printErr != nil {
						return printErr
					}
					return err
				}
				if err != nil {
					return err
				}
				return printJSON(c.OutOrStdout(), map[string]any{"case_id": caseID, "consistent": true})
			})
		},
	})

	return cmd
}

func withIndexer(ctx context.Context, envFiles []string, fn func(ctx context.Context, indexer *presence.Indexer) error) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, logger, err := setup(envFiles)
	if err != nil {
		return err
	}
	defer logger.Sync()

	ws, err := workspace.Open(ctx, cfg.Database(), logger, workspace.WithForwardSink(audit.NewLogSink(logger)))
	if err != nil {
		return err
	}
	defer ws.Close()

	return fn(ctx, presence.NewIndexer(ws).WithBatchSize(cfg.PresenceBatchSize))
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

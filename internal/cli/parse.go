package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"boltforge/internal/artifact"
	"boltforge/internal/filetree"
	"boltforge/internal/steps"

	"github.com/spf13/cobra"
)

type parseResult struct {
	Steps []steps.Step  `json:"steps"`
	Tree  filetree.Tree `json:"tree"`
}

func newParseCmd() *cobra.Command {
	var (
		startID int
		asJSON  bool
	)

	cmd := &cobra.Command{
		Use:     "parse [file]",
		Aliases: []string{"p"},
		Short:   "Parse an assistant reply and show its steps and file tree",
		Args:    cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				raw []byte
				err error
			)
			if len(args) == 1 {
				raw, err = os.ReadFile(args[0])
			} else {
				raw, err = io.ReadAll(cmd.InOrStdin())
			}
			if err != nil {
				return fmt.Errorf("read reply: %w", err)
			}

			res := buildResult(string(raw), startID)

			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(res)
			}

			fmt.Fprintln(cmd.OutOrStdout(), "ID\tKIND\tSTATUS\tTITLE")
			for _, s := range res.Steps {
				fmt.Fprintf(cmd.OutOrStdout(), "%d\t%s\t%s\t%s\n", s.ID, s.Kind, s.Status, s.Title)
			}
			if len(res.Tree) > 0 {
				fmt.Fprintln(cmd.OutOrStdout())
				fmt.Fprint(cmd.OutOrStdout(), filetree.Render(res.Tree))
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&startID, "start-id", 1, "Position of the first action within the session")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print steps and tree as JSON")
	return cmd
}

// buildResult parses raw and folds its file actions into a fresh tree.
func buildResult(raw string, startID int) parseResult {
	q := steps.NewQueue()
	q.Append(artifact.Parse(raw, startID)...)

	merged := filetree.Merge(nil, q.Pending())
	q.Complete(merged.Consumed...)

	tree := merged.Tree
	if tree == nil {
		tree = filetree.Tree{}
	}
	return parseResult{Steps: q.All(), Tree: tree}
}

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/askiada/go-preprocess/pkg/selection"
)

func newSelectCmd() *cobra.Command {
	req := selection.Request{}

	cmd := &cobra.Command{
		Use:   "select",
		Short: "Copy the files of a session matching the rules of a selection CSV",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			res, err := selection.Select(cmd.Context(), req)
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "%s: %d files copied from %d matches\n", res.Token, res.Copied, len(res.Matches))

			return nil
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&req.RulesFile, "rules", "", "selection CSV: folder pattern, file pattern")
	flags.StringVar(&req.SourceRoot, "source", "", "session folder to select from")
	flags.StringVar(&req.DestRoot, "dest", "", "destination folder")
	flags.StringVar(&req.SessionID, "session", "", "session id, used in logs")
	for _, name := range []string{"rules", "source", "dest"} {
		_ = cmd.MarkFlagRequired(name)
	}

	return cmd
}

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newKeywordsCmd() *cobra.Command {
	var (
		keywords  []string
		inputPath string
	)
	cmd := &cobra.Command{
		Use:   "keywords",
		Short: "Print the normalized keywords a run would process",
		RunE: func(cmd *cobra.Command, _ []string) error {
			list, err := gatherKeywords(keywords, inputPath)
			if err != nil {
				return err
			}
			for i, kw := range list {
				fmt.Fprintf(cmd.OutOrStdout(), "%d\t%s\n", i+1, kw)
			}
			return nil
		},
	}
	cmd.Flags().StringArrayVarP(&keywords, "keyword", "k", nil, "keyword (repeatable)")
	cmd.Flags().StringVarP(&inputPath, "input", "i", "", "keyword file (.xlsx, .csv or .txt)")
	return cmd
}

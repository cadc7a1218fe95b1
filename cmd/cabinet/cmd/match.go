package cmd

import (
	"fmt"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"
)

func newMatchCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "match <prefix|regex|similar> <pattern>",
		Short: "List keys matching a pattern",
		Long: `List keys by prefix, regular expression or edit distance, one per line.
Tree databases list keys in order.

Example:
  cabinet match prefix user:
  cabinet match regex '^ap' --limit 10
  cabinet match similar kitten --distance 2`,
		Args:      cobra.ExactArgs(2),
		ValidArgs: []string{"prefix", "regex", "similar"},
		RunE: func(cmd *cobra.Command, args []string) error {
			db := dbFrom(cmd)
			limit, _ := cmd.Flags().GetInt64("limit")
			bounded := cmd.Flags().Changed("limit")

			var (
				keys []string
				err  error
			)
			switch args[0] {
			case "prefix":
				if bounded {
					keys, err = db.MatchPrefixStringLimit(args[1], limit)
				} else {
					keys, err = db.MatchPrefixString(args[1])
				}
			case "regex":
				if bounded {
					keys, err = db.MatchRegexStringLimit(args[1], limit)
				} else {
					keys, err = db.MatchRegexString(args[1])
				}
			case "similar":
				distance, _ := cmd.Flags().GetInt("distance")
				if bounded {
					keys, err = db.MatchSimilarStringLimit(args[1], distance, limit)
				} else {
					keys, err = db.MatchSimilarString(args[1], distance)
				}
			default:
				return errors.Newf("unknown match kind %q", args[0])
			}
			if err != nil {
				return err
			}
			for _, k := range keys {
				fmt.Fprintln(cmd.OutOrStdout(), k)
			}
			return nil
		},
	}
	c.Flags().Int64("limit", 0, "Maximum number of keys; must be positive when given")
	c.Flags().Int("distance", 1, "Maximum edit distance for similar")
	return c
}

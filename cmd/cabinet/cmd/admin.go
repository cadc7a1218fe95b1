package cmd

import (
	"fmt"
	"maps"
	"slices"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show database status",
		Long: `Show the type, path, record count, size and engine status of the database.

Example:
  cabinet status --db ./data/cabinet.kct`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			db := dbFrom(cmd)
			typ, err := db.Type()
			if err != nil {
				return err
			}
			path, err := db.Path()
			if err != nil {
				return err
			}
			count, err := db.Count()
			if err != nil {
				return err
			}
			size, err := db.SizeInBytes()
			if err != nil {
				return err
			}
			status, err := db.Status()
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintf(w, "type\t%s\n", typ)
			fmt.Fprintf(w, "path\t%s\n", path)
			fmt.Fprintf(w, "count\t%d\n", count)
			fmt.Fprintf(w, "size\t%d\n", size)
			fmt.Fprintf(w, "encoding\t%s\n", db.Encoding())
			for _, k := range slices.Sorted(maps.Keys(status)) {
				switch k {
				case "type", "path", "count", "size", "encoding":
					continue
				}
				fmt.Fprintf(w, "%s\t%s\n", k, status[k])
			}
			return w.Flush()
		},
	}
}

func newDumpCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "dump <snapshot>",
		Short: "Write every record to a snapshot file",
		Long: `Write every record to a snapshot file that load can read back into any
database type.

Example:
  cabinet dump backup.snap`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := dbFrom(cmd).DumpSnapshot(args[0]); err != nil {
				return err
			}
			cmd.Printf("Snapshot written to %s\n", args[0])
			return nil
		},
	}
}

func newLoadCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "load <snapshot>",
		Short: "Load records from a snapshot file",
		Long: `Load every record of a snapshot file, overwriting records with the same key.

Example:
  cabinet load backup.snap`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := dbFrom(cmd).LoadSnapshot(args[0]); err != nil {
				return err
			}
			cmd.Printf("Snapshot %s loaded\n", args[0])
			return nil
		},
	}
}

func newCopyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "copy <destination>",
		Short: "Copy the database file",
		Long: `Copy the database file or directory to destination. In-memory databases
cannot be copied; dump them instead.

Example:
  cabinet copy ./backup/cabinet.kch`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := dbFrom(cmd).CopyTo(args[0]); err != nil {
				return err
			}
			cmd.Printf("Database copied to %s\n", args[0])
			return nil
		},
	}
}

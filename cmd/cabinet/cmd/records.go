package cmd

import (
	"fmt"
	"strconv"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"

	"github.com/ssargent/cabinetdb/pkg/store"
)

func newGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <key>",
		Short: "Get a value for a key",
		Long: `Get the value stored under a key, decoded with the database encoding.

Example:
  cabinet get mykey`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			value, ok, err := dbFrom(cmd).GetString(args[0])
			if err != nil {
				return err
			}
			if !ok {
				return errors.Wrapf(store.ErrKeyNotFound, "%q", args[0])
			}
			fmt.Fprintln(cmd.OutOrStdout(), value)
			return nil
		},
	}
}

func newPutCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "put <key> <value>",
		Short: "Put a key-value pair",
		Long: `Put a key-value pair into the database.

--mode selects how an existing record is treated:
  set      overwrite it (default)
  add      keep it and fail
  append   append the value to it
  replace  fail when the key is missing

Example:
  cabinet put mykey myvalue
  cabinet put --mode append log "next line"`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			db := dbFrom(cmd)
			key, value := args[0], args[1]
			mode, _ := cmd.Flags().GetString("mode")

			stored := true
			var err error
			switch mode {
			case "set":
				err = db.SetString(key, value)
			case "add":
				stored, err = db.PutIfAbsentString(key, value)
			case "append":
				err = db.AppendString(key, value)
			case "replace":
				stored, err = db.ReplaceString(key, value)
			default:
				return errors.Newf("unknown put mode %q", mode)
			}
			switch {
			case err != nil:
				return err
			case !stored && mode == "add":
				return errors.Newf("key %q already exists", key)
			case !stored:
				return errors.Wrapf(store.ErrKeyNotFound, "%q", key)
			}
			cmd.Printf("Stored key '%s'\n", key)
			return nil
		},
	}
	c.Flags().String("mode", "set", "Write mode: set, add, append or replace")
	return c
}

func newDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <key>",
		Short: "Delete a key",
		Long: `Delete a key from the database.

Example:
  cabinet delete mykey`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			removed, err := dbFrom(cmd).RemoveString(args[0])
			if err != nil {
				return err
			}
			if !removed {
				return errors.Wrapf(store.ErrKeyNotFound, "%q", args[0])
			}
			cmd.Printf("Deleted key '%s'\n", args[0])
			return nil
		},
	}
}

func newIncrCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "incr <key> [delta]",
		Short: "Increment a counter",
		Long: `Add delta (default 1) to the counter stored under key and print the result.

Counters are 8-byte big-endian integers, or 16-byte fixed point numbers with
--decimal. A missing key fails unless --create starts it from zero or
--default starts it from a given value.

Example:
  cabinet incr hits
  cabinet incr --create visitors 10
  cabinet incr --decimal --create balance 12.5`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			db := dbFrom(cmd)
			key := args[0]
			delta := "1"
			if len(args) == 2 {
				delta = args[1]
			}
			create, _ := cmd.Flags().GetBool("create")
			decimal, _ := cmd.Flags().GetBool("decimal")
			def, _ := cmd.Flags().GetString("default")

			if decimal {
				v, err := incrementDecimal(db, key, delta, def, create)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), strconv.FormatFloat(v, 'f', -1, 64))
				return nil
			}
			v, err := incrementInt(db, key, delta, def, create)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), v)
			return nil
		},
	}
	c.Flags().Bool("create", false, "Start a missing counter from zero")
	c.Flags().String("default", "", "Start a missing counter from this value")
	c.Flags().Bool("decimal", false, "Treat the counter as a fixed point decimal")
	c.MarkFlagsMutuallyExclusive("create", "default")
	return c
}

func incrementInt(db *store.DB, key, delta, def string, create bool) (int64, error) {
	n, err := strconv.ParseInt(delta, 10, 64)
	if err != nil {
		return 0, errors.Wrapf(err, "delta %q", delta)
	}
	switch {
	case def != "":
		d, err := strconv.ParseInt(def, 10, 64)
		if err != nil {
			return 0, errors.Wrapf(err, "default %q", def)
		}
		return db.IncrementOrSetDefaultString(key, n, d)
	case create:
		return db.IncrementOrSetString(key, n)
	}
	return db.IncrementString(key, n)
}

func incrementDecimal(db *store.DB, key, delta, def string, create bool) (float64, error) {
	n, err := strconv.ParseFloat(delta, 64)
	if err != nil {
		return 0, errors.Wrapf(err, "delta %q", delta)
	}
	switch {
	case def != "":
		d, err := strconv.ParseFloat(def, 64)
		if err != nil {
			return 0, errors.Wrapf(err, "default %q", def)
		}
		return db.IncrementDecimalOrSetDefaultString(key, n, d)
	case create:
		return db.IncrementDecimalOrSetString(key, n)
	}
	return db.IncrementDecimalString(key, n)
}

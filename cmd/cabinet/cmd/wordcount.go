package cmd

import (
	"bytes"
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/spf13/cobra"

	"github.com/ssargent/cabinetdb/pkg/mapreduce"
)

// wordCounter counts whitespace separated words across record values.
type wordCounter struct {
	mu     sync.Mutex
	counts map[string]int
}

func (w *wordCounter) Map(_, value []byte, c mapreduce.Collector) error {
	for _, word := range bytes.Fields(value) {
		if err := c.Collect(word, nil); err != nil {
			return err
		}
	}
	return nil
}

func (w *wordCounter) Reduce(key []byte, values *mapreduce.Values) error {
	n := 0
	for range values.All() {
		n++
	}
	if err := values.Err(); err != nil {
		return err
	}
	w.mu.Lock()
	w.counts[string(key)] = n
	w.mu.Unlock()
	return nil
}

func newWordCountCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "wordcount",
		Short: "Count words across all values with map-reduce",
		Long: `Count the whitespace separated words of every value with a map-reduce
job and print "word<TAB>count" lines in word order.

Example:
  cabinet wordcount --threads 4 --tmp /var/tmp`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := mapreduce.DefaultOptions()
			noLock, _ := cmd.Flags().GetBool("no-lock")
			noCompress, _ := cmd.Flags().GetBool("no-compress")
			opts.UseLocks = !noLock
			opts.CompressTemporaryStore = !noCompress
			opts.Threads, _ = cmd.Flags().GetInt("threads")
			opts.TemporaryDir, _ = cmd.Flags().GetString("tmp")

			wc := &wordCounter{counts: map[string]int{}}
			job := &mapreduce.Job{Mapper: wc, Reducer: wc, Options: opts}
			if err := job.Execute(dbFrom(cmd)); err != nil {
				return err
			}

			for _, word := range slices.Sorted(maps.Keys(wc.counts)) {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%d\n", word, wc.counts[word])
			}
			return nil
		},
	}
	c.Flags().Int("threads", 1, "Reducer concurrency")
	c.Flags().Bool("no-lock", false, "Let other writers run during the map phase")
	c.Flags().Bool("no-compress", false, "Store intermediate records uncompressed")
	c.Flags().String("tmp", "", "Directory for the temporary store")
	return c
}

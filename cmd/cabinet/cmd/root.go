package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"

	"github.com/ssargent/cabinetdb/pkg/config"
	"github.com/ssargent/cabinetdb/pkg/log"
	"github.com/ssargent/cabinetdb/pkg/store"
)

// skipOpen marks commands that run without an open database.
const skipOpen = "skip-open"

type sessionKey struct{}

// session carries what openDatabase prepared to the running command.
type session struct {
	db  *store.DB
	cfg *config.Config
}

// rootCmd represents the base command when called without any subcommands
var rootCmd = newRootCmd()

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "cabinet",
		Short: "CabinetDB - typed access to hash and tree databases",
		Long: `CabinetDB opens hash and B+ tree databases, in memory or on disk, and
exposes typed record, cursor, matching and map-reduce operations.

The database type follows the file extension: .kch (file hash), .kct (file
tree), .kcd (directory hash), .kcf (directory tree). In-memory databases use
"-", "+", ":", "*" or "%".`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: openDatabase,
	}

	flags := root.PersistentFlags()
	flags.StringP("config", "c", "", "Configuration file (YAML, or TOML by extension)")
	flags.StringP("db", "d", "", "Database path, overriding the configuration")
	flags.StringSlice("mode", nil, "Open modes such as reader, writer, create, truncate, nolock, trylock")
	flags.String("log-level", "", "Log level, overriding the configuration")
	flags.String("encoding", "", "Charset for string conversions, overriding the configuration")

	root.AddCommand(
		newGetCmd(), newPutCmd(), newDeleteCmd(), newIncrCmd(),
		newMatchCmd(), newStatusCmd(), newDumpCmd(), newLoadCmd(), newCopyCmd(),
		newWordCountCmd(), newServeCmd(), newInitCmd(),
	)
	return root
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := run(context.Background(), rootCmd, os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// run executes root with args and closes the database the command opened,
// whether or not the command failed.
func run(ctx context.Context, root *cobra.Command, args []string) (err error) {
	sess := &session{}
	defer func() {
		if sess.db != nil && sess.db.IsOpen() {
			err = errors.CombineErrors(err, sess.db.Close())
		}
	}()
	root.SetArgs(args)
	return root.ExecuteContext(context.WithValue(ctx, sessionKey{}, sess))
}

// loadConfig reads the configuration named by --config, or the default one
// when it exists, and applies the command line overrides.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg := config.DefaultConfig()
	switch {
	case path != "":
		loaded, err := config.LoadConfig(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	case config.ConfigExists(config.GetDefaultConfigPath()):
		loaded, err := config.LoadConfig(config.GetDefaultConfigPath())
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	if db, _ := cmd.Flags().GetString("db"); db != "" {
		cfg.Database.Path = db
	}
	if modes, _ := cmd.Flags().GetStringSlice("mode"); len(modes) > 0 {
		cfg.Database.Modes = modes
	}
	if level, _ := cmd.Flags().GetString("log-level"); level != "" {
		cfg.Logging.Level = level
	}
	if enc, _ := cmd.Flags().GetString("encoding"); enc != "" {
		cfg.Database.Encoding = enc
	}
	return cfg, cfg.Validate()
}

func initLogging(cfg *config.Config) error {
	level, err := log.ParseLogLevel(cfg.Logging.Level)
	if err != nil {
		return err
	}
	typ, err := log.ParseLoggerType(cfg.Logging.Format)
	if err != nil {
		return err
	}
	log.Init(log.Options{LogLevel: level, Type: typ, Output: os.Stderr})
	return nil
}

// openDatabase opens the configured database into the command session.
func openDatabase(cmd *cobra.Command, args []string) error {
	if cmd.Annotations[skipOpen] != "" {
		return nil
	}
	sess := sessionFrom(cmd)
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := initLogging(cfg); err != nil {
		return err
	}

	desc, err := cfg.Descriptor()
	if err != nil {
		return err
	}
	if !desc.Type.InMemory() {
		if err := os.MkdirAll(filepath.Dir(desc.Path), 0750); err != nil {
			return errors.Wrap(err, "failed to create data dir")
		}
	}

	db := store.New(desc, store.WithLogger(log.Store))
	if cfg.Database.Encoding != "" {
		if err := db.SetEncoding(cfg.Database.Encoding); err != nil {
			return err
		}
	}
	if err := db.Open(); err != nil {
		return err
	}

	sess.db, sess.cfg = db, cfg
	return nil
}

func sessionFrom(cmd *cobra.Command) *session {
	if s, ok := cmd.Context().Value(sessionKey{}).(*session); ok {
		return s
	}
	return &session{}
}

func dbFrom(cmd *cobra.Command) *store.DB { return sessionFrom(cmd).db }

func configFrom(cmd *cobra.Command) *config.Config { return sessionFrom(cmd).cfg }

package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/go-kit/log"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/iwanhae/qdblocks/internal/config"
	"github.com/iwanhae/qdblocks/internal/logging"
	"github.com/iwanhae/qdblocks/internal/metrics"
)

func main() {
	os.Exit(execute(context.Background(), afero.NewOsFs(), os.Args[1:], os.Stdout, os.Stderr))
}

// app is the state shared by all commands: resolved configuration, logger
// and the filesystem results and records live on.
type app struct {
	fs     afero.Fs
	out    io.Writer
	errOut io.Writer

	configPath string
	home       string
	logLevel   string
	logFormat  string
	textfile   string

	cfg    *config.Config
	logger log.Logger
}

func execute(ctx context.Context, fs afero.Fs, args []string, out, errOut io.Writer) int {
	a := &app{fs: fs, out: out, errOut: errOut}
	root := newRootCmd(a)
	root.SetArgs(args)
	root.SetOut(out)
	root.SetErr(errOut)
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(errOut, "Error: %v\n", err)
		return 1
	}
	return 0
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           "qdblocks",
		Short:         "Record and classify the storage layout read by benchmark queries",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup()
		},
		PersistentPostRunE: func(cmd *cobra.Command, _ []string) error {
			if a.textfile == "" {
				return nil
			}
			return metrics.WriteTextfile(a.textfile)
		},
	}

	root.PersistentFlags().StringVar(&a.configPath, "config", "", "YAML configuration file (default $QDB_CONFIG)")
	root.PersistentFlags().StringVar(&a.home, "home", "", "Base directory, overrides QDB_HOME")
	root.PersistentFlags().StringVar(&a.logLevel, "log.level", "", "Log level: debug, info, warn, error")
	root.PersistentFlags().StringVar(&a.logFormat, "log.format", "", "Log format: logfmt, json")
	root.PersistentFlags().StringVar(&a.textfile, "metrics.textfile", "", "Write metrics to this file on exit, for the node exporter textfile collector")

	root.AddCommand(
		newExtractCmd(a),
		newExplainCmd(a),
		newClassifyCmd(a),
		newCleanCmd(a),
		newIndexCmd(a),
		newServeCmd(a),
	)
	return root
}

// setup resolves the configuration. Flags win over the environment, which
// wins over the config file.
func (a *app) setup() error {
	bootstrap, err := logging.New(a.errOut, a.logLevel, a.logFormat)
	if err != nil {
		return err
	}
	cfg, err := config.Load(a.configPath, bootstrap)
	if err != nil {
		return err
	}
	if a.home != "" {
		cfg.HomeDir = a.home
	}
	if a.logLevel != "" {
		cfg.LogLevel = a.logLevel
	}
	if a.logFormat != "" {
		cfg.LogFormat = a.logFormat
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger, err := logging.New(a.errOut, cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.logger = logger
	metrics.Init()
	return nil
}

package main

import (
	"context"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/ips6/pkgrepo/internal/dcontext"
	"github.com/ips6/pkgrepo/internal/errcode"
	"github.com/ips6/pkgrepo/version"
)

var showVersion bool
var logLevel string
var logFormatter string

// RootCmd is the main command for the pkg6repo binary.
var RootCmd = &cobra.Command{
	Use:           "pkg6repo",
	Short:         "pkg6repo administers an image packaging system repository",
	SilenceUsage:  true,
	SilenceErrors: true,
	// PersistentPreRunE runs after cobra parses --log-level/--log-formatter
	// but before any subcommand's RunE, so configureLogging sees the flags
	// as the user actually passed them.
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cmd.SetContext(configureLogging(cmd.Context()))
		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		if showVersion {
			version.PrintVersion()
			return nil
		}
		return cmd.Usage()
	},
}

func init() {
	RootCmd.PersistentFlags().BoolVarP(&showVersion, "version", "v", false, "show the version and exit")
	RootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "logging level: error, warn, info, or debug")
	RootCmd.PersistentFlags().StringVar(&logFormatter, "log-formatter", "text", "log output formatter: text or json")
}

// configureLogging sets logrus's global level and formatter from the
// --log-level/--log-formatter flags and returns a context carrying the
// resulting logger, mirroring configureLogging in the teacher's registry
// command.
func configureLogging(ctx context.Context) context.Context {
	level, err := logrus.ParseLevel(logLevel)
	if err != nil {
		level = logrus.InfoLevel
		logrus.Warnf("error parsing log level %q: %v, using %q", logLevel, err, level)
	}
	logrus.SetLevel(level)

	switch logFormatter {
	case "json":
		logrus.SetFormatter(&logrus.JSONFormatter{})
	case "text", "":
		logrus.SetFormatter(&logrus.TextFormatter{})
	default:
		logrus.Warnf("unsupported log formatter %q, using %q", logFormatter, "text")
		logrus.SetFormatter(&logrus.TextFormatter{})
	}

	ctx = dcontext.WithVersion(ctx, version.Version())
	return dcontext.WithLogger(ctx, dcontext.GetLogger(ctx))
}

// Execute runs RootCmd and translates any returned error into a process
// exit code via its registered errcode.ErrorCode, following §6's exit
// code table (0 success, 1 usage error, 2 I/O error, 3 repository
// inconsistency, 4 transaction busy, 5 not found).
func Execute() int {
	ctx := dcontext.Background()

	if err := RootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "pkg6repo:", err)
		if ec, ok := err.(errcode.ErrorCoder); ok {
			return ec.ErrorCode().ExitCode()
		}
		return 1
	}
	return 0
}

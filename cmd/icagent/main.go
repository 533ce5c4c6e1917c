// icagent inspects the wire artifacts of an agent: Candid messages, request
// ids, principals and state certificates.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/colorfulnotion/icagent/common"
	"github.com/colorfulnotion/icagent/log"
	"github.com/colorfulnotion/icagent/telemetry"
	"github.com/spf13/cobra"
)

var (
	Version   = "dev"
	Commit    = "none"
	BuildTime = "unknown"
)

type globalFlags struct {
	logLevel     string
	logFormat    string
	logModules   string
	verbosity    int
	network      string
	rootKey      string
	cacheDir     string
	otlpEndpoint string
}

func newRootCmd() *cobra.Command {
	g := &globalFlags{}
	var shutdown telemetry.Shutdown

	rootCmd := &cobra.Command{
		Use:           "icagent",
		Short:         "Decode and verify agent wire formats",
		Version:       version(),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			level := g.logLevel
			if g.verbosity > 0 {
				level = log.LevelString(log.VerbosityLevel(g.verbosity))
			}
			if err := log.InitLogger(level, g.logFormat); err != nil {
				return err
			}
			if g.logModules != "" {
				log.EnableModules(g.logModules)
			}
			var err error
			shutdown, err = telemetry.Setup(cmd.Context(), g.otlpEndpoint)
			return err
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if shutdown == nil {
				return nil
			}
			return shutdown(context.Background())
		},
	}
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&g.logLevel, "log-level", "warn", "log level (trace, debug, info, warn, error, crit)")
	flags.StringVar(&g.logFormat, "log-format", "text", "log format (text, json)")
	flags.StringVar(&g.logModules, "log-modules", "", "comma separated modules with debug logging, or \"all\"")
	flags.CountVarP(&g.verbosity, "verbose", "v", "raise the log level above info, repeatable")
	flags.StringVar(&g.network, "network", "ic", "network id (ic, local) or path to a network file")
	flags.StringVar(&g.rootKey, "root-key", "", "hex DER root key, overrides the network's")
	flags.StringVar(&g.cacheDir, "cache-dir", "", "directory of the verified delegation cache")
	flags.StringVar(&g.otlpEndpoint, "otlp-endpoint", "", "OTLP/HTTP traces URL, e.g. http://localhost:4318/v1/traces")

	rootCmd.AddCommand(
		newDecodeCmd(),
		newRequestIDCmd(),
		newPrincipalCmd(),
		newTreeCmd(),
		newVerifyCmd(g),
		newLookupCmd(g),
	)
	return rootCmd
}

func version() string {
	commit := Commit
	if commit == "none" {
		commit = common.GetCommitHash()
	}
	return fmt.Sprintf("%s (commit %s, built %s)", Version, commit, BuildTime)
}

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// Command passvault-server serves the encrypted credential store API.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	version   = "dev"
	buildDate = "unknown"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// globalFlags are shared by every subcommand and override file and environment values.
type globalFlags struct {
	configFile string
	addr       string
	grpcAddr   string
	dsn        string
	logLevel   string
	dev        bool
}

func newRootCommand() *cobra.Command {
	gf := &globalFlags{}

	root := &cobra.Command{
		Use:           "passvault-server",
		Short:         "Encrypted credential store service",
		Version:       fmt.Sprintf("%s (built: %s)", version, buildDate),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := root.PersistentFlags()
	pf.StringVar(&gf.configFile, "config", os.Getenv("PV_CONFIG"), "YAML config file (env PV_CONFIG)")
	pf.StringVar(&gf.addr, "addr", "", "HTTP listen address (overrides http_addr)")
	pf.StringVar(&gf.grpcAddr, "grpc-addr", "", "gRPC health listen address; empty disables it")
	pf.StringVar(&gf.dsn, "dsn", "", "PostgreSQL DSN (overrides dsn)")
	pf.StringVar(&gf.logLevel, "log-level", "", "log level: debug, info, warn, error")
	pf.BoolVar(&gf.dev, "dev", false, "development logging and gRPC reflection")

	root.AddCommand(
		newServeCommand(gf),
		newMigrateCommand(gf),
		newKeygenCommand(gf),
		newVersionCommand(),
	)
	return root
}

package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/and161185/passvault/internal/config"
)

// loadConfig layers the persistent flags that were set on top of file and environment.
func loadConfig(cmd *cobra.Command, gf *globalFlags, lookup config.LookupFunc) (*config.Config, error) {
	cfg, err := config.Load(gf.configFile, lookup)
	if err != nil {
		return nil, err
	}
	flags := cmd.Flags()
	if flags.Changed("addr") {
		cfg.HTTPAddr = gf.addr
	}
	if flags.Changed("grpc-addr") {
		cfg.GRPCHealthAddr = gf.grpcAddr
	}
	if flags.Changed("dsn") {
		cfg.DSN = gf.dsn
	}
	if flags.Changed("log-level") {
		cfg.LogLevel = gf.logLevel
	}
	if flags.Changed("dev") {
		cfg.Dev = gf.dev
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// newLogger builds a JSON production logger, or a console one in dev mode.
func newLogger(level string, dev bool) (*zap.Logger, error) {
	zc := zap.NewProductionConfig()
	if dev {
		zc = zap.NewDevelopmentConfig()
	}
	lvl, err := zap.ParseAtomicLevel(level)
	if err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}
	zc.Level = lvl
	return zc.Build()
}

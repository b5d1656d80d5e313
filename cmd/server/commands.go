package main

import (
	"encoding/hex"
	"fmt"

	"github.com/awnumar/memguard"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/and161185/passvault/internal/crypto"
	"github.com/and161185/passvault/internal/migrate"
	"github.com/and161185/passvault/internal/repository/postgres"
)

func newMigrateCommand(gf *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending schema migrations and exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd, gf, nil)
			if err != nil {
				return err
			}
			logger, err := newLogger(cfg.LogLevel, cfg.Dev)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			pc, err := postgres.ParseConfig(postgres.Options{
				DSN:            cfg.DSN,
				Database:       cfg.Database,
				ConnectTimeout: cfg.StoreConnectTimeout,
			})
			if err != nil {
				return err
			}
			if err := migrate.Up(cmd.Context(), pc.ConnConfig, cfg.Collection); err != nil {
				return fmt.Errorf("migrate up: %w", err)
			}
			logger.Info("migrations applied", zap.String("collection", cfg.Collection))
			return nil
		},
	}
}

func newKeygenCommand(gf *globalFlags) *cobra.Command {
	var algorithm string
	cmd := &cobra.Command{
		Use:   "keygen",
		Short: "Print a random hex cipher key for PV_CIPHER_KEY",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !cmd.Flags().Changed("algorithm") {
				cfg, err := loadConfig(cmd, gf, nil)
				if err != nil {
					return err
				}
				algorithm = cfg.CipherAlgorithm
			}
			key, err := crypto.GenerateKey(algorithm)
			if err != nil {
				return err
			}
			defer memguard.WipeBytes(key)
			_, err = fmt.Fprintln(cmd.OutOrStdout(), hex.EncodeToString(key))
			return err
		},
	}
	cmd.Flags().StringVar(&algorithm, "algorithm", crypto.DefaultAlgorithm, "cipher algorithm the key is for")
	return cmd
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "passvault-server %s (built: %s)\n", version, buildDate)
		},
	}
}

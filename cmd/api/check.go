package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func checkStoreCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check-store",
		Short: "Verify the primary store is reachable",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			ctx := cmd.Context()

			st, err := openStore(ctx, cfg)
			if err != nil {
				return fmt.Errorf("check-store: %w", err)
			}
			defer st.Close()

			if err := st.Ping(ctx); err != nil {
				return fmt.Errorf("check-store: %w", err)
			}

			log.Info().Str("backend", cfg.StoreBackend).Msg("Primary store is reachable")
			fmt.Fprintf(cmd.OutOrStdout(), "%s store: ok\n", cfg.StoreBackend)
			return nil
		},
	}
}

func checkMirrorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check-mirror",
		Short: "Verify the Notion database is reachable",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			ok, err := newMirror(cfg).CheckReachable(cmd.Context())
			if err != nil {
				return fmt.Errorf("check-mirror: %w", err)
			}
			if !ok {
				return fmt.Errorf("check-mirror: database %s is not reachable", cfg.NotionDatabaseID)
			}

			log.Info().Str("database_id", cfg.NotionDatabaseID).Msg("Notion database is reachable")
			fmt.Fprintln(cmd.OutOrStdout(), "notion mirror: ok")
			return nil
		},
	}
}

package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/edgelake/sheetsink/internal/db"
	"github.com/edgelake/sheetsink/internal/schema"
	"github.com/edgelake/sheetsink/internal/warehouse"
)

var migrateVerifyOnly bool

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or verify the warehouse tables",
	Long: `Migrate creates the destination tables and the ledger tables
(processing log, processed files, poison messages) in the configured
schema. Existing tables are left untouched. With --verify-only the
live schema is checked against the registry without any DDL.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfg.Warehouse.URL == "" {
			return errors.New("warehouse database URL is required")
		}

		reg, err := schema.NewRegistry(schema.Catalog())
		if err != nil {
			return err
		}

		database, err := db.Open(cmd.Context(), cfg.Warehouse.URL, logger)
		if err != nil {
			return err
		}
		defer database.Close()

		if migrateVerifyOnly {
			if err := warehouse.VerifyTables(cmd.Context(), database.Pool, reg, cfg.Warehouse.Schema); err != nil {
				return err
			}
			fmt.Printf("Schema %q matches the registry (%d tables)\n", cfg.Warehouse.Schema, len(reg.Tables()))
			return nil
		}

		if err := warehouse.Apply(cmd.Context(), database.Pool, reg, cfg.Warehouse.Schema); err != nil {
			return err
		}
		if err := warehouse.VerifyTables(cmd.Context(), database.Pool, reg, cfg.Warehouse.Schema); err != nil {
			return err
		}
		fmt.Printf("Schema %q is ready (%d destination tables + ledger)\n", cfg.Warehouse.Schema, len(reg.Tables()))
		return nil
	},
}

func init() {
	migrateCmd.Flags().BoolVar(&migrateVerifyOnly, "verify-only", false, "Check the live schema without running DDL")
	rootCmd.AddCommand(migrateCmd)
}

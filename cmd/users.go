/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"errors"
	"fmt"

	"github.com/jjudge-oj/accounts/internal/db"
	"github.com/jjudge-oj/accounts/internal/export"
	"github.com/jjudge-oj/accounts/internal/storage"
	"github.com/jjudge-oj/accounts/internal/store"
	"github.com/spf13/cobra"
)

var exportKeep int

// usersCmd groups user directory maintenance commands.
var usersCmd = &cobra.Command{
	Use:   "users",
	Short: "User directory maintenance",
}

var usersExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Upload a JSON snapshot of all users and their roles to object storage",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, err := loadConfig()
		if err != nil {
			return err
		}
		if cfg.Database.Driver == db.DriverMemory {
			return errors.New("users export needs a database; DB_DRIVER=memory has no users to export")
		}

		ctx := cmd.Context()
		conn, err := db.Open(ctx, cfg.Database)
		if err != nil {
			return err
		}
		defer conn.Close()

		objects, err := storage.NewFromConfig(ctx, cfg)
		if err != nil {
			return fmt.Errorf("init storage: %w", err)
		}
		defer objects.Close()

		res, err := export.NewExporter(store.NewUserRepository(conn), objects, log).Run(ctx, exportKeep)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "exported %d users to %s/%s\n", res.Count, objects.Bucket(), res.Object.Key)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(usersCmd)
	usersCmd.AddCommand(usersExportCmd)

	usersExportCmd.Flags().IntVar(&exportKeep, "keep", 0, "Keep only the newest N exports (0 keeps all)")
}

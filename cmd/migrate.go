package cmd

import (
	"fmt"

	"github.com/jmehdipour/sms-inbox/internal/config"
	"github.com/jmehdipour/sms-inbox/internal/db"
	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create the messages table and indexes if they do not exist",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		dbx, err := openDatabase(cfg.Database)
		if err != nil {
			return err
		}
		defer dbx.Close()

		if err := db.Migrate(cmd.Context(), dbx); err != nil {
			return err
		}

		fmt.Println(">> Migration complete ✅")
		return nil
	},
}

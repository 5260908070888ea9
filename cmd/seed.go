package cmd

import (
	"fmt"

	"github.com/jmehdipour/sms-inbox/internal/config"
	"github.com/jmehdipour/sms-inbox/internal/db"
	"github.com/jmehdipour/sms-inbox/internal/model"
	"github.com/jmehdipour/sms-inbox/internal/repository"
	"github.com/spf13/cobra"
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Seed the database with demo messages",
	RunE: func(cmd *cobra.Command, args []string) error {
		// 1) load config
		cfg, err := config.Load(cfgPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		// 2) connect
		dbx, err := openDatabase(cfg.Database)
		if err != nil {
			return err
		}
		defer dbx.Close()

		if err := db.Migrate(cmd.Context(), dbx); err != nil {
			return err
		}

		fmt.Println(">> Seeding demo messages...")

		repo := repository.NewMessagesRepository(dbx)
		created := 0
		for _, m := range demoMessages() {
			ok, err := repo.Insert(cmd.Context(), m)
			if err != nil {
				return fmt.Errorf("insert message %q: %w", m.MessageID, err)
			}
			if ok {
				created++
			}
		}

		fmt.Printf(">> Seed completed ✅ created=%d existing=%d\n", created, len(demoMessages())-created)
		return nil
	},
}

// demoMessages are deterministic, so re-running seed only reports duplicates.
func demoMessages() []model.Message {
	return []model.Message{
		{MessageID: "seed-1", From: "+15551234567", To: "+15557654321", TS: "2024-01-01T00:00:00Z", Text: strptr("hello")},
		{MessageID: "seed-2", From: "+15551234567", To: "+15557654321", TS: "2024-01-01T00:05:00Z", Text: strptr("are you there?")},
		{MessageID: "seed-3", From: "+15559876543", To: "+15557654321", TS: "2024-01-02T09:30:00Z", Text: strptr("Meeting moved to 10")},
		{MessageID: "seed-4", From: "+15550001111", To: "+15557654321", TS: "2024-01-03T12:00:00Z", Text: nil},
		{MessageID: "seed-5", From: "+15559876543", To: "+15551234567", TS: "2024-01-04T18:45:00Z", Text: strptr("ok")},
	}
}

func strptr(s string) *string { return &s }

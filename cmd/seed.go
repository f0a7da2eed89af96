package cmd

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/toronlabs/toron_backend/internal/database"
)

// Demo accounts for local testing: an admin who can take the referee
// seat and two regular players. GetProfile auto-creates, so running
// seed twice is harmless.
var seedProfiles = []struct {
	userID      string
	displayName string
	isAdmin     bool
}{
	{"demo-referee", "심판", true},
	{"demo-player-1", "토론자1", false},
	{"demo-player-2", "토론자2", false},
}

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Insert demo profiles for local testing",
	RunE: func(cmd *cobra.Command, args []string) error {
		_ = godotenv.Load()

		dataDir := os.Getenv("DB_PATH")
		if dataDir == "" {
			dataDir = "data"
		}
		if err := os.MkdirAll(dataDir, 0755); err != nil {
			return fmt.Errorf("failed to create data directory: %v", err)
		}

		db, err := database.New(dataDir)
		if err != nil {
			return fmt.Errorf("failed to open database: %v", err)
		}
		defer db.Close()

		for _, seed := range seedProfiles {
			if _, err := db.GetProfile(seed.userID); err != nil {
				return fmt.Errorf("failed to create profile %s: %v", seed.userID, err)
			}
			name := seed.displayName
			if err := db.UpdateProfile(seed.userID, database.ProfileUpdate{DisplayName: &name}); err != nil {
				return fmt.Errorf("failed to name profile %s: %v", seed.userID, err)
			}
			if seed.isAdmin {
				if err := db.SetAdmin(seed.userID, true); err != nil {
					return fmt.Errorf("failed to flag admin %s: %v", seed.userID, err)
				}
			}
			fmt.Printf("Seeded %s (%s)\n", seed.userID, seed.displayName)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(seedCmd)
}

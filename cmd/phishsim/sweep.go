package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/awarenow/phishsim/internal/app"
	"github.com/awarenow/phishsim/internal/campaign"
	"github.com/awarenow/phishsim/internal/db"
)

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Run the expiry sweep once",
	Long:  `Complete every published campaign whose end date has passed, then exit.`,
	RunE:  runSweep,
}

func init() {
	rootCmd.AddCommand(sweepCmd)
}

func runSweep(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	database, err := db.New(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer database.Close()

	logger := app.SetupLogger(cfg.Logging)
	service := campaign.NewService(database.DB, campaign.Options{Logger: logger})

	n, err := service.Sweep(cmd.Context())
	if err != nil {
		return err
	}

	fmt.Printf("Completed %d expired campaign(s)\n", n)
	return nil
}

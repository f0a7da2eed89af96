package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "toron",
	Short: "Toron - real-time debate match server",
	Long: `Toron coordinates two-player structured debates in real time:
nine-phase turn protocol, speaking clocks with penalty accrual, an AI
judge with optional human referee blending, and Elo-rated results.`,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringP("config", "c", "", "config file (default is .env)")
}

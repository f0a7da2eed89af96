package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/toronlabs/toron_backend/internal/clock"
	"github.com/toronlabs/toron_backend/internal/database"
	"github.com/toronlabs/toron_backend/internal/judge"
	"github.com/toronlabs/toron_backend/internal/logging"
	"github.com/toronlabs/toron_backend/internal/metrics"
	"github.com/toronlabs/toron_backend/internal/server"
)

var servePort string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the debate server",
	Long: `Start the debate server: open the store, run pending migrations,
connect the AI judge and begin accepting websocket and HTTP clients.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := godotenv.Load(); err != nil {
			fmt.Println("Warning: no .env file found, reading the environment directly")
		}

		cfg := server.ConfigFromEnv()
		if servePort != "" {
			cfg.Port = servePort
		}
		if cfg.OpenAIKey == "" {
			return fmt.Errorf("OPENAI_API_KEY is not set in the environment variables")
		}

		if err := logging.InitDefaultLogger(logging.Config{
			Level:   logging.ParseLevel(cfg.LogLevel),
			Prefix:  "toron",
			Colored: true,
		}); err != nil {
			return fmt.Errorf("failed to initialize logger: %v", err)
		}

		if err := os.MkdirAll(cfg.DBPath, 0755); err != nil {
			return fmt.Errorf("failed to create data directory: %v", err)
		}
		db, err := database.New(cfg.DBPath)
		if err != nil {
			return fmt.Errorf("failed to open database: %v", err)
		}
		defer db.Close()

		j, err := judge.New(cfg.OpenAIKey)
		if err != nil {
			return fmt.Errorf("failed to create judge: %v", err)
		}

		srv := server.New(cfg, db, j, metrics.New(), clock.NewSystemClock())

		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

		errChan := make(chan error, 1)
		go func() {
			errChan <- srv.Run(":" + cfg.Port)
		}()

		select {
		case err := <-errChan:
			return err
		case sig := <-sigChan:
			logging.Info("Shutting down", map[string]interface{}{
				"signal": sig.String(),
			})

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				return fmt.Errorf("shutdown failed: %v", err)
			}
			logging.Info("Shutdown complete", nil)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVarP(&servePort, "port", "p", "", "Port to listen on (overrides PORT)")
}

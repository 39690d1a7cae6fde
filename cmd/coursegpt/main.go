// CourseGPT session sync daemon and CLI.
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/ashureev/coursegpt-sync/internal/config"
	"github.com/ashureev/coursegpt-sync/internal/courseapi"
	"github.com/ashureev/coursegpt-sync/internal/session"
	"github.com/ashureev/coursegpt-sync/internal/training"
)

var (
	// Global flags
	configPath string

	cfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "coursegpt",
	Short: "CourseGPT client session sync",
	Long: `coursegpt keeps a local cache of a CourseGPT user's chats, courses and
navigation state consistent with the CourseGPT server.

Run "coursegpt serve" to start the session daemon the UI talks to.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		if err := godotenv.Load(); err != nil {
			slog.Debug("No .env file found, using environment variables")
		}

		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return err
		}

		logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
			Level: cfg.SlogLevel(),
		}))
		slog.SetDefault(logger)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "YAML config file (overrides "+config.EnvConfigFile+")")

	rootCmd.AddCommand(serveCmd, chatsCmd, coursesCmd, trainCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newClient(c *config.Config) (*courseapi.Client, error) {
	return courseapi.New(c.APIBaseURL,
		courseapi.WithTimeout(c.RequestTimeout),
		courseapi.WithLogger(slog.Default()),
	)
}

func newPoller(c *config.Config) training.Poller {
	return training.Poller{
		Interval:    c.Training.PollInterval,
		MaxAttempts: c.Training.MaxAttempts,
		MaxWait:     c.Training.MaxWait,
	}
}

func newSession(c *config.Config) (*session.Session, error) {
	client, err := newClient(c)
	if err != nil {
		return nil, fmt.Errorf("create API client: %w", err)
	}
	return session.New(client, session.Options{
		Logger: slog.Default(),
		Poller: newPoller(c),
	}), nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

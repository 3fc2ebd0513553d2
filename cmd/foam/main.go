package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/nunutzi10/foam-ai/internal/config"
	"github.com/nunutzi10/foam-ai/internal/db"
	"github.com/nunutzi10/foam-ai/internal/logger"
)

var configPath string

func main() {
	root := &cobra.Command{
		Use:   "foam",
		Short: "Multi-tenant WhatsApp assistant backend",
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to config file (default config.toml, env CONFIG_PATH)")

	root.AddCommand(
		&cobra.Command{
			Use:   "serve",
			Short: "Run the API server and the webhook pipeline",
			Run: func(cmd *cobra.Command, args []string) {
				runServe()
			},
		},
		&cobra.Command{
			Use:   "migrate",
			Short: "Apply pending database migrations",
			RunE: func(cmd *cobra.Command, args []string) error {
				cfg, err := loadConfig()
				if err != nil {
					return err
				}
				logger.Init(cfg.Log.Level, cfg.Log.Format)
				return db.Migrate(logger.L, cfg.Postgres)
			},
		},
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func loadConfig() (config.Config, error) {
	path := configPath
	if path == "" {
		path = os.Getenv("CONFIG_PATH")
	}
	cfg, err := config.Load(path)
	if err != nil {
		return config.Config{}, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

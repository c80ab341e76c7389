package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/ashureev/llama-relay/internal/config"
	"github.com/ashureev/llama-relay/internal/store"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var (
	verbose     bool
	storeDriver string
	storeDir    string
	storeDBPath string
)

var rootCmd = &cobra.Command{
	Use:   "relayctl",
	Short: "Talk to a llama relay and inspect its transcripts",
	Long: `relayctl sends messages to a running relay over UDP and reads the
transcripts it has persisted.

Quick Start:
  relayctl send --topic lights "turn on the kitchen lights"
  relayctl list
  relayctl show 10.0.0.5_50123_lights --format md`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		_ = godotenv.Load()
		level := slog.LevelWarn
		if verbose {
			level = slog.LevelDebug
		}
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
	},
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVar(&storeDriver, "store", "", "Transcript store driver: file, sqlite or bolt (default from STORE_DRIVER)")
	rootCmd.PersistentFlags().StringVar(&storeDir, "store-dir", "", "Transcript directory for the file store (default from STORE_DIR)")
	rootCmd.PersistentFlags().StringVar(&storeDBPath, "store-db", "", "Database path for sqlite or bolt (default from STORE_DB_PATH)")
}

// storeOptions merges flags over the environment configuration.
func storeOptions() (store.Options, error) {
	cfg, err := config.Load()
	if err != nil {
		return store.Options{}, err
	}
	opts := store.Options{
		Driver: cfg.Store.Driver,
		Dir:    cfg.Store.Dir,
		DBPath: cfg.Store.DBPath,
	}
	if storeDriver != "" {
		opts.Driver = storeDriver
	}
	if storeDir != "" {
		opts.Dir = storeDir
	}
	if storeDBPath != "" {
		opts.DBPath = storeDBPath
	}
	return opts, nil
}

func openStore() (store.Repository, error) {
	opts, err := storeOptions()
	if err != nil {
		return nil, err
	}
	repo, err := store.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open transcript store: %w", err)
	}
	return repo, nil
}

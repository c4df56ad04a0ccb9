// cmd/galleryctl/main.go

// galleryctl manages the face reference gallery: registering users
// with their photos and mirroring registered photos into the local
// dataset the recognizer loads at startup.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/sentrylabs/facewatch/internal/config"
	"github.com/sentrylabs/facewatch/internal/logging"
	"github.com/sentrylabs/facewatch/internal/store"
)

var (
	cfg        *config.Config
	events     store.EventStore
	photos     *store.PhotoStore
	flushLogs  func()
	datasetDir string
)

var rootCmd = &cobra.Command{
	Use:   "galleryctl",
	Short: "Manage the face reference gallery",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if env := os.Getenv("RUN_TIME_ENV"); env == "dev" || env == "" {
			_ = godotenv.Load()
		}
		cfg = config.FromEnv()
		if datasetDir != "" {
			cfg.Face.DatasetDir = datasetDir
		}

		_, flush, err := logging.Setup(config.LoggingConfig{Level: "warn", Console: true})
		if err != nil {
			return err
		}
		flushLogs = flush

		pg, err := store.NewPostgresStore(cfg.Storage.Postgres)
		if err != nil {
			return fmt.Errorf("connect to user store: %w", err)
		}
		events = pg

		if cfg.UsesRemotePhotos() {
			photos, err = store.NewPhotoStore(cfg.Storage.MinIO)
			if err != nil {
				return fmt.Errorf("connect to photo store: %w", err)
			}
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if events != nil {
			_ = events.Close()
		}
		if flushLogs != nil {
			flushLogs()
		}
	},
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&datasetDir, "dataset", "", "dataset directory (default from FACE_DATASET_DIR)")
}

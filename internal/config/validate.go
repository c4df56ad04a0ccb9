// Validation and connection-string helpers, a thin layer above the
// general config that checks detector and storage requirements before
// the pipeline starts.

package config

import (
	"fmt"
	"os"
	"path/filepath"
)

// GetDatabaseDSN returns the PostgreSQL connection string from main config
func GetDatabaseDSN(cfg *Config) string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		cfg.Storage.Postgres.Username,
		cfg.Storage.Postgres.Password,
		cfg.Storage.Postgres.Host,
		cfg.Storage.Postgres.Port,
		cfg.Storage.Postgres.Database,
		cfg.Storage.Postgres.SSLMode,
	)
}

// ValidateConfig checks the main config and prepares local directories.
// It is called once at startup; any error here is fatal.
func ValidateConfig(cfg *Config) error {
	// Check video settings
	if cfg.Video.Width <= 0 || cfg.Video.Height <= 0 {
		return fmt.Errorf("invalid video dimensions: %dx%d", cfg.Video.Width, cfg.Video.Height)
	}
	if cfg.Video.FrameRate <= 0 {
		return fmt.Errorf("invalid frame rate: %d", cfg.Video.FrameRate)
	}

	// Check detector tuning
	if cfg.Motion.MinArea <= 0 {
		return fmt.Errorf("motion.min_area must be positive")
	}
	if cfg.Motion.AggregateThreshold <= 0 {
		return fmt.Errorf("motion.aggregate_threshold must be positive")
	}
	if cfg.Motion.Sensitivity <= 0 || cfg.Motion.Sensitivity > 255 {
		return fmt.Errorf("motion.sensitivity must be in 1..255, got %d", cfg.Motion.Sensitivity)
	}
	if cfg.Face.Tolerance <= 0 || cfg.Face.Tolerance > 1 {
		return fmt.Errorf("face.tolerance must be in (0,1], got %g", cfg.Face.Tolerance)
	}
	if cfg.Face.MinConfidence < 0 || cfg.Face.MinConfidence > 100 {
		return fmt.Errorf("face.min_confidence must be in 0..100, got %g", cfg.Face.MinConfidence)
	}
	if cfg.Face.ModelsDir == "" {
		return fmt.Errorf("face.models_dir is required")
	}

	// Check throttle settings
	if cfg.Upload.Delay < 0 || cfg.Upload.MotionCooldown < 0 || cfg.Upload.FaceCooldown < 0 {
		return fmt.Errorf("upload delays must be non-negative")
	}
	if cfg.Upload.QueueSize <= 0 {
		return fmt.Errorf("upload.queue_size must be positive")
	}

	// Ensure captures directory exists
	if cfg.Storage.CapturesDir == "" {
		return fmt.Errorf("storage.captures_dir is required")
	}
	if err := os.MkdirAll(cfg.Storage.CapturesDir, 0755); err != nil {
		return fmt.Errorf("failed to create captures directory %s: %w", cfg.Storage.CapturesDir, err)
	}

	// Ensure log directory exists
	if cfg.Logging.File != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.Logging.File), 0755); err != nil {
			return fmt.Errorf("failed to create log directory %s: %w", filepath.Dir(cfg.Logging.File), err)
		}
	}

	// Check PostgreSQL settings
	if cfg.Storage.Postgres.Host == "" {
		return fmt.Errorf("storage.postgres.host is required for event storage")
	}
	if cfg.Storage.Postgres.Database == "" {
		return fmt.Errorf("storage.postgres.database is required for event storage")
	}

	// Check MinIO settings only when an endpoint is configured; without
	// one, captured photos are embedded in event records instead.
	if cfg.Storage.MinIO.Endpoint != "" {
		if cfg.Storage.MinIO.Bucket == "" {
			return fmt.Errorf("storage.minio.bucket is required when an endpoint is set")
		}
		if cfg.Storage.MinIO.AccessKeyID == "" || cfg.Storage.MinIO.SecretAccessKey == "" {
			return fmt.Errorf("storage.minio credentials are required when an endpoint is set")
		}
	}

	// Check device identity
	if cfg.Device.Serial == "" || cfg.Device.Model == "" {
		return fmt.Errorf("device serial and model are required")
	}

	return nil
}

// UsesRemotePhotos reports whether captured photos go to object storage
// (true) or ride embedded inside event records (false).
func (c *Config) UsesRemotePhotos() bool {
	return c.Storage.MinIO.Endpoint != ""
}

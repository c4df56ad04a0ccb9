// Package config holds all application configuration: camera geometry,
// detector tuning, upload throttling, storage backends and the API surface.
package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds all application configuration
type Config struct {
	Video   VideoConfig
	Motion  MotionConfig
	Face    FaceConfig
	Upload  UploadConfig
	Device  DeviceConfig
	Storage StorageConfig
	API     APIConfig
	Logging LoggingConfig
}

// VideoConfig describes the capture device and frame geometry.
type VideoConfig struct {
	DeviceID  int
	Width     int
	Height    int
	FrameRate int
}

// MotionConfig tunes the dual-method motion detector.
type MotionConfig struct {
	// Sensitivity is the per-pixel threshold applied to the
	// frame-difference image before counting changed area.
	Sensitivity int
	// MinArea is the smallest contour area (px) counted toward motion.
	MinArea int
	// AggregateThreshold is the total contour area at which the
	// frame-difference method reports motion.
	AggregateThreshold float64
	// DisplayWindow is how long a motion hit keeps the overlay visible.
	DisplayWindow time.Duration

	// Background subtractor settings.
	History       int
	VarThreshold  float64
	DetectShadows bool
}

// FaceConfig tunes face detection and gallery matching.
type FaceConfig struct {
	// ModelsDir holds the dlib model files the recognizer loads at
	// startup (shape predictor, resnet descriptor net, cnn detector).
	ModelsDir string
	// DatasetDir holds reference photos, one subdirectory per identity.
	DatasetDir string

	// Tolerance is the maximum descriptor distance treated as a match.
	Tolerance float64
	// MinConfidence is the acceptance floor, in percent, applied to
	// (1 - distance) * 100.
	MinConfidence float64
}

// UploadConfig tunes event persistence throttling.
type UploadConfig struct {
	// Delay is the minimum spacing between any two persisted events.
	Delay time.Duration
	// MotionCooldown and FaceCooldown are per-kind emission floors.
	MotionCooldown time.Duration
	FaceCooldown   time.Duration
	// QueueSize bounds the persistence queue; submissions beyond it
	// are rejected rather than blocking the detection loop.
	QueueSize int
}

// DeviceConfig is the fixed identity stamped onto every persisted event.
type DeviceConfig struct {
	Serial string
	Model  string
}

// StorageConfig groups the persistence backends.
type StorageConfig struct {
	Postgres    PostgresConfig
	MinIO       MinIOConfig
	CapturesDir string
}

type PostgresConfig struct {
	Host            string
	Port            int
	Database        string
	Username        string
	Password        string
	SSLMode         string
	MaxConnections  int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

type MinIOConfig struct {
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	UseSSL          bool
	Bucket          string
	Region          string
	ConnectTimeout  time.Duration
	RequestTimeout  time.Duration
}

// APIConfig describes the HTTP surface.
type APIConfig struct {
	Addr string
	// RateLimitPerMin caps requests per client IP per minute on the
	// /api/ routes. Streaming routes are exempt.
	RateLimitPerMin int
	AllowedOrigins  []string
}

// LoggingConfig describes log output and rotation.
type LoggingConfig struct {
	Level      string
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Console    bool
}

// NewDefaultConfig returns a Config with default values
func NewDefaultConfig() *Config {
	return &Config{
		Video: VideoConfig{
			DeviceID:  0,
			Width:     640,
			Height:    480,
			FrameRate: 30,
		},
		Motion: MotionConfig{
			Sensitivity:        30,
			MinArea:            200,
			AggregateThreshold: 1000,
			DisplayWindow:      3 * time.Second,
			History:            500,
			VarThreshold:       16,
			DetectShadows:      true,
		},
		Face: FaceConfig{
			ModelsDir:     "models",
			DatasetDir:    "dataset",
			Tolerance:     0.5,
			MinConfidence: 60.0,
		},
		Upload: UploadConfig{
			Delay:          30 * time.Second,
			MotionCooldown: 30 * time.Second,
			FaceCooldown:   30 * time.Second,
			QueueSize:      16,
		},
		Device: DeviceConfig{
			Serial: "SNABC123",
			Model:  "RPI3",
		},
		Storage: StorageConfig{
			Postgres: PostgresConfig{
				Host:            "localhost",
				Port:            5432,
				Database:        "facewatch",
				Username:        "facewatch",
				Password:        "",
				SSLMode:         "disable",
				MaxConnections:  10,
				MaxIdleConns:    5,
				ConnMaxLifetime: 30 * time.Minute,
				ConnMaxIdleTime: 5 * time.Minute,
			},
			MinIO: MinIOConfig{
				Endpoint:       "",
				UseSSL:         false,
				Bucket:         "facewatch-captures",
				Region:         "us-east-1",
				ConnectTimeout: 10 * time.Second,
				RequestTimeout: 30 * time.Second,
			},
			CapturesDir: "captures",
		},
		API: APIConfig{
			Addr:            ":5000",
			RateLimitPerMin: 60,
			AllowedOrigins:  []string{"*"},
		},
		Logging: LoggingConfig{
			Level:      "info",
			File:       "logs/facewatch.log",
			MaxSizeMB:  50,
			MaxBackups: 5,
			MaxAgeDays: 14,
			Console:    true,
		},
	}
}

// FromEnv returns the default configuration with environment overrides
// applied. Unset or malformed variables keep their defaults.
func FromEnv() *Config {
	cfg := NewDefaultConfig()

	cfg.Video.DeviceID = getenvInt("VIDEO_DEVICE_ID", cfg.Video.DeviceID)
	cfg.Video.Width = getenvInt("VIDEO_WIDTH", cfg.Video.Width)
	cfg.Video.Height = getenvInt("VIDEO_HEIGHT", cfg.Video.Height)
	cfg.Video.FrameRate = getenvInt("VIDEO_FRAMERATE", cfg.Video.FrameRate)

	cfg.Motion.Sensitivity = getenvInt("MOTION_SENSITIVITY", cfg.Motion.Sensitivity)
	cfg.Motion.MinArea = getenvInt("MOTION_MIN_AREA", cfg.Motion.MinArea)
	cfg.Motion.AggregateThreshold = getenvFloat("MOTION_AGGREGATE_THRESHOLD", cfg.Motion.AggregateThreshold)
	cfg.Motion.DisplayWindow = getenvDuration("MOTION_DISPLAY_WINDOW", cfg.Motion.DisplayWindow)

	cfg.Face.ModelsDir = getenvDefault("FACE_MODELS_DIR", cfg.Face.ModelsDir)
	cfg.Face.DatasetDir = getenvDefault("FACE_DATASET_DIR", cfg.Face.DatasetDir)
	cfg.Face.Tolerance = getenvFloat("FACE_TOLERANCE", cfg.Face.Tolerance)
	cfg.Face.MinConfidence = getenvFloat("FACE_MIN_CONFIDENCE", cfg.Face.MinConfidence)

	cfg.Upload.Delay = getenvDuration("UPLOAD_DELAY", cfg.Upload.Delay)
	cfg.Upload.MotionCooldown = getenvDuration("UPLOAD_MOTION_COOLDOWN", cfg.Upload.MotionCooldown)
	cfg.Upload.FaceCooldown = getenvDuration("UPLOAD_FACE_COOLDOWN", cfg.Upload.FaceCooldown)
	cfg.Upload.QueueSize = getenvInt("UPLOAD_QUEUE_SIZE", cfg.Upload.QueueSize)

	cfg.Device.Serial = getenvDefault("DEVICE_SERIAL", cfg.Device.Serial)
	cfg.Device.Model = getenvDefault("DEVICE_MODEL", cfg.Device.Model)

	cfg.Storage.Postgres.Host = getenvDefault("POSTGRES_HOST", cfg.Storage.Postgres.Host)
	cfg.Storage.Postgres.Port = getenvInt("POSTGRES_PORT", cfg.Storage.Postgres.Port)
	cfg.Storage.Postgres.Database = getenvDefault("POSTGRES_DB", cfg.Storage.Postgres.Database)
	cfg.Storage.Postgres.Username = getenvDefault("POSTGRES_USER", cfg.Storage.Postgres.Username)
	cfg.Storage.Postgres.Password = getenvDefault("POSTGRES_PASSWORD", cfg.Storage.Postgres.Password)
	cfg.Storage.Postgres.SSLMode = getenvDefault("POSTGRES_SSLMODE", cfg.Storage.Postgres.SSLMode)

	cfg.Storage.MinIO.Endpoint = getenvDefault("MINIO_ENDPOINT", cfg.Storage.MinIO.Endpoint)
	cfg.Storage.MinIO.AccessKeyID = getenvDefault("MINIO_ACCESS_KEY", cfg.Storage.MinIO.AccessKeyID)
	cfg.Storage.MinIO.SecretAccessKey = getenvDefault("MINIO_SECRET_KEY", cfg.Storage.MinIO.SecretAccessKey)
	cfg.Storage.MinIO.UseSSL = getenvBool("MINIO_USE_SSL", cfg.Storage.MinIO.UseSSL)
	cfg.Storage.MinIO.Bucket = getenvDefault("MINIO_BUCKET", cfg.Storage.MinIO.Bucket)
	cfg.Storage.CapturesDir = getenvDefault("CAPTURES_DIR", cfg.Storage.CapturesDir)

	cfg.API.Addr = getenvDefault("API_ADDR", cfg.API.Addr)
	cfg.API.RateLimitPerMin = getenvInt("API_RATE_LIMIT_PER_MIN", cfg.API.RateLimitPerMin)

	cfg.Logging.Level = getenvDefault("LOG_LEVEL", cfg.Logging.Level)
	cfg.Logging.File = getenvDefault("LOG_FILE", cfg.Logging.File)

	return cfg
}

func getenvDefault(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getenvInt(k string, def int) int {
	if v := os.Getenv(k); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getenvFloat(k string, def float64) float64 {
	if v := os.Getenv(k); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getenvBool(k string, def bool) bool {
	if v := os.Getenv(k); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func getenvDuration(k string, def time.Duration) time.Duration {
	if v := os.Getenv(k); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

// Package config provides YAML-based configuration for the service and the
// command line tools.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/HarborC/kalibrlib/internal/container"
	"github.com/HarborC/kalibrlib/internal/convert"
	"gopkg.in/yaml.v3"
)

// AppConfig is the root of the configuration file.
type AppConfig struct {
	Server     ServerConfig     `yaml:"server"`
	Storage    StorageConfig    `yaml:"storage"`
	Processing ProcessingConfig `yaml:"processing"`
	Dataset    DatasetConfig    `yaml:"dataset"`
	Export     ExportConfig     `yaml:"export"`
	Replay     ReplayConfig     `yaml:"replay"`
	Advanced   AdvancedConfig   `yaml:"advanced"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Port         int    `yaml:"port"`
	BindAddress  string `yaml:"bindAddress"`
	EnableCORS   bool   `yaml:"enableCors"`
	AllowOrigins string `yaml:"allowOrigins"`
	ReadTimeout  int    `yaml:"readTimeoutSeconds"`
	WriteTimeout int    `yaml:"writeTimeoutSeconds"`
	IdleTimeout  int    `yaml:"idleTimeoutSeconds"`
	BodyLimit    string `yaml:"bodyLimit"`
}

// StorageConfig contains file storage settings
type StorageConfig struct {
	DataDirectory    string `yaml:"dataDirectory"`
	UploadsDirectory string `yaml:"uploadsDirectory"`
	ExportDirectory  string `yaml:"exportDirectory"`
}

// ProcessingConfig bounds the reader sessions held by the service.
type ProcessingConfig struct {
	MaxSessions            int `yaml:"maxSessions"`
	SessionTimeoutMinutes  int `yaml:"sessionTimeoutMinutes"`
	CleanupIntervalMinutes int `yaml:"cleanupIntervalMinutes"`
	MaxPageSize            int `yaml:"maxPageSize"`
}

// DatasetConfig holds the channel layout and container settings used when
// building containers.
type DatasetConfig struct {
	ImuChannel        string `yaml:"imuChannel"`
	LeftChannel       string `yaml:"leftChannel"`
	RightChannel      string `yaml:"rightChannel"`
	Compression       string `yaml:"compression"`
	ChunkSizeKB       int    `yaml:"chunkSizeKB"`
	CompressedImages  bool   `yaml:"compressedImages"`
	SkipLeadingFrames int    `yaml:"skipLeadingFrames"`
}

// ExportConfig tunes the DuckDB export.
type ExportConfig struct {
	DuckDBThreads int `yaml:"duckdbThreads"`
	BatchSize     int `yaml:"batchSize"`
}

// ReplayConfig addresses the MQTT broker IMU samples are replayed to.
type ReplayConfig struct {
	Broker   string  `yaml:"broker"`
	ClientID string  `yaml:"clientId"`
	Topic    string  `yaml:"topic"`
	QoS      byte    `yaml:"qos"`
	Speed    float64 `yaml:"speed"`
}

// AdvancedConfig contains advanced/tuning options
type AdvancedConfig struct {
	LogLevel             string `yaml:"logLevel"`
	EnableRequestLogging bool   `yaml:"enableRequestLogging"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *AppConfig {
	return &AppConfig{
		Server: ServerConfig{
			Port:         8089,
			BindAddress:  "0.0.0.0",
			EnableCORS:   true,
			AllowOrigins: "*",
			ReadTimeout:  30,
			WriteTimeout: 30,
			IdleTimeout:  120,
			BodyLimit:    "2G",
		},
		Storage: StorageConfig{
			DataDirectory:    "./data",
			UploadsDirectory: "./data/uploads",
			ExportDirectory:  "./data/export",
		},
		Processing: ProcessingConfig{
			MaxSessions:            16,
			SessionTimeoutMinutes:  30,
			CleanupIntervalMinutes: 5,
			MaxPageSize:            5000,
		},
		Dataset: DatasetConfig{
			ImuChannel:        "/imu",
			LeftChannel:       "/camera/left",
			RightChannel:      "/camera/right",
			Compression:       "lz4",
			ChunkSizeKB:       container.DefaultChunkSize / 1024,
			SkipLeadingFrames: 1,
		},
		Export: ExportConfig{
			DuckDBThreads: 4,
			BatchSize:     10000,
		},
		Replay: ReplayConfig{
			Broker:   "tcp://localhost:1883",
			ClientID: "kalibr-replay",
			Topic:    "kalibr/imu",
			QoS:      0,
			Speed:    1,
		},
		Advanced: AdvancedConfig{
			LogLevel:             "info",
			EnableRequestLogging: true,
		},
	}
}

// LoadConfig loads configuration from a YAML file. A missing file is
// created with the defaults.
func LoadConfig(configPath string) (*AppConfig, error) {
	config := DefaultConfig()

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		if err := config.Save(configPath); err != nil {
			return nil, fmt.Errorf("failed to create default config: %w", err)
		}
	} else {
		data, err := os.ReadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	config.applyEnvironmentOverrides()
	config.resolvePaths(filepath.Dir(configPath))

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// Save writes the configuration as YAML.
func (c *AppConfig) Save(configPath string) error {
	output, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	header := []byte("# kalibrlib configuration\n# This file is auto-generated on first run\n\n")
	if err := os.WriteFile(configPath, append(header, output...), 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// Validate rejects settings the tools cannot run with.
func (c *AppConfig) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port %d", c.Server.Port)
	}
	if _, err := container.ParseCompression(c.Dataset.Compression); err != nil {
		return fmt.Errorf("dataset: %w", err)
	}
	if c.Dataset.ChunkSizeKB < 0 {
		return fmt.Errorf("dataset: negative chunk size")
	}
	if c.Replay.QoS > 2 {
		return fmt.Errorf("replay: invalid qos %d", c.Replay.QoS)
	}
	if c.Replay.Speed < 0 {
		return fmt.Errorf("replay: negative speed")
	}
	return nil
}

// applyEnvironmentOverrides allows environment variables to override config values
func (c *AppConfig) applyEnvironmentOverrides() {
	if port := os.Getenv("PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			c.Server.Port = p
		}
	}
	if dataDir := os.Getenv("DATA_DIR"); dataDir != "" {
		c.Storage.DataDirectory = dataDir
	}
	if level := os.Getenv("KALIBR_LOG_LEVEL"); level != "" {
		c.Advanced.LogLevel = level
	}
	if broker := os.Getenv("MQTT_BROKER"); broker != "" {
		c.Replay.Broker = broker
	}
}

// resolvePaths converts relative paths to absolute based on config file location
func (c *AppConfig) resolvePaths(configDir string) {
	for _, p := range []*string{
		&c.Storage.DataDirectory,
		&c.Storage.UploadsDirectory,
		&c.Storage.ExportDirectory,
	} {
		if *p != "" && !filepath.IsAbs(*p) {
			*p = filepath.Join(configDir, *p)
		}
	}
}

// ContainerOptions returns the writer settings of the dataset section.
func (c *AppConfig) ContainerOptions() (container.WriterOptions, error) {
	comp, err := container.ParseCompression(c.Dataset.Compression)
	if err != nil {
		return container.WriterOptions{}, err
	}
	return container.WriterOptions{Compression: comp, ChunkSize: c.Dataset.ChunkSizeKB * 1024}, nil
}

// ConvertOptions returns the Build settings of the dataset section. The
// caller fills in Output.
func (c *AppConfig) ConvertOptions() (convert.Options, error) {
	wo, err := c.ContainerOptions()
	if err != nil {
		return convert.Options{}, err
	}
	return convert.Options{
		Compression:  wo.Compression,
		ChunkSize:    wo.ChunkSize,
		Compressed:   c.Dataset.CompressedImages,
		SkipLeading:  c.Dataset.SkipLeadingFrames,
		ImuChannel:   c.Dataset.ImuChannel,
		LeftChannel:  c.Dataset.LeftChannel,
		RightChannel: c.Dataset.RightChannel,
	}, nil
}

// WorkDir is where background conversions write before storing.
func (c *AppConfig) WorkDir() string {
	return filepath.Join(c.Storage.DataDirectory, "work")
}

// GetServerAddr returns the server bind address
func (c *AppConfig) GetServerAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.BindAddress, c.Server.Port)
}

// EnsureDirectories creates all necessary directories
func (c *AppConfig) EnsureDirectories() error {
	dirs := []string{
		c.Storage.DataDirectory,
		c.Storage.UploadsDirectory,
		c.Storage.ExportDirectory,
	}
	for _, dir := range dirs {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	return nil
}

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/HarborC/kalibrlib/internal/container"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigWritesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.FileExists(t, path)
	assert.Equal(t, 8089, cfg.Server.Port)
	assert.Equal(t, filepath.Join(dir, "data", "uploads"), cfg.Storage.UploadsDirectory)
	assert.Equal(t, "/imu", cfg.Dataset.ImuChannel)

	// Loading the written file gives the same settings.
	again, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, again)
}

func TestLoadConfigPartialFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := "server:\n  port: 9000\ndataset:\n  compression: zstd\n  chunkSizeKB: 64\nstorage:\n  dataDirectory: /srv/kalibr\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, "0.0.0.0:9000", cfg.GetServerAddr())
	assert.Equal(t, "/srv/kalibr", cfg.Storage.DataDirectory)
	assert.Equal(t, "/camera/left", cfg.Dataset.LeftChannel)

	opts, err := cfg.ContainerOptions()
	require.NoError(t, err)
	assert.Equal(t, container.CompressionZstd, opts.Compression)
	assert.Equal(t, 64*1024, opts.ChunkSize)
}

func TestEnvironmentOverrides(t *testing.T) {
	t.Setenv("PORT", "7001")
	t.Setenv("DATA_DIR", "/var/lib/kalibr")
	t.Setenv("KALIBR_LOG_LEVEL", "debug")
	t.Setenv("MQTT_BROKER", "tcp://broker:1883")

	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "config.yaml"))
	require.NoError(t, err)
	assert.Equal(t, 7001, cfg.Server.Port)
	assert.Equal(t, "/var/lib/kalibr", cfg.Storage.DataDirectory)
	assert.Equal(t, "debug", cfg.Advanced.LogLevel)
	assert.Equal(t, "tcp://broker:1883", cfg.Replay.Broker)
}

func TestLoadConfigInvalid(t *testing.T) {
	dir := t.TempDir()

	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("dataset:\n  compression: brotli\n"), 0o644))
	_, err := LoadConfig(bad)
	assert.Error(t, err)

	broken := filepath.Join(dir, "broken.yaml")
	require.NoError(t, os.WriteFile(broken, []byte("server: [\n"), 0o644))
	_, err = LoadConfig(broken)
	assert.Error(t, err)
}

func TestEnsureDirectories(t *testing.T) {
	dir := t.TempDir()
	cfg, err := LoadConfig(filepath.Join(dir, "config.yaml"))
	require.NoError(t, err)
	require.NoError(t, cfg.EnsureDirectories())
	assert.DirExists(t, cfg.Storage.UploadsDirectory)
	assert.DirExists(t, cfg.Storage.ExportDirectory)
}

func TestConvertOptions(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Dataset.Compression = "zstd"
	cfg.Dataset.ChunkSizeKB = 64
	cfg.Dataset.CompressedImages = true

	opts, err := cfg.ConvertOptions()
	require.NoError(t, err)
	assert.Equal(t, container.CompressionZstd, opts.Compression)
	assert.Equal(t, 64*1024, opts.ChunkSize)
	assert.True(t, opts.Compressed)
	assert.Equal(t, 1, opts.SkipLeading)
	assert.Equal(t, "/camera/right", opts.RightChannel)
	assert.Empty(t, opts.Output)

	cfg.Dataset.Compression = "brotli"
	_, err = cfg.ConvertOptions()
	assert.Error(t, err)
}

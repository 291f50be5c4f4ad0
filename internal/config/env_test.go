package config

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromEnvDefaults(t *testing.T) {
	for _, k := range []string{"PDFCHUNK_MAX_SIZE_MB", "PDFCHUNK_IMAGE_MAX_DIM", "PDFCHUNK_JPEG_QUALITY", "PDFCHUNK_WORKERS", "PDFCHUNK_OUTPUT_DIR", "REDIS_URL", "MAX_CONCURRENT_JOBS"} {
		t.Setenv(k, "")
	}
	cfg := FromEnv()
	assert.Equal(t, 4.0, cfg.Chunking.MaxSizeMB)
	assert.Equal(t, int64(4*1024*1024), cfg.Chunking.MaxChunkSize())
	assert.Equal(t, 1500, cfg.Chunking.ImageMaxDim)
	assert.Equal(t, 75, cfg.Chunking.JPEGQuality)
	assert.Equal(t, runtime.NumCPU(), cfg.Chunking.Workers)
	assert.Equal(t, "output", cfg.Chunking.OutputDir)
	assert.Empty(t, cfg.Server.RedisURL)
	assert.Equal(t, 2, cfg.Server.MaxConcurrentJobs)
}

func TestFromEnvOverrides(t *testing.T) {
	t.Setenv("PDFCHUNK_MAX_SIZE_MB", "2.5")
	t.Setenv("PDFCHUNK_IMAGE_MAX_DIM", "800")
	t.Setenv("PDFCHUNK_RECOMPRESS_JPEG", "yes")
	t.Setenv("PDFCHUNK_WORKERS", "not-a-number")
	t.Setenv("JOB_TIMEOUT", "90s")
	t.Setenv("AXIOM_DATASET", "prod")

	cfg := FromEnv()
	assert.Equal(t, int64(2.5*1024*1024), cfg.Chunking.MaxChunkSize())
	assert.Equal(t, 800, cfg.Chunking.ImageMaxDim)
	assert.True(t, cfg.Chunking.RecompressJPEG)
	assert.Equal(t, runtime.NumCPU(), cfg.Chunking.Workers)
	assert.Equal(t, 90*time.Second, cfg.Server.JobTimeout)
	assert.Equal(t, "prod_pdfchunk", cfg.Axiom.Dataset)
}

func TestLoadReadsDotEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.env")
	require.NoError(t, os.WriteFile(path, []byte("PDFCHUNK_TEST_ONLY_DIM=640\nPDFCHUNK_JPEG_QUALITY=55\n"), 0o644))
	t.Setenv("PDFCHUNK_JPEG_QUALITY", "90")
	t.Cleanup(func() { os.Unsetenv("PDFCHUNK_TEST_ONLY_DIM") })

	cfg, err := Load(path, filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)
	assert.Equal(t, "640", os.Getenv("PDFCHUNK_TEST_ONLY_DIM"))
	// The process environment wins over the file.
	assert.Equal(t, 90, cfg.Chunking.JPEGQuality)
}

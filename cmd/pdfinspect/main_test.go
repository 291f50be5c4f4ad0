package main

import (
	"bytes"
	"encoding/json"
	"io"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/local/pdfchunk/internal/inspect"
	"github.com/local/pdfchunk/internal/pdftest"
)

func writeFixture(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "in.pdf")
	b := pdftest.New()
	scan := b.AddImage(pdftest.CMYKFlate(40, 30, 0, 0, 0, 255))
	photo := b.AddImage(pdftest.RGBJPEG(32, 24, 80))
	b.AddPage(scan, photo).AddPage(scan)
	require.NoError(t, b.WriteFile(path))
	return path
}

func TestRunJSON(t *testing.T) {
	var out bytes.Buffer
	require.Equal(t, 0, run([]string{"-json", writeFixture(t)}, &out, io.Discard))

	var infos []inspect.ImageInfo
	require.NoError(t, json.Unmarshal(out.Bytes(), &infos))
	require.Len(t, infos, 3)
	assert.Equal(t, 1, infos[0].Page)
	assert.Equal(t, "DeviceCMYK", infos[0].ColorSpace)
	assert.Equal(t, "DCTDecode", infos[1].Filter)
	assert.Equal(t, 2, infos[2].Page)
	assert.Equal(t, infos[0].Object, infos[2].Object)
}

func TestRunTable(t *testing.T) {
	var out bytes.Buffer
	require.Equal(t, 0, run([]string{writeFixture(t)}, &out, io.Discard))
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 5)
	assert.Equal(t, "2 pages, 3 image placements", lines[0])
	assert.Contains(t, lines[2], "40x30")
}

func TestRunUsage(t *testing.T) {
	assert.Equal(t, 2, run(nil, io.Discard, io.Discard))
	assert.Equal(t, 1, run([]string{filepath.Join(t.TempDir(), "missing.pdf")}, io.Discard, io.Discard))
}

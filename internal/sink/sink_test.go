package sink

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memDoc []byte

func (d memDoc) Bytes() ([]byte, error) { return d, nil }

func (d memDoc) WriteTo(w io.Writer) (int64, error) {
	n, err := w.Write(d)
	return int64(n), err
}

type failingDoc struct{}

func (failingDoc) Bytes() ([]byte, error) { return nil, errors.New("boom") }

func (failingDoc) WriteTo(w io.Writer) (int64, error) {
	_, _ = w.Write([]byte("%PDF-partial"))
	return 0, errors.New("boom")
}

func TestPartName(t *testing.T) {
	assert.Equal(t, "report_part01.pdf", PartName("report", 1))
	assert.Equal(t, "report_part12.pdf", PartName("report", 12))
	assert.Equal(t, "report_part100.pdf", PartName("report", 100))
}

func TestFileSinkCreatesDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "out")
	s := NewFileSink(dir)

	err := s.Emit(context.Background(), &Chunk{Index: 1, Name: "a_part01.pdf", Doc: memDoc("%PDF-1.7 one")})
	require.NoError(t, err)
	err = s.Emit(context.Background(), &Chunk{Index: 2, Name: "a_part02.pdf", Doc: memDoc("%PDF-1.7 two")})
	require.NoError(t, err)

	got, err := os.ReadFile(filepath.Join(dir, "a_part02.pdf"))
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.7 two", string(got))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestFileSinkLeavesNothingOnFailure(t *testing.T) {
	dir := t.TempDir()
	s := NewFileSink(dir)

	err := s.Emit(context.Background(), &Chunk{Index: 1, Name: "a_part01.pdf", Doc: failingDoc{}})
	require.Error(t, err)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestFileSinkHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := NewFileSink(t.TempDir()).Emit(ctx, &Chunk{Name: "x.pdf", Doc: memDoc("x")})
	assert.ErrorIs(t, err, context.Canceled)
}

type recordingUploader struct {
	keys   []string
	bodies [][]byte
	err    error
}

func (u *recordingUploader) Upload(_ context.Context, key string, body io.Reader, contentType string) error {
	if u.err != nil {
		return u.err
	}
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(body); err != nil {
		return err
	}
	u.keys = append(u.keys, key+"|"+contentType)
	u.bodies = append(u.bodies, buf.Bytes())
	return nil
}

func TestS3SinkUploadsUnderPrefix(t *testing.T) {
	up := &recordingUploader{}
	s := NewS3Sink(up, "bucket", "jobs/42")

	require.NoError(t, s.Emit(context.Background(), &Chunk{Index: 1, Name: "r_part01.pdf", Doc: memDoc("one")}))
	require.NoError(t, s.Emit(context.Background(), &Chunk{Index: 2, Name: "r_part02.pdf", Doc: memDoc("two")}))

	assert.Equal(t, []string{"jobs/42/r_part01.pdf|application/pdf", "jobs/42/r_part02.pdf|application/pdf"}, up.keys)
	assert.Equal(t, []byte("two"), up.bodies[1])
	assert.Equal(t, "s3://bucket/jobs/42/r_part02.pdf", s.URL("r_part02.pdf"))
}

func TestS3SinkReportsUploadFailure(t *testing.T) {
	up := &recordingUploader{err: errors.New("access denied")}
	s := NewS3Sink(up, "bucket", "")
	err := s.Emit(context.Background(), &Chunk{Index: 1, Name: "r_part01.pdf", Doc: memDoc("one")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "r_part01.pdf")
	assert.Empty(t, up.keys)
}

func TestFuncAdapter(t *testing.T) {
	var got []int
	var e Emitter = Func(func(_ context.Context, c *Chunk) error {
		got = append(got, c.Index)
		return nil
	})
	require.NoError(t, e.Emit(context.Background(), &Chunk{Index: 3}))
	assert.Equal(t, []int{3}, got)
}

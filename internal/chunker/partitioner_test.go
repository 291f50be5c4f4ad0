package chunker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/local/pdfchunk/internal/imaging"
	"github.com/local/pdfchunk/internal/pdfdoc"
	"github.com/local/pdfchunk/internal/sink"
)

type fakeDoc struct{ r pdfdoc.PageRange }

func (d fakeDoc) Bytes() ([]byte, error) { return []byte("%PDF " + d.r.String()), nil }

func (d fakeDoc) WriteTo(w io.Writer) (int64, error) {
	n, err := io.WriteString(w, "%PDF "+d.r.String())
	return int64(n), err
}

// fakeSource serves pages whose images are tiny unfiltered CMYK rasters,
// so every image needs a real conversion.
type fakeSource struct {
	pages   int
	images  map[int][]pdfdoc.ImageRef
	broken  map[pdfdoc.ObjectID]bool
	depth   map[pdfdoc.ObjectID]int
	pageErr map[int]error

	mu       sync.Mutex
	reads    map[pdfdoc.ObjectID]int
	replaced map[pdfdoc.ObjectID]int
}

func newFakeSource(pages int) *fakeSource {
	return &fakeSource{
		pages:    pages,
		images:   map[int][]pdfdoc.ImageRef{},
		broken:   map[pdfdoc.ObjectID]bool{},
		depth:    map[pdfdoc.ObjectID]int{},
		pageErr:  map[int]error{},
		reads:    map[pdfdoc.ObjectID]int{},
		replaced: map[pdfdoc.ObjectID]int{},
	}
}

func (s *fakeSource) PageCount() int { return s.pages }

func (s *fakeSource) PageImages(page int) ([]pdfdoc.ImageRef, error) {
	if err := s.pageErr[page]; err != nil {
		return nil, err
	}
	return s.images[page], nil
}

func (s *fakeSource) Image(id pdfdoc.ObjectID) (*imaging.XObject, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reads[id]++
	x := &imaging.XObject{
		Width: 2, Height: 2,
		ColorSpace:       imaging.DeviceCMYK,
		Filter:           imaging.FilterNone,
		BitsPerComponent: 8,
		Data:             make([]byte, 16),
	}
	if s.broken[id] {
		x.Data = x.Data[:3]
	}
	if bpc := s.depth[id]; bpc != 0 {
		x.ColorSpace = imaging.DeviceGray
		x.BitsPerComponent = bpc
		x.Data = make([]byte, 2*((2*bpc+7)/8))
	}
	return x, nil
}

func (s *fakeSource) ReplaceImage(id pdfdoc.ObjectID, x *imaging.XObject) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.replaced[id]++
	return nil
}

func (s *fakeSource) Build(r pdfdoc.PageRange) (sink.Document, error) { return fakeDoc{r}, nil }

func (s *fakeSource) transcoded(id pdfdoc.ObjectID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.replaced[id] > 0
}

// sizeEstimator reports size(first, last) and checks that every image of a
// measured page was already transcoded.
type sizeEstimator struct {
	t    *testing.T
	src  *fakeSource
	size func(r pdfdoc.PageRange) int64

	measured []pdfdoc.PageRange
}

func (e *sizeEstimator) Measure(_ context.Context, r pdfdoc.PageRange) (*Measurement, error) {
	for p := r.First; p <= r.Last; p++ {
		for _, ref := range e.src.images[p] {
			if !e.src.broken[ref.ID] && e.src.depth[ref.ID] == 0 {
				assert.True(e.t, e.src.transcoded(ref.ID), "page %d measured before image %d was transcoded", p+1, ref.ID)
			}
		}
	}
	e.measured = append(e.measured, r)
	return &Measurement{Range: r, Size: e.size(r), Doc: fakeDoc{r}}, nil
}

// sharedOverhead makes n pages measure 1,000,000 + (n-1)*1,012,500 bytes:
// one page is 1,000,000 and five pages are 5,050,000.
func sharedOverhead(r pdfdoc.PageRange) int64 {
	return 1_000_000 + int64(r.Len()-1)*1_012_500
}

func perPage(sizes ...int64) func(pdfdoc.PageRange) int64 {
	return func(r pdfdoc.PageRange) int64 {
		var total int64
		for p := r.First; p <= r.Last; p++ {
			total += sizes[p]
		}
		return total
	}
}

type recorder struct {
	chunks []sink.Chunk
	fail   map[int]error
	after  func(c *sink.Chunk)
}

func (r *recorder) Emit(_ context.Context, c *sink.Chunk) error {
	if err := r.fail[c.Index]; err != nil {
		return err
	}
	r.chunks = append(r.chunks, *c)
	if r.after != nil {
		r.after(c)
	}
	return nil
}

func testConfig() Config {
	return Config{MaxChunkSize: 4_500_000, ImageMaxDim: 1500, JPEGQuality: 75, Workers: 4, Lookahead: 2, BaseName: "doc"}
}

func run(t *testing.T, src *fakeSource, size func(pdfdoc.PageRange) int64, out sink.Emitter, cfg Config) (*Result, error) {
	t.Helper()
	p, err := NewPartitioner(src, &sizeEstimator{t: t, src: src, size: size}, out, cfg)
	require.NoError(t, err)
	return p.Run(context.Background())
}

func pageCounts(res *Result) []int {
	out := make([]int, len(res.Chunks))
	for i, c := range res.Chunks {
		out[i] = c.LastPage - c.FirstPage + 1
	}
	return out
}

func TestSharedOverheadSplitsFourFourTwo(t *testing.T) {
	rec := &recorder{}
	res, err := run(t, newFakeSource(10), sharedOverhead, rec, testConfig())
	require.NoError(t, err)

	want := []Descriptor{
		{Index: 1, Name: "doc_part01.pdf", FirstPage: 1, LastPage: 4, Size: 4_037_500},
		{Index: 2, Name: "doc_part02.pdf", FirstPage: 5, LastPage: 8, Size: 4_037_500},
		{Index: 3, Name: "doc_part03.pdf", FirstPage: 9, LastPage: 10, Size: 2_012_500},
	}
	if diff := cmp.Diff(want, res.Chunks); diff != "" {
		t.Errorf("chunks mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, []int{4, 4, 2}, pageCounts(res))
	assert.Empty(t, res.Warnings)

	require.Len(t, rec.chunks, 3)
	for i, c := range rec.chunks {
		assert.Equal(t, i+1, c.Index)
	}
	assert.Equal(t, pdfdoc.PageRange{First: 8, Last: 9}, rec.chunks[2].Doc.(fakeDoc).r)
}

func TestEmptyDocumentProducesNoChunks(t *testing.T) {
	rec := &recorder{}
	res, err := run(t, newFakeSource(0), sharedOverhead, rec, testConfig())
	require.NoError(t, err)
	assert.Empty(t, res.Chunks)
	assert.NotNil(t, res.Chunks)
	assert.Empty(t, rec.chunks)
}

func TestSingleOversizePage(t *testing.T) {
	rec := &recorder{}
	res, err := run(t, newFakeSource(1), perPage(6_000_000), rec, testConfig())
	require.NoError(t, err)

	require.Len(t, res.Chunks, 1)
	assert.True(t, res.Chunks[0].Oversize)
	assert.Equal(t, int64(6_000_000), res.Chunks[0].Size)
	require.Len(t, rec.chunks, 1)
	assert.True(t, rec.chunks[0].Oversize)

	require.Len(t, res.Warnings, 1)
	var w *OversizeChunkWarning
	require.True(t, errors.As(res.Warnings[0], &w))
	assert.Equal(t, 1, w.Page)
	assert.Equal(t, int64(4_500_000), w.Limit)
}

func TestOversizePageInTheMiddle(t *testing.T) {
	rec := &recorder{}
	res, err := run(t, newFakeSource(4), perPage(1_000_000, 1_000_000, 6_000_000, 1_000_000), rec, testConfig())
	require.NoError(t, err)

	want := []Descriptor{
		{Index: 1, Name: "doc_part01.pdf", FirstPage: 1, LastPage: 2, Size: 2_000_000},
		{Index: 2, Name: "doc_part02.pdf", FirstPage: 3, LastPage: 3, Size: 6_000_000, Oversize: true},
		{Index: 3, Name: "doc_part03.pdf", FirstPage: 4, LastPage: 4, Size: 1_000_000},
	}
	if diff := cmp.Diff(want, res.Chunks); diff != "" {
		t.Errorf("chunks mismatch (-want +got):\n%s", diff)
	}
}

func TestChunksCoverEveryPageOnceAndStayInBudget(t *testing.T) {
	sizes := []int64{900_000, 2_100_000, 300_000, 4_400_000, 5_000_000, 100_000, 100_000, 2_000_000, 2_600_000, 700_000, 1_500_000}
	cfg := testConfig()
	res, err := run(t, newFakeSource(len(sizes)), perPage(sizes...), &recorder{}, cfg)
	require.NoError(t, err)

	next := 1
	for _, c := range res.Chunks {
		assert.Equal(t, next, c.FirstPage, "chunk %d", c.Index)
		assert.GreaterOrEqual(t, c.LastPage, c.FirstPage)
		next = c.LastPage + 1
		if c.Oversize {
			assert.Equal(t, c.FirstPage, c.LastPage)
			assert.Greater(t, c.Size, cfg.MaxChunkSize)
		} else {
			assert.LessOrEqual(t, c.Size, cfg.MaxChunkSize)
		}
	}
	assert.Equal(t, len(sizes)+1, next)
}

func TestPartitionIsDeterministic(t *testing.T) {
	sizes := []int64{1_200_000, 800_000, 3_000_000, 900_000, 900_000, 900_000, 4_000_000}
	build := func(workers int) []Descriptor {
		src := newFakeSource(len(sizes))
		for p := range sizes {
			src.images[p] = []pdfdoc.ImageRef{{ID: pdfdoc.ObjectID(100 + p), Name: "Im0"}, {ID: 999, Name: "Logo"}}
		}
		cfg := testConfig()
		cfg.Workers = workers
		res, err := run(t, src, perPage(sizes...), &recorder{}, cfg)
		require.NoError(t, err)
		return res.Chunks
	}
	first := build(1)
	if diff := cmp.Diff(first, build(8)); diff != "" {
		t.Errorf("plan depends on worker count (-1 worker +8 workers):\n%s", diff)
	}
}

func TestSharedImageTranscodedOnce(t *testing.T) {
	src := newFakeSource(10)
	for p := 0; p < 10; p++ {
		src.images[p] = []pdfdoc.ImageRef{{ID: 7, Name: "Logo"}, {ID: pdfdoc.ObjectID(20 + p), Name: "Photo"}}
	}
	res, err := run(t, src, sharedOverhead, &recorder{}, testConfig())
	require.NoError(t, err)
	require.Len(t, res.Chunks, 3)

	assert.Equal(t, 1, src.reads[7])
	assert.Equal(t, 1, src.replaced[7])
	for p := 0; p < 10; p++ {
		assert.Equal(t, 1, src.replaced[pdfdoc.ObjectID(20+p)], "page %d photo", p+1)
	}
	assert.Equal(t, 11, res.ImagesTranscoded)
	assert.Zero(t, res.ImagesFailed)
}

func TestBrokenImageIsAWarning(t *testing.T) {
	src := newFakeSource(3)
	src.images[1] = []pdfdoc.ImageRef{{ID: 5, Name: "Scan"}, {ID: 6, Name: "Ok"}}
	src.broken[5] = true

	res, err := run(t, src, perPage(1, 1, 1), &recorder{}, testConfig())
	require.NoError(t, err)
	require.Len(t, res.Chunks, 1)
	assert.Zero(t, src.replaced[5])
	assert.Equal(t, 1, src.replaced[6])
	assert.Equal(t, 1, res.ImagesFailed)
	assert.Equal(t, 1, res.ImagesTranscoded)

	require.Len(t, res.Warnings, 1)
	var w *ImageTranscodeError
	require.True(t, errors.As(res.Warnings[0], &w))
	assert.Equal(t, 2, w.Page)
	assert.Equal(t, "Scan", w.Image)
	assert.Equal(t, 5, w.Object)
}

func TestUndecodableImageIsSkipped(t *testing.T) {
	src := newFakeSource(2)
	src.images[0] = []pdfdoc.ImageRef{{ID: 7, Name: "Odd"}, {ID: 8, Name: "Ok"}}
	src.depth[7] = 5

	res, err := run(t, src, perPage(1, 1), &recorder{}, testConfig())
	require.NoError(t, err)
	assert.Zero(t, src.replaced[7])
	assert.Equal(t, 1, src.replaced[8])
	assert.Equal(t, 1, res.ImagesSkipped)
	assert.Equal(t, 1, res.ImagesTranscoded)
	assert.Zero(t, res.ImagesFailed)
	assert.Empty(t, res.Warnings)
}

func TestResultJSONCarriesWarnings(t *testing.T) {
	res := &Result{
		Pages:    1,
		Chunks:   []Descriptor{},
		Warnings: []error{&OversizeChunkWarning{Chunk: 1, Page: 1, Size: 20, Limit: 10}},
	}
	b, err := json.Marshal(res)
	require.NoError(t, err)

	var got struct {
		Pages    int      `json:"pages"`
		Warnings []string `json:"warnings"`
	}
	require.NoError(t, json.Unmarshal(b, &got))
	assert.Equal(t, 1, got.Pages)
	assert.Equal(t, []string{"chunk 1: page 1 alone is 20 bytes, over the 10 byte limit"}, got.Warnings)

	b, err = json.Marshal(Result{})
	require.NoError(t, err)
	assert.Contains(t, string(b), `"warnings":[]`)
}

func TestUnreadablePageResourcesAreAWarning(t *testing.T) {
	src := newFakeSource(2)
	src.pageErr[0] = errors.New("dangling resources")

	res, err := run(t, src, perPage(1, 1), &recorder{}, testConfig())
	require.NoError(t, err)
	require.Len(t, res.Chunks, 1)
	require.Len(t, res.Warnings, 1)
	var w *ImageTranscodeError
	require.True(t, errors.As(res.Warnings[0], &w))
	assert.Equal(t, 1, w.Page)
}

func TestEmitFailureAbortsRun(t *testing.T) {
	rec := &recorder{fail: map[int]error{2: errors.New("disk full")}}
	res, err := run(t, newFakeSource(10), sharedOverhead, rec, testConfig())
	require.Error(t, err)

	var ow *OutputWriteError
	require.True(t, errors.As(err, &ow))
	assert.Equal(t, 2, ow.Chunk)
	assert.Equal(t, "doc_part02.pdf", ow.Name)
	assert.Equal(t, "5-8", ow.Pages)
	assert.Len(t, rec.chunks, 1)
	assert.Len(t, res.Chunks, 1)
}

func TestCancelBetweenPages(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	rec := &recorder{after: func(*sink.Chunk) { cancel() }}

	src := newFakeSource(10)
	p, err := NewPartitioner(src, &sizeEstimator{t: t, src: src, size: sharedOverhead}, rec, testConfig())
	require.NoError(t, err)
	res, err := p.Run(ctx)
	require.ErrorIs(t, err, context.Canceled)
	assert.Len(t, rec.chunks, 1)
	assert.Len(t, res.Chunks, 1)
}

type failingEstimator struct{}

func (failingEstimator) Measure(context.Context, pdfdoc.PageRange) (*Measurement, error) {
	return nil, fmt.Errorf("dangling reference")
}

func TestMeasureFailureIsFatal(t *testing.T) {
	p, err := NewPartitioner(newFakeSource(3), failingEstimator{}, &recorder{}, testConfig())
	require.NoError(t, err)
	_, err = p.Run(context.Background())
	var me *MeasureError
	require.True(t, errors.As(err, &me))
	assert.Equal(t, "1", me.Pages)
}

func TestTrialEstimatorMeasuresBuiltBytes(t *testing.T) {
	src := newFakeSource(3)
	m, err := NewTrialEstimator(src).Measure(context.Background(), pdfdoc.PageRange{First: 0, Last: 2})
	require.NoError(t, err)
	assert.Equal(t, int64(len("%PDF 1-3")), m.Size)
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name  string
		edit  func(c *Config)
		field string
	}{
		{"zero budget", func(c *Config) { c.MaxChunkSize = 0 }, "MaxChunkSize"},
		{"zero max dim", func(c *Config) { c.ImageMaxDim = 0 }, "ImageMaxDim"},
		{"quality zero", func(c *Config) { c.JPEGQuality = 0 }, "JPEGQuality"},
		{"quality over 100", func(c *Config) { c.JPEGQuality = 101 }, "JPEGQuality"},
		{"negative workers", func(c *Config) { c.Workers = -1 }, "Workers"},
		{"negative lookahead", func(c *Config) { c.Lookahead = -2 }, "Lookahead"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			tt.edit(&cfg)
			var ce *ConfigError
			require.True(t, errors.As(cfg.Validate(), &ce))
			assert.Equal(t, tt.field, ce.Field)
		})
	}
	assert.NoError(t, testConfig().Validate())
}

package inspect

import (
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/local/pdfchunk/internal/pdfdoc"
	"github.com/local/pdfchunk/internal/pdftest"
)

func TestImagesListsEveryPage(t *testing.T) {
	b := pdftest.New()
	scan := b.AddImage(pdftest.CMYKFlate(40, 30, 10, 20, 30, 40))
	photo := b.AddImage(pdftest.RGBJPEG(32, 24, 80))
	b.AddPage(scan, photo).AddPage().AddPage(scan)

	path := filepath.Join(t.TempDir(), "in.pdf")
	require.NoError(t, b.WriteFile(path))
	doc, err := pdfdoc.Open(path)
	require.NoError(t, err)
	defer doc.Close()

	got, err := Images(doc)
	require.NoError(t, err)
	require.Len(t, got, 3)

	want := []ImageInfo{
		{Page: 1, Name: "Im0", Width: 40, Height: 30, ColorSpace: "DeviceCMYK", Filter: "FlateDecode", BitsPerComponent: 8},
		{Page: 1, Name: "Im1", Width: 32, Height: 24, ColorSpace: "DeviceRGB", Filter: "DCTDecode", BitsPerComponent: 8},
		{Page: 3, Name: "Im0", Width: 40, Height: 30, ColorSpace: "DeviceCMYK", Filter: "FlateDecode", BitsPerComponent: 8},
	}
	if diff := cmp.Diff(want, got, cmpopts.IgnoreFields(ImageInfo{}, "Object", "Size")); diff != "" {
		t.Errorf("images mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, got[0].Object, got[2].Object)
	assert.Positive(t, got[1].Size)
	// Go's encoder writes no Adobe segment.
	assert.Nil(t, got[1].APP14)
}

// Package pdftest builds small, valid PDF files for tests: pages that draw
// image XObjects, with images optionally shared between pages.
package pdftest

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"os"
	"sort"

	"github.com/klauspost/compress/zlib"
)

// Image is an image XObject stored as given; Data is already encoded with
// Filter.
type Image struct {
	Width            int
	Height           int
	ColorSpace       string
	BitsPerComponent int
	Filter           string
	Decode           []float64
	Data             []byte
}

// Builder assembles a document. Images are numbered in the order they are
// added; pages refer to them by that number.
type Builder struct {
	images []Image
	pages  []map[string]int
}

func New() *Builder { return &Builder{} }

// AddImage registers img and returns its handle.
func (b *Builder) AddImage(img Image) int {
	b.images = append(b.images, img)
	return len(b.images) - 1
}

// AddPage appends a page drawing the given images under resource names
// Im0, Im1, ...
func (b *Builder) AddPage(images ...int) *Builder {
	res := map[string]int{}
	for i, h := range images {
		res[fmt.Sprintf("Im%d", i)] = h
	}
	b.pages = append(b.pages, res)
	return b
}

// Bytes serializes the document with a classic xref table.
func (b *Builder) Bytes() []byte {
	// 1 catalog, 2 page tree, then images, then page + content per page.
	imgObj := func(h int) int { return 3 + h }
	pageObj := func(p int) int { return 3 + len(b.images) + 2*p }
	size := 3 + len(b.images) + 2*len(b.pages)

	var buf bytes.Buffer
	offsets := make([]int, size)
	buf.WriteString("%PDF-1.7\n%\xe2\xe3\xcf\xd3\n")
	// Readers reject files shorter than 512 bytes, which a document
	// without pages would otherwise be.
	fmt.Fprintf(&buf, "%%%s\n", bytes.Repeat([]byte(" pdftest"), 40))
	obj := func(n int, body string) {
		offsets[n] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", n, body)
	}

	obj(1, "<< /Type /Catalog /Pages 2 0 R >>")
	var kids bytes.Buffer
	for p := range b.pages {
		fmt.Fprintf(&kids, "%d 0 R ", pageObj(p))
	}
	obj(2, fmt.Sprintf("<< /Type /Pages /Kids [ %s] /Count %d >>", kids.String(), len(b.pages)))

	for h, img := range b.images {
		offsets[imgObj(h)] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n<< /Type /XObject /Subtype /Image /Width %d /Height %d /ColorSpace /%s /BitsPerComponent %d",
			imgObj(h), img.Width, img.Height, img.ColorSpace, img.BitsPerComponent)
		if img.Filter != "" {
			fmt.Fprintf(&buf, " /Filter /%s", img.Filter)
		}
		if len(img.Decode) > 0 {
			buf.WriteString(" /Decode [")
			for _, v := range img.Decode {
				fmt.Fprintf(&buf, " %g", v)
			}
			buf.WriteString(" ]")
		}
		fmt.Fprintf(&buf, " /Length %d >>\nstream\n", len(img.Data))
		buf.Write(img.Data)
		buf.WriteString("\nendstream\nendobj\n")
	}

	for p, res := range b.pages {
		names := make([]string, 0, len(res))
		for name := range res {
			names = append(names, name)
		}
		sort.Strings(names)

		var xobj, content bytes.Buffer
		for i, name := range names {
			fmt.Fprintf(&xobj, "/%s %d 0 R ", name, imgObj(res[name]))
			fmt.Fprintf(&content, "q 100 0 0 100 %d 600 cm /%s Do Q\n", 20+110*i, name)
		}
		fmt.Fprintf(&content, "BT /F1 12 Tf 72 72 Td (page %d) Tj ET\n", p+1)

		obj(pageObj(p), fmt.Sprintf("<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] "+
			"/Resources << /XObject << %s>> /Font << /F1 << /Type /Font /Subtype /Type1 /BaseFont /Helvetica >> >> >> "+
			"/Contents %d 0 R >>", xobj.String(), pageObj(p)+1))

		offsets[pageObj(p)+1] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n<< /Length %d >>\nstream\n%s\nendstream\nendobj\n", pageObj(p)+1, content.Len(), content.String())
	}

	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n0000000000 65535 f \n", size)
	for n := 1; n < size; n++ {
		fmt.Fprintf(&buf, "%010d 00000 n \n", offsets[n])
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", size, xref)
	return buf.Bytes()
}

// WriteFile writes the document to path.
func (b *Builder) WriteFile(path string) error {
	return os.WriteFile(path, b.Bytes(), 0o644)
}

// CMYKFlate returns a Flate encoded DeviceCMYK image of a single ink
// value.
func CMYKFlate(w, h int, c, m, y, k byte) Image {
	raw := make([]byte, 0, w*h*4)
	for i := 0; i < w*h; i++ {
		raw = append(raw, c, m, y, k)
	}
	return Image{Width: w, Height: h, ColorSpace: "DeviceCMYK", BitsPerComponent: 8, Filter: "FlateDecode", Data: deflate(raw)}
}

// RGBFlate returns a Flate encoded DeviceRGB gradient.
func RGBFlate(w, h int) Image {
	raw := make([]byte, 0, w*h*3)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			raw = append(raw, byte(x*7), byte(y*5), byte((x+y)*3))
		}
	}
	return Image{Width: w, Height: h, ColorSpace: "DeviceRGB", BitsPerComponent: 8, Filter: "FlateDecode", Data: deflate(raw)}
}

// RGBJPEG returns a DCT encoded DeviceRGB image.
func RGBJPEG(w, h, quality int) Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{byte(x * 3), byte(y * 2), 128, 255})
		}
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		panic(err)
	}
	return Image{Width: w, Height: h, ColorSpace: "DeviceRGB", BitsPerComponent: 8, Filter: "DCTDecode", Data: buf.Bytes()}
}

func deflate(raw []byte) []byte {
	var buf bytes.Buffer
	zw := zlib.NewWriter(&buf)
	zw.Write(raw)
	zw.Close()
	return buf.Bytes()
}

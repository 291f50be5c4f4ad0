package imaging

import (
	"bytes"
	"fmt"
	"image"
	"image/draw"
	"image/jpeg"
	"math"

	xdraw "golang.org/x/image/draw"
)

// Options controls a single transcode.
type Options struct {
	// MaxDim bounds the longer edge of the output raster in pixels.
	MaxDim int
	// Quality is the JPEG quality, 1..100.
	Quality int
	// RecompressJPEG allows re-encoding DCT images that need neither
	// conversion nor resizing. The new stream is kept only when smaller.
	RecompressJPEG bool
}

func (o Options) validate() error {
	if o.MaxDim <= 0 {
		return fmt.Errorf("max dimension must be positive, got %d", o.MaxDim)
	}
	if o.Quality < 1 || o.Quality > 100 {
		return fmt.Errorf("jpeg quality must be within 1..100, got %d", o.Quality)
	}
	return nil
}

// Result describes what Transcode did to an image.
type Result struct {
	Changed     bool
	Converted   bool // CMYK samples were converted to DeviceRGB
	Resized     bool
	BytesBefore int
	BytesAfter  int
	Width       int
	Height      int
	// Skipped is set when the image was passed through on purpose.
	Skipped string
}

// Transcode normalizes the colorspace of x, bounds its dimensions to
// opts.MaxDim and re-encodes it as JPEG. x is modified in place only on
// success; on error its fields are untouched and the caller keeps the
// original stream.
//
// Transcode is idempotent: an image that is already DCT encoded, in
// DeviceRGB or DeviceGray and within MaxDim is passed through.
func Transcode(x *XObject, opts Options) (Result, error) {
	res := Result{BytesBefore: len(x.Data), BytesAfter: len(x.Data), Width: x.Width, Height: x.Height}
	if err := opts.validate(); err != nil {
		return res, err
	}
	conv := conversionFor(x)
	if reason := skipReason(x, conv, opts); reason != "" {
		res.Skipped = reason
		return res, nil
	}

	img, err := decodeRaster(x, conv)
	if err != nil {
		return res, err
	}
	if conv.toRGB {
		img = toRGB(img)
		res.Converted = true
	}
	if w, h := targetSize(img.Bounds().Dx(), img.Bounds().Dy(), opts.MaxDim); w != img.Bounds().Dx() || h != img.Bounds().Dy() {
		img = resample(img, w, h)
		res.Resized = true
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: opts.Quality}); err != nil {
		return res, fmt.Errorf("jpeg encode: %w", err)
	}
	if !res.Converted && !res.Resized && buf.Len() >= len(x.Data) {
		res.Skipped = "re-encoding does not shrink the stream"
		return res, nil
	}

	cs := DeviceRGB
	if _, gray := img.(*image.Gray); gray {
		cs = DeviceGray
	}
	x.Data = buf.Bytes()
	x.Width = img.Bounds().Dx()
	x.Height = img.Bounds().Dy()
	x.ColorSpace = cs
	x.Components = 0
	x.Filter = FilterDCT
	x.DecodeParms = DecodeParms{}
	x.BitsPerComponent = 8
	x.Decode = nil

	res.Changed = true
	res.BytesAfter = len(x.Data)
	res.Width, res.Height = x.Width, x.Height
	return res, nil
}

// skipReason returns why x is passed through unchanged, or "" when it
// must be transcoded.
func skipReason(x *XObject, conv conversion, opts Options) string {
	switch {
	case x.ImageMask:
		return "stencil mask"
	case !conv.decodable:
		return "colorspace " + x.ColorSpace.String() + " is not converted"
	case !x.Filter.decodable():
		return "filter " + x.Filter.String() + " is not decoded"
	case x.Filter == FilterDCT && !conv.toRGB && max(x.Width, x.Height) <= opts.MaxDim && !opts.RecompressJPEG:
		return "already compressed"
	}
	return ""
}

// CMYKToRGB converts one pixel with the complement model
// R = 255(1-C)(1-K), G = 255(1-M)(1-K), B = 255(1-Y)(1-K).
// No ICC profile is applied.
func CMYKToRGB(c, m, y, k uint8) (r, g, b uint8) {
	w := 255 - uint32(k)
	r = uint8((255 - uint32(c)) * w / 255)
	g = uint8((255 - uint32(m)) * w / 255)
	b = uint8((255 - uint32(y)) * w / 255)
	return r, g, b
}

func toRGB(img image.Image) image.Image {
	cmyk, ok := img.(*image.CMYK)
	if !ok {
		dst := image.NewRGBA(img.Bounds())
		draw.Draw(dst, dst.Bounds(), img, img.Bounds().Min, draw.Src)
		return dst
	}
	b := cmyk.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	for y := 0; y < b.Dy(); y++ {
		src := cmyk.Pix[y*cmyk.Stride : y*cmyk.Stride+4*b.Dx()]
		out := dst.Pix[y*dst.Stride : y*dst.Stride+4*b.Dx()]
		for i := 0; i < len(src); i += 4 {
			out[i], out[i+1], out[i+2] = CMYKToRGB(src[i], src[i+1], src[i+2], src[i+3])
			out[i+3] = 0xff
		}
	}
	return dst
}

// targetSize scales w×h so that the longer edge equals maxDim. Sizes
// already within bounds are returned unchanged.
func targetSize(w, h, maxDim int) (int, int) {
	long := max(w, h)
	if long <= maxDim {
		return w, h
	}
	scale := func(v int) int {
		return max(1, int(math.Round(float64(v)*float64(maxDim)/float64(long))))
	}
	if w >= h {
		return maxDim, scale(h)
	}
	return scale(w), maxDim
}

func resample(src image.Image, w, h int) image.Image {
	rect := image.Rect(0, 0, w, h)
	var dst draw.Image
	if _, gray := src.(*image.Gray); gray {
		dst = image.NewGray(rect)
	} else {
		dst = image.NewRGBA(rect)
	}
	xdraw.CatmullRom.Scale(dst, rect, src, src.Bounds(), xdraw.Src, nil)
	return dst
}

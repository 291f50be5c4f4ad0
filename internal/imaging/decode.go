package imaging

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"io"

	"github.com/hhrutter/lzw"
	"github.com/klauspost/compress/zlib"
)

// ErrUnsupported marks valid images this package cannot decode. Callers
// pass them through unchanged rather than reporting a failure.
var ErrUnsupported = errors.New("unsupported image encoding")

// decodeStream undoes the stream filter and predictor of a non-DCT image.
func decodeStream(x *XObject) ([]byte, error) {
	var (
		data []byte
		err  error
	)
	switch x.Filter {
	case FilterNone:
		return x.Data, nil
	case FilterFlate:
		data, err = inflate(x.Data)
	case FilterLZW:
		data, err = unLZW(x.Data, x.DecodeParms.EarlyChange != 0)
	default:
		return nil, fmt.Errorf("%w: filter %s", ErrUnsupported, x.Filter)
	}
	if err != nil {
		return nil, err
	}
	return unpredict(data, x.DecodeParms)
}

func inflate(raw []byte) ([]byte, error) {
	r, err := zlib.NewReader(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("flate: %w", err)
	}
	defer r.Close()
	out, err := io.ReadAll(r)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) {
		return nil, fmt.Errorf("flate: %w", err)
	}
	return out, nil
}

func unLZW(raw []byte, earlyChange bool) ([]byte, error) {
	r := lzw.NewReader(bytes.NewReader(raw), earlyChange)
	defer r.Close()
	out, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("lzw: %w", err)
	}
	return out, nil
}

// unpredict reverses a TIFF or PNG predictor. PNG predictors work on
// whole bytes and accept packed samples; the TIFF predictor needs 8 bits.
func unpredict(data []byte, p DecodeParms) ([]byte, error) {
	if p.Predictor <= 1 {
		return data, nil
	}
	bpc := p.BitsPerComponent
	if bpc == 0 {
		bpc = 8
	}
	colors := p.Colors
	if colors <= 0 {
		colors = 1
	}
	columns := p.Columns
	if columns <= 0 {
		columns = 1
	}
	rowLen := (colors*columns*bpc + 7) / 8
	if p.Predictor == 2 {
		if bpc != 8 {
			return nil, fmt.Errorf("%w: tiff predictor with %d bits per component", ErrUnsupported, bpc)
		}
		if len(data)%rowLen != 0 {
			return nil, fmt.Errorf("tiff predictor: %d bytes is not a multiple of row size %d", len(data), rowLen)
		}
		out := make([]byte, len(data))
		copy(out, data)
		for row := 0; row < len(out); row += rowLen {
			for i := colors; i < rowLen; i++ {
				out[row+i] += out[row+i-colors]
			}
		}
		return out, nil
	}
	if p.Predictor < 10 || p.Predictor > 15 {
		return nil, fmt.Errorf("%w: predictor %d", ErrUnsupported, p.Predictor)
	}

	// Distance to the corresponding byte of the previous pixel.
	bpp := max(1, colors*bpc/8)
	stride := rowLen + 1
	if len(data)%stride != 0 {
		return nil, fmt.Errorf("png predictor: %d bytes is not a multiple of row size %d", len(data), stride)
	}
	rows := len(data) / stride
	out := make([]byte, rows*rowLen)
	prev := make([]byte, rowLen)
	for r := 0; r < rows; r++ {
		tag := data[r*stride]
		in := data[r*stride+1 : (r+1)*stride]
		cur := out[r*rowLen : (r+1)*rowLen]
		for i := range in {
			var left, upLeft byte
			up := prev[i]
			if i >= bpp {
				left = cur[i-bpp]
				upLeft = prev[i-bpp]
			}
			switch tag {
			case 0:
				cur[i] = in[i]
			case 1:
				cur[i] = in[i] + left
			case 2:
				cur[i] = in[i] + up
			case 3:
				cur[i] = in[i] + byte((int(left)+int(up))/2)
			case 4:
				cur[i] = in[i] + paeth(left, up, upLeft)
			default:
				return nil, fmt.Errorf("png predictor: unknown row filter %d in row %d", tag, r)
			}
		}
		prev = cur
	}
	return out, nil
}

func paeth(a, b, c byte) byte {
	p := int(a) + int(b) - int(c)
	pa, pb, pc := abs(p-int(a)), abs(p-int(b)), abs(p-int(c))
	if pa <= pb && pa <= pc {
		return a
	}
	if pb <= pc {
		return b
	}
	return c
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

// decodeRaster turns x into an image.Image. CMYK images are returned as
// *image.CMYK with 0 meaning no ink.
func decodeRaster(x *XObject, conv conversion) (image.Image, error) {
	if x.Width <= 0 || x.Height <= 0 {
		return nil, fmt.Errorf("invalid dimensions %dx%d", x.Width, x.Height)
	}
	if x.Filter == FilterDCT {
		return decodeDCT(x)
	}
	samples, err := decodeStream(x)
	if err != nil {
		return nil, err
	}
	n := conv.components
	if samples, err = widenSamples(samples, x.Width, x.Height, n, x.BitsPerComponent); err != nil {
		return nil, err
	}
	need := x.Width * x.Height * n
	if x.invertedDecode() {
		flipped := make([]byte, need)
		for i, v := range samples[:need] {
			flipped[i] = 255 - v
		}
		samples = flipped
	}
	rect := image.Rect(0, 0, x.Width, x.Height)
	switch n {
	case 1:
		img := image.NewGray(rect)
		copy(img.Pix, samples[:need])
		return img, nil
	case 3:
		img := image.NewRGBA(rect)
		for i, j := 0, 0; i < need; i, j = i+3, j+4 {
			img.Pix[j] = samples[i]
			img.Pix[j+1] = samples[i+1]
			img.Pix[j+2] = samples[i+2]
			img.Pix[j+3] = 0xff
		}
		return img, nil
	case 4:
		img := image.NewCMYK(rect)
		copy(img.Pix, samples[:need])
		return img, nil
	}
	return nil, fmt.Errorf("%w: %d components", ErrUnsupported, n)
}

// widenSamples returns one byte per sample. Packed 1, 2 and 4 bit
// samples are scaled to 0..255 with every row starting on a byte
// boundary; 16 bit samples keep their high byte.
func widenSamples(samples []byte, w, h, n, bpc int) ([]byte, error) {
	perRow := w * n
	switch bpc {
	case 8:
		if need := perRow * h; len(samples) < need {
			return nil, fmt.Errorf("short image data: have %d bytes, need %d", len(samples), need)
		}
		return samples, nil
	case 16:
		need := perRow * h * 2
		if len(samples) < need {
			return nil, fmt.Errorf("short image data: have %d bytes, need %d", len(samples), need)
		}
		out := make([]byte, perRow*h)
		for i := range out {
			out[i] = samples[2*i]
		}
		return out, nil
	case 1, 2, 4:
	default:
		return nil, fmt.Errorf("%w: %d bits per component", ErrUnsupported, bpc)
	}

	rowBytes := (perRow*bpc + 7) / 8
	if need := rowBytes * h; len(samples) < need {
		return nil, fmt.Errorf("short image data: have %d bytes, need %d", len(samples), need)
	}
	maxVal := 1<<bpc - 1
	mask := byte(maxVal)
	out := make([]byte, perRow*h)
	for y := 0; y < h; y++ {
		row := samples[y*rowBytes : (y+1)*rowBytes]
		for i := 0; i < perRow; i++ {
			bit := i * bpc
			v := (row[bit/8] >> (8 - bpc - bit%8)) & mask
			out[y*perRow+i] = byte(int(v) * 255 / maxVal)
		}
	}
	return out, nil
}

// decodeDCT decodes a JPEG stream. image/jpeg only accepts four-channel
// JPEGs that carry the Adobe APP14 marker and un-inverts those itself;
// the ones it rejects are reported as unsupported and passed through.
func decodeDCT(x *XObject) (image.Image, error) {
	img, err := jpeg.Decode(bytes.NewReader(x.Data))
	var unsupported jpeg.UnsupportedError
	if errors.As(err, &unsupported) {
		return nil, fmt.Errorf("%w: dct: %v", ErrUnsupported, err)
	}
	if err != nil {
		return nil, fmt.Errorf("dct: %w", err)
	}
	return img, nil
}

// APP14 is the Adobe application segment of a JPEG stream.
type APP14 struct {
	Transform int
}

// ProbeAPP14 looks for an Adobe APP14 marker (FF EE, length, "Adobe") and
// returns its color transform flag. Transform is -1 when the segment is
// truncated.
func ProbeAPP14(data []byte) (APP14, bool) {
	idx := bytes.Index(data, []byte{0xff, 0xee})
	if idx < 0 {
		return APP14{}, false
	}
	start := idx + 4
	if len(data) < start+5 || string(data[start:start+5]) != "Adobe" {
		return APP14{}, false
	}
	if len(data) <= start+11 {
		return APP14{Transform: -1}, true
	}
	return APP14{Transform: int(data[start+11])}, true
}

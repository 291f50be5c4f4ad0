package imaging

// DecodeParms holds the predictor parameters of a Flate or LZW stream.
type DecodeParms struct {
	Predictor        int
	Colors           int
	BitsPerComponent int
	Columns          int
	EarlyChange      int
}

// XObject is an embedded raster image as the transcoder sees it.
//
// Data is the encoded stream exactly as stored in the document. Transcode
// replaces Data and the metadata fields together, never one without the
// other.
type XObject struct {
	Name             string
	Width            int
	Height           int
	ColorSpace       ColorSpace
	Components       int // N of an ICCBased colorspace, 0 otherwise
	Filter           Filter
	DecodeParms      DecodeParms
	BitsPerComponent int
	Decode           []float64
	ImageMask        bool
	Data             []byte
}

// invertedDecode reports whether the Decode array maps every component
// from 1 to 0, the form used by producers of inverted CMYK samples.
func (x *XObject) invertedDecode() bool {
	if len(x.Decode) == 0 || len(x.Decode)%2 != 0 {
		return false
	}
	for i := 0; i < len(x.Decode); i += 2 {
		if x.Decode[i] != 1 || x.Decode[i+1] != 0 {
			return false
		}
	}
	return true
}

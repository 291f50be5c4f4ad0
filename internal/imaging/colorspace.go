package imaging

import "strings"

// ColorSpace is the PDF-declared pixel encoding of an image.
type ColorSpace int

const (
	ColorSpaceOther ColorSpace = iota
	DeviceRGB
	DeviceCMYK
	DeviceGray
	Indexed
	ICCBased
)

var colorSpaceNames = map[ColorSpace]string{
	ColorSpaceOther: "Other",
	DeviceRGB:       "DeviceRGB",
	DeviceCMYK:      "DeviceCMYK",
	DeviceGray:      "DeviceGray",
	Indexed:         "Indexed",
	ICCBased:        "ICCBased",
}

func (c ColorSpace) String() string {
	if s, ok := colorSpaceNames[c]; ok {
		return s
	}
	return "Other"
}

// ParseColorSpace maps a PDF colorspace family name (with or without the
// leading slash) to its tag. Abbreviated inline-image names are accepted.
func ParseColorSpace(name string) ColorSpace {
	switch strings.TrimPrefix(name, "/") {
	case "DeviceRGB", "RGB":
		return DeviceRGB
	case "DeviceCMYK", "CMYK":
		return DeviceCMYK
	case "DeviceGray", "G":
		return DeviceGray
	case "Indexed", "I":
		return Indexed
	case "ICCBased":
		return ICCBased
	}
	return ColorSpaceOther
}

// conversion describes what the transcoder may do with a colorspace.
type conversion struct {
	decodable  bool // samples can be turned into an image.Image
	toRGB      bool // samples must be converted to DeviceRGB first
	components int  // samples per pixel; 0 means taken from the image
}

// conversions is the closed dispatch table for every colorspace tag.
// ICCBased images are only touched when they carry four components,
// in which case they are treated like DeviceCMYK.
var conversions = map[ColorSpace]conversion{
	DeviceRGB:       {decodable: true, components: 3},
	DeviceGray:      {decodable: true, components: 1},
	DeviceCMYK:      {decodable: true, toRGB: true, components: 4},
	Indexed:         {},
	ICCBased:        {},
	ColorSpaceOther: {},
}

// conversionFor resolves the table entry for x, including the CMYK-tagged
// ICCBased case.
func conversionFor(x *XObject) conversion {
	if x.ColorSpace == ICCBased && x.Components == 4 {
		return conversions[DeviceCMYK]
	}
	return conversions[x.ColorSpace]
}

// Filter is the compression filter tag of an image stream.
type Filter int

const (
	FilterOther Filter = iota
	FilterNone
	FilterFlate
	FilterLZW
	FilterDCT
	FilterJPX
	FilterJBIG2
	FilterCCITT
)

var filterNames = map[Filter]string{
	FilterOther: "Other",
	FilterNone:  "None",
	FilterFlate: "FlateDecode",
	FilterLZW:   "LZWDecode",
	FilterDCT:   "DCTDecode",
	FilterJPX:   "JPXDecode",
	FilterJBIG2: "JBIG2Decode",
	FilterCCITT: "CCITTFaxDecode",
}

func (f Filter) String() string {
	if s, ok := filterNames[f]; ok {
		return s
	}
	return "Other"
}

// decodable reports whether the stream can be turned into samples here.
func (f Filter) decodable() bool {
	switch f {
	case FilterNone, FilterFlate, FilterLZW, FilterDCT:
		return true
	}
	return false
}

// ParseFilter maps a PDF filter chain to a single tag. An empty chain is
// FilterNone; chains with more than one filter are FilterOther.
func ParseFilter(names []string) Filter {
	switch len(names) {
	case 0:
		return FilterNone
	case 1:
	default:
		return FilterOther
	}
	switch strings.TrimPrefix(names[0], "/") {
	case "FlateDecode", "Fl":
		return FilterFlate
	case "LZWDecode", "LZW":
		return FilterLZW
	case "DCTDecode", "DCT":
		return FilterDCT
	case "JPXDecode":
		return FilterJPX
	case "JBIG2Decode":
		return FilterJBIG2
	case "CCITTFaxDecode", "CCF":
		return FilterCCITT
	}
	return FilterOther
}

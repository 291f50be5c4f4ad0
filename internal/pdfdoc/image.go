package pdfdoc

import (
	"fmt"

	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"

	"github.com/local/pdfchunk/internal/imaging"
)

// toXObject maps an image stream dictionary onto the transcoder's model.
// Callers hold d.mu.
func (d *Document) toXObject(sd types.StreamDict) (*imaging.XObject, error) {
	if st := subtype(sd.Dict); st != "Image" {
		return nil, fmt.Errorf("xobject subtype %q is not an image", st)
	}
	x := &imaging.XObject{
		Width:            d.intEntry(sd.Dict, "Width"),
		Height:           d.intEntry(sd.Dict, "Height"),
		BitsPerComponent: d.intEntry(sd.Dict, "BitsPerComponent"),
		ImageMask:        d.boolEntry(sd.Dict, "ImageMask"),
		Decode:           d.numbers(sd.Dict, "Decode"),
		Data:             sd.Raw,
	}
	x.ColorSpace, x.Components = d.colorSpace(sd.Dict)

	filters, parms := d.filterChain(sd.Dict)
	x.Filter = imaging.ParseFilter(filters)
	if parms != nil {
		x.DecodeParms = imaging.DecodeParms{
			Predictor:        d.intEntry(parms, "Predictor"),
			Colors:           d.intEntry(parms, "Colors"),
			BitsPerComponent: d.intEntry(parms, "BitsPerComponent"),
			Columns:          d.intEntry(parms, "Columns"),
			EarlyChange:      1,
		}
		if o, found := parms.Find("EarlyChange"); found {
			if v, ok := d.deref(o).(types.Integer); ok {
				x.DecodeParms.EarlyChange = int(v)
			}
		}
	} else if x.Filter == imaging.FilterLZW {
		x.DecodeParms.EarlyChange = 1
	}
	return x, nil
}

func (d *Document) deref(o types.Object) types.Object {
	v, err := d.ctx.Dereference(o)
	if err != nil {
		return nil
	}
	return v
}

func (d *Document) intEntry(dict types.Dict, key string) int {
	o, found := dict.Find(key)
	if !found {
		return 0
	}
	switch v := d.deref(o).(type) {
	case types.Integer:
		return int(v)
	case types.Float:
		return int(v)
	}
	return 0
}

func (d *Document) boolEntry(dict types.Dict, key string) bool {
	o, found := dict.Find(key)
	if !found {
		return false
	}
	v, ok := d.deref(o).(types.Boolean)
	return ok && bool(v)
}

func (d *Document) numbers(dict types.Dict, key string) []float64 {
	o, found := dict.Find(key)
	if !found {
		return nil
	}
	arr, ok := d.deref(o).(types.Array)
	if !ok {
		return nil
	}
	out := make([]float64, 0, len(arr))
	for _, e := range arr {
		switch v := d.deref(e).(type) {
		case types.Integer:
			out = append(out, float64(v))
		case types.Float:
			out = append(out, float64(v))
		default:
			return nil
		}
	}
	return out
}

// colorSpace resolves the ColorSpace entry to its tag. For ICCBased
// spaces the component count N is returned as well.
func (d *Document) colorSpace(dict types.Dict) (imaging.ColorSpace, int) {
	o, found := dict.Find("ColorSpace")
	if !found {
		return imaging.ColorSpaceOther, 0
	}
	switch v := d.deref(o).(type) {
	case types.Name:
		return imaging.ParseColorSpace(string(v)), 0
	case types.Array:
		if len(v) == 0 {
			return imaging.ColorSpaceOther, 0
		}
		family, ok := d.deref(v[0]).(types.Name)
		if !ok {
			return imaging.ColorSpaceOther, 0
		}
		cs := imaging.ParseColorSpace(string(family))
		if cs == imaging.ICCBased && len(v) > 1 {
			if profile, ok := d.deref(v[1]).(types.StreamDict); ok {
				return cs, d.intEntry(profile.Dict, "N")
			}
		}
		return cs, 0
	}
	return imaging.ColorSpaceOther, 0
}

// filterChain returns the filter names and the DecodeParms of the last
// filter, the one that produces image samples.
func (d *Document) filterChain(dict types.Dict) ([]string, types.Dict) {
	var names []string
	if o, found := dict.Find("Filter"); found {
		switch v := d.deref(o).(type) {
		case types.Name:
			names = []string{string(v)}
		case types.Array:
			for _, e := range v {
				if n, ok := d.deref(e).(types.Name); ok {
					names = append(names, string(n))
				}
			}
		}
	}

	o, found := dict.Find("DecodeParms")
	if !found {
		return names, nil
	}
	switch v := d.deref(o).(type) {
	case types.Dict:
		return names, v
	case types.Array:
		if len(v) == 0 {
			return names, nil
		}
		if p, ok := d.deref(v[len(v)-1]).(types.Dict); ok {
			return names, p
		}
	}
	return names, nil
}

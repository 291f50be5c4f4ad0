// Package inspect reports image metadata without modifying the document.
package inspect

import (
	"github.com/local/pdfchunk/internal/imaging"
	"github.com/local/pdfchunk/internal/pdfdoc"
)

// Document is the read-only part of *pdfdoc.Document used here.
type Document interface {
	PageCount() int
	PageImages(page int) ([]pdfdoc.ImageRef, error)
	Image(id pdfdoc.ObjectID) (*imaging.XObject, error)
}

// ImageInfo describes one image as drawn by one page. An image shared by
// several pages is listed once per page.
type ImageInfo struct {
	Page             int    `json:"page"`
	Name             string `json:"name"`
	Object           int    `json:"object"`
	Width            int    `json:"width"`
	Height           int    `json:"height"`
	Size             int    `json:"size"`
	ColorSpace       string `json:"colorspace"`
	Components       int    `json:"components,omitempty"`
	Filter           string `json:"filter"`
	BitsPerComponent int    `json:"bits_per_component"`
	// APP14 is the Adobe transform flag of a DCT stream, -1 when the
	// marker is truncated. Nil when there is no marker.
	APP14 *int   `json:"app14,omitempty"`
	Err   string `json:"error,omitempty"`
}

// Images lists every image of every page, in page order. Unreadable pages
// and images are reported through Err and do not stop the listing.
func Images(doc Document) ([]ImageInfo, error) {
	var out []ImageInfo
	for page := 0; page < doc.PageCount(); page++ {
		refs, err := doc.PageImages(page)
		if err != nil {
			out = append(out, ImageInfo{Page: page + 1, Err: err.Error()})
			continue
		}
		for _, ref := range refs {
			out = append(out, describe(doc, page, ref))
		}
	}
	return out, nil
}

func describe(doc Document, page int, ref pdfdoc.ImageRef) ImageInfo {
	info := ImageInfo{Page: page + 1, Name: ref.Name, Object: int(ref.ID)}
	x, err := doc.Image(ref.ID)
	if err != nil {
		info.Err = err.Error()
		return info
	}
	info.Width = x.Width
	info.Height = x.Height
	info.Size = len(x.Data)
	info.ColorSpace = x.ColorSpace.String()
	info.Components = x.Components
	info.Filter = x.Filter.String()
	info.BitsPerComponent = x.BitsPerComponent
	if x.Filter == imaging.FilterDCT {
		if app, ok := imaging.ProbeAPP14(x.Data); ok {
			t := app.Transform
			info.APP14 = &t
		}
	}
	return info
}

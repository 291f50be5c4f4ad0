package chunker

import (
	"github.com/local/pdfchunk/internal/imaging"
	"github.com/local/pdfchunk/internal/pdfdoc"
	"github.com/local/pdfchunk/internal/sink"
)

// Source is the document being partitioned. *pdfdoc.Document satisfies it
// through FromDocument.
type Source interface {
	PageCount() int
	PageImages(page int) ([]pdfdoc.ImageRef, error)
	Image(id pdfdoc.ObjectID) (*imaging.XObject, error)
	ReplaceImage(id pdfdoc.ObjectID, x *imaging.XObject) error
	Build(r pdfdoc.PageRange) (sink.Document, error)
}

// FromDocument adapts a loaded document to Source.
func FromDocument(d *pdfdoc.Document) Source { return documentSource{d} }

type documentSource struct{ *pdfdoc.Document }

func (s documentSource) Build(r pdfdoc.PageRange) (sink.Document, error) {
	sd, err := s.Document.Build(r)
	if err != nil {
		return nil, err
	}
	return sd, nil
}

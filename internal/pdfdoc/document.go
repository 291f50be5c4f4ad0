// Package pdfdoc adapts pdfcpu's object model to what the chunker needs:
// page to image resolution, in-place image replacement and building a
// serialized sub-document for a page range.
package pdfdoc

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"sync"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
	"github.com/rs/zerolog/log"

	"github.com/local/pdfchunk/internal/imaging"
)

// ErrClosed is returned by every operation on a closed Document.
var ErrClosed = errors.New("document is closed")

// ObjectID identifies an indirect object in the document's xref table.
type ObjectID int

// ImageRef is an image XObject reachable from a page, by identity.
type ImageRef struct {
	ID   ObjectID
	Name string
}

// PageRange is an inclusive range of zero-based page indices.
type PageRange struct {
	First int
	Last  int
}

// Len returns the number of pages in r.
func (r PageRange) Len() int { return r.Last - r.First + 1 }

// PageNumbers returns the one-based page numbers covered by r.
func (r PageRange) PageNumbers() []int {
	nrs := make([]int, 0, r.Len())
	for i := r.First; i <= r.Last; i++ {
		nrs = append(nrs, i+1)
	}
	return nrs
}

// String formats r with one-based page numbers, e.g. "3-7".
func (r PageRange) String() string {
	if r.First == r.Last {
		return fmt.Sprintf("%d", r.First+1)
	}
	return fmt.Sprintf("%d-%d", r.First+1, r.Last+1)
}

// Document is a loaded PDF. It is exclusively owned by one run; the mutex
// only serializes the transcode workers against trial builds.
type Document struct {
	mu   sync.Mutex
	ctx  *model.Context
	file *os.File
}

// Open loads the PDF at path. The file stays open until Close.
func Open(path string) (*Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	d, err := Load(f, path)
	if err != nil {
		f.Close()
		return nil, err
	}
	d.file = f
	return d, nil
}

// Load reads, validates and optimizes a PDF from rs. source names the
// input in logs and errors.
func Load(rs io.ReadSeeker, source string) (*Document, error) {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed

	ctx, err := api.ReadContext(rs, conf)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", source, err)
	}
	if err := api.ValidateContext(ctx); err != nil {
		return nil, fmt.Errorf("validate %s: %w", source, err)
	}
	if err := api.OptimizeContext(ctx); err != nil {
		return nil, fmt.Errorf("optimize %s: %w", source, err)
	}
	log.Debug().Str("source", source).Int("pages", ctx.PageCount).Msg("pdf loaded")
	return &Document{ctx: ctx}, nil
}

// PageCount returns the number of pages.
func (d *Document) PageCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.ctx == nil {
		return 0
	}
	return d.ctx.PageCount
}

// Close releases the object graph and the underlying file.
func (d *Document) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.ctx = nil
	if d.file != nil {
		err := d.file.Close()
		d.file = nil
		return err
	}
	return nil
}

// PageImages returns the image XObjects drawn by the page at the
// zero-based index, including images inside Form XObjects. Each image
// appears once, ordered by resource name.
func (d *Document) PageImages(page int) ([]ImageRef, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.ctx == nil {
		return nil, ErrClosed
	}
	pageDict, _, inh, err := d.ctx.PageDict(page+1, true)
	if err != nil {
		return nil, fmt.Errorf("page %d: %w", page+1, err)
	}
	if pageDict == nil {
		return nil, fmt.Errorf("page %d: missing page dictionary", page+1)
	}

	var res types.Dict
	if inh != nil {
		res = inh.Resources
	}
	if res == nil {
		if o, found := pageDict.Find("Resources"); found {
			if res, err = d.ctx.DereferenceDict(o); err != nil {
				return nil, fmt.Errorf("page %d resources: %w", page+1, err)
			}
		}
	}

	w := imageWalker{d: d, seen: map[ObjectID]bool{}, forms: map[ObjectID]bool{}}
	if err := w.walk(res); err != nil {
		return nil, fmt.Errorf("page %d: %w", page+1, err)
	}
	return w.refs, nil
}

type imageWalker struct {
	d     *Document
	seen  map[ObjectID]bool
	forms map[ObjectID]bool
	refs  []ImageRef
}

func (w *imageWalker) walk(res types.Dict) error {
	if res == nil {
		return nil
	}
	o, found := res.Find("XObject")
	if !found {
		return nil
	}
	xobjs, err := w.d.ctx.DereferenceDict(o)
	if err != nil || xobjs == nil {
		return err
	}

	names := make([]string, 0, len(xobjs))
	for name := range xobjs {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		// Direct streams cannot be shared between pages and are not
		// tracked.
		ir, ok := xobjs[name].(types.IndirectRef)
		if !ok {
			continue
		}
		id := ObjectID(ir.ObjectNumber)
		sd, err := w.d.streamDict(id)
		if err != nil {
			log.Debug().Err(err).Str("name", name).Int("obj", int(id)).Msg("skipping unreadable xobject")
			continue
		}
		switch subtype(sd.Dict) {
		case "Image":
			if !w.seen[id] {
				w.seen[id] = true
				w.refs = append(w.refs, ImageRef{ID: id, Name: name})
			}
		case "Form":
			if w.forms[id] {
				continue
			}
			w.forms[id] = true
			ro, found := sd.Dict.Find("Resources")
			if !found {
				continue
			}
			formRes, err := w.d.ctx.DereferenceDict(ro)
			if err != nil {
				return fmt.Errorf("form %s resources: %w", name, err)
			}
			if err := w.walk(formRes); err != nil {
				return err
			}
		}
	}
	return nil
}

func subtype(d types.Dict) string {
	if s := d.NameEntry("Subtype"); s != nil {
		return *s
	}
	return ""
}

// streamDict returns the stream dictionary stored under id. Callers hold
// d.mu.
func (d *Document) streamDict(id ObjectID) (types.StreamDict, error) {
	entry, found := d.ctx.Table[int(id)]
	if !found || entry == nil || entry.Free {
		return types.StreamDict{}, fmt.Errorf("object %d not found", id)
	}
	sd, ok := entry.Object.(types.StreamDict)
	if !ok {
		return types.StreamDict{}, fmt.Errorf("object %d is not a stream", id)
	}
	return sd, nil
}

// Image reads the image XObject id into a detached imaging.XObject.
func (d *Document) Image(id ObjectID) (*imaging.XObject, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.ctx == nil {
		return nil, ErrClosed
	}
	sd, err := d.streamDict(id)
	if err != nil {
		return nil, err
	}
	return d.toXObject(sd)
}

// ReplaceImage writes x back into object id. The object number is kept so
// every page referencing the image sees the new stream.
func (d *Document) ReplaceImage(id ObjectID, x *imaging.XObject) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.ctx == nil {
		return ErrClosed
	}
	entry, found := d.ctx.Table[int(id)]
	if !found || entry == nil {
		return fmt.Errorf("object %d not found", id)
	}
	sd, ok := entry.Object.(types.StreamDict)
	if !ok {
		return fmt.Errorf("object %d is not a stream", id)
	}

	sd.Dict.Update("Width", types.Integer(x.Width))
	sd.Dict.Update("Height", types.Integer(x.Height))
	sd.Dict.Update("BitsPerComponent", types.Integer(x.BitsPerComponent))
	sd.Dict.Update("ColorSpace", types.Name(x.ColorSpace.String()))
	sd.Dict.Update("Filter", types.Name(x.Filter.String()))
	sd.Dict.Update("Length", types.Integer(len(x.Data)))
	sd.Dict.Delete("DecodeParms")
	sd.Dict.Delete("Decode")

	n := int64(len(x.Data))
	sd.StreamLength = &n
	sd.StreamLengthObjNr = nil
	sd.Raw = x.Data
	sd.Content = nil
	sd.FilterPipeline = []types.PDFFilter{{Name: x.Filter.String()}}
	entry.Object = sd
	return nil
}

// Build extracts the pages in r, together with every object they reach,
// into a new in-memory document.
func (d *Document) Build(r PageRange) (*SubDocument, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.ctx == nil {
		return nil, ErrClosed
	}
	if r.First < 0 || r.Last >= d.ctx.PageCount || r.First > r.Last {
		return nil, fmt.Errorf("page range %s outside 1-%d", r, d.ctx.PageCount)
	}
	ctx, err := pdfcpu.ExtractPages(d.ctx, r.PageNumbers(), false)
	if err != nil {
		return nil, fmt.Errorf("extract pages %s: %w", r, err)
	}
	// ExtractPages grows the page tree but leaves the context's count at 0.
	ctx.PageCount = r.Len()
	return &SubDocument{ctx: ctx, Range: r}, nil
}

// SubDocument is a built page range. It is serialized at most once; the
// bytes are cached so the estimator and the sink see identical output.
type SubDocument struct {
	Range PageRange

	ctx  *model.Context
	once sync.Once
	data []byte
	err  error
}

// Context exposes the pdfcpu context for callers that post-process the
// sub-document themselves. It must not be written again.
func (s *SubDocument) Context() *model.Context { return s.ctx }

// Bytes returns the serialized sub-document.
func (s *SubDocument) Bytes() ([]byte, error) {
	s.once.Do(func() {
		var buf bytes.Buffer
		if err := api.WriteContext(s.ctx, &buf); err != nil {
			s.err = fmt.Errorf("write pages %s: %w", s.Range, err)
			return
		}
		s.data = buf.Bytes()
	})
	return s.data, s.err
}

// WriteTo writes the serialized sub-document to w.
func (s *SubDocument) WriteTo(w io.Writer) (int64, error) {
	data, err := s.Bytes()
	if err != nil {
		return 0, err
	}
	n, err := w.Write(data)
	return int64(n), err
}

package filetype

import (
	"errors"
	"fmt"

	"github.com/gabriel-vasile/mimetype"
	"github.com/rs/zerolog/log"
)

// ErrNotPDF is returned by RequirePDF for any other content.
var ErrNotPDF = errors.New("not a PDF document")

// FileTypeInfo contains detected file type information
type FileTypeInfo struct {
	MIMEType    string
	Extension   string
	Supported   bool
	Description string
}

// Detector handles file type detection using magic bytes
type Detector struct{}

// New creates a new file type detector
func New() *Detector {
	return &Detector{}
}

// Detect detects the actual file type using magic bytes, not filename
func (d *Detector) Detect(filePath string) (*FileTypeInfo, error) {
	mtype, err := mimetype.DetectFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to detect file type: %w", err)
	}
	info := &FileTypeInfo{MIMEType: mtype.String(), Extension: mtype.Extension()}
	log.Debug().Str("mime", info.MIMEType).Str("ext", info.Extension).Str("file", filePath).Msg("detected file type")
	d.classify(info)
	return info, nil
}

// DetectBytes is Detect for content already in memory.
func (d *Detector) DetectBytes(data []byte) *FileTypeInfo {
	mtype := mimetype.Detect(data)
	info := &FileTypeInfo{MIMEType: mtype.String(), Extension: mtype.Extension()}
	d.classify(info)
	return info
}

func (d *Detector) classify(info *FileTypeInfo) {
	switch info.MIMEType {
	case "application/pdf", "application/x-pdf":
		info.Supported = true
		info.Description = "PDF document"
	default:
		info.Supported = false
		info.Description = fmt.Sprintf("Unsupported file type: %s", info.MIMEType)
	}
}

// RequirePDF returns ErrNotPDF, wrapped with the detected type, unless
// filePath holds a PDF.
func (d *Detector) RequirePDF(filePath string) error {
	info, err := d.Detect(filePath)
	if err != nil {
		return err
	}
	if !info.Supported {
		return fmt.Errorf("%w: detected %s", ErrNotPDF, info.MIMEType)
	}
	return nil
}

package extract

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"

	"rmqmeta/internal/services"
)

// DirectReader reads PDF text page by page. Encrypted documents fail without
// partial text.
type DirectReader struct{}

// NewDirectReader returns the direct PDF reader backend.
func NewDirectReader() *DirectReader { return &DirectReader{} }

// Name implements TextExtractor.
func (*DirectReader) Name() string { return BackendDirect }

// ExtractText implements TextExtractor.
func (d *DirectReader) ExtractText(ctx context.Context, path string) (text string, err error) {
	defer recoverPanic(BackendDirect, &err)

	file, reader, err := pdf.Open(path)
	if err != nil {
		if errors.Is(err, pdf.ErrInvalidPassword) {
			return "", services.Wrap(services.ErrExtraction, "extract", BackendDirect, "open", ErrEncrypted)
		}
		return "", services.Wrap(services.ErrExtraction, "extract", BackendDirect, "open", err)
	}
	defer file.Close()

	if !reader.Trailer().Key("Encrypt").IsNull() {
		return "", services.Wrap(services.ErrExtraction, "extract", BackendDirect, "encryption check", ErrEncrypted)
	}

	var b strings.Builder
	for i := 1; i <= reader.NumPage(); i++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		content, err := page.GetPlainText(nil)
		if err != nil {
			return "", services.Wrap(services.ErrExtraction, "extract", BackendDirect, fmt.Sprintf("page %d", i), err)
		}
		b.WriteString(content)
	}
	return b.String(), nil
}

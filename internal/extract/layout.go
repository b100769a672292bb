package extract

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/pdfcpu/pdfcpu/pkg/api"

	"rmqmeta/internal/services"
)

// LayoutAware renders text row by row in reading order and removes every
// occurrence of a literal strip sequence from the result. Password protected
// documents fail.
type LayoutAware struct {
	strip string
}

// NewLayoutAware returns the layout-aware backend.
func NewLayoutAware(strip string) *LayoutAware {
	return &LayoutAware{strip: strip}
}

// Name implements TextExtractor.
func (*LayoutAware) Name() string { return BackendLayout }

// ExtractText implements TextExtractor.
func (l *LayoutAware) ExtractText(ctx context.Context, path string) (text string, err error) {
	defer recoverPanic(BackendLayout, &err)

	if err := probePassword(path); err != nil {
		return "", err
	}

	file, reader, err := pdf.Open(path)
	if err != nil {
		if errors.Is(err, pdf.ErrInvalidPassword) {
			return "", services.Wrap(services.ErrExtraction, "extract", BackendLayout, "open", ErrPasswordProtected)
		}
		return "", services.Wrap(services.ErrExtraction, "extract", BackendLayout, "open", err)
	}
	defer file.Close()

	var b strings.Builder
	for i := 1; i <= reader.NumPage(); i++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		rows, err := page.GetTextByRow()
		if err != nil {
			return "", services.Wrap(services.ErrExtraction, "extract", BackendLayout, fmt.Sprintf("page %d", i), err)
		}
		for _, row := range rows {
			words := make([]string, 0, len(row.Content))
			for _, word := range row.Content {
				if s := strings.TrimSpace(word.S); s != "" {
					words = append(words, s)
				}
			}
			if len(words) == 0 {
				continue
			}
			b.WriteString(strings.Join(words, " "))
			b.WriteByte('\n')
		}
		b.WriteByte('\f')
	}
	return StripSequence(b.String(), l.strip), nil
}

// StripSequence removes every occurrence of seq from text.
func StripSequence(text, seq string) string {
	if seq == "" {
		return text
	}
	return strings.ReplaceAll(text, seq, "")
}

// probePassword asks pdfcpu to parse the document. Only password failures
// are fatal; other parse complaints are left to the text reader.
func probePassword(path string) error {
	if _, err := api.ReadContextFile(path); err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "password") {
			return services.Wrap(services.ErrExtraction, "extract", BackendLayout, "password check", ErrPasswordProtected)
		}
	}
	return nil
}

// PageCount reports the number of pages in a PDF.
func PageCount(path string) (int, error) {
	return api.PageCountFile(path)
}

// Package extract runs the independent text extraction backends over a
// materialized document and turns each backend's text into entity phrases.
//
// Three backends are provided: DirectReader reads PDF text page by page,
// ShellMediated runs an external converter with charset detection and a
// single decode retry, and LayoutAware renders text row by row and strips a
// configured literal sequence. Each backend succeeds or fails on its own; the
// Runner reports one Result per backend in a fixed order.
package extract

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"rmqmeta/internal/config"
	"rmqmeta/internal/entity"
)

// Backend names in fold order.
const (
	BackendDirect  = "direct"
	BackendShell   = "shell"
	BackendLayout  = "layout"
	pdfMagicHeader = "%PDF-"
)

var (
	// ErrEncrypted marks documents carrying an encryption dictionary.
	ErrEncrypted = errors.New("document is encrypted")
	// ErrPasswordProtected marks documents that need a password to open.
	ErrPasswordProtected = errors.New("document is password protected")
)

// TextExtractor turns a document file into raw text.
type TextExtractor interface {
	Name() string
	ExtractText(ctx context.Context, path string) (string, error)
}

// Tagger classifies the tokens of raw text.
type Tagger interface {
	Tag(ctx context.Context, text string) ([]entity.Token, error)
}

// Result is the outcome of one backend for one document. Success with no
// phrases is distinct from failure.
type Result struct {
	Backend  string
	Success  bool
	Phrases  []entity.Phrase
	Err      error
	Duration time.Duration
}

// Succeeded reports whether any backend succeeded.
func Succeeded(results []Result) bool {
	for _, r := range results {
		if r.Success {
			return true
		}
	}
	return false
}

// Backends builds the default backend set in fold order.
func Backends(cfg config.Extraction) []TextExtractor {
	return []TextExtractor{
		NewDirectReader(),
		NewShellMediated(cfg.PdftotextBinary, cfg.CodecAllowlist),
		NewLayoutAware(cfg.StripSequence),
	}
}

// isPDF sniffs the file header; materialized names do not always carry an
// extension.
func isPDF(path string) (bool, error) {
	file, err := os.Open(path)
	if err != nil {
		return false, err
	}
	defer file.Close()
	header := make([]byte, 1024)
	n, err := io.ReadFull(file, header)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return false, err
	}
	return bytes.Contains(header[:n], []byte(pdfMagicHeader)), nil
}

// recoverPanic converts a panic inside a PDF library into an error.
func recoverPanic(backend string, err *error) {
	if r := recover(); r != nil {
		*err = fmt.Errorf("%s: malformed document: %v", backend, r)
	}
}

package extract

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"code.sajari.com/docconv"
	"github.com/saintfish/chardet"

	"rmqmeta/internal/services"
)

var commandContext = exec.CommandContext

// maxConfidence is the detector score treated as certain.
const maxConfidence = 100

// Detector guesses the charset of raw text and its confidence (0-100).
type Detector func(raw []byte) (charset string, confidence int)

// ShellOption customizes the shell-mediated backend.
type ShellOption func(*ShellMediated)

// WithDetector replaces the statistical charset detector.
func WithDetector(d Detector) ShellOption {
	return func(s *ShellMediated) {
		if d != nil {
			s.detect = d
		}
	}
}

// ShellMediated converts documents with an external tool: pdftotext for PDFs
// and docconv for other formats. When the detector is certain of the output
// charset the document is extracted again with that charset. A strict decode
// failure whose codec is allow-listed triggers exactly one lenient retry with
// that codec; any other decode failure fails the backend.
type ShellMediated struct {
	binary  string
	allowed map[string]struct{}
	detect  Detector
}

// NewShellMediated returns the shell-mediated backend.
func NewShellMediated(binary string, allowlist []string, opts ...ShellOption) *ShellMediated {
	s := &ShellMediated{
		binary:  binary,
		allowed: make(map[string]struct{}, len(allowlist)),
		detect:  detectCharset,
	}
	if s.binary == "" {
		s.binary = "pdftotext"
	}
	for _, codec := range allowlist {
		s.allowed[NormalizeCodec(codec)] = struct{}{}
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Name implements TextExtractor.
func (*ShellMediated) Name() string { return BackendShell }

// ExtractText implements TextExtractor.
func (s *ShellMediated) ExtractText(ctx context.Context, path string) (string, error) {
	pdfInput, err := isPDF(path)
	if err != nil {
		return "", services.Wrap(services.ErrExtraction, "extract", BackendShell, "inspect document", err)
	}

	raw, err := s.convert(ctx, path, "", pdfInput)
	if err != nil {
		return "", err
	}

	// Output stays UTF-8 unless pdftotext can re-emit it in the detected charset.
	codec := CodecUTF8
	if charset, confidence := s.detect(raw); confidence == maxConfidence && charset != "" {
		if detected := NormalizeCodec(charset); pdfInput && pdftotextEncoding(detected) != "" {
			if raw, err = s.convert(ctx, path, detected, pdfInput); err != nil {
				return "", err
			}
			codec = detected
		}
	}

	text, err := Decode(raw, codec, true)
	if err == nil {
		return text, nil
	}

	var decodeErr *DecodeError
	if !errors.As(err, &decodeErr) {
		return "", services.Wrap(services.ErrExtraction, "extract", BackendShell, "decode", err)
	}
	if _, ok := s.allowed[decodeErr.Codec]; !ok {
		return "", services.Wrap(services.ErrExtraction, "extract", BackendShell, "decode", err)
	}

	if pdfInput {
		if raw, err = s.convert(ctx, path, decodeErr.Codec, pdfInput); err != nil {
			return "", err
		}
	}
	return Decode(raw, decodeErr.Codec, false)
}

func (s *ShellMediated) convert(ctx context.Context, path, codec string, pdfInput bool) ([]byte, error) {
	if !pdfInput {
		res, err := docconv.ConvertPath(path)
		if err != nil {
			return nil, services.Wrap(services.ErrExtraction, "extract", BackendShell, "docconv", err)
		}
		return []byte(res.Body), nil
	}

	args := []string{"-q"}
	if enc := pdftotextEncoding(codec); enc != "" {
		args = append(args, "-enc", enc)
	}
	args = append(args, path, "-")

	var stdout, stderr bytes.Buffer
	cmd := commandContext(ctx, s.binary, args...) //nolint:gosec
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		detail := strings.TrimSpace(stderr.String())
		if strings.Contains(strings.ToLower(detail), "incorrect password") {
			return nil, services.Wrap(services.ErrExtraction, "extract", BackendShell, s.binary, ErrPasswordProtected)
		}
		return nil, services.Wrap(services.ErrExternalTool, "extract", BackendShell, s.binary,
			fmt.Errorf("%w: %s", err, detail))
	}
	return stdout.Bytes(), nil
}

func detectCharset(raw []byte) (string, int) {
	if len(raw) == 0 {
		return "", 0
	}
	result, err := chardet.NewTextDetector().DetectBest(raw)
	if err != nil || result == nil {
		return "", 0
	}
	return result.Charset, result.Confidence
}

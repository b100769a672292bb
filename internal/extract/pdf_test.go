package extract_test

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"rmqmeta/internal/extract"
	"rmqmeta/internal/testsupport"
)

func TestDirectReaderExtractsPageText(t *testing.T) {
	path := filepath.Join(t.TempDir(), "doc.pdf")
	testsupport.WriteTextPDF(t, path, "Alice met Bob in Paris.")

	text, err := extract.NewDirectReader().ExtractText(context.Background(), path)
	if err != nil {
		t.Fatalf("ExtractText returned error: %v", err)
	}
	if !strings.Contains(text, "Alice met Bob in Paris.") {
		t.Fatalf("unexpected text %q", text)
	}
}

func TestDirectReaderRejectsNonPDF(t *testing.T) {
	path := filepath.Join(t.TempDir(), "doc.pdf")
	testsupport.WriteFile(t, path, 64)
	if _, err := extract.NewDirectReader().ExtractText(context.Background(), path); err == nil {
		t.Fatal("expected failure for a non-PDF file")
	}
}

func TestDirectReaderRefusesEncryptedDocuments(t *testing.T) {
	tests := []struct {
		name   string
		userPW string
	}{
		{"user password", "reader-secret"},
		{"owner password only", ""},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "locked.pdf")
			testsupport.WriteEncryptedPDF(t, path, tc.userPW, "owner-secret", "Alice met Bob in Paris.")

			text, err := extract.NewDirectReader().ExtractText(context.Background(), path)
			if !errors.Is(err, extract.ErrEncrypted) {
				t.Fatalf("expected ErrEncrypted, got %v", err)
			}
			if text != "" {
				t.Fatalf("expected no partial text, got %q", text)
			}
		})
	}
}

func TestLayoutAwareFailsOnPasswordProtectedDocument(t *testing.T) {
	path := filepath.Join(t.TempDir(), "locked.pdf")
	testsupport.WriteEncryptedPDF(t, path, "reader-secret", "owner-secret", "Dr. Watson lives in London.")

	_, err := extract.NewLayoutAware(".").ExtractText(context.Background(), path)
	if !errors.Is(err, extract.ErrPasswordProtected) {
		t.Fatalf("expected ErrPasswordProtected, got %v", err)
	}
}

func TestLayoutAwareStripsSequence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "doc.pdf")
	testsupport.WriteTextPDF(t, path, "Dr. Watson lives in London.", "Second line.")

	text, err := extract.NewLayoutAware(".").ExtractText(context.Background(), path)
	if err != nil {
		t.Fatalf("ExtractText returned error: %v", err)
	}
	if strings.Contains(text, ".") {
		t.Fatalf("strip sequence left in output: %q", text)
	}
	if !strings.Contains(text, "Dr Watson lives in London") || !strings.Contains(text, "Second line") {
		t.Fatalf("unexpected text %q", text)
	}
}

func TestPageCount(t *testing.T) {
	path := filepath.Join(t.TempDir(), "doc.pdf")
	testsupport.WriteTextPDF(t, path, "one page")
	n, err := extract.PageCount(path)
	if err != nil {
		t.Fatalf("PageCount returned error: %v", err)
	}
	if n != 1 {
		t.Fatalf("PageCount = %d want 1", n)
	}
}

package metadata_test

import (
	"encoding/json"
	"reflect"
	"strings"
	"testing"
	"time"

	"rmqmeta/internal/entity"
	"rmqmeta/internal/metadata"
)

var fixedTime = time.Date(2024, 5, 1, 10, 30, 15, 0, time.UTC)

func TestNewSetsBaseFields(t *testing.T) {
	rec := metadata.New("docs_pdf_20240501103015.1234.pdf", "/data/out", fixedTime)
	if rec.DateTime != "2024-05-01_10:30:15" {
		t.Fatalf("unexpected DateTime %q", rec.DateTime)
	}
	if len(rec.ID) != 26 {
		t.Fatalf("expected ULID id, got %q", rec.ID)
	}
	other := metadata.New("x", "y", fixedTime)
	if other.ID == rec.ID {
		t.Fatal("expected distinct ids for records created in the same instant")
	}
}

func TestFoldDeduplicatesCaseSensitively(t *testing.T) {
	rec := metadata.New("f", "d", fixedTime)
	rec.Fold([]entity.Phrase{
		{Text: "London", Type: "LOCATION"},
		{Text: "London", Type: "LOCATION"},
		{Text: "london", Type: "LOCATION"},
	})
	want := []string{"London", "london"}
	if got := rec.Values("LOCATION"); !reflect.DeepEqual(got, want) {
		t.Fatalf("LOCATION = %v want %v", got, want)
	}
}

func TestFoldPreservesFirstSeenOrderAcrossExtractors(t *testing.T) {
	rec := metadata.New("f", "d", fixedTime)
	rec.Fold([]entity.Phrase{{Text: "Alice", Type: "PERSON"}, {Text: "Paris", Type: "LOCATION"}})
	rec.Fold(nil)
	rec.Fold([]entity.Phrase{{Text: "Acme", Type: "ORGANIZATION"}, {Text: "Bob", Type: "PERSON"}, {Text: "Alice", Type: "PERSON"}})

	if got, want := rec.Types(), []string{"PERSON", "LOCATION", "ORGANIZATION"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("Types() = %v want %v", got, want)
	}
	if got, want := rec.Values("PERSON"), []string{"Alice", "Bob"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("PERSON = %v want %v", got, want)
	}
	if rec.EntityCount() != 4 {
		t.Fatalf("EntityCount() = %d want 4", rec.EntityCount())
	}
}

func TestMarshalJSONKeepsFieldOrder(t *testing.T) {
	rec := metadata.New("file.pdf", "/out", fixedTime)
	rec.Fold([]entity.Phrase{{Text: "Zed", Type: "PERSON"}, {Text: "Amsterdam", Type: "LOCATION"}})

	data, err := json.Marshal(rec)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	text := string(data)
	order := []string{`"_id"`, `"FileName":"file.pdf"`, `"Directory":"/out"`, `"DateTime":"2024-05-01_10:30:15"`, `"PERSON":["Zed"]`, `"LOCATION":["Amsterdam"]`}
	last := -1
	for _, fragment := range order {
		idx := strings.Index(text, fragment)
		if idx <= last {
			t.Fatalf("fragment %s out of order in %s", fragment, text)
		}
		last = idx
	}

	var decoded map[string]any
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("output is not valid JSON: %v", err)
	}
}

func TestFieldsSkipsEntityTypesShadowingBaseFields(t *testing.T) {
	rec := metadata.New("file.pdf", "/out", fixedTime)
	rec.Fold([]entity.Phrase{{Text: "bogus", Type: "FileName"}})
	m := rec.Map()
	if m["FileName"] != "file.pdf" {
		t.Fatalf("base field was overwritten: %v", m["FileName"])
	}
}

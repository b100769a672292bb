package entity_test

import (
	"reflect"
	"testing"

	"rmqmeta/internal/entity"
)

var defaultTypes = entity.AllowSet([]string{"LOCATION", "PERSON", "ORGANIZATION"})

func tokens(pairs ...string) []entity.Token {
	out := make([]entity.Token, 0, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		out = append(out, entity.Token{Text: pairs[i], Label: pairs[i+1]})
	}
	return out
}

func TestMerge(t *testing.T) {
	tests := []struct {
		name  string
		input []entity.Token
		want  []entity.Phrase
	}{
		{
			name:  "empty input",
			input: nil,
			want:  []entity.Phrase{},
		},
		{
			name:  "single location between outside tokens",
			input: tokens(",", "O", "London", "LOCATION", ",", "O", "SW1W9AX", "O"),
			want:  []entity.Phrase{{Text: "London", Type: "LOCATION"}},
		},
		{
			name:  "outside token breaks a run of the same type",
			input: tokens(",", "O", "London", "LOCATION", ",", "O", "SW1W9AX", "LOCATION"),
			want: []entity.Phrase{
				{Text: "London", Type: "LOCATION"},
				{Text: "SW1W9AX", Type: "LOCATION"},
			},
		},
		{
			name:  "contiguous run joins with spaces",
			input: tokens("John", "PERSON", "Ronald", "PERSON", "Tolkien", "PERSON", "wrote", "O"),
			want:  []entity.Phrase{{Text: "John Ronald Tolkien", Type: "PERSON"}},
		},
		{
			name:  "type change finalizes the pending run",
			input: tokens("Acme", "ORGANIZATION", "Corp", "ORGANIZATION", "Paris", "LOCATION"),
			want: []entity.Phrase{
				{Text: "Acme Corp", Type: "ORGANIZATION"},
				{Text: "Paris", Type: "LOCATION"},
			},
		},
		{
			name:  "labels outside the allow-list act as outside",
			input: tokens("Monday", "DATE", "Bob", "PERSON", "Smith", "PERSON", "1999", "DATE", "Bob", "PERSON"),
			want: []entity.Phrase{
				{Text: "Bob Smith", Type: "PERSON"},
				{Text: "Bob", Type: "PERSON"},
			},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := entity.Merge(tc.input, defaultTypes)
			if !reflect.DeepEqual(got, tc.want) {
				t.Fatalf("Merge() = %#v want %#v", got, tc.want)
			}
		})
	}
}

func TestMergePhraseCountMatchesRuns(t *testing.T) {
	input := tokens(
		"a", "PERSON", "b", "PERSON", "c", "O",
		"d", "LOCATION", "e", "ORGANIZATION", "f", "ORGANIZATION",
		"g", "O", "h", "O", "i", "PERSON",
	)
	got := entity.Merge(input, defaultTypes)
	if len(got) != 4 {
		t.Fatalf("expected 4 phrases, got %d: %#v", len(got), got)
	}
	if last := got[len(got)-1]; last.Text != "i" || last.Type != "PERSON" {
		t.Fatalf("trailing run was not finalized: %#v", last)
	}
}

func TestMergeNilAllowSetAcceptsAnyLabel(t *testing.T) {
	got := entity.Merge(tokens("Monday", "DATE", "x", "O"), nil)
	want := []entity.Phrase{{Text: "Monday", Type: "DATE"}}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Merge() = %#v want %#v", got, want)
	}
}

func TestAllowSetIgnoresOutsideAndBlank(t *testing.T) {
	set := entity.AllowSet([]string{"PERSON", " ", "O"})
	if len(set) != 1 {
		t.Fatalf("unexpected set %v", set)
	}
}

// Package metadata builds the per-document metadata record by folding the
// entity phrases of every successful extractor into one set of base fields.
package metadata

import (
	"bytes"
	"crypto/rand"
	"encoding/json"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"rmqmeta/internal/entity"
)

// DateTimeLayout formats the record timestamp.
const DateTimeLayout = "2006-01-02_15:04:05"

// Base field names written alongside the entity lists.
const (
	FieldID        = "_id"
	FieldFileName  = "FileName"
	FieldDirectory = "Directory"
	FieldDateTime  = "DateTime"
)

// Record is the metadata stored for one document. Entity types keep the order
// in which they were first seen, and phrases under a type are unique.
type Record struct {
	ID        string
	FileName  string
	Directory string
	DateTime  string

	types    []string
	entities map[string][]string
}

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(rand.Reader, 0)
)

func newID(now time.Time) string {
	entropyMu.Lock()
	defer entropyMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(now), entropy).String()
}

// New starts a record with the base fields filled in.
func New(fileName, directory string, now time.Time) *Record {
	return &Record{
		ID:        newID(now),
		FileName:  fileName,
		Directory: directory,
		DateTime:  now.Format(DateTimeLayout),
		entities:  make(map[string][]string),
	}
}

// Fold merges one extractor's phrases into the record. A phrase already listed
// under its type (exact, case-sensitive match) is skipped.
func (r *Record) Fold(phrases []entity.Phrase) {
	if r.entities == nil {
		r.entities = make(map[string][]string)
	}
	for _, p := range phrases {
		values, ok := r.entities[p.Type]
		if !ok {
			r.types = append(r.types, p.Type)
			r.entities[p.Type] = []string{p.Text}
			continue
		}
		if contains(values, p.Text) {
			continue
		}
		r.entities[p.Type] = append(values, p.Text)
	}
}

// Types lists entity types in first-seen order.
func (r *Record) Types() []string {
	return append([]string(nil), r.types...)
}

// Values returns the phrases recorded under an entity type.
func (r *Record) Values(entityType string) []string {
	return append([]string(nil), r.entities[entityType]...)
}

// EntityCount reports the number of distinct phrases across all types.
func (r *Record) EntityCount() int {
	total := 0
	for _, values := range r.entities {
		total += len(values)
	}
	return total
}

// Field is one key/value pair of the flattened record.
type Field struct {
	Key   string
	Value any
}

// Fields flattens the record into ordered key/value pairs: the id, the base
// fields, then one list per entity type. Entity types that collide with a
// base field name are skipped.
func (r *Record) Fields() []Field {
	fields := []Field{
		{Key: FieldID, Value: r.ID},
		{Key: FieldFileName, Value: r.FileName},
		{Key: FieldDirectory, Value: r.Directory},
		{Key: FieldDateTime, Value: r.DateTime},
	}
	for _, t := range r.types {
		if isBaseField(t) {
			continue
		}
		fields = append(fields, Field{Key: t, Value: append([]string(nil), r.entities[t]...)})
	}
	return fields
}

// Map returns the record as a string-keyed map whose values are strings or
// string lists.
func (r *Record) Map() map[string]any {
	fields := r.Fields()
	out := make(map[string]any, len(fields))
	for _, f := range fields {
		out[f.Key] = f.Value
	}
	return out
}

// MarshalJSON writes the record as a JSON object preserving field order.
func (r *Record) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, f := range r.Fields() {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(f.Key)
		if err != nil {
			return nil, err
		}
		value, err := json.Marshal(f.Value)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(value)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func isBaseField(key string) bool {
	switch key {
	case FieldID, FieldFileName, FieldDirectory, FieldDateTime:
		return true
	}
	return false
}

func contains(values []string, target string) bool {
	for _, v := range values {
		if v == target {
			return true
		}
	}
	return false
}

package ner

import (
	"context"

	"rmqmeta/internal/entity"
)

// TokenClassifier labels a token sequence.
type TokenClassifier interface {
	Classify(ctx context.Context, tokens []string) ([]entity.Token, error)
}

// Tagger converts raw text into classified tokens restricted to a set of
// entity types.
type Tagger struct {
	classifier TokenClassifier
	allowed    map[string]struct{}
}

// NewTagger wraps a classifier. Labels outside tokenTypes become "O".
func NewTagger(classifier TokenClassifier, tokenTypes []string) *Tagger {
	return &Tagger{classifier: classifier, allowed: entity.AllowSet(tokenTypes)}
}

// Tag tokenizes and classifies text.
func (t *Tagger) Tag(ctx context.Context, text string) ([]entity.Token, error) {
	tokens := Tokenize(text)
	if len(tokens) == 0 {
		return nil, nil
	}
	labeled, err := t.classifier.Classify(ctx, tokens)
	if err != nil {
		return nil, err
	}
	for i := range labeled {
		if _, ok := t.allowed[labeled[i].Label]; !ok {
			labeled[i].Label = entity.Outside
		}
	}
	return labeled, nil
}

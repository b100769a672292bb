// Package entity holds classified tokens and the run-length merge that turns
// a tagged token stream into entity phrases.
package entity

import "strings"

// Outside is the label for tokens that are not part of any entity.
const Outside = "O"

// Token is one classifier output: a word and its label.
type Token struct {
	Text  string
	Label string
}

// Phrase is a merged run of same-label tokens.
type Phrase struct {
	Text string `json:"text" yaml:"text"`
	Type string `json:"type" yaml:"type"`
}

// Merge groups consecutive tokens carrying the same allowed label into one
// phrase, joining their text with single spaces. Labels absent from allowed
// behave like Outside. A nil allowed set accepts every non-Outside label.
func Merge(tokens []Token, allowed map[string]struct{}) []Phrase {
	phrases := make([]Phrase, 0)
	var pending []string
	current := Outside

	finalize := func() {
		if len(pending) == 0 {
			return
		}
		phrases = append(phrases, Phrase{Text: strings.Join(pending, " "), Type: current})
		pending = pending[:0]
	}

	for _, tok := range tokens {
		label := tok.Label
		if !isAllowed(label, allowed) {
			label = Outside
		}
		switch {
		case label == Outside:
			finalize()
			current = Outside
		case label == current:
			pending = append(pending, tok.Text)
		default:
			finalize()
			current = label
			pending = append(pending, tok.Text)
		}
	}
	finalize()
	return phrases
}

// AllowSet builds the label set accepted by Merge.
func AllowSet(labels []string) map[string]struct{} {
	set := make(map[string]struct{}, len(labels))
	for _, label := range labels {
		label = strings.TrimSpace(label)
		if label == "" || label == Outside {
			continue
		}
		set[label] = struct{}{}
	}
	return set
}

func isAllowed(label string, allowed map[string]struct{}) bool {
	if label == "" || label == Outside {
		return false
	}
	if allowed == nil {
		return true
	}
	_, ok := allowed[label]
	return ok
}

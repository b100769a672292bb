// Package ner tags raw text with named entity labels using the Stanford CRF
// classifier run as a java subprocess.
//
// The Classifier is a shared, lazily checked handle over the configured jar
// and model; the Tagger tokenizes text, classifies the tokens and folds any
// label outside the configured entity types to "O".
package ner

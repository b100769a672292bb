package services

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrRouting       = errors.New("routing failure")
	ErrMaterialize   = errors.New("materialize failure")
	ErrExtraction    = errors.New("extraction failure")
	ErrPersistence   = errors.New("persistence failure")
	ErrRelocation    = errors.New("relocation failure")
	ErrExternalTool  = errors.New("external tool error")
	ErrValidation    = errors.New("validation error")
	ErrConfiguration = errors.New("configuration error")
	ErrTimeout       = errors.New("timeout")
	ErrTransient     = errors.New("transient failure")
)

// Quarantine reasons reported in failure notifications.
const (
	ReasonNoQueue      = "No queue detected"
	ReasonMaterialize  = "Failed to materialize message body"
	ReasonExtractStore = "All extractions or database insertion failure"
	ReasonRelocation   = "Relocation of document failed"
)

// Wrap builds an error message that includes stage context while tagging it with
// the provided marker for later classification. The marker should be one of
// the exported sentinel errors above.
func Wrap(marker error, stage, operation, message string, err error) error {
	detail := buildDetail(stage, operation, message)
	if marker == nil {
		marker = ErrTransient
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// Reason maps a pipeline failure to the quarantine reason used in the alert
// subject. Unclassified errors report the extraction/store reason.
func Reason(err error) string {
	switch {
	case errors.Is(err, ErrRouting):
		return ReasonNoQueue
	case errors.Is(err, ErrMaterialize):
		return ReasonMaterialize
	case errors.Is(err, ErrRelocation):
		return ReasonRelocation
	default:
		return ReasonExtractStore
	}
}

// Retryable reports whether the failure may succeed on redelivery.
func Retryable(err error) bool {
	return errors.Is(err, ErrTransient) || errors.Is(err, ErrTimeout)
}

func buildDetail(stage, operation, message string) string {
	parts := make([]string, 0, 3)
	if stage = strings.TrimSpace(stage); stage != "" {
		parts = append(parts, stage)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}

package notifications

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"rmqmeta/internal/config"
)

// Event names a notification type.
type Event string

const (
	// EventQuarantined fires when a message body is written to message_dir.
	EventQuarantined Event = "quarantined"
	// EventRecordOrphaned fires when a stored record could not be rolled back.
	EventRecordOrphaned Event = "record_orphaned"
	// EventTest is sent by 'rmqmeta test-notify'.
	EventTest Event = "test"
)

// Payload carries event specific fields.
type Payload map[string]any

// Service defines the notification surface exposed to pipeline components.
type Service interface {
	Publish(ctx context.Context, event Event, payload Payload) error
}

// notifier is one delivery transport.
type notifier interface {
	send(ctx context.Context, msg message) error
}

type message struct {
	subject  string
	lines    []string
	tags     []string
	priority string
}

func (m message) body() string {
	return strings.Join(m.lines, "\n")
}

// HasRecipients reports whether any transport is configured.
func HasRecipients(cfg *config.Config) bool {
	if cfg == nil {
		return false
	}
	return len(recipients(cfg.Notifications.ToLine)) > 0 || strings.TrimSpace(cfg.Notifications.NtfyTopic) != ""
}

// NewService builds a notification service for every configured transport.
// When nothing is configured, a noop implementation is returned.
func NewService(cfg *config.Config) Service {
	if cfg == nil {
		return noopService{}
	}
	var notifiers []notifier
	if to := recipients(cfg.Notifications.ToLine); len(to) > 0 {
		notifiers = append(notifiers, newEmailNotifier(cfg.Notifications, to))
	}
	if topic := strings.TrimSpace(cfg.Notifications.NtfyTopic); topic != "" {
		notifiers = append(notifiers, newNtfyNotifier(topic, cfg.Notifications.RequestTimeout))
	}
	if len(notifiers) == 0 {
		return noopService{}
	}
	return &fanoutService{notifiers: notifiers}
}

type fanoutService struct {
	notifiers []notifier
}

// Publish delivers the event to every transport. Errors from individual
// transports are joined; one failing transport does not stop the others.
func (s *fanoutService) Publish(ctx context.Context, event Event, payload Payload) error {
	msg, err := format(event, payload)
	if err != nil {
		return err
	}
	var errs []error
	for _, n := range s.notifiers {
		if err := n.send(ctx, msg); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

type noopService struct{}

func (noopService) Publish(context.Context, Event, Payload) error { return nil }

func format(event Event, payload Payload) (message, error) {
	switch event {
	case EventQuarantined:
		reason := payloadString(payload, "reason")
		subject := "rmq_metadata: " + reason
		return message{
			subject: subject,
			lines: []string{
				"RabbitMQ message was not processed due to: " + subject,
				fmt.Sprintf("Exchange: %s, Routing Key: %s", payloadString(payload, "exchange"), payloadString(payload, "routingKey")),
				fmt.Sprintf("Check log file: %s near timestamp: %s for more information.", payloadString(payload, "logFile"), payloadString(payload, "stamp")),
				"Body of message saved to: " + payloadString(payload, "path"),
			},
			tags:     []string{"rmqmeta", "quarantine"},
			priority: "high",
		}, nil
	case EventRecordOrphaned:
		return message{
			subject: "rmq_metadata: Stored record could not be removed",
			lines: []string{
				fmt.Sprintf("Record %s remains in the %s store after relocation failed.", payloadString(payload, "recordID"), payloadString(payload, "backend")),
				fmt.Sprintf("Exchange: %s, Routing Key: %s", payloadString(payload, "exchange"), payloadString(payload, "routingKey")),
				"Error: " + payloadString(payload, "error"),
			},
			tags:     []string{"rmqmeta", "store", "alert"},
			priority: "high",
		}, nil
	case EventTest:
		return message{
			subject:  "rmq_metadata: Test",
			lines:    []string{"Notification system test"},
			tags:     []string{"rmqmeta", "test"},
			priority: "low",
		}, nil
	default:
		return message{}, fmt.Errorf("unknown notification event %q", event)
	}
}

func payloadString(payload Payload, key string) string {
	if payload == nil {
		return ""
	}
	switch v := payload[key].(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(v)
	case fmt.Stringer:
		return strings.TrimSpace(v.String())
	case error:
		return strings.TrimSpace(v.Error())
	default:
		return strings.TrimSpace(fmt.Sprint(v))
	}
}

func recipients(lines []string) []string {
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		for _, addr := range strings.Split(line, ",") {
			if addr = strings.TrimSpace(addr); addr != "" {
				out = append(out, addr)
			}
		}
	}
	return out
}

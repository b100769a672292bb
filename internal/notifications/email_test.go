package notifications

import (
	"context"
	"errors"
	"net/smtp"
	"strings"
	"testing"
	"time"

	"rmqmeta/internal/config"
)

type sentMail struct {
	addr string
	auth smtp.Auth
	from string
	to   []string
	msg  string
}

func captureMail(t *testing.T, result error) *[]sentMail {
	t.Helper()
	var sent []sentMail
	original := sendMail
	sendMail = func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
		sent = append(sent, sentMail{addr: addr, auth: a, from: from, to: to, msg: string(msg)})
		return result
	}
	t.Cleanup(func() { sendMail = original })
	return &sent
}

func TestEmailNotifierRendersFourLineBody(t *testing.T) {
	sent := captureMail(t, nil)
	cfg := config.Default()
	cfg.Notifications.ToLine = []string{"ops@example.com, audit@example.com"}
	cfg.Notifications.FromLine = "rmq@example.com"
	cfg.Notifications.SMTPHost = "mail.example.com"
	cfg.Notifications.SMTPPort = 2525

	svc := NewService(&cfg)
	err := svc.Publish(context.Background(), EventQuarantined, Payload{
		"reason":     "Relocation of document failed",
		"exchange":   "docs",
		"routingKey": "pdf",
		"logFile":    "rmq_metadata_docs.log",
		"stamp":      "2024-01-02_03:04:05.6000",
		"path":       "/q/docs_pdf_2024-01-02_03:04:05.6000.txt",
	})
	if err != nil {
		t.Fatalf("Publish returned error: %v", err)
	}
	if len(*sent) != 1 {
		t.Fatalf("expected one email, got %d", len(*sent))
	}
	mail := (*sent)[0]
	if mail.addr != "mail.example.com:2525" || mail.from != "rmq@example.com" || mail.auth != nil {
		t.Fatalf("unexpected envelope %+v", mail)
	}
	if strings.Join(mail.to, ";") != "ops@example.com;audit@example.com" {
		t.Fatalf("unexpected recipients %v", mail.to)
	}
	for _, fragment := range []string{
		"Subject: rmq_metadata: Relocation of document failed\r\n",
		"\r\n\r\nRabbitMQ message was not processed due to: rmq_metadata: Relocation of document failed\r\n",
		"Exchange: docs, Routing Key: pdf\r\n",
		"Body of message saved to: /q/docs_pdf_2024-01-02_03:04:05.6000.txt\r\n",
	} {
		if !strings.Contains(mail.msg, fragment) {
			t.Fatalf("message missing %q:\n%s", fragment, mail.msg)
		}
	}
}

func TestEmailNotifierUsesAuthAndDefaultSender(t *testing.T) {
	sent := captureMail(t, errors.New("550 mailbox unavailable"))
	cfg := config.Default()
	cfg.Notifications.ToLine = []string{"ops@example.com"}
	cfg.Notifications.SMTPUser = "relay"
	cfg.Notifications.SMTPPassword = "secret"

	notifier := newEmailNotifier(cfg.Notifications, recipients(cfg.Notifications.ToLine))
	notifier.now = func() time.Time { return time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC) }
	err := notifier.send(context.Background(), message{subject: "s", lines: []string{"a"}})
	if err == nil || !strings.Contains(err.Error(), "550 mailbox unavailable") {
		t.Fatalf("expected send error, got %v", err)
	}
	mail := (*sent)[0]
	if mail.auth == nil {
		t.Fatal("expected plain auth when smtp_user is set")
	}
	if mail.from != DefaultSender() || mail.addr != "localhost:25" {
		t.Fatalf("unexpected envelope %+v", mail)
	}
	if !strings.Contains(mail.msg, "Date: Tue, 02 Jan 2024 03:04:05 +0000\r\n") {
		t.Fatalf("unexpected date header:\n%s", mail.msg)
	}
}

func TestEmailNotifierHonoursCancelledContext(t *testing.T) {
	sent := captureMail(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	notifier := newEmailNotifier(config.Notifications{}, []string{"ops@example.com"})
	if err := notifier.send(ctx, message{subject: "s"}); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context error, got %v", err)
	}
	if len(*sent) != 0 {
		t.Fatal("no mail should be sent after cancellation")
	}
}

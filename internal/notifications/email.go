package notifications

import (
	"context"
	"fmt"
	"net"
	"net/smtp"
	"os"
	"os/user"
	"strconv"
	"strings"
	"time"

	"rmqmeta/internal/config"
)

var sendMail = smtp.SendMail

type emailNotifier struct {
	addr string
	auth smtp.Auth
	from string
	to   []string
	now  func() time.Time
}

func newEmailNotifier(cfg config.Notifications, to []string) *emailNotifier {
	host := strings.TrimSpace(cfg.SMTPHost)
	if host == "" {
		host = "localhost"
	}
	port := cfg.SMTPPort
	if port <= 0 {
		port = 25
	}
	var auth smtp.Auth
	if cfg.SMTPUser != "" {
		auth = smtp.PlainAuth("", cfg.SMTPUser, cfg.SMTPPassword, host)
	}
	from := strings.TrimSpace(cfg.FromLine)
	if from == "" {
		from = DefaultSender()
	}
	return &emailNotifier{
		addr: net.JoinHostPort(host, strconv.Itoa(port)),
		auth: auth,
		from: from,
		to:   to,
		now:  time.Now,
	}
}

// DefaultSender returns user@host for the running process.
func DefaultSender() string {
	name := "rmqmeta"
	if u, err := user.Current(); err == nil && u.Username != "" {
		name = u.Username
	}
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "localhost"
	}
	return name + "@" + host
}

func (e *emailNotifier) send(ctx context.Context, msg message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := sendMail(e.addr, e.auth, e.from, e.to, e.render(msg)); err != nil {
		return fmt.Errorf("send email via %s: %w", e.addr, err)
	}
	return nil
}

func (e *emailNotifier) render(msg message) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", e.from)
	fmt.Fprintf(&b, "To: %s\r\n", strings.Join(e.to, ", "))
	fmt.Fprintf(&b, "Subject: %s\r\n", msg.subject)
	fmt.Fprintf(&b, "Date: %s\r\n", e.now().Format(time.RFC1123Z))
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=utf-8\r\n")
	b.WriteString("\r\n")
	for _, line := range msg.lines {
		b.WriteString(line)
		b.WriteString("\r\n")
	}
	return []byte(b.String())
}

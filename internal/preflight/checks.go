package preflight

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"golang.org/x/sys/unix"

	"rmqmeta/internal/config"
	"rmqmeta/internal/deps"
)

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	if path == "" {
		return Result{Name: name, Detail: "not configured"}
	}
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

// CheckSystemDeps evaluates the external tools and classifier files. The
// daemon and the CLI status command share this list.
func CheckSystemDeps(cfg *config.Config) []deps.Status {
	statuses := deps.CheckBinaries([]deps.Requirement{
		{
			Name:        "Java",
			Command:     deps.ResolveJava(cfg.NER.JavaBinary),
			Description: "Runs the Stanford named entity classifier",
		},
		{
			Name:        "pdftotext",
			Command:     cfg.Extraction.PdftotextBinary,
			Description: "Shell-mediated text extraction backend",
			Optional:    true,
		},
	})
	return append(statuses, deps.CheckFiles([]deps.Requirement{
		{
			Name:        "NER jar",
			Command:     cfg.NER.StanfordJar,
			Description: "Stanford NER classifier jar",
		},
		{
			Name:        "NER model",
			Command:     cfg.NER.LangModule,
			Description: "Stanford NER language model",
		},
	})...)
}

// CheckStore pings the document store.
func CheckStore(ctx context.Context, store Pinger) Result {
	name := "Document store (" + store.Backend() + ")"
	checkCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := store.Ping(checkCtx); err != nil {
		return Result{Name: name, Detail: summarizeError(err)}
	}
	return Result{Name: name, Passed: true, Detail: "reachable"}
}

// CheckBroker opens and closes an AMQP connection with the configured
// credentials.
func CheckBroker(ctx context.Context, cfg *config.Config) Result {
	const name = "RabbitMQ"
	addr := net.JoinHostPort(cfg.RabbitMQ.Host, fmt.Sprint(cfg.RabbitMQ.Port))
	if err := ctx.Err(); err != nil {
		return Result{Name: name, Detail: summarizeError(err)}
	}
	conn, err := amqp.DialConfig(cfg.AMQPURL(), amqp.Config{Dial: amqp.DefaultDial(5 * time.Second)})
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (%s)", addr, summarizeError(err))}
	}
	_ = conn.Close()
	return Result{Name: name, Passed: true, Detail: addr + " (connected)"}
}

func summarizeError(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return "timed out"
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "timed out"
	}
	var amqpErr *amqp.Error
	if errors.As(err, &amqpErr) {
		return amqpErr.Reason
	}
	return err.Error()
}

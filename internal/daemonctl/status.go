package daemonctl

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"rmqmeta/internal/config"
	"rmqmeta/internal/ipc"
	"rmqmeta/internal/ledger"
	"rmqmeta/internal/notifications"
	"rmqmeta/internal/preflight"
)

// StatusLine is one labelled row of status output.
type StatusLine struct {
	Label    string
	Severity string
	Detail   string
}

// DependencySummary aggregates dependency readiness.
type DependencySummary struct {
	Total           int
	Available       int
	MissingRequired int
	MissingOptional int
	Severity        string
	Detail          string
}

// Snapshot is everything `rmqmeta status` renders.
type Snapshot struct {
	Status            *ipc.StatusResponse
	SystemChecks      []StatusLine
	Directories       []StatusLine
	DependencySummary DependencySummary
	Recent            []ipc.Delivery
}

// BuildStatusSnapshot collects daemon status, falling back to the ledger
// file and local dependency checks when the daemon is not reachable.
func BuildStatusSnapshot(ctx context.Context, socketPath string, cfg *config.Config, recent int) (*Snapshot, error) {
	if cfg == nil {
		return nil, fmt.Errorf("configuration not available")
	}
	snap := &Snapshot{Status: &ipc.StatusResponse{Exchange: cfg.RabbitMQ.ExchangeName}}

	client, err := ipc.Dial(socketPath)
	if err == nil {
		defer client.Close()
		if resp, statusErr := client.Status(); statusErr == nil {
			snap.Status = resp
		}
		if resp, recentErr := client.Recent(recent); recentErr == nil {
			snap.Recent = resp.Deliveries
		}
	} else if _, statErr := os.Stat(cfg.LedgerPath()); statErr == nil {
		readOffline(ctx, cfg.LedgerPath(), recent, snap)
	}

	if len(snap.Status.Dependencies) == 0 {
		snap.Status.Dependencies = ResolveDependencies(cfg)
	}
	snap.SystemChecks = BuildSystemChecks(cfg, snap.Status)
	snap.Directories = BuildDirectoryChecks(cfg)
	snap.DependencySummary = BuildDependencySummary(snap.Status.Dependencies)
	return snap, nil
}

func readOffline(ctx context.Context, path string, recent int, snap *Snapshot) {
	queryCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	store, err := ledger.Open(path)
	if err != nil {
		return
	}
	defer store.Close()
	if counts, err := store.CountsByState(queryCtx); err == nil {
		snap.Status.StateCounts = counts
	}
	if entries, err := store.Recent(queryCtx, recent); err == nil {
		for _, e := range entries {
			snap.Recent = append(snap.Recent, ipc.FromEntry(e))
		}
	}
}

// ResolveDependencies returns current dependency availability for status output.
func ResolveDependencies(cfg *config.Config) []ipc.DependencyStatus {
	checks := preflight.CheckSystemDeps(cfg)
	statuses := make([]ipc.DependencyStatus, 0, len(checks))
	for _, check := range checks {
		statuses = append(statuses, ipc.DependencyStatus(check))
	}
	return statuses
}

// BuildSystemChecks resolves status lines that combine runtime state and config.
func BuildSystemChecks(cfg *config.Config, status *ipc.StatusResponse) []StatusLine {
	lines := make([]StatusLine, 0, 6)
	switch {
	case status.Running && status.Connected:
		lines = append(lines, StatusLine{Label: "Consumer", Severity: "ok", Detail: fmt.Sprintf("Consuming %s (pid %d)", strings.Join(status.Queues, ", "), status.PID)})
	case status.Running:
		detail := "Waiting for broker"
		if status.LastError != "" {
			detail += ": " + status.LastError
		}
		lines = append(lines, StatusLine{Label: "Consumer", Severity: "warn", Detail: detail})
	default:
		lines = append(lines, StatusLine{Label: "Consumer", Severity: "warn", Detail: "Not running (run `rmqmeta start`)"})
	}

	lines = append(lines, StatusLine{
		Label:    "Broker",
		Severity: "info",
		Detail:   fmt.Sprintf("%s:%d exchange %q (%s)", cfg.RabbitMQ.Host, cfg.RabbitMQ.Port, cfg.RabbitMQ.ExchangeName, cfg.RabbitMQ.ExchangeType),
	})
	lines = append(lines, StatusLine{Label: "Document store", Severity: "info", Detail: storeDetail(cfg)})

	if cfg.Mirror.Backend != config.MirrorNone {
		lines = append(lines, StatusLine{Label: "Mirror", Severity: "ok", Detail: cfg.Mirror.Backend + "://" + cfg.Mirror.Bucket + "/" + cfg.Mirror.Prefix})
	}
	if notifications.HasRecipients(cfg) {
		lines = append(lines, StatusLine{Label: "Alerts", Severity: "ok", Detail: "Configured"})
	} else {
		lines = append(lines, StatusLine{Label: "Alerts", Severity: "warn", Detail: "Not configured (quarantined messages are only logged)"})
	}
	if cfg.Metrics.Enabled {
		lines = append(lines, StatusLine{Label: "Metrics", Severity: "ok", Detail: "http://" + cfg.Metrics.Listen + "/metrics"})
	}
	return lines
}

func storeDetail(cfg *config.Config) string {
	switch cfg.Store.Backend {
	case config.StoreSQLite:
		return "sqlite " + cfg.Store.SQLitePath
	case config.StoreFirestore:
		return "firestore project " + cfg.Store.ProjectID + " collection " + cfg.Store.Collection
	default:
		return cfg.Store.Backend + " " + cfg.Store.Database + "." + cfg.Store.Collection
	}
}

// BuildDirectoryChecks reports readiness of every directory the pipeline writes.
func BuildDirectoryChecks(cfg *config.Config) []StatusLine {
	checks := []preflight.Result{
		preflight.CheckDirectoryAccess("Message directory", cfg.Paths.MessageDir),
		preflight.CheckDirectoryAccess("Temp directory", cfg.Paths.TmpDir),
	}
	if cfg.Paths.ArchiveDir != "" {
		checks = append(checks, preflight.CheckDirectoryAccess("Archive directory", cfg.Paths.ArchiveDir))
	}
	for _, route := range cfg.Routes {
		checks = append(checks, preflight.CheckDirectoryAccess("Route "+route.RoutingKey, route.Directory))
	}
	lines := make([]StatusLine, 0, len(checks))
	for _, result := range checks {
		severity := "error"
		if result.Passed {
			severity = "ok"
		}
		lines = append(lines, StatusLine{Label: result.Name, Severity: severity, Detail: result.Detail})
	}
	return lines
}

// BuildDependencySummary computes aggregate dependency readiness.
func BuildDependencySummary(deps []ipc.DependencyStatus) DependencySummary {
	if len(deps) == 0 {
		return DependencySummary{Severity: "info", Detail: "No dependency checks configured"}
	}

	missingRequired, missingOptional := 0, 0
	for _, dep := range deps {
		switch {
		case dep.Available:
		case dep.Optional:
			missingOptional++
		default:
			missingRequired++
		}
	}

	missing := missingRequired + missingOptional
	available := len(deps) - missing
	severity := "ok"
	if missingRequired > 0 {
		severity = "error"
	} else if missingOptional > 0 {
		severity = "warn"
	}
	detail := fmt.Sprintf("%d/%d available", available, len(deps))
	if missing > 0 {
		detail = fmt.Sprintf("%d/%d available (missing: %d required, %d optional)", available, len(deps), missingRequired, missingOptional)
	}
	return DependencySummary{
		Total:           len(deps),
		Available:       available,
		MissingRequired: missingRequired,
		MissingOptional: missingOptional,
		Severity:        severity,
		Detail:          detail,
	}
}

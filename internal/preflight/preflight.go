package preflight

import (
	"context"

	"rmqmeta/internal/config"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name     string
	Passed   bool
	Detail   string
	Optional bool
}

// Pinger is satisfied by the document store.
type Pinger interface {
	Ping(ctx context.Context) error
	Backend() string
}

// RunAll executes the filesystem and dependency checks for cfg. Broker and
// store checks run when requested since they need network access.
func RunAll(ctx context.Context, cfg *config.Config, store Pinger, checkBroker bool) []Result {
	if cfg == nil {
		return nil
	}

	results := []Result{
		CheckDirectoryAccess("Message directory", cfg.Paths.MessageDir),
		CheckDirectoryAccess("Temp directory", cfg.Paths.TmpDir),
	}
	if cfg.Paths.ArchiveDir != "" {
		results = append(results, CheckDirectoryAccess("Archive directory", cfg.Paths.ArchiveDir))
	}
	seen := make(map[string]struct{}, len(cfg.Routes))
	for _, route := range cfg.Routes {
		if _, ok := seen[route.Directory]; ok {
			continue
		}
		seen[route.Directory] = struct{}{}
		results = append(results, CheckDirectoryAccess("Route "+route.RoutingKey, route.Directory))
	}

	for _, status := range CheckSystemDeps(cfg) {
		results = append(results, Result{
			Name:     status.Name,
			Passed:   status.Available,
			Detail:   firstNonEmpty(status.Detail, status.Command),
			Optional: status.Optional,
		})
	}

	if store != nil {
		results = append(results, CheckStore(ctx, store))
	}
	if checkBroker {
		results = append(results, CheckBroker(ctx, cfg))
	}
	return results
}

// Failed returns the required checks that did not pass.
func Failed(results []Result) []Result {
	var failed []Result
	for _, r := range results {
		if !r.Passed && !r.Optional {
			failed = append(failed, r)
		}
	}
	return failed
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

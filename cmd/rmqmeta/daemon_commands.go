package main

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"rmqmeta/internal/daemonctl"
	"rmqmeta/internal/ipc"
	"rmqmeta/internal/pipeline"
)

func newDaemonCommands(ctx *commandContext) []*cobra.Command {
	startCmd := &cobra.Command{
		Use:   "start",
		Short: "Start the rmqmeta daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			stdout := cmd.OutOrStdout()
			launcher, err := daemonLauncher(ctx)
			if err != nil {
				return err
			}

			result, err := ctx.instance().Start(launcher, 10*time.Second)
			if err != nil {
				return err
			}
			if result.Launched {
				fmt.Fprintln(stdout, "Daemon not running, launching...")
			}
			switch result.State {
			case daemonctl.StartStateStarted:
				fmt.Fprintln(stdout, "Daemon started")
			case daemonctl.StartStateAlreadyRunning:
				fmt.Fprintln(stdout, "Daemon already running")
			case daemonctl.StartStateRequested:
				fmt.Fprintln(stdout, result.Message)
			}
			return nil
		},
	}

	stopCmd := &cobra.Command{
		Use:   "stop",
		Short: "Stop the rmqmeta daemon (the in-flight message finishes first)",
		RunE: func(cmd *cobra.Command, args []string) error {
			stdout := cmd.OutOrStdout()
			result, err := ctx.instance().Stop(30 * time.Second)
			if errors.Is(err, daemonctl.ErrDaemonNotRunning) {
				fmt.Fprintln(stdout, "Daemon is not running")
				return nil
			}
			if err != nil {
				return err
			}
			if result.Acknowledged {
				fmt.Fprintln(stdout, "Consumer stopped")
			} else {
				fmt.Fprintln(stdout, "Stop request sent")
			}
			if result.Killed() && result.PID > 0 {
				fmt.Fprintf(stdout, "Killed daemon process (pid %d); the unacknowledged message will be redelivered\n", result.PID)
			}
			fmt.Fprintln(stdout, "Daemon stopped")
			return nil
		},
	}

	var recent int
	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show daemon, dependency and delivery status",
		RunE: func(cmd *cobra.Command, args []string) error {
			snap, err := daemonctl.BuildStatusSnapshot(cmd.Context(), ctx.socketPath(), ctx.configValue(), recent)
			if err != nil {
				return err
			}
			renderStatus(cmd, snap)
			return nil
		},
	}
	statusCmd.Flags().IntVarP(&recent, "recent", "n", 10, "Number of recent deliveries to list")

	restartCmd := &cobra.Command{
		Use:   "restart",
		Short: "Restart the rmqmeta daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			stdout := cmd.OutOrStdout()
			launcher, err := daemonLauncher(ctx)
			if err != nil {
				return err
			}
			result, err := ctx.instance().Restart(launcher, 30*time.Second, 10*time.Second)
			if err != nil {
				return err
			}
			if result.WasRunning {
				if result.Stop.Killed() && result.Stop.PID > 0 {
					fmt.Fprintf(stdout, "Killed daemon process (pid %d)\n", result.Stop.PID)
				}
				fmt.Fprintln(stdout, "Daemon stopped")
			}
			switch result.Start.State {
			case daemonctl.StartStateStarted, daemonctl.StartStateAlreadyRunning:
				fmt.Fprintln(stdout, "Daemon restarted")
			case daemonctl.StartStateRequested:
				fmt.Fprintln(stdout, result.Start.Message)
			}
			return nil
		},
	}

	return []*cobra.Command{startCmd, stopCmd, restartCmd, statusCmd}
}

func renderStatus(cmd *cobra.Command, snap *daemonctl.Snapshot) {
	stdout := cmd.OutOrStdout()
	colorize := shouldColorize(stdout)

	section := func(title string, lines []daemonctl.StatusLine) {
		for _, line := range renderSectionHeader(title, colorize) {
			fmt.Fprintln(stdout, line)
		}
		for _, line := range lines {
			fmt.Fprintln(stdout, renderStatusLine(line.Label, statusKindFromSeverity(line.Severity), line.Detail, colorize))
		}
		fmt.Fprintln(stdout)
	}
	section("System Status", snap.SystemChecks)
	section("Directories", snap.Directories)

	for _, line := range renderSectionHeader("Dependencies", colorize) {
		fmt.Fprintln(stdout, line)
	}
	for _, line := range dependencyLines(snap.Status.Dependencies, snap.DependencySummary, colorize) {
		fmt.Fprintln(stdout, line)
	}
	fmt.Fprintln(stdout)

	for _, line := range renderSectionHeader("Deliveries", colorize) {
		fmt.Fprintln(stdout, line)
	}
	rows := stateCountRows(snap.Status.StateCounts)
	if len(rows) == 0 {
		fmt.Fprintln(stdout, "No deliveries recorded")
		return
	}
	fmt.Fprintln(stdout, renderTable([]string{"State", "Count"}, rows, []columnAlignment{alignLeft, alignRight}))
	if len(snap.Recent) > 0 {
		fmt.Fprintln(stdout, renderDeliveries(snap.Recent))
	}
}

// stateCountRows lists terminal states in pipeline order, then anything else
// the ledger holds.
func stateCountRows(counts map[string]int) [][]string {
	if len(counts) == 0 {
		return nil
	}
	rows := make([][]string, 0, len(counts))
	seen := make(map[string]struct{}, len(counts))
	for _, state := range pipeline.TerminalStates {
		name := string(state)
		seen[name] = struct{}{}
		if n := counts[name]; n > 0 {
			rows = append(rows, []string{name, strconv.Itoa(n)})
		}
	}
	var extra []string
	for name := range counts {
		if _, ok := seen[name]; !ok {
			extra = append(extra, name)
		}
	}
	sort.Strings(extra)
	for _, name := range extra {
		rows = append(rows, []string{name, strconv.Itoa(counts[name])})
	}
	return rows
}

func dependencyLines(deps []ipc.DependencyStatus, summary daemonctl.DependencySummary, colorize bool) []string {
	lines := make([]string, 0, len(deps)+1)
	lines = append(lines, renderStatusLine("Summary", statusKindFromSeverity(summary.Severity), summary.Detail, colorize))
	for _, dep := range deps {
		if dep.Available {
			message := "Ready"
			if dep.Command != "" {
				message = fmt.Sprintf("Ready (%s)", dep.Command)
			}
			lines = append(lines, renderStatusLine(dep.Name, statusOK, message, colorize))
			continue
		}
		detail := strings.TrimSpace(dep.Detail)
		if detail == "" {
			detail = "not available"
		}
		kind := statusError
		if dep.Optional {
			kind = statusWarn
		}
		lines = append(lines, renderStatusLine(dep.Name, kind, detail, colorize))
	}
	return lines
}

// daemonLauncher re-executes this binary with the caller's config, flavor
// and log level.
func daemonLauncher(ctx *commandContext) (daemonctl.Launcher, error) {
	exe, err := os.Executable()
	if err != nil {
		return daemonctl.Launcher{}, fmt.Errorf("resolve executable: %w", err)
	}
	launcher := daemonctl.Launcher{
		Executable: exe,
		ConfigPath: ctx.configPath,
		Flavor:     strings.TrimSpace(ctx.flags.flavor),
		LogLevel:   strings.TrimSpace(ctx.flags.logLevel),
	}
	if launcher.ConfigPath == "" {
		launcher.ConfigPath = strings.TrimSpace(ctx.flags.config)
	}
	return launcher, nil
}

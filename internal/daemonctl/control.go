package daemonctl

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"syscall"
	"time"

	"rmqmeta/internal/config"
	"rmqmeta/internal/ipc"
)

const (
	pollInterval = 200 * time.Millisecond
	// termWait bounds how long a SIGTERM gets before SIGKILL follows.
	termWait = 10 * time.Second
)

// ErrDaemonNotRunning indicates daemon IPC is unavailable.
var ErrDaemonNotRunning = errors.New("daemon not running")

// Instance addresses one daemon flavor through its socket, pid file and
// lock file.
type Instance struct {
	Socket  string
	PIDFile string
	Lock    string
}

// InstanceFor derives the flavor scoped paths from cfg. A non-empty socket
// replaces cfg.SocketPath() for clients pointed elsewhere.
func InstanceFor(cfg *config.Config, socket string) Instance {
	in := Instance{Socket: strings.TrimSpace(socket)}
	if cfg != nil {
		if in.Socket == "" {
			in.Socket = cfg.SocketPath()
		}
		in.PIDFile = cfg.PIDPath()
		in.Lock = cfg.LockPath()
	}
	return in
}

// Launcher spawns detached daemon processes.
type Launcher struct {
	Executable string
	ConfigPath string
	Flavor     string
	LogLevel   string
}

func (l Launcher) args() []string {
	args := []string{"daemon"}
	for _, flag := range [][2]string{
		{"--config", l.ConfigPath},
		{"--flavor", l.Flavor},
		{"--log-level", l.LogLevel},
	} {
		if value := strings.TrimSpace(flag[1]); value != "" {
			args = append(args, flag[0], value)
		}
	}
	return args
}

// Spawn starts the daemon in its own session so it outlives the caller.
func (l Launcher) Spawn() error {
	if strings.TrimSpace(l.Executable) == "" {
		return errors.New("launch daemon: executable path is empty")
	}
	proc := exec.Command(l.Executable, l.args()...)
	proc.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
	if err := proc.Start(); err != nil {
		return fmt.Errorf("launch daemon: %w", err)
	}
	return proc.Process.Release()
}

// StartState describes how a start request resolved.
type StartState string

const (
	StartStateStarted        StartState = "started"
	StartStateAlreadyRunning StartState = "already_running"
	StartStateRequested      StartState = "start_requested"
)

// StartResult reports what Start did.
type StartResult struct {
	State    StartState
	Launched bool
	Message  string
}

// StopResult reports what Stop did. Signal is set when the process had to
// be signalled after the consumer stopped or the grace period ran out.
type StopResult struct {
	Acknowledged bool
	PID          int
	Signal       syscall.Signal
}

// Killed reports whether the daemon was sent SIGKILL.
func (r StopResult) Killed() bool { return r.Signal == syscall.SIGKILL }

// RestartResult combines the stop and start halves of a restart.
type RestartResult struct {
	WasRunning bool
	Stop       StopResult
	Start      StartResult
}

// Probe reports whether the daemon answers on its socket and its pid.
func (in Instance) Probe() (bool, int, error) {
	client, err := ipc.Dial(in.Socket)
	if err != nil {
		if isDaemonUnavailable(err) {
			return false, 0, nil
		}
		return false, 0, err
	}
	defer client.Close()
	status, err := client.Status()
	if err != nil {
		return true, 0, err
	}
	return true, status.PID, nil
}

// Start launches the daemon when nothing answers on the socket and asks it
// to begin consuming.
func (in Instance) Start(l Launcher, wait time.Duration) (StartResult, error) {
	var res StartResult
	client, err := ipc.Dial(in.Socket)
	if err != nil {
		if err := l.Spawn(); err != nil {
			return res, err
		}
		res.Launched = true
		err = poll(wait, func() (bool, error) {
			client, err = ipc.Dial(in.Socket)
			return err == nil, err
		})
		if err != nil {
			return res, fmt.Errorf("daemon failed to start: %w", err)
		}
	}
	defer client.Close()

	if status, err := client.Status(); err == nil && status.Running {
		res.State = runningState(res.Launched)
		return res, nil
	}

	resp, err := client.Start()
	if err != nil {
		return res, err
	}
	res.Message = strings.TrimSpace(resp.Message)
	switch {
	case resp.Started:
		res.State = StartStateStarted
	case strings.EqualFold(res.Message, "daemon already running"):
		res.State = runningState(res.Launched)
	default:
		res.State = StartStateRequested
		if res.Message == "" {
			res.Message = "Start request sent"
		}
	}
	return res, nil
}

func runningState(launched bool) StartState {
	if launched {
		return StartStateStarted
	}
	return StartStateAlreadyRunning
}

// Stop asks the daemon to stop consuming, which lets the in-flight message
// finish, then ends the process with SIGTERM. SIGKILL follows only when the
// process ignores SIGTERM; a message it was holding stays unacknowledged
// and the broker redelivers it.
func (in Instance) Stop(grace time.Duration) (StopResult, error) {
	client, err := ipc.Dial(in.Socket)
	if err != nil {
		if isDaemonUnavailable(err) {
			return StopResult{}, ErrDaemonNotRunning
		}
		return StopResult{}, err
	}
	var res StopResult
	if status, err := client.Status(); err == nil {
		res.PID = status.PID
	}
	resp, err := client.Stop()
	_ = client.Close()
	if err != nil {
		return res, err
	}
	res.Acknowledged = resp.Stopped

	_ = poll(grace, in.consumerStopped)
	alive, pid, err := in.Probe()
	if err != nil || !alive {
		return res, nil
	}
	if pid == 0 {
		pid = res.PID
	}
	signalled, sig, err := in.Terminate(pid, termWait)
	if err != nil {
		return res, fmt.Errorf("stop daemon process: %w", err)
	}
	res.PID, res.Signal = signalled, sig
	_ = os.Remove(in.Socket)
	return res, nil
}

// Restart stops a running daemon and starts a fresh one.
func (in Instance) Restart(l Launcher, grace, wait time.Duration) (RestartResult, error) {
	stopped, err := in.Stop(grace)
	wasRunning := err == nil
	if err != nil && !errors.Is(err, ErrDaemonNotRunning) {
		return RestartResult{}, err
	}
	started, err := in.Start(l, wait)
	if err != nil {
		return RestartResult{}, err
	}
	return RestartResult{WasRunning: wasRunning, Stop: stopped, Start: started}, nil
}

// Terminate signals the daemon named by the pid file (or fallbackPID) with
// SIGTERM and escalates to SIGKILL when it is still alive after wait. The
// pid and lock files are removed once the process is gone.
func (in Instance) Terminate(fallbackPID int, wait time.Duration) (int, syscall.Signal, error) {
	pid, err := in.readPID(fallbackPID)
	if err != nil {
		return 0, 0, err
	}
	if pid == os.Getpid() {
		return 0, 0, fmt.Errorf("refusing to signal current process (pid %d)", pid)
	}

	sig := syscall.SIGTERM
	if err := syscall.Kill(pid, sig); err != nil && !errors.Is(err, syscall.ESRCH) {
		return 0, 0, fmt.Errorf("signal daemon process %d: %w", pid, err)
	}
	if poll(wait, func() (bool, error) { return !processAlive(pid), nil }) != nil {
		sig = syscall.SIGKILL
		if err := syscall.Kill(pid, sig); err != nil && !errors.Is(err, syscall.ESRCH) {
			return 0, 0, fmt.Errorf("kill daemon process %d: %w", pid, err)
		}
	}

	for _, path := range []string{in.PIDFile, in.Lock} {
		if path == "" {
			continue
		}
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return pid, sig, fmt.Errorf("remove %s: %w", path, err)
		}
	}
	return pid, sig, nil
}

func (in Instance) readPID(fallback int) (int, error) {
	data, err := os.ReadFile(in.PIDFile)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return 0, fmt.Errorf("read daemon pid file %q: %w", in.PIDFile, err)
	}
	if pid, perr := strconv.Atoi(strings.TrimSpace(string(data))); err == nil && perr == nil && pid > 0 {
		return pid, nil
	}
	if fallback > 0 {
		return fallback, nil
	}
	return 0, fmt.Errorf("unable to determine daemon pid (pid file: %s)", in.PIDFile)
}

// consumerStopped reports true once the daemon is gone or no longer
// consuming.
func (in Instance) consumerStopped() (bool, error) {
	client, err := ipc.Dial(in.Socket)
	if err != nil {
		return isDaemonUnavailable(err), err
	}
	defer client.Close()
	status, err := client.Status()
	if err != nil {
		return false, err
	}
	return !status.Running, nil
}

func processAlive(pid int) bool {
	err := syscall.Kill(pid, 0)
	return err == nil || errors.Is(err, syscall.EPERM)
}

// poll calls check until it reports done or timeout passes, returning the
// last error seen on timeout.
func poll(timeout time.Duration, check func() (bool, error)) error {
	deadline := time.Now().Add(timeout)
	var last error
	for {
		done, err := check()
		if done {
			return nil
		}
		last = err
		if !time.Now().Before(deadline) {
			break
		}
		time.Sleep(pollInterval)
	}
	if last == nil {
		last = errors.New("timed out")
	}
	return last
}

func isDaemonUnavailable(err error) bool {
	return errors.Is(err, os.ErrNotExist) ||
		errors.Is(err, syscall.ENOENT) ||
		errors.Is(err, syscall.ECONNREFUSED)
}

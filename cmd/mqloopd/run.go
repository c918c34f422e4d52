package main

import (
	"context"
	"io"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/nvimrt/mqloop/event"
	"github.com/nvimrt/mqloop/internal/mlog"
	"github.com/nvimrt/mqloop/loop"
	"github.com/nvimrt/mqloop/runtime"
	"github.com/nvimrt/mqloop/watcher"
)

var runCmd = &cobra.Command{
	Use:   "run -- command [args...]",
	Short: "Run and supervise a child process under the event loop",
	Long: `run spawns command as a supervised child, bridging its stdout,
stderr, exit status, and Ctrl-C onto a single MultiQueue driven by one
event loop, and exits with the child's own exit code.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runRun,
}

func init() {
	runCmd.Flags().Int("timeout-ms", -1, "Abort and report timeout after this many milliseconds (-1 waits forever)")
}

// teeBackend wraps a runtime.Backend so the supervised process's
// stdout/stderr are echoed to this process's own standard streams as they
// are read by the watcher.Stream machinery, instead of being captured
// silently.
type teeBackend struct {
	runtime.Backend
	stdout io.ReadCloser
	stderr io.ReadCloser
}

func wrapTee(backend runtime.Backend) *teeBackend {
	return &teeBackend{Backend: backend}
}

func (t *teeBackend) Start(ctx context.Context) error {
	if err := t.Backend.Start(ctx); err != nil {
		return err
	}
	t.stdout = teeReadCloser{io.TeeReader(t.Backend.Stdout(), os.Stdout), t.Backend.Stdout()}
	t.stderr = teeReadCloser{io.TeeReader(t.Backend.Stderr(), os.Stderr), t.Backend.Stderr()}
	return nil
}

func (t *teeBackend) Stdout() io.ReadCloser { return t.stdout }
func (t *teeBackend) Stderr() io.ReadCloser { return t.stderr }

type teeReadCloser struct {
	io.Reader
	io.Closer
}

func runRun(cmd *cobra.Command, args []string) error {
	timeoutMs, _ := cmd.Flags().GetInt("timeout-ms")

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	l := loop.New()
	root := event.NewParent(l.WakeupCallback(), nil)
	root.SetName("run.root")
	defer root.Free()

	backend := wrapTee(runtime.NewExecBackend(args[0], args[1:]...))

	var interrupted atomic.Bool
	sigWatcher := watcher.NewSignal(l, root, func(sig os.Signal) {
		mlog.Logger.Info().Str("signal", sig.String()).Msg("received interrupt")
		interrupted.Store(true)
	}, os.Interrupt, syscall.SIGTERM)
	l.Register(sigWatcher)
	sigWatcher.Start()
	defer func() {
		sigWatcher.Stop()
		sigWatcher.Close()
	}()

	exitCode := make(chan int, 1)
	proc := watcher.NewProcess(l, root, backend, func(status runtime.ExitStatus, userInterrupted bool) {
		mlog.WithProcess(backend.Pid()).Info().
			Int("code", status.Code).
			Str("signal", status.Signal).
			Bool("interrupted", userInterrupted).
			Msg("process exited")
		exitCode <- status.Code
	})
	proc.SetKillTimeout(cfg.KillTimeout())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := proc.Spawn(ctx); err != nil {
		return err
	}

	signal.Ignore(syscall.SIGPIPE)

	code := proc.Wait(timeoutMs, &interrupted)
	proc.Close()

	select {
	case c := <-exitCode:
		code = c
	default:
	}

	switch {
	case code == -2:
		mlog.Logger.Warn().Msg("run interrupted before process exit")
		os.Exit(130)
	case code == -1:
		mlog.Logger.Warn().Msg("run timed out waiting for process exit")
		os.Exit(124)
	default:
		os.Exit(code)
	}
	return nil
}

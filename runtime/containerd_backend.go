package runtime

import (
	"context"
	"fmt"
	"io"
	"sync"
	"syscall"

	"github.com/containerd/containerd"
	"github.com/containerd/containerd/cio"
	"github.com/containerd/containerd/containers"
	"github.com/containerd/containerd/namespaces"
	"github.com/containerd/containerd/oci"
	specs "github.com/opencontainers/runtime-spec/specs-go"
)

// ContainerdBackend runs a process as a containerd task instead of a bare
// OS process. Grounded on pkg/runtime/containerd.go's StopContainer: kill
// with SIGTERM under a deadline, then escalate to SIGKILL if the task
// hasn't exited — the same shape spec.md §4.5 and §8 S6 require, applied
// to a containerd-managed task.
type ContainerdBackend struct {
	Client      *containerd.Client
	Namespace   string
	ContainerID string

	// Image, Args, Env, and Cwd, if Image is non-empty, make Start create a
	// brand-new container from that image with this exact argv/env/cwd
	// instead of loading an already-created one. Grounded on the teacher's
	// CreateContainer's oci.SpecOpts composition
	// (pkg/runtime/containerd.go), with the process argv/cwd set directly
	// against an opencontainers/runtime-spec specs.Process, the same type
	// the teacher builds specs.Mount values against.
	Image string
	Args  []string
	Env   []string
	Cwd   string

	mu        sync.Mutex
	container containerd.Container
	task      containerd.Task
	statusC   <-chan containerd.ExitStatus

	stdoutR *io.PipeReader
	stdoutW *io.PipeWriter
	stderrR *io.PipeReader
	stderrW *io.PipeWriter
}

// NewContainerdBackend builds a backend for an already-created container
// identified by containerID, in the given containerd namespace.
func NewContainerdBackend(client *containerd.Client, namespace, containerID string) *ContainerdBackend {
	return &ContainerdBackend{Client: client, Namespace: namespace, ContainerID: containerID}
}

// NewContainerdProcessBackend builds a backend that creates a new
// container from image on Start, running args with env and cwd as its
// entrypoint process.
func NewContainerdProcessBackend(client *containerd.Client, namespace, containerID, image string, args, env []string, cwd string) *ContainerdBackend {
	return &ContainerdBackend{
		Client:      client,
		Namespace:   namespace,
		ContainerID: containerID,
		Image:       image,
		Args:        args,
		Env:         env,
		Cwd:         cwd,
	}
}

// withArgv sets the OCI runtime spec's process argv/cwd directly on a
// specs.Process, rather than going through oci.WithProcessArgs, so a
// caller supplying an already-populated Process (e.g. from
// oci.WithImageConfig) keeps its other fields untouched.
func withArgv(args []string, cwd string) oci.SpecOpts {
	return func(_ context.Context, _ oci.Client, _ *containers.Container, s *oci.Spec) error {
		if s.Process == nil {
			s.Process = &specs.Process{}
		}
		s.Process.Args = args
		if cwd != "" {
			s.Process.Cwd = cwd
		}
		return nil
	}
}

// Start loads (or creates) the container, creates a task piping
// stdout/stderr through in-process pipes, and starts it.
func (b *ContainerdBackend) Start(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	ctx = namespaces.WithNamespace(ctx, b.Namespace)

	container, err := b.loadOrCreateContainerLocked(ctx)
	if err != nil {
		return err
	}

	outR, outW := io.Pipe()
	errR, errW := io.Pipe()

	task, err := container.NewTask(ctx, cio.NewCreator(cio.WithStreams(nil, outW, errW)))
	if err != nil {
		outW.Close()
		errW.Close()
		return fmt.Errorf("runtime: create task: %w", err)
	}

	statusC, err := task.Wait(ctx)
	if err != nil {
		_, _ = task.Delete(ctx)
		outW.Close()
		errW.Close()
		return fmt.Errorf("runtime: wait registration: %w", err)
	}

	if err := task.Start(ctx); err != nil {
		_, _ = task.Delete(ctx)
		outW.Close()
		errW.Close()
		return fmt.Errorf("runtime: start task: %w", err)
	}

	b.container = container
	b.task = task
	b.statusC = statusC
	b.stdoutR, b.stdoutW = outR, outW
	b.stderrR, b.stderrW = errR, errW
	return nil
}

func (b *ContainerdBackend) loadOrCreateContainerLocked(ctx context.Context) (containerd.Container, error) {
	if b.Image == "" {
		container, err := b.Client.LoadContainer(ctx, b.ContainerID)
		if err != nil {
			return nil, fmt.Errorf("runtime: load container %s: %w", b.ContainerID, err)
		}
		return container, nil
	}

	image, err := b.Client.GetImage(ctx, b.Image)
	if err != nil {
		return nil, fmt.Errorf("runtime: get image %s: %w", b.Image, err)
	}

	opts := []oci.SpecOpts{oci.WithImageConfig(image), withArgv(b.Args, b.Cwd)}
	if len(b.Env) > 0 {
		opts = append(opts, oci.WithEnv(b.Env))
	}

	container, err := b.Client.NewContainer(
		ctx,
		b.ContainerID,
		containerd.WithImage(image),
		containerd.WithNewSnapshot(b.ContainerID+"-snapshot", image),
		containerd.WithNewSpec(opts...),
	)
	if err != nil {
		return nil, fmt.Errorf("runtime: create container %s: %w", b.ContainerID, err)
	}
	return container, nil
}

func (b *ContainerdBackend) Stdout() io.ReadCloser { return b.stdoutR }
func (b *ContainerdBackend) Stderr() io.ReadCloser { return b.stderrR }
func (b *ContainerdBackend) Stdin() io.WriteCloser { return nil }

// Pid implements runtime.Backend.
func (b *ContainerdBackend) Pid() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.task == nil {
		return 0
	}
	return int(b.task.Pid())
}

// Terminate implements runtime.Backend by sending SIGTERM to the task.
func (b *ContainerdBackend) Terminate() error {
	b.mu.Lock()
	task := b.task
	b.mu.Unlock()
	if task == nil {
		return nil
	}
	if err := task.Kill(context.Background(), syscall.SIGTERM); err != nil {
		return fmt.Errorf("runtime: sigterm task: %w", err)
	}
	return nil
}

// Kill implements runtime.Backend by sending SIGKILL to the task.
func (b *ContainerdBackend) Kill() error {
	b.mu.Lock()
	task := b.task
	b.mu.Unlock()
	if task == nil {
		return nil
	}
	if err := task.Kill(context.Background(), syscall.SIGKILL); err != nil {
		return fmt.Errorf("runtime: sigkill task: %w", err)
	}
	return nil
}

// Wait implements runtime.Backend.
func (b *ContainerdBackend) Wait() (ExitStatus, error) {
	b.mu.Lock()
	task := b.task
	statusC := b.statusC
	b.mu.Unlock()

	if task == nil {
		return ExitStatus{}, fmt.Errorf("runtime: task not started")
	}

	st := <-statusC
	code, _, err := st.Result()

	if _, delErr := task.Delete(context.Background()); delErr == nil {
		// Best effort: the task is gone either way once status has been
		// observed.
		_ = delErr
	}

	return ExitStatus{Code: int(code)}, err
}

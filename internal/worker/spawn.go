package worker

import (
	"context"
	"os"
	"os/exec"
)

// ListenerFDEnv names the environment variable a worker reads to learn
// which inherited file descriptor carries the shared listening socket.
// ExtraFiles always places it at fd 3 (0-2 are stdin/stdout/stderr).
const ListenerFDEnv = "PAGI_LISTENER_FD"

// WorkerRoleEnv, when set to "1" in a child's environment, tells cmd/pagid
// to run as a worker (accept loop) instead of the supervising parent.
const WorkerRoleEnv = "PAGI_WORKER"

// ExecSpawner starts workers as `self Args...` subprocesses, handing each
// one the shared listener via ExtraFiles the way a pre-fork server hands
// a socket to children that share it for concurrent kernel-level accept.
type ExecSpawner struct {
	BinaryPath   string
	Args         []string
	Env          []string
	ListenerFile *os.File
	Stdout       *os.File
	Stderr       *os.File
}

// execChild adapts *exec.Cmd to the Child interface.
type execChild struct{ cmd *exec.Cmd }

func (c execChild) Wait() error                { return c.cmd.Wait() }
func (c execChild) Signal(sig os.Signal) error { return c.cmd.Process.Signal(sig) }
func (c execChild) Pid() int                   { return c.cmd.Process.Pid }

func (s ExecSpawner) Spawn(ctx context.Context, id int) (Child, error) {
	cmd := exec.Command(s.BinaryPath, s.Args...)
	cmd.Env = append(append([]string{}, s.Env...),
		WorkerRoleEnv+"=1",
		ListenerFDEnv+"=3",
	)
	cmd.ExtraFiles = []*os.File{s.ListenerFile}
	cmd.Stdout = s.Stdout
	cmd.Stderr = s.Stderr

	if err := cmd.Start(); err != nil {
		return nil, err
	}
	return execChild{cmd: cmd}, nil
}

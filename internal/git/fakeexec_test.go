package git

import (
	"os/exec"
	"testing"

	"github.com/charmbracelet/log"
	"go.abhg.dev/trim/internal/ioutil"
)

// testLogger returns a logger that writes to t.Logf, so git plumbing
// output shows up alongside the failing test instead of vanishing.
func testLogger(t testing.TB) *log.Logger {
	l := log.New(ioutil.TestLogWriter(t, ""))
	l.SetLevel(log.DebugLevel)
	return l
}

// NewFakeRepository builds a Repository backed by the given execer,
// without requiring an on-disk Git repository.
//
// It's meant for unit tests that stub out command execution;
// integration tests should use [Open] against a real fixture instead.
func NewFakeRepository(t testing.TB, dir string, exec execer) *Repository {
	if dir == "" {
		dir = t.TempDir()
	}
	return newRepository(dir, dir, testLogger(t), exec)
}

// stubExecer is a hand-written execer fake for unit tests.
// Each field is optional; a nil field falls back to a no-op/zero result.
type stubExecer struct {
	RunFunc    func(*exec.Cmd) error
	OutputFunc func(*exec.Cmd) ([]byte, error)
	StartFunc  func(*exec.Cmd) error
	WaitFunc   func(*exec.Cmd) error
	KillFunc   func(*exec.Cmd) error
}

var _ execer = (*stubExecer)(nil)

func (s *stubExecer) Run(cmd *exec.Cmd) error {
	if s.RunFunc != nil {
		return s.RunFunc(cmd)
	}
	return nil
}

func (s *stubExecer) Output(cmd *exec.Cmd) ([]byte, error) {
	if s.OutputFunc != nil {
		return s.OutputFunc(cmd)
	}
	return nil, nil
}

func (s *stubExecer) Start(cmd *exec.Cmd) error {
	if s.StartFunc != nil {
		return s.StartFunc(cmd)
	}
	return nil
}

func (s *stubExecer) Wait(cmd *exec.Cmd) error {
	if s.WaitFunc != nil {
		return s.WaitFunc(cmd)
	}
	return nil
}

func (s *stubExecer) Kill(cmd *exec.Cmd) error {
	if s.KillFunc != nil {
		return s.KillFunc(cmd)
	}
	return nil
}

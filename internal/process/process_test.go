package process

import (
	"bufio"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestStartMissingExecutable(t *testing.T) {
	_, err := Start(Spec{Path: "/nonexistent/definitely-not-here"})
	var spawnErr *SpawnError
	if !errors.As(err, &spawnErr) {
		t.Fatalf("Start() error = %v, want *SpawnError", err)
	}
}

func TestStartEmptyPath(t *testing.T) {
	_, err := Start(Spec{})
	var spawnErr *SpawnError
	if !errors.As(err, &spawnErr) {
		t.Fatalf("Start() error = %v, want *SpawnError", err)
	}
}

func TestStdioRoundTrip(t *testing.T) {
	h, err := Start(Spec{Path: "/bin/cat"})
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer h.Terminate(time.Second)

	if _, err := h.Stdin.Write([]byte("hello\n")); err != nil {
		t.Fatalf("Stdin.Write() error = %v", err)
	}
	line, err := bufio.NewReader(h.Stdout).ReadString('\n')
	if err != nil {
		t.Fatalf("Stdout read error = %v", err)
	}
	if strings.TrimSpace(line) != "hello" {
		t.Errorf("read %q, want hello", line)
	}
}

func TestOnExitFires(t *testing.T) {
	h, err := Start(Spec{Path: "/bin/sh", Args: []string{"-c", "exit 3"}})
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	exited := make(chan error, 1)
	h.OnExit(func(err error) { exited <- err })

	select {
	case err := <-exited:
		if err == nil {
			t.Error("OnExit() err = nil, want exit error for code 3")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("OnExit callback did not fire")
	}

	if h.ExitCode() != 3 {
		t.Errorf("ExitCode() = %d, want 3", h.ExitCode())
	}
	if h.State() != StateExited {
		t.Errorf("State() = %v, want exited", h.State())
	}
}

func TestOnExitAfterExit(t *testing.T) {
	h, err := Start(Spec{Path: "/bin/true"})
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	<-h.Done()

	fired := make(chan struct{})
	h.OnExit(func(error) { close(fired) })
	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatal("OnExit registered after exit did not fire")
	}
}

func TestTerminate(t *testing.T) {
	h, err := Start(Spec{Path: "/bin/sleep", Args: []string{"60"}})
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	h.Terminate(2 * time.Second)

	if h.Running() {
		t.Error("Running() = true after Terminate")
	}
	if h.State() != StateKilled {
		t.Errorf("State() = %v, want killed", h.State())
	}
	// Idempotent.
	h.Terminate(time.Second)
}

func TestEnvPassedThrough(t *testing.T) {
	h, err := Start(Spec{
		Path: "/bin/sh",
		Args: []string{"-c", "printf '%s' \"$BRIDGE_TEST_VAR\""},
		Env:  map[string]string{"BRIDGE_TEST_VAR": "42"},
	})
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	out := make([]byte, 8)
	n, _ := h.Stdout.Read(out)
	<-h.Done()
	if string(out[:n]) != "42" {
		t.Errorf("child saw %q, want 42", out[:n])
	}
}

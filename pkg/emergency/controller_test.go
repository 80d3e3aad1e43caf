package emergency

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestControllerTriggersOnStopFile(t *testing.T) {
	stopFile := filepath.Join(t.TempDir(), "stop")

	c := New(Config{StopFile: stopFile, PollInterval: 10 * time.Millisecond})

	var triggered bool
	c.OnStop(func() { triggered = true })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	c.Start(ctx)

	if err := c.CreateStopFile(); err != nil {
		t.Fatalf("CreateStopFile failed: %v", err)
	}

	select {
	case <-c.StopChannel():
	case <-time.After(2 * time.Second):
		t.Fatal("expected stop channel to close")
	}

	if !triggered {
		t.Fatal("expected OnStop callback to run")
	}
	if !c.IsStopped() {
		t.Fatal("expected IsStopped to be true")
	}
}

func TestControllerStopIsIdempotent(t *testing.T) {
	c := New(Config{StopFile: filepath.Join(t.TempDir(), "stop")})

	var calls int
	c.OnStop(func() { calls++ })

	c.Stop("first")
	c.Stop("second")

	if calls != 1 {
		t.Fatalf("expected callback to run exactly once, ran %d times", calls)
	}
}

func TestRemoveStopFileToleratesMissingFile(t *testing.T) {
	c := New(Config{StopFile: filepath.Join(t.TempDir(), "does-not-exist")})
	if err := c.RemoveStopFile(); err != nil {
		t.Fatalf("expected no error removing a missing stop file, got %v", err)
	}
}

func TestCreateStopFileWritesTimestamp(t *testing.T) {
	stopFile := filepath.Join(t.TempDir(), "stop")
	c := New(Config{StopFile: stopFile})

	if err := c.CreateStopFile(); err != nil {
		t.Fatalf("CreateStopFile failed: %v", err)
	}
	data, err := os.ReadFile(stopFile)
	if err != nil {
		t.Fatalf("expected stop file to exist: %v", err)
	}
	if len(data) == 0 {
		t.Fatal("expected stop file to contain a timestamp message")
	}
}

package bridge

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"go/format"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/ayusman/kathakali/internal/rig"
)

func writeBridge(t *testing.T, root, dir string, m Manifest, script string) string {
	t.Helper()
	path := filepath.Join(root, dir)
	if err := os.MkdirAll(path, 0755); err != nil {
		t.Fatalf("failed to create bridge dir: %v", err)
	}
	data, err := json.Marshal(m)
	if err != nil {
		t.Fatalf("failed to marshal manifest: %v", err)
	}
	if err := os.WriteFile(filepath.Join(path, ManifestFile), data, 0644); err != nil {
		t.Fatalf("failed to write manifest: %v", err)
	}
	if script != "" {
		if err := os.WriteFile(filepath.Join(path, m.Executable), []byte(script), 0755); err != nil {
			t.Fatalf("failed to write executable: %v", err)
		}
	}
	return path
}

func TestManager_Discover(t *testing.T) {
	root := t.TempDir()
	path := writeBridge(t, root, "vrm", Manifest{
		Name:       "vrm",
		Version:    "1.0.0",
		Executable: "vrm-bridge",
		Args:       []string{"--port", "9000"},
		Autostart:  true,
	}, "")
	writeBridge(t, root, "osc", Manifest{Name: "osc", Executable: "osc-bridge"}, "")

	m := NewManager(root)
	if err := m.Discover(); err != nil {
		t.Fatalf("Discover() failed: %v", err)
	}

	bridges := m.List()
	if len(bridges) != 2 {
		t.Fatalf("expected 2 bridges, got %d", len(bridges))
	}
	if bridges[0].Manifest.Name != "osc" || bridges[1].Manifest.Name != "vrm" {
		t.Errorf("List() not sorted: %q, %q", bridges[0].Manifest.Name, bridges[1].Manifest.Name)
	}

	b, err := m.Get("vrm")
	if err != nil {
		t.Fatalf("Get() failed: %v", err)
	}
	if b.Path != path {
		t.Errorf("Path = %q, want %q", b.Path, path)
	}
	if b.Executable != filepath.Join(path, "vrm-bridge") {
		t.Errorf("Executable = %q", b.Executable)
	}
	if !b.Manifest.Autostart || len(b.Manifest.Args) != 2 {
		t.Errorf("manifest not decoded: %+v", b.Manifest)
	}
}

func TestManager_Discover_Skips(t *testing.T) {
	root := t.TempDir()

	bad := filepath.Join(root, "bad")
	if err := os.MkdirAll(bad, 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(bad, ManifestFile), []byte("{not json"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(filepath.Join(root, "empty"), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(root, "stray.json"), []byte("{}"), 0644); err != nil {
		t.Fatal(err)
	}
	writeBridge(t, root, "noexec", Manifest{Name: "noexec"}, "")

	m := NewManager(root)
	if err := m.Discover(); err != nil {
		t.Fatalf("Discover() failed: %v", err)
	}
	if n := len(m.List()); n != 0 {
		t.Errorf("expected no bridges, got %d", n)
	}
}

func TestManager_Discover_NonExistentDir(t *testing.T) {
	m := NewManager(filepath.Join(t.TempDir(), "missing"))
	if err := m.Discover(); err != nil {
		t.Errorf("Discover() on missing dir should not fail: %v", err)
	}
	if len(m.List()) != 0 {
		t.Error("expected no bridges")
	}
	if _, err := m.Get("anything"); !errors.Is(err, ErrBridgeNotFound) {
		t.Errorf("Get() error = %v, want ErrBridgeNotFound", err)
	}
}

func TestManager_Dir(t *testing.T) {
	m := NewManager("/tmp/bridges")
	if m.Dir() != "/tmp/bridges" {
		t.Errorf("Dir() = %q", m.Dir())
	}
}

func TestProcess_StreamsJSONLines(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping subprocess test")
	}
	if runtime.GOOS == "windows" {
		t.Skip("skipping test on Windows")
	}

	root := t.TempDir()
	path := writeBridge(t, root, "capture", Manifest{Name: "capture", Executable: "capture.sh"},
		"#!/bin/sh\ncat > frames.jsonl\n")

	m := NewManager(root)
	if err := m.Discover(); err != nil {
		t.Fatalf("Discover() failed: %v", err)
	}
	b, err := m.Get("capture")
	if err != nil {
		t.Fatalf("Get() failed: %v", err)
	}

	p, err := Start(context.Background(), b)
	if err != nil {
		t.Fatalf("Start() failed: %v", err)
	}
	if p.Name() != "bridge:capture" {
		t.Errorf("Name() = %q", p.Name())
	}

	sent := 0
	for seq := uint64(1); seq <= 3; seq++ {
		frame := rig.Frame{Asset: "default", Seq: seq, Blendshapes: map[string]float64{rig.ShapeA: 0.5}}
		for {
			err := p.Send(frame)
			if err == nil {
				sent++
				break
			}
			if !errors.Is(err, ErrQueueFull) {
				t.Fatalf("Send() failed: %v", err)
			}
			time.Sleep(5 * time.Millisecond)
		}
	}

	if err := p.Close(); err != nil {
		t.Fatalf("Close() failed: %v", err)
	}
	if err := p.Send(rig.Frame{}); !errors.Is(err, ErrStopped) {
		t.Errorf("Send() after Close error = %v, want ErrStopped", err)
	}

	f, err := os.Open(filepath.Join(path, "frames.jsonl"))
	if err != nil {
		t.Fatalf("failed to open output: %v", err)
	}
	defer f.Close()

	var seqs []uint64
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var frame rig.Frame
		if err := json.Unmarshal(scanner.Bytes(), &frame); err != nil {
			t.Fatalf("line is not a frame: %v", err)
		}
		seqs = append(seqs, frame.Seq)
	}
	if len(seqs) != sent {
		t.Fatalf("bridge received %d frames, want %d", len(seqs), sent)
	}
	for i, s := range seqs {
		if s != uint64(i+1) {
			t.Errorf("frame %d has seq %d", i, s)
		}
	}
}

func TestProcess_ExitedBridgeStops(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping subprocess test")
	}
	if runtime.GOOS == "windows" {
		t.Skip("skipping test on Windows")
	}

	root := t.TempDir()
	writeBridge(t, root, "quit", Manifest{Name: "quit", Executable: "quit.sh"}, "#!/bin/sh\nexit 3\n")

	m := NewManager(root)
	if err := m.Discover(); err != nil {
		t.Fatalf("Discover() failed: %v", err)
	}
	b, _ := m.Get("quit")

	p, err := Start(context.Background(), b)
	if err != nil {
		t.Fatalf("Start() failed: %v", err)
	}
	defer p.Close()

	select {
	case <-p.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("bridge did not exit")
	}
	if p.Err() == nil {
		t.Error("expected non-zero exit error")
	}
	if err := p.Send(rig.Frame{}); !errors.Is(err, ErrStopped) {
		t.Errorf("Send() error = %v, want ErrStopped", err)
	}
}

func TestStart_MissingExecutable(t *testing.T) {
	b := &Bridge{
		Manifest:   Manifest{Name: "ghost", Executable: "ghost"},
		Path:       t.TempDir(),
		Executable: filepath.Join(t.TempDir(), "ghost"),
	}
	if _, err := Start(context.Background(), b); err == nil {
		t.Error("expected error starting missing executable")
	}
}

func TestSourceFormatted(t *testing.T) {
	files, err := filepath.Glob("*.go")
	if err != nil {
		t.Fatal(err)
	}
	for _, name := range files {
		if strings.HasSuffix(name, "_test.go") {
			continue
		}
		src, err := os.ReadFile(name)
		if err != nil {
			t.Fatal(err)
		}
		formatted, err := format.Source(src)
		if err != nil {
			t.Fatalf("%s: %v", name, err)
		}
		if !bytes.Equal(src, formatted) {
			t.Errorf("%s is not gofmt-formatted", name)
		}
	}
}

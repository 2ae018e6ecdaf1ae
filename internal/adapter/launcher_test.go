package adapter

import (
	"context"
	"os"
	"os/exec"
	"reflect"
	"testing"
	"time"

	"github.com/mmcdole/tonearm/internal/domain"
)

func TestOffsetArgs(t *testing.T) {
	tests := []struct {
		flag   string
		offset time.Duration
		want   []string
	}{
		{"--start=", 90 * time.Second, []string{"--start=90"}},
		{"-ss ", 75 * time.Second, []string{"-ss", "75"}},
		{"--start=", 0, nil},
		{"", 30 * time.Second, nil},
	}
	for _, tt := range tests {
		got := offsetArgs(tt.flag, tt.offset)
		if !reflect.DeepEqual(got, tt.want) {
			t.Errorf("offsetArgs(%q, %v) = %v, want %v", tt.flag, tt.offset, got, tt.want)
		}
	}
}

func TestNewLauncherResolvesKnownPlayer(t *testing.T) {
	tests := []struct {
		command  string
		args     []string
		flag     string
		wantFlag string
		wantArgs []string
	}{
		{"/usr/bin/mpv", nil, "", "--start=", players["mpv"].args},
		{"FFPLAY.EXE", nil, "", "-ss ", players["ffplay"].args},
		{"mpv", []string{"--volume=40"}, "", "--start=", []string{"--volume=40"}},
		{"mystery-player", nil, "", "", []string{}},
		{"mpv", nil, "--custom=", "--custom=", players["mpv"].args},
	}
	for _, tt := range tests {
		l, err := NewLauncher(tt.command, tt.args, tt.flag, NullLogger())
		if err != nil {
			t.Fatalf("NewLauncher(%q) error: %v", tt.command, err)
		}
		if l.startFlag != tt.wantFlag {
			t.Errorf("NewLauncher(%q) startFlag = %q, want %q", tt.command, l.startFlag, tt.wantFlag)
		}
		if !reflect.DeepEqual(l.args, tt.wantArgs) {
			t.Errorf("NewLauncher(%q) args = %v, want %v", tt.command, l.args, tt.wantArgs)
		}
	}
}

func TestLauncherPrepare(t *testing.T) {
	l, _ := NewLauncher("mpv", nil, "", NullLogger())

	tr, err := l.Prepare(context.Background(), domain.Source{SongID: "s1", Kind: domain.SourceLocal, Data: []byte("mp3")})
	if err != nil {
		t.Fatalf("Prepare(local) error: %v", err)
	}
	local := tr.(*launcherTrack)
	data, err := os.ReadFile(local.target)
	if err != nil || string(data) != "mp3" {
		t.Fatalf("temp file = %q, %v", data, err)
	}
	local.Close()
	if _, err := os.Stat(local.target); !os.IsNotExist(err) {
		t.Errorf("temp file still exists after Close: %v", err)
	}

	tr, err = l.Prepare(context.Background(), domain.Source{SongID: "s2", Kind: domain.SourceStream, URL: "http://x/audio"})
	if err != nil {
		t.Fatalf("Prepare(stream) error: %v", err)
	}
	if got := tr.(*launcherTrack).target; got != "http://x/audio" {
		t.Errorf("target = %q", got)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := l.Prepare(ctx, domain.Source{Kind: domain.SourceStream}); err == nil {
		t.Error("Prepare with cancelled context succeeded")
	}
}

func requireCommand(t *testing.T, name string) string {
	t.Helper()
	path, err := exec.LookPath(name)
	if err != nil {
		t.Skipf("%s not available", name)
	}
	return path
}

func nextEvent(t *testing.T, l *Launcher) domain.OutputEvent {
	t.Helper()
	select {
	case ev := <-l.Events():
		return ev
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for output event")
	}
	return domain.OutputEvent{}
}

func TestLauncherReportsEnded(t *testing.T) {
	l, _ := NewLauncher(requireCommand(t, "true"), []string{}, "", NullLogger())
	defer l.Close()

	tr, _ := l.Prepare(context.Background(), domain.Source{Kind: domain.SourceStream, URL: "http://x"})
	if err := l.Start(tr); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	if ev := nextEvent(t, l); ev.Kind != domain.OutputEnded {
		t.Errorf("event = %v, want ended", ev.Kind)
	}
}

func TestLauncherReportsFailure(t *testing.T) {
	l, _ := NewLauncher(requireCommand(t, "false"), []string{}, "", NullLogger())
	defer l.Close()

	tr, _ := l.Prepare(context.Background(), domain.Source{Kind: domain.SourceStream, URL: "http://x"})
	l.Start(tr)
	if ev := nextEvent(t, l); ev.Kind != domain.OutputError {
		t.Errorf("event = %v, want error", ev.Kind)
	}
}

func TestLauncherPauseResumeSeek(t *testing.T) {
	sh := requireCommand(t, "sh")
	// The track target lands in $1 and is ignored
	l, _ := NewLauncher(sh, []string{"-c", "sleep 30", "sh"}, "--start=", NullLogger())
	defer l.Close()

	tr, _ := l.Prepare(context.Background(), domain.Source{Kind: domain.SourceStream, URL: "http://x"})
	if err := l.Start(tr); err != nil {
		t.Fatalf("Start() error: %v", err)
	}

	l.Pause()
	pos := l.Position()
	time.Sleep(50 * time.Millisecond)
	if got := l.Position(); got != pos {
		t.Errorf("position moved while paused: %v -> %v", pos, got)
	}

	l.Seek(42 * time.Second)
	if got := l.Position(); got != 42*time.Second {
		t.Errorf("Position() after paused seek = %v, want 42s", got)
	}

	if err := l.Resume(); err != nil {
		t.Fatalf("Resume() error: %v", err)
	}
	if got := l.Position(); got < 42*time.Second {
		t.Errorf("Position() after resume = %v, want >= 42s", got)
	}

	// Killing for pause must not look like the end of the track
	select {
	case ev := <-l.Events():
		t.Errorf("unexpected event %v", ev.Kind)
	case <-time.After(100 * time.Millisecond):
	}
}

package adapter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/mmcdole/tonearm/internal/domain"
	"github.com/mmcdole/tonearm/internal/player"
)

// Launcher plays audio through an external player process. Pause and seek
// restart the process at an offset, so the player needs a start flag.
type Launcher struct {
	command   string   // resolved player command
	args      []string // arguments placed before the start offset and source
	startFlag string   // offset flag prefix, e.g., "--start=" or "-ss "
	logger    *slog.Logger

	events chan domain.OutputEvent

	mu       sync.Mutex
	current  *launcherTrack
	proc     *exec.Cmd
	procID   uint64        // incremented for every launched process
	offset   time.Duration // playhead when proc was launched
	launched time.Time
	paused   bool
	pausedAt time.Duration
}

// launcherTrack is a source ready to hand to the player
type launcherTrack struct {
	target  string // file path or URL
	tempDir string // set when the payload was spilled to disk
}

// Close removes any temporary file backing the track.
func (t *launcherTrack) Close() error {
	if t.tempDir == "" {
		return nil
	}
	return os.RemoveAll(t.tempDir)
}

// playerConfig describes how to drive a known player headless
type playerConfig struct {
	offsetFlag string   // Start offset flag (e.g., "--start=")
	args       []string // Flags for audio-only, exit-at-end playback
}

// players registry - single source of truth for known audio players
var players = map[string]playerConfig{
	"mpv": {
		offsetFlag: "--start=",
		args:       []string{"--no-video", "--no-terminal", "--keep-open=no"},
	},
	"ffplay": {
		offsetFlag: "-ss ",
		args:       []string{"-nodisp", "-autoexit", "-loglevel", "quiet"},
	},
	"cvlc": {
		offsetFlag: "--start-time=",
		args:       []string{"--play-and-exit", "--no-video", "--intf", "dummy"},
	},
	"vlc": {
		offsetFlag: "--start-time=",
		args:       []string{"--play-and-exit", "--no-video", "--intf", "dummy"},
	},
	"mplayer": {
		offsetFlag: "-ss ",
		args:       []string{"-novideo", "-really-quiet"},
	},
}

// candidatePlayers defines the preferred player order for each platform
var candidatePlayers = map[string][]string{
	"darwin":  {"mpv", "ffplay", "vlc"},
	"linux":   {"mpv", "ffplay", "cvlc", "mplayer"},
	"windows": {"mpv", "ffplay", "vlc"},
}

// NewLauncher creates an external-player output. An empty command picks
// the first known player found in PATH.
func NewLauncher(command string, args []string, startFlag string, logger *slog.Logger) (*Launcher, error) {
	if logger == nil {
		logger = slog.Default()
	}

	if command == "" {
		detected, err := detectPlayer()
		if err != nil {
			return nil, err
		}
		command = detected
		logger.Info("detected audio player", "command", command)
	}

	base := playerName(command)
	cfg, known := players[base]

	// Auto-detect start flag for known players if not explicitly configured
	resolvedFlag := startFlag
	if resolvedFlag == "" && known {
		resolvedFlag = cfg.offsetFlag
		logger.Debug("auto-detected player offset flag", "player", base, "flag", resolvedFlag)
	}

	resolvedArgs := append([]string{}, args...)
	if len(resolvedArgs) == 0 && known {
		resolvedArgs = append(resolvedArgs, cfg.args...)
	}

	return &Launcher{
		command:   command,
		args:      resolvedArgs,
		startFlag: resolvedFlag,
		logger:    logger,
		events:    make(chan domain.OutputEvent, 8),
	}, nil
}

// playerName normalizes a command path to a registry key
func playerName(command string) string {
	base := filepath.Base(command)
	// Strip any extension (for Windows .exe)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	return strings.ToLower(base)
}

// detectPlayer returns the first candidate player available in PATH
func detectPlayer() (string, error) {
	candidates, ok := candidatePlayers[runtime.GOOS]
	if !ok {
		candidates = candidatePlayers["linux"] // default
	}
	for _, name := range candidates {
		if path, err := exec.LookPath(name); err == nil {
			return path, nil
		}
	}
	return "", fmt.Errorf("%w: no audio player found (tried %s)", domain.ErrPlaybackFailed, strings.Join(candidates, ", "))
}

// offsetArgs renders the start offset for a flag. Flags ending in a space
// like "-ss " take the value as a separate argument.
func offsetArgs(flag string, offset time.Duration) []string {
	if offset <= 0 || flag == "" {
		return nil
	}
	value := fmt.Sprintf("%.0f", offset.Seconds())
	if strings.HasSuffix(flag, " ") {
		return []string{strings.TrimSuffix(flag, " "), value}
	}
	return []string{flag + value}
}

// Prepare spills cached payloads to a temporary file; streams are passed
// to the player by URL. Nothing currently playing is touched.
func (l *Launcher) Prepare(ctx context.Context, src domain.Source) (player.Track, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if src.Kind == domain.SourceStream {
		return &launcherTrack{target: src.URL}, nil
	}

	dir, err := os.MkdirTemp("", "tonearm-")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp dir: %w", err)
	}
	path := filepath.Join(dir, src.SongID+".mp3")
	if err := os.WriteFile(path, src.Data, 0600); err != nil {
		os.RemoveAll(dir)
		return nil, fmt.Errorf("failed to write payload: %w", err)
	}
	return &launcherTrack{target: path, tempDir: dir}, nil
}

// Start replaces whatever is playing with t.
func (l *Launcher) Start(t player.Track) error {
	track, ok := t.(*launcherTrack)
	if !ok {
		return fmt.Errorf("%w: foreign track %T", domain.ErrPlaybackFailed, t)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.killLocked()
	if l.current != nil && l.current != track {
		l.current.Close()
	}
	l.current = track
	l.paused = false
	return l.launchLocked(0)
}

// launchLocked starts the player for the current track at offset.
func (l *Launcher) launchLocked(offset time.Duration) error {
	args := append([]string{}, l.args...)
	args = append(args, offsetArgs(l.startFlag, offset)...)
	if offset > 0 && l.startFlag == "" {
		l.logger.Warn("cannot set start offset - unknown player, configure start_flag in config",
			"command", l.command, "offset", offset)
	}
	args = append(args, l.current.target)

	cmd := exec.Command(l.command, args...)
	l.logger.Info("launching player", "command", l.command, "args", args)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrPlaybackFailed, err)
	}

	l.procID++
	l.proc = cmd
	l.offset = offset
	l.launched = time.Now()
	go l.wait(cmd, l.procID)
	return nil
}

// wait reports a natural exit of the process as the end of the track.
func (l *Launcher) wait(cmd *exec.Cmd, id uint64) {
	err := cmd.Wait()

	l.mu.Lock()
	current := l.procID == id && l.proc == cmd
	if current {
		l.proc = nil
	}
	l.mu.Unlock()

	// Killed on purpose by pause, seek, or stop
	if !current {
		return
	}

	ev := domain.OutputEvent{Kind: domain.OutputEnded}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		ev = domain.OutputEvent{Kind: domain.OutputError, Err: fmt.Errorf("%w: player exited: %v", domain.ErrPlaybackFailed, err)}
	}
	l.emit(ev)
}

func (l *Launcher) emit(ev domain.OutputEvent) {
	select {
	case l.events <- ev:
	default:
		l.logger.Warn("dropping output event", "event", ev.Kind.String())
	}
}

// killLocked terminates the running process without reporting an end.
func (l *Launcher) killLocked() {
	if l.proc == nil {
		return
	}
	cmd := l.proc
	l.proc = nil
	if cmd.Process != nil {
		cmd.Process.Kill()
	}
}

func (l *Launcher) positionLocked() time.Duration {
	if l.paused || l.proc == nil {
		return l.pausedAt
	}
	return l.offset + time.Since(l.launched)
}

func (l *Launcher) Pause() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.current == nil || l.paused {
		return nil
	}
	l.pausedAt = l.positionLocked()
	l.paused = true
	l.killLocked()
	return nil
}

func (l *Launcher) Resume() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.current == nil {
		return nil
	}
	if !l.paused && l.proc != nil {
		return nil
	}
	l.paused = false
	return l.launchLocked(l.pausedAt)
}

// Seek relaunches the player at pos, or moves the resume point when paused.
func (l *Launcher) Seek(pos time.Duration) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.current == nil {
		return nil
	}
	if l.paused || l.proc == nil {
		l.pausedAt = pos
		return nil
	}
	l.killLocked()
	return l.launchLocked(pos)
}

func (l *Launcher) Position() time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.positionLocked()
}

// Duration is unknown to the launcher; callers fall back to catalog metadata.
func (l *Launcher) Duration() time.Duration {
	return 0
}

func (l *Launcher) Stop() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.killLocked()
	if l.current != nil {
		l.current.Close()
		l.current = nil
	}
	l.paused = false
	l.pausedAt = 0
	return nil
}

func (l *Launcher) Events() <-chan domain.OutputEvent {
	return l.events
}

func (l *Launcher) Close() error {
	return l.Stop()
}

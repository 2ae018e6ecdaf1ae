package adapter

import (
	"fmt"
	"log/slog"

	"github.com/mmcdole/tonearm/internal/player"
)

var (
	_ player.Output = (*Speaker)(nil)
	_ player.Output = (*Launcher)(nil)

	_ player.MediaSession = (*MPRIS)(nil)
)

// NewOutput builds the audio output selected in the player config.
func NewOutput(cfg *PlayerConfig, logger *slog.Logger) (player.Output, error) {
	switch cfg.Output {
	case OutputSpeaker, "":
		return NewSpeaker(logger), nil
	case OutputExternal:
		return NewLauncher(cfg.Command, cfg.Args, cfg.StartFlag, logger)
	default:
		return nil, fmt.Errorf("unknown player output %q (want %q or %q)", cfg.Output, OutputSpeaker, OutputExternal)
	}
}

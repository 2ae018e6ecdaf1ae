package player

import (
	"github.com/mmcdole/tonearm/internal/domain"
	"github.com/mmcdole/tonearm/internal/queue"
)

type transition func(c *Controller, ev domain.OutputEvent)

// transitions maps (state, device event) to a handler. Missing entries are
// ignored: while Loading or Idle, device events belong to a track that is
// no longer current.
var transitions = map[domain.State]map[domain.OutputEventKind]transition{
	domain.StatePlaying: {
		domain.OutputPause: (*Controller).devicePaused,
		domain.OutputEnded: (*Controller).trackEnded,
		domain.OutputError: (*Controller).deviceFailed,
	},
	domain.StatePaused: {
		domain.OutputPlay:  (*Controller).devicePlaying,
		domain.OutputEnded: (*Controller).trackEnded,
		domain.OutputError: (*Controller).deviceFailed,
	},
}

func (c *Controller) handleEvent(ev domain.OutputEvent) {
	fn, ok := transitions[c.state][ev.Kind]
	if !ok {
		c.logger.Debug("ignoring output event", "event", ev.Kind.String(), "state", c.state.String())
		return
	}
	fn(c, ev)
}

func (c *Controller) devicePaused(domain.OutputEvent) {
	c.state = domain.StatePaused
	c.media.SetState(c.state)
	c.publish()
}

func (c *Controller) devicePlaying(domain.OutputEvent) {
	c.state = domain.StatePlaying
	c.media.SetState(c.state)
	c.publish()
}

func (c *Controller) deviceFailed(ev domain.OutputEvent) {
	c.fail(ev.Err)
}

// trackEnded repeats the track, advances, or settles paused at the start
// of the track when the queue is exhausted.
func (c *Controller) trackEnded(domain.OutputEvent) {
	if c.queue.Repeat() == domain.RepeatTrack {
		c.restart(true)
		return
	}

	step := c.queue.Advance()
	if step.Kind == queue.StepIndex {
		c.selectIndex(step.Index)
		return
	}

	if err := c.output.Pause(); err != nil {
		c.logger.Warn("failed to pause finished track", "error", err)
	}
	if err := c.output.Seek(0); err != nil {
		c.logger.Debug("finished track cannot rewind", "error", err)
		c.spent = true
	}
	c.state = domain.StatePaused
	c.media.SetState(c.state)
	c.publish()
}

package tui

import "github.com/mmcdole/tonearm/internal/domain"

// ChannelObserver adapts domain.CacheObserver to a channel for Bubble Tea.
type ChannelObserver struct {
	ch chan<- domain.CacheEvent
}

// NewChannelObserver creates a new channel-based observer.
func NewChannelObserver(ch chan<- domain.CacheEvent) *ChannelObserver {
	return &ChannelObserver{ch: ch}
}

// OnCached sends the event to the channel (non-blocking if full).
func (o *ChannelObserver) OnCached(ev domain.CacheEvent) {
	select {
	case o.ch <- ev:
	default: // Non-blocking if channel full
	}
}

package adapter

import (
	"encoding/hex"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/godbus/dbus/v5"
	"github.com/godbus/dbus/v5/introspect"
	"github.com/godbus/dbus/v5/prop"
	"github.com/mmcdole/tonearm/internal/domain"
)

const (
	mprisBusName     = "org.mpris.MediaPlayer2.tonearm"
	mprisPath        = dbus.ObjectPath("/org/mpris/MediaPlayer2")
	mprisRootIface   = "org.mpris.MediaPlayer2"
	mprisPlayerIface = "org.mpris.MediaPlayer2.Player"
	mprisNoTrack     = dbus.ObjectPath("/org/mpris/MediaPlayer2/TrackList/NoTrack")
)

// Transport is the playback surface remote media keys drive.
type Transport interface {
	Toggle() error
	Pause() error
	Resume() error
	Next() error
	Previous() error
	Stop() error
	SeekTo(pos time.Duration) error
	Status() domain.PlaybackStatus
}

// MPRIS publishes now-playing state on the session bus and forwards media
// key presses to a Transport.
type MPRIS struct {
	conn   *dbus.Conn
	props  *prop.Properties
	logger *slog.Logger

	mu        sync.Mutex
	transport Transport
	trackID   dbus.ObjectPath
}

// NewMPRIS claims the tonearm MPRIS name. It fails when no session bus is
// reachable or another instance owns the name.
func NewMPRIS(logger *slog.Logger) (*MPRIS, error) {
	if logger == nil {
		logger = slog.Default()
	}

	conn, err := dbus.ConnectSessionBus()
	if err != nil {
		return nil, fmt.Errorf("connect session bus: %w", err)
	}

	m := &MPRIS{conn: conn, logger: logger, trackID: mprisNoTrack}
	if err := m.export(); err != nil {
		conn.Close()
		return nil, err
	}

	reply, err := conn.RequestName(mprisBusName, dbus.NameFlagDoNotQueue)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("request bus name: %w", err)
	}
	if reply != dbus.RequestNameReplyPrimaryOwner {
		conn.Close()
		return nil, fmt.Errorf("bus name %s already taken", mprisBusName)
	}

	logger.Info("media session registered", "name", mprisBusName)
	return m, nil
}

func (m *MPRIS) export() error {
	root := mprisRoot{}
	playerObj := &mprisPlayer{m: m}

	if err := m.conn.Export(root, mprisPath, mprisRootIface); err != nil {
		return fmt.Errorf("export root: %w", err)
	}
	if err := m.conn.Export(playerObj, mprisPath, mprisPlayerIface); err != nil {
		return fmt.Errorf("export player: %w", err)
	}

	props, err := prop.Export(m.conn, mprisPath, prop.Map{
		mprisRootIface:   rootProps(),
		mprisPlayerIface: playerProps(),
	})
	if err != nil {
		return fmt.Errorf("export properties: %w", err)
	}
	m.props = props

	node := &introspect.Node{
		Name: string(mprisPath),
		Interfaces: []introspect.Interface{
			introspect.IntrospectData,
			prop.IntrospectData,
			{
				Name:       mprisRootIface,
				Methods:    introspect.Methods(root),
				Properties: props.Introspection(mprisRootIface),
			},
			{
				Name:       mprisPlayerIface,
				Methods:    introspect.Methods(playerObj),
				Properties: props.Introspection(mprisPlayerIface),
				Signals: []introspect.Signal{{
					Name: "Seeked",
					Args: []introspect.Arg{{Name: "Position", Type: "x"}},
				}},
			},
		},
	}
	if err := m.conn.Export(introspect.NewIntrospectable(node), mprisPath, "org.freedesktop.DBus.Introspectable"); err != nil {
		return fmt.Errorf("export introspection: %w", err)
	}
	return nil
}

func rootProps() map[string]*prop.Prop {
	return map[string]*prop.Prop{
		"CanQuit":             {Value: false, Emit: prop.EmitTrue},
		"CanRaise":            {Value: false, Emit: prop.EmitTrue},
		"HasTrackList":        {Value: false, Emit: prop.EmitTrue},
		"Identity":            {Value: "tonearm", Emit: prop.EmitTrue},
		"SupportedUriSchemes": {Value: []string{}, Emit: prop.EmitTrue},
		"SupportedMimeTypes":  {Value: []string{"audio/mpeg"}, Emit: prop.EmitTrue},
	}
}

func playerProps() map[string]*prop.Prop {
	return map[string]*prop.Prop{
		"PlaybackStatus": {Value: "Stopped", Emit: prop.EmitTrue},
		"LoopStatus":     {Value: "None", Emit: prop.EmitTrue},
		"Rate":           {Value: 1.0, Emit: prop.EmitTrue},
		"Shuffle":        {Value: false, Emit: prop.EmitTrue},
		"Metadata":       {Value: map[string]dbus.Variant{"mpris:trackid": dbus.MakeVariant(mprisNoTrack)}, Emit: prop.EmitTrue},
		"Volume":         {Value: 1.0, Emit: prop.EmitTrue},
		"Position":       {Value: int64(0), Emit: prop.EmitFalse},
		"MinimumRate":    {Value: 1.0, Emit: prop.EmitTrue},
		"MaximumRate":    {Value: 1.0, Emit: prop.EmitTrue},
		"CanGoNext":      {Value: true, Emit: prop.EmitTrue},
		"CanGoPrevious":  {Value: true, Emit: prop.EmitTrue},
		"CanPlay":        {Value: true, Emit: prop.EmitTrue},
		"CanPause":       {Value: true, Emit: prop.EmitTrue},
		"CanSeek":        {Value: true, Emit: prop.EmitTrue},
		"CanControl":     {Value: true, Emit: prop.EmitFalse},
	}
}

// Attach routes remote commands to t and mirrors status updates until
// updates is closed.
func (m *MPRIS) Attach(t Transport, updates <-chan domain.PlaybackStatus) {
	m.mu.Lock()
	m.transport = t
	m.mu.Unlock()

	go func() {
		for st := range updates {
			m.props.SetMust(mprisPlayerIface, "Position", micros(st.Position))
			m.props.SetMust(mprisPlayerIface, "Shuffle", st.Shuffle)
			m.props.SetMust(mprisPlayerIface, "LoopStatus", loopStatus(st.Repeat))
		}
	}()
}

func (m *MPRIS) SetNowPlaying(np domain.NowPlaying) {
	id := trackPath(np.SongID)
	m.mu.Lock()
	m.trackID = id
	m.mu.Unlock()
	m.props.SetMust(mprisPlayerIface, "Metadata", metadataFor(np, id))
}

func (m *MPRIS) SetState(state domain.State) {
	m.props.SetMust(mprisPlayerIface, "PlaybackStatus", playbackStatus(state))
	if state == domain.StateIdle {
		m.mu.Lock()
		m.trackID = mprisNoTrack
		m.mu.Unlock()
		m.props.SetMust(mprisPlayerIface, "Metadata", map[string]dbus.Variant{"mpris:trackid": dbus.MakeVariant(mprisNoTrack)})
	}
}

func (m *MPRIS) seeked(pos time.Duration) {
	if m.conn == nil {
		return
	}
	if err := m.conn.Emit(mprisPath, mprisPlayerIface+".Seeked", micros(pos)); err != nil {
		m.logger.Warn("failed to emit seeked", "error", err)
	}
}

func (m *MPRIS) current() (Transport, dbus.ObjectPath) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.transport, m.trackID
}

// Close releases the bus name and connection.
func (m *MPRIS) Close() error {
	if _, err := m.conn.ReleaseName(mprisBusName); err != nil {
		m.logger.Debug("failed to release bus name", "error", err)
	}
	return m.conn.Close()
}

// trackPath encodes a song id into a valid object path element
func trackPath(id string) dbus.ObjectPath {
	if id == "" {
		return mprisNoTrack
	}
	return dbus.ObjectPath("/org/mpris/MediaPlayer2/tonearm/track/t" + hex.EncodeToString([]byte(id)))
}

func metadataFor(np domain.NowPlaying, id dbus.ObjectPath) map[string]dbus.Variant {
	md := map[string]dbus.Variant{
		"mpris:trackid": dbus.MakeVariant(id),
		"xesam:title":   dbus.MakeVariant(np.Title),
	}
	if np.Artist != "" {
		md["xesam:artist"] = dbus.MakeVariant([]string{np.Artist})
	}
	if np.Duration > 0 {
		md["mpris:length"] = dbus.MakeVariant(micros(np.Duration))
	}
	if np.ThumbnailURL != "" {
		md["mpris:artUrl"] = dbus.MakeVariant(np.ThumbnailURL)
	}
	return md
}

func playbackStatus(s domain.State) string {
	switch s {
	case domain.StatePlaying, domain.StateLoading:
		return "Playing"
	case domain.StatePaused:
		return "Paused"
	default:
		return "Stopped"
	}
}

func loopStatus(r domain.RepeatMode) string {
	switch r {
	case domain.RepeatQueue:
		return "Playlist"
	case domain.RepeatTrack:
		return "Track"
	default:
		return "None"
	}
}

func micros(d time.Duration) int64 {
	return d.Microseconds()
}

// mprisRoot implements org.mpris.MediaPlayer2.
type mprisRoot struct{}

func (mprisRoot) Raise() *dbus.Error { return nil }
func (mprisRoot) Quit() *dbus.Error  { return nil }

// mprisPlayer implements org.mpris.MediaPlayer2.Player.
type mprisPlayer struct {
	m *MPRIS
}

func (p *mprisPlayer) call(fn func(Transport) error) *dbus.Error {
	t, _ := p.m.current()
	if t == nil {
		return nil
	}
	if err := fn(t); err != nil {
		p.m.logger.Debug("media key command failed", "error", err)
		return dbus.MakeFailedError(err)
	}
	return nil
}

func (p *mprisPlayer) Next() *dbus.Error {
	return p.call(Transport.Next)
}

func (p *mprisPlayer) Previous() *dbus.Error {
	return p.call(Transport.Previous)
}

func (p *mprisPlayer) Pause() *dbus.Error {
	return p.call(Transport.Pause)
}

func (p *mprisPlayer) PlayPause() *dbus.Error {
	return p.call(Transport.Toggle)
}

func (p *mprisPlayer) Stop() *dbus.Error {
	return p.call(Transport.Stop)
}

func (p *mprisPlayer) Play() *dbus.Error {
	return p.call(func(t Transport) error {
		if t.Status().State == domain.StatePaused {
			return t.Resume()
		}
		if t.Status().State == domain.StateIdle {
			return t.Toggle()
		}
		return nil
	})
}

// Seek moves relative to the current position, in microseconds.
func (p *mprisPlayer) Seek(offset int64) *dbus.Error {
	return p.call(func(t Transport) error {
		pos := t.Status().Position + time.Duration(offset)*time.Microsecond
		if pos < 0 {
			pos = 0
		}
		if err := t.SeekTo(pos); err != nil {
			return err
		}
		p.m.seeked(pos)
		return nil
	})
}

// SetPosition is ignored unless trackID names the current track.
func (p *mprisPlayer) SetPosition(trackID dbus.ObjectPath, position int64) *dbus.Error {
	_, current := p.m.current()
	if trackID != current || position < 0 {
		return nil
	}
	return p.call(func(t Transport) error {
		pos := time.Duration(position) * time.Microsecond
		if err := t.SeekTo(pos); err != nil {
			return err
		}
		p.m.seeked(pos)
		return nil
	})
}

func (p *mprisPlayer) OpenUri(string) *dbus.Error {
	return dbus.MakeFailedError(fmt.Errorf("opening URIs is not supported"))
}

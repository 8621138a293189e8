// Package watch posts viewership heartbeats for up to two live broadcasters
// and maintains the watch-streak tracker.
package watch

import (
	"context"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/Graze/Graze/internal/registry"
	"github.com/Graze/Graze/internal/twitch"
)

const (
	// defaultInterval is the heartbeat cadence; offlineSleep is the backoff
	// when there is nothing to watch or no telemetry endpoint yet.
	defaultInterval = 10 * time.Second
	offlineSleep    = time.Minute

	// maxWatched is the platform's concurrent watch credit limit.
	maxWatched = 2

	// streakTicks is how long a fresh stream stays pinned to the front of
	// the watch list; at the default cadence that is ten minutes, enough to
	// bank the streak credit.
	streakTicks = 60
)

// Sender posts a heartbeat to the telemetry endpoint.
type Sender interface {
	SendMinuteWatched(ctx context.Context, spadeURL string, watched twitch.MinuteWatched) error
}

// Loop runs the heartbeat cycle.
type Loop struct {
	reg      *registry.Registry
	sender   Sender
	priority func() []string
	interval time.Duration
	log      zerolog.Logger

	// streaks receives channel ids on stream-up; nil when the watch-streak
	// feature is disabled.
	streaks <-chan int64
	tracker []streakEntry
}

type streakEntry struct {
	channelID int64
	ticks     int
}

// Options configures a Loop.
type Options struct {
	Registry *registry.Registry
	Sender   Sender
	// Priority returns the current watch_priority names, in order. Called
	// every tick so control-plane updates take effect immediately.
	Priority func() []string
	Streaks  <-chan int64
	Interval time.Duration // defaults to 10s
	Logger   zerolog.Logger
}

// New builds a Loop.
func New(opts Options) *Loop {
	if opts.Interval <= 0 {
		opts.Interval = defaultInterval
	}
	if opts.Priority == nil {
		opts.Priority = func() []string { return nil }
	}
	return &Loop{
		reg:      opts.Registry,
		sender:   opts.Sender,
		priority: opts.Priority,
		interval: opts.Interval,
		streaks:  opts.Streaks,
		log:      opts.Logger.With().Str("component", "watch").Logger(),
	}
}

// Run ticks until stopCh closes. A tick with nothing to watch backs off to
// the offline cadence.
func (l *Loop) Run(stopCh <-chan struct{}) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		<-stopCh
		cancel()
	}()

	timer := time.NewTimer(l.interval)
	defer timer.Stop()
	for {
		select {
		case <-stopCh:
			return
		case <-timer.C:
		}
		if l.Tick(ctx) {
			timer.Reset(l.interval)
		} else {
			timer.Reset(offlineSleep)
		}
	}
}

// Tick runs one heartbeat cycle and reports whether anything was watchable.
func (l *Loop) Tick(ctx context.Context) bool {
	l.drainStreaks()

	spadeURL := l.reg.SpadeURL()
	live := l.reg.Live()
	if spadeURL == "" || len(live) == 0 {
		return false
	}

	items := l.watchItems(live)
	if len(items) > maxWatched {
		items = items[:maxWatched]
	}

	userID, login := l.reg.User()
	for _, snap := range items {
		watched := twitch.MinuteWatched{
			ChannelID:   snapChannelID(snap),
			BroadcastID: snap.BroadcastID,
			Live:        true,
			Channel:     snap.Name,
			UserID:      userID,
			Login:       login,
		}
		if err := l.sender.SendMinuteWatched(ctx, spadeURL, watched); err != nil {
			l.log.Error().Err(err).Str("streamer", snap.Name).Msg("minute-watched failed")
		}
	}

	l.ageStreaks()
	return true
}

func snapChannelID(snap registry.Snapshot) string {
	return strconv.FormatInt(snap.ID, 10)
}

// watchItems orders the live set: streak entries first, then watch_priority,
// then the rest.
func (l *Loop) watchItems(live []registry.Snapshot) []registry.Snapshot {
	byID := make(map[int64]registry.Snapshot, len(live))
	byName := make(map[string]registry.Snapshot, len(live))
	for _, s := range live {
		byID[s.ID] = s
		byName[s.Name] = s
	}

	var items []registry.Snapshot
	seen := map[int64]bool{}
	push := func(s registry.Snapshot) {
		if !seen[s.ID] {
			seen[s.ID] = true
			items = append(items, s)
		}
	}

	for _, entry := range l.tracker {
		if s, ok := byID[entry.channelID]; ok {
			push(s)
		}
	}
	for _, name := range l.priority() {
		if s, ok := byName[name]; ok {
			push(s)
		}
	}
	for _, s := range live {
		push(s)
	}
	return items
}

func (l *Loop) drainStreaks() {
	if l.streaks == nil {
		return
	}
	for {
		select {
		case id := <-l.streaks:
			if !l.reg.Has(id) {
				continue
			}
			if !l.hasStreak(id) {
				l.tracker = append(l.tracker, streakEntry{channelID: id})
				l.log.Debug().Int64("channel", id).Msg("streak watch started")
			}
		default:
			return
		}
	}
}

func (l *Loop) hasStreak(id int64) bool {
	for _, e := range l.tracker {
		if e.channelID == id {
			return true
		}
	}
	return false
}

func (l *Loop) ageStreaks() {
	kept := l.tracker[:0]
	for _, e := range l.tracker {
		e.ticks++
		if e.ticks < streakTicks {
			kept = append(kept, e)
		}
	}
	l.tracker = kept
}

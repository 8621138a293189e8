package poller

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/Graze/Graze/internal/registry"
	"github.com/Graze/Graze/internal/twitch"
)

type fakePlatform struct {
	infos    []*twitch.ChannelInfo
	metaErr  error
	spadeURL string
	spadeErr error

	metaCalls  int
	spadeCalls int
}

func (f *fakePlatform) StreamerMetadata(ctx context.Context, logins []string) ([]*twitch.ChannelInfo, error) {
	f.metaCalls++
	if f.metaErr != nil {
		return nil, f.metaErr
	}
	return f.infos, nil
}

func (f *fakePlatform) ResolveURL(ctx context.Context, channel string) (string, error) {
	f.spadeCalls++
	if f.spadeErr != nil {
		return "", f.spadeErr
	}
	return f.spadeURL, nil
}

type fakeRoster struct{ snaps []registry.Snapshot }

func (f *fakeRoster) All() []registry.Snapshot { return f.snaps }

func newTestPoller(platform *fakePlatform, roster *fakeRoster, events chan Event) *LivePoller {
	return New(Options{
		Metadata: platform,
		Spade:    platform,
		Roster:   roster,
		Events:   events,
		Interval: time.Minute,
		Logger:   zerolog.Nop(),
	})
}

func drain(events chan Event) []Event {
	var out []Event
	for {
		select {
		case ev := <-events:
			out = append(out, ev)
		default:
			return out
		}
	}
}

func TestCycleEmitsOnLivenessChange(t *testing.T) {
	bid := "b1"
	platform := &fakePlatform{
		infos:    []*twitch.ChannelInfo{{ID: 1, Login: "alpha", Live: true, BroadcastID: &bid}},
		spadeURL: "https://spade.example/track",
	}
	roster := &fakeRoster{snaps: []registry.Snapshot{{ID: 1, Name: "alpha"}}}
	events := make(chan Event, 16)
	p := newTestPoller(platform, roster, events)
	stop := make(chan struct{})

	p.Cycle(context.Background(), stop)
	got := drain(events)
	if len(got) != 2 {
		t.Fatalf("events = %v, want live + spade", got)
	}
	live, ok := got[0].(Live)
	if !ok || live.ChannelID != 1 || live.BroadcastID == nil || *live.BroadcastID != "b1" {
		t.Fatalf("live event = %+v", got[0])
	}
	if spade, ok := got[1].(SpadeUpdate); !ok || spade.URL != "https://spade.example/track" {
		t.Fatalf("spade event = %+v", got[1])
	}

	// router applied the transition; an unchanged cycle is silent
	roster.snaps[0].Live = true
	roster.snaps[0].BroadcastID = &bid
	p.Cycle(context.Background(), stop)
	if got := drain(events); len(got) != 0 {
		t.Fatalf("unchanged cycle emitted %v", got)
	}

	// offline transition
	platform.infos[0].Live = false
	platform.infos[0].BroadcastID = nil
	p.Cycle(context.Background(), stop)
	got = drain(events)
	if len(got) != 1 {
		t.Fatalf("events = %v, want one offline transition", got)
	}
	if live := got[0].(Live); live.BroadcastID != nil {
		t.Fatalf("offline event carries broadcast id: %+v", live)
	}
}

func TestNewBroadcastIDCountsAsChange(t *testing.T) {
	oldID, newID := "b1", "b2"
	platform := &fakePlatform{
		infos: []*twitch.ChannelInfo{{ID: 1, Login: "alpha", Live: true, BroadcastID: &newID}},
	}
	roster := &fakeRoster{snaps: []registry.Snapshot{{ID: 1, Name: "alpha", Live: true, BroadcastID: &oldID}}}
	events := make(chan Event, 16)
	p := newTestPoller(platform, roster, events)

	p.Cycle(context.Background(), make(chan struct{}))
	got := drain(events)
	if len(got) == 0 {
		t.Fatal("restarted stream did not emit")
	}
	if live := got[0].(Live); *live.BroadcastID != "b2" {
		t.Fatalf("live event = %+v", live)
	}
}

func TestSpadeRefreshCadence(t *testing.T) {
	bid := "b1"
	platform := &fakePlatform{
		infos:    []*twitch.ChannelInfo{{ID: 1, Login: "alpha", Live: true, BroadcastID: &bid}},
		spadeURL: "https://spade.example/track",
	}
	roster := &fakeRoster{snaps: []registry.Snapshot{{ID: 1, Name: "alpha", Live: true, BroadcastID: &bid}}}
	events := make(chan Event, 64)
	p := newTestPoller(platform, roster, events)
	stop := make(chan struct{})

	for i := 0; i < 21; i++ {
		p.Cycle(context.Background(), stop)
	}
	if platform.spadeCalls != 3 {
		t.Fatalf("spade resolved %d times over 21 cycles, want 3", platform.spadeCalls)
	}
}

func TestFailedCycleIsSilent(t *testing.T) {
	platform := &fakePlatform{metaErr: errors.New("edge down")}
	roster := &fakeRoster{snaps: []registry.Snapshot{{ID: 1, Name: "alpha"}}}
	events := make(chan Event, 16)
	p := newTestPoller(platform, roster, events)

	p.Cycle(context.Background(), make(chan struct{}))
	if got := drain(events); len(got) != 0 {
		t.Fatalf("failed cycle emitted %v", got)
	}

	platform.metaErr = nil
	bid := "b1"
	platform.infos = []*twitch.ChannelInfo{{ID: 1, Login: "alpha", Live: true, BroadcastID: &bid}}
	p.Cycle(context.Background(), make(chan struct{}))
	if got := drain(events); len(got) == 0 {
		t.Fatal("recovered cycle did not emit")
	}
}

func TestUnknownStreamerIsSkipped(t *testing.T) {
	platform := &fakePlatform{infos: []*twitch.ChannelInfo{nil}}
	roster := &fakeRoster{snaps: []registry.Snapshot{{ID: 1, Name: "ghost"}}}
	events := make(chan Event, 16)
	p := newTestPoller(platform, roster, events)

	p.Cycle(context.Background(), make(chan struct{}))
	if got := drain(events); len(got) != 0 {
		t.Fatalf("unknown streamer emitted %v", got)
	}
}

package watch

import (
	"context"
	"sync"
	"testing"

	"github.com/rs/zerolog"

	"github.com/Graze/Graze/internal/registry"
	"github.com/Graze/Graze/internal/twitch"
)

type fakeSender struct {
	mu    sync.Mutex
	sends []twitch.MinuteWatched
}

func (f *fakeSender) SendMinuteWatched(ctx context.Context, spadeURL string, watched twitch.MinuteWatched) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sends = append(f.sends, watched)
	return nil
}

func (f *fakeSender) drain() []twitch.MinuteWatched {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := f.sends
	f.sends = nil
	return out
}

func liveRegistry(t *testing.T, names ...string) *registry.Registry {
	t.Helper()
	reg := registry.New(1000, "miner")
	for i, name := range names {
		id := int64(i + 1)
		if !reg.Add(&registry.Broadcaster{ID: id, Name: name}) {
			t.Fatalf("seed %s", name)
		}
		bid := "b" + name
		reg.SetLive(id, &bid)
	}
	reg.SetSpadeURL("https://spade.example/track")
	return reg
}

func watchedNames(sends []twitch.MinuteWatched) []string {
	out := make([]string, len(sends))
	for i, s := range sends {
		out[i] = s.Channel
	}
	return out
}

func TestTickWatchesAtMostTwo(t *testing.T) {
	reg := liveRegistry(t, "alpha", "beta", "gamma")
	sender := &fakeSender{}
	l := New(Options{Registry: reg, Sender: sender, Logger: zerolog.Nop()})

	if !l.Tick(context.Background()) {
		t.Fatal("tick reported nothing watchable")
	}
	sends := sender.drain()
	if len(sends) != 2 {
		t.Fatalf("sends = %v", watchedNames(sends))
	}
	first := sends[0]
	if first.UserID != 1000 || first.Login != "miner" || first.BroadcastID == nil || !first.Live {
		t.Fatalf("payload = %+v", first)
	}
}

func TestPriorityOrdersWatchList(t *testing.T) {
	reg := liveRegistry(t, "alpha", "beta", "gamma")
	sender := &fakeSender{}
	l := New(Options{
		Registry: reg,
		Sender:   sender,
		Priority: func() []string { return []string{"gamma", "beta"} },
		Logger:   zerolog.Nop(),
	})

	l.Tick(context.Background())
	got := watchedNames(sender.drain())
	if len(got) != 2 || got[0] != "gamma" || got[1] != "beta" {
		t.Fatalf("watched = %v, want [gamma beta]", got)
	}
}

func TestNoSpadeURLSkipsCycle(t *testing.T) {
	reg := liveRegistry(t, "alpha")
	reg.SetSpadeURL("")
	sender := &fakeSender{}
	l := New(Options{Registry: reg, Sender: sender, Logger: zerolog.Nop()})

	if l.Tick(context.Background()) {
		t.Fatal("tick without spade url should report unwatchable")
	}
	if sends := sender.drain(); len(sends) != 0 {
		t.Fatalf("sent without endpoint: %v", watchedNames(sends))
	}
}

func TestNobodyLiveSkipsCycle(t *testing.T) {
	reg := liveRegistry(t, "alpha")
	reg.SetLive(1, nil)
	sender := &fakeSender{}
	l := New(Options{Registry: reg, Sender: sender, Logger: zerolog.Nop()})

	if l.Tick(context.Background()) {
		t.Fatal("tick with nobody live should report unwatchable")
	}
}

func TestStreakEntryIsPrepended(t *testing.T) {
	reg := liveRegistry(t, "alpha", "beta", "gamma")
	sender := &fakeSender{}
	streaks := make(chan int64, 4)
	l := New(Options{
		Registry: reg,
		Sender:   sender,
		Priority: func() []string { return []string{"alpha"} },
		Streaks:  streaks,
		Logger:   zerolog.Nop(),
	})

	streaks <- 3 // gamma just went live
	l.Tick(context.Background())
	got := watchedNames(sender.drain())
	if len(got) != 2 || got[0] != "gamma" || got[1] != "alpha" {
		t.Fatalf("watched = %v, want streak first then priority", got)
	}
}

func TestStreakEntryAgesOut(t *testing.T) {
	reg := liveRegistry(t, "alpha", "beta")
	sender := &fakeSender{}
	streaks := make(chan int64, 4)
	l := New(Options{
		Registry: reg,
		Sender:   sender,
		Priority: func() []string { return []string{"alpha"} },
		Streaks:  streaks,
		Logger:   zerolog.Nop(),
	})

	streaks <- 2 // beta
	for i := 0; i < streakTicks; i++ {
		l.Tick(context.Background())
		got := watchedNames(sender.drain())
		if got[0] != "beta" {
			t.Fatalf("tick %d watched %v, want beta pinned", i, got)
		}
	}

	l.Tick(context.Background())
	got := watchedNames(sender.drain())
	if got[0] != "alpha" {
		t.Fatalf("aged-out streak still pinned: %v", got)
	}
}

func TestUnregisteredStreakIsDropped(t *testing.T) {
	reg := liveRegistry(t, "alpha")
	sender := &fakeSender{}
	streaks := make(chan int64, 4)
	l := New(Options{Registry: reg, Sender: sender, Streaks: streaks, Logger: zerolog.Nop()})

	streaks <- 99
	l.Tick(context.Background())
	if len(l.tracker) != 0 {
		t.Fatalf("tracker = %+v", l.tracker)
	}
}

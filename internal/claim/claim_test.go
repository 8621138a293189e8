package claim

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"

	"github.com/Graze/Graze/internal/analytics"
	"github.com/Graze/Graze/internal/registry"
	"github.com/Graze/Graze/internal/twitch"
)

type fakePlatform struct {
	balances  map[string]twitch.PointsBalance
	pointsErr error
	claimErr  error

	claims []string
}

func (f *fakePlatform) ChannelPoints(ctx context.Context, logins []string) ([]twitch.PointsBalance, error) {
	if f.pointsErr != nil {
		return nil, f.pointsErr
	}
	out := make([]twitch.PointsBalance, len(logins))
	for i, login := range logins {
		out[i] = f.balances[login]
	}
	return out, nil
}

func (f *fakePlatform) ClaimPoints(ctx context.Context, channelID, claimID string) (int64, error) {
	if f.claimErr != nil {
		return 0, f.claimErr
	}
	f.claims = append(f.claims, claimID)
	return 999, nil
}

type fakeRecorder struct{ units []analytics.WorkUnit }

func (f *fakeRecorder) Submit(u analytics.WorkUnit) { f.units = append(f.units, u) }

func newTestClaimer(t *testing.T, platform *fakePlatform) (*Claimer, *fakeRecorder, *registry.Registry) {
	t.Helper()
	reg := registry.New(1000, "miner")
	for i, name := range []string{"alpha", "beta"} {
		id := int64(i + 1)
		if !reg.Add(&registry.Broadcaster{ID: id, Name: name}) {
			t.Fatalf("seed %s", name)
		}
		bid := "b" + name
		reg.SetLive(id, &bid)
	}
	store := &fakeRecorder{}
	return New(Options{Registry: reg, Platform: platform, Store: store, Logger: zerolog.Nop()}), store, reg
}

func TestCycleRefreshesBalances(t *testing.T) {
	platform := &fakePlatform{balances: map[string]twitch.PointsBalance{
		"alpha": {Balance: 100},
		"beta":  {Balance: 200},
	}}
	c, store, reg := newTestClaimer(t, platform)

	c.Cycle(context.Background())

	if balance, _, _ := reg.Points(1); balance != 100 {
		t.Fatalf("alpha balance = %d", balance)
	}
	if balance, _, _ := reg.Points(2); balance != 200 {
		t.Fatalf("beta balance = %d", balance)
	}
	if len(store.units) != 2 {
		t.Fatalf("units = %d, want 2", len(store.units))
	}
	u := store.units[0].(analytics.InsertPointsIfUpdated)
	if u.Info.Kind() != "Watching" {
		t.Fatalf("info = %v, want Watching", u.Info.Kind())
	}
}

func TestCycleClaimsBonus(t *testing.T) {
	platform := &fakePlatform{balances: map[string]twitch.PointsBalance{
		"alpha": {Balance: 100, ClaimID: "claim-1"},
		"beta":  {Balance: 200},
	}}
	c, store, reg := newTestClaimer(t, platform)

	c.Cycle(context.Background())

	if len(platform.claims) != 1 || platform.claims[0] != "claim-1" {
		t.Fatalf("claims = %v", platform.claims)
	}
	// the claimed balance wins over the fetched one
	if balance, _, _ := reg.Points(1); balance != 999 {
		t.Fatalf("alpha balance = %d, want post-claim 999", balance)
	}
	u := store.units[0].(analytics.InsertPointsIfUpdated)
	if u.Info.Kind() != "CommunityPointsClaimed" || u.Value != 999 {
		t.Fatalf("unit = %+v", u)
	}
}

func TestFailedClaimFallsBackToFetchedBalance(t *testing.T) {
	platform := &fakePlatform{
		balances: map[string]twitch.PointsBalance{
			"alpha": {Balance: 100, ClaimID: "claim-1"},
			"beta":  {Balance: 200},
		},
		claimErr: errors.New("claim expired"),
	}
	c, _, reg := newTestClaimer(t, platform)

	c.Cycle(context.Background())
	if balance, _, _ := reg.Points(1); balance != 100 {
		t.Fatalf("alpha balance = %d, want fetched 100", balance)
	}
}

func TestFailedBatchLeavesStateUntouched(t *testing.T) {
	platform := &fakePlatform{pointsErr: errors.New("edge down")}
	c, store, reg := newTestClaimer(t, platform)

	c.Cycle(context.Background())
	if len(store.units) != 0 {
		t.Fatalf("units = %v", store.units)
	}
	if balance, _, _ := reg.Points(1); balance != 0 {
		t.Fatalf("balance mutated on failure: %d", balance)
	}
}

func TestOfflineChannelsAreSkipped(t *testing.T) {
	platform := &fakePlatform{balances: map[string]twitch.PointsBalance{
		"alpha": {Balance: 100},
		"beta":  {Balance: 200},
	}}
	c, store, reg := newTestClaimer(t, platform)
	reg.SetLive(2, nil)

	c.Cycle(context.Background())
	if len(store.units) != 1 {
		t.Fatalf("units = %d, want 1", len(store.units))
	}
	if balance, _, _ := reg.Points(2); balance != 0 {
		t.Fatalf("offline channel refreshed: %d", balance)
	}
}

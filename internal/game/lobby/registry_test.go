package lobby_test

import (
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
	"pgregory.net/rapid"

	"github.com/tilestrike/arena/internal/game/gameerr"
	"github.com/tilestrike/arena/internal/game/lobby"
	"github.com/tilestrike/arena/internal/game/rng"
)

// sentEvent is one recorded Send call.
type sentEvent struct {
	ConnectionID string
	Event        string
	Payload      any
}

// fakeSender records every event for later assertions. Safe for concurrent
// use so timer callbacks can broadcast during a test.
type fakeSender struct {
	mu     sync.Mutex
	events []sentEvent
}

func (f *fakeSender) Send(connectionID, event string, payload any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, sentEvent{connectionID, event, payload})
}

// byEvent returns all recorded events with the given name.
func (f *fakeSender) byEvent(event string) []sentEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []sentEvent
	for _, e := range f.events {
		if e.Event == event {
			out = append(out, e)
		}
	}
	return out
}

// fakeStarter records start tickets. Safe for concurrent use.
type fakeStarter struct {
	mu      sync.Mutex
	tickets []lobby.StartTicket
}

func (f *fakeStarter) StartSession(t lobby.StartTicket) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tickets = append(f.tickets, t)
}

func (f *fakeStarter) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.tickets)
}

func newTestRegistry(timeout time.Duration) (*lobby.Registry, *fakeSender, *fakeStarter) {
	sender := &fakeSender{}
	starter := &fakeStarter{}
	reg := lobby.NewRegistry(rng.NewSeededSource(1), sender, starter, timeout, "escrow-1", zap.NewNop())
	return reg, sender, starter
}

func TestCreate(t *testing.T) {
	reg, sender, _ := newTestRegistry(30 * time.Second)

	code := reg.Create("p1", "Alice", "rifle", "conn-1")
	assert.Regexp(t, regexp.MustCompile(`^[A-Z0-9]{6}$`), code)
	assert.Equal(t, 1, reg.Count())

	data := sender.byEvent(lobby.EventLobbyData)
	require.Len(t, data, 1)
	snap := data[0].Payload.(lobby.Snapshot)
	assert.Equal(t, code, snap.Code)
	assert.Equal(t, "p1", snap.OwnerID)
	require.Len(t, snap.Players, 1)
	assert.Equal(t, "Alice", snap.Players[0].Name)
	assert.True(t, snap.Players[0].Connected)
	assert.Equal(t, lobby.DefaultSettings(), snap.Settings, "fresh lobbies open startable")
}

func TestJoin(t *testing.T) {
	reg, sender, _ := newTestRegistry(30 * time.Second)
	code := reg.Create("p1", "Alice", "rifle", "conn-1")

	require.NoError(t, reg.Join(code, "p2", "Bob", "shotgun", "conn-2"))

	snap, ok := reg.Snapshot(code)
	require.True(t, ok)
	require.Len(t, snap.Players, 2)
	assert.Equal(t, "p1", snap.OwnerID, "joining must not change ownership")

	updates := sender.byEvent(lobby.EventLobbyUpdate)
	assert.NotEmpty(t, updates)
	msgs := sender.byEvent(lobby.EventMessage)
	require.NotEmpty(t, msgs)
	assert.Equal(t, "Bob joined the lobby", msgs[len(msgs)-1].Payload)
}

func TestJoin_NormalizesCode(t *testing.T) {
	reg, _, _ := newTestRegistry(30 * time.Second)
	code := reg.Create("p1", "Alice", "", "conn-1")

	err := reg.Join("  "+code+" ", "p2", "Bob", "", "conn-2")
	assert.NoError(t, err)
}

func TestJoin_UnknownCode(t *testing.T) {
	reg, _, _ := newTestRegistry(30 * time.Second)
	err := reg.Join("NOPE99", "p2", "Bob", "", "conn-2")
	assert.ErrorIs(t, err, gameerr.ErrNotFound)
}

// TestJoin_ReconnectRebinds verifies that joining with an id already in the
// lobby is a reconnect: the member keeps their slot, the connection and
// loadout are rebound, and no duplicate appears.
func TestJoin_ReconnectRebinds(t *testing.T) {
	reg, _, _ := newTestRegistry(30 * time.Second)
	code := reg.Create("p1", "Alice", "rifle", "conn-1")
	require.NoError(t, reg.Join(code, "p2", "Bob", "shotgun", "conn-2"))

	reg.Disconnect("conn-2")
	require.NoError(t, reg.Join(code, "p2", "Bob", "sniper", "conn-9"))

	snap, ok := reg.Snapshot(code)
	require.True(t, ok)
	require.Len(t, snap.Players, 2, "reconnect must not duplicate the member")
	assert.Equal(t, "sniper", snap.Players[1].Loadout)
	assert.True(t, snap.Players[1].Connected)

	id, ok := reg.PlayerByConnection(code, "conn-9")
	require.True(t, ok)
	assert.Equal(t, "p2", id)
}

func TestLeave_TransfersOwnership(t *testing.T) {
	reg, _, _ := newTestRegistry(30 * time.Second)
	code := reg.Create("p1", "Alice", "", "conn-1")
	require.NoError(t, reg.Join(code, "p2", "Bob", "", "conn-2"))

	reg.Leave(code, "p1")

	snap, ok := reg.Snapshot(code)
	require.True(t, ok)
	assert.Equal(t, "p2", snap.OwnerID, "ownership must pass to the first remaining player")
	require.Len(t, snap.Players, 1)
}

func TestLeave_LastPlayerDeletesLobby(t *testing.T) {
	reg, _, _ := newTestRegistry(30 * time.Second)
	code := reg.Create("p1", "Alice", "", "conn-1")

	reg.Leave(code, "p1")
	assert.Equal(t, 0, reg.Count())
}

func TestLeave_UnknownIsSilent(t *testing.T) {
	reg, _, _ := newTestRegistry(30 * time.Second)
	code := reg.Create("p1", "Alice", "", "conn-1")

	reg.Leave("NOPE99", "p1")
	reg.Leave(code, "ghost")
	assert.Equal(t, 1, reg.Count())
}

func TestUpdateSettings_OwnerOnly(t *testing.T) {
	reg, _, _ := newTestRegistry(30 * time.Second)
	code := reg.Create("p1", "Alice", "", "conn-1")
	require.NoError(t, reg.Join(code, "p2", "Bob", "", "conn-2"))

	err := reg.UpdateSettings(code, "p2", lobby.SettingsPatch{GameTime: intPtr(5)})
	assert.ErrorIs(t, err, gameerr.ErrUnauthorized)

	require.NoError(t, reg.UpdateSettings(code, "p1", lobby.SettingsPatch{
		GameTime: intPtr(5),
		Map:      strPtr("snow"),
		GameType: strPtr(lobby.GameTypeFriendly),
	}))

	snap, _ := reg.Snapshot(code)
	assert.Equal(t, 5, snap.Settings.GameTime)
	assert.Equal(t, "snow", snap.Settings.Map)
}

func TestStart_Friendly(t *testing.T) {
	reg, sender, starter := newTestRegistry(30 * time.Second)
	code := reg.Create("p1", "Alice", "rifle", "conn-1")
	require.NoError(t, reg.Join(code, "p2", "Bob", "shotgun", "conn-2"))
	require.NoError(t, reg.UpdateSettings(code, "p1", lobby.SettingsPatch{
		GameTime: intPtr(5),
		Map:      strPtr("snow"),
		GameType: strPtr(lobby.GameTypeFriendly),
	}))

	require.NoError(t, reg.Start(code, "p1"))

	assert.Equal(t, 0, reg.Count(), "started lobby must be deleted")
	assert.NotEmpty(t, sender.byEvent(lobby.EventGameStarting))
	require.Equal(t, 1, starter.count())

	ticket := starter.tickets[0]
	assert.Equal(t, code, ticket.Code)
	assert.Len(t, ticket.Players, 2)
	assert.Nil(t, ticket.Staking, "friendly games carry no staking")
}

func TestStart_Guards(t *testing.T) {
	reg, _, _ := newTestRegistry(30 * time.Second)
	code := reg.Create("p1", "Alice", "", "conn-1")

	assert.ErrorIs(t, reg.Start("NOPE99", "p1"), gameerr.ErrNotFound)
	assert.ErrorIs(t, reg.Start(code, "p2"), gameerr.ErrUnauthorized)
	assert.ErrorIs(t, reg.Start(code, "p1"), gameerr.ErrValidation, "one player is not enough")

	require.NoError(t, reg.Join(code, "p2", "Bob", "", "conn-2"))
	require.NoError(t, reg.UpdateSettings(code, "p1", lobby.SettingsPatch{
		GameType: strPtr(lobby.GameTypeRated),
	}))
	assert.ErrorIs(t, reg.Start(code, "p1"), gameerr.ErrValidation, "rated without a stake")
}

func ratedLobby(t *testing.T, reg *lobby.Registry) string {
	t.Helper()
	code := reg.Create("p1", "Alice", "rifle", "conn-1")
	require.NoError(t, reg.Join(code, "p2", "Bob", "shotgun", "conn-2"))
	require.NoError(t, reg.UpdateSettings(code, "p1", lobby.SettingsPatch{
		GameTime: intPtr(5),
		Map:      strPtr("snow"),
		GameType: strPtr(lobby.GameTypeRated),
		Stake:    floatPtr(1.5),
	}))
	return code
}

func TestStart_RatedEntersStaking(t *testing.T) {
	reg, sender, starter := newTestRegistry(30 * time.Second)
	code := ratedLobby(t, reg)

	require.NoError(t, reg.Start(code, "p1"))

	assert.Equal(t, 1, reg.Count(), "rated start keeps the lobby until stakes land")
	assert.Equal(t, 0, starter.count())
	required := sender.byEvent(lobby.EventStakeRequired)
	assert.Len(t, required, 2, "both members must receive the stake request")
}

func TestRecordStake_CompletesStart(t *testing.T) {
	reg, sender, starter := newTestRegistry(30 * time.Second)
	code := ratedLobby(t, reg)
	require.NoError(t, reg.Start(code, "p1"))

	require.NoError(t, reg.RecordStake(code, "p1", 1.5, "tx-1"))
	assert.Equal(t, 0, starter.count(), "one stake must not start the game")
	assert.NotEmpty(t, sender.byEvent(lobby.EventStakingProgress))

	require.NoError(t, reg.RecordStake(code, "p2", 1.5, "tx-2"))
	require.Equal(t, 1, starter.count())

	ticket := starter.tickets[0]
	require.NotNil(t, ticket.Staking)
	assert.Equal(t, 2, ticket.Staking.PlayersStaked)
	assert.Equal(t, 3.0, ticket.Staking.TotalStake)
	assert.Equal(t, "escrow-1", ticket.Staking.ContractRef)
	assert.Equal(t, 0, reg.Count())
}

func TestRecordStake_Rejections(t *testing.T) {
	reg, _, _ := newTestRegistry(30 * time.Second)
	code := ratedLobby(t, reg)

	assert.ErrorIs(t, reg.RecordStake(code, "p1", 1.5, "tx"), gameerr.ErrValidation,
		"staking before start must be rejected")

	require.NoError(t, reg.Start(code, "p1"))

	assert.ErrorIs(t, reg.RecordStake("NOPE99", "p1", 1.5, "tx"), gameerr.ErrNotFound)
	assert.ErrorIs(t, reg.RecordStake(code, "ghost", 1.5, "tx"), gameerr.ErrNotFound)
	assert.ErrorIs(t, reg.RecordStake(code, "p1", 2.0, "tx"), gameerr.ErrValidation,
		"mismatched amount must be rejected")

	require.NoError(t, reg.RecordStake(code, "p1", 1.5, "tx-1"))
	assert.ErrorIs(t, reg.RecordStake(code, "p1", 1.5, "tx-dup"), gameerr.ErrConflict,
		"second stake from the same player must be rejected")
}

// TestStakingTimeout_RemovesNonStakers runs the timeout path with three
// members of whom two stake: the non-staker is removed and the game starts
// with the survivors.
func TestStakingTimeout_RemovesNonStakers(t *testing.T) {
	reg, sender, starter := newTestRegistry(50 * time.Millisecond)
	code := ratedLobby(t, reg)
	require.NoError(t, reg.Join(code, "p3", "Cara", "", "conn-3"))
	require.NoError(t, reg.Start(code, "p1"))

	require.NoError(t, reg.RecordStake(code, "p1", 1.5, "tx-1"))
	require.NoError(t, reg.RecordStake(code, "p2", 1.5, "tx-2"))

	require.Eventually(t, func() bool { return starter.count() == 1 },
		2*time.Second, 10*time.Millisecond, "timeout must start the game with the stakers")

	removed := sender.byEvent(lobby.EventPlayersRemoved)
	assert.NotEmpty(t, removed, "non-stakers must be announced as removed")

	ticket := starter.tickets[0]
	assert.Len(t, ticket.Players, 2)
	for _, p := range ticket.Players {
		assert.NotEqual(t, "p3", p.ID, "the non-staker must not be in the ticket")
	}
}

// TestStakingTimeout_RevertsWithOneStaker verifies the not-enough-survivors
// path: the lobby reverts to waiting with only the staker left, and the
// expiry is logged as a timeout.
func TestStakingTimeout_RevertsWithOneStaker(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	starter := &fakeStarter{}
	reg := lobby.NewRegistry(rng.NewSeededSource(1), &fakeSender{}, starter, 50*time.Millisecond, "escrow-1", zap.New(core))

	code := ratedLobby(t, reg)
	require.NoError(t, reg.Start(code, "p1"))
	require.NoError(t, reg.RecordStake(code, "p1", 1.5, "tx-1"))

	require.Eventually(t, func() bool {
		snap, ok := reg.Snapshot(code)
		return ok && len(snap.Players) == 1 && snap.Status == lobby.StatusWaiting
	}, 2*time.Second, 10*time.Millisecond)

	assert.Equal(t, 0, starter.count())
	snap, _ := reg.Snapshot(code)
	assert.Equal(t, "p1", snap.OwnerID)
	assert.Nil(t, snap.Staking, "staking state must be cleared on revert")

	entries := logs.FilterMessage("staking window expired").All()
	require.Len(t, entries, 1)
	logged, ok := entries[0].ContextMap()["error"].(string)
	require.True(t, ok)
	assert.Contains(t, logged, gameerr.ErrTimeout.Error())
}

func TestStakingTimeout_DeletesEmptyLobby(t *testing.T) {
	reg, _, starter := newTestRegistry(50 * time.Millisecond)
	code := ratedLobby(t, reg)
	require.NoError(t, reg.Start(code, "p1"))

	require.Eventually(t, func() bool { return reg.Count() == 0 },
		2*time.Second, 10*time.Millisecond, "no stakers leaves an empty lobby to delete")
	assert.Equal(t, 0, starter.count())
}

func TestChat(t *testing.T) {
	reg, sender, _ := newTestRegistry(30 * time.Second)
	code := reg.Create("p1", "Alice", "", "conn-1")

	require.NoError(t, reg.Chat(code, "p1", "  hello  "))
	msgs := sender.byEvent(lobby.EventMessage)
	require.NotEmpty(t, msgs)
	assert.Equal(t, "Alice: hello", msgs[len(msgs)-1].Payload)

	assert.ErrorIs(t, reg.Chat(code, "p1", "   "), gameerr.ErrValidation)
	assert.ErrorIs(t, reg.Chat(code, "ghost", "hi"), gameerr.ErrNotFound)
	assert.ErrorIs(t, reg.Chat("NOPE99", "p1", "hi"), gameerr.ErrNotFound)
}

func TestDisconnect_RetainsMember(t *testing.T) {
	reg, _, _ := newTestRegistry(30 * time.Second)
	code := reg.Create("p1", "Alice", "", "conn-1")

	reg.Disconnect("conn-1")

	snap, ok := reg.Snapshot(code)
	require.True(t, ok, "disconnect must not delete the lobby")
	require.Len(t, snap.Players, 1)
	assert.False(t, snap.Players[0].Connected)

	_, found := reg.PlayerByConnection(code, "conn-1")
	assert.False(t, found)
}

// Property: every generated lobby code is six characters from [A-Z0-9], and
// concurrent lobbies never collide.
func TestPropertyCodes(t *testing.T) {
	pattern := regexp.MustCompile(`^[A-Z0-9]{6}$`)
	rapid.Check(t, func(rt *rapid.T) {
		seed := rapid.Int64().Draw(rt, "seed")
		n := rapid.IntRange(1, 50).Draw(rt, "n")

		sender := &fakeSender{}
		reg := lobby.NewRegistry(rng.NewSeededSource(seed), sender, &fakeStarter{}, time.Minute, "", zap.NewNop())

		seen := make(map[string]bool, n)
		for i := 0; i < n; i++ {
			code := reg.Create("p", "P", "", "c")
			if !pattern.MatchString(code) {
				rt.Fatalf("malformed code %q", code)
			}
			if seen[code] {
				rt.Fatalf("duplicate code %q", code)
			}
			seen[code] = true
		}
	})
}

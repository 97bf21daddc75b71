package server

import (
	"testing"

	"github.com/siredave/rps-battle/socketapi"
)

func newPresenceFixture(t *testing.T) (*PresenceRegistry, *SessionHolder, *fakeLedger) {
	t.Helper()
	config := testConfig()
	logger := testLogger()
	sessionHolder := NewSessionHolder(config)
	presence := NewPresenceRegistry(sessionHolder, logger)
	return presence, sessionHolder, newFakeLedger()
}

func TestAnnounceIsIdempotent(t *testing.T) {

	presence, sessionHolder, ledger := newPresenceFixture(t)
	player := connectPlayer(sessionHolder, presence, ledger, "alice", 1000)

	presence.Announce(player.connID, player.userID, player.username)
	presence.Announce(player.connID, player.userID, player.username)

	if len(presence.ListAvailable("")) != 1 {
		t.Error("duplicate announce must not create a second entry")
	}

	entry := presence.Get(player.connID)
	if entry == nil || entry.Status != StatusAvailable {
		t.Error("entry should be present and available")
	}

}

func TestAnnounceBroadcastsPlayerList(t *testing.T) {

	presence, sessionHolder, ledger := newPresenceFixture(t)
	playerA := connectPlayer(sessionHolder, presence, ledger, "alice", 1000)
	connectPlayer(sessionHolder, presence, ledger, "bob", 1000)

	updates := playerA.session.sentOfType(socketapi.TypePlayersUpdated)
	if len(updates) < 2 {
		t.Fatalf("existing player should see every join, got %d updates", len(updates))
	}

	latest := &socketapi.PlayersUpdated{}
	if err := updates[len(updates)-1].Bind(latest); err != nil {
		t.Fatal(err)
	}
	if len(latest.Players) != 2 {
		t.Errorf("latest update should list 2 players, got %d", len(latest.Players))
	}

}

func TestWithdrawRemovesAndBroadcasts(t *testing.T) {

	presence, sessionHolder, ledger := newPresenceFixture(t)
	playerA := connectPlayer(sessionHolder, presence, ledger, "alice", 1000)
	playerB := connectPlayer(sessionHolder, presence, ledger, "bob", 1000)

	before := len(playerA.session.sentOfType(socketapi.TypePlayersUpdated))

	presence.Withdraw(playerB.connID)

	if presence.Get(playerB.connID) != nil {
		t.Error("withdrawn entry should be gone")
	}
	if presence.GetByUserID(playerB.userID) != nil {
		t.Error("withdrawn identity should not resolve")
	}

	after := len(playerA.session.sentOfType(socketapi.TypePlayersUpdated))
	if after != before+1 {
		t.Errorf("withdraw should broadcast once, got %d new updates", after-before)
	}

	//Withdrawing an unknown connection is silent
	presence.Withdraw(playerB.connID)
	if len(playerA.session.sentOfType(socketapi.TypePlayersUpdated)) != after {
		t.Error("withdrawing an absent entry must not broadcast")
	}

}

func TestClaimForMatchExclusivePerIdentity(t *testing.T) {

	presence, sessionHolder, ledger := newPresenceFixture(t)
	playerA := connectPlayer(sessionHolder, presence, ledger, "alice", 1000)
	playerB := connectPlayer(sessionHolder, presence, ledger, "bob", 1000)
	playerC := connectPlayer(sessionHolder, presence, ledger, "carol", 1000)

	//A second connection of the same identity
	second := newFakeSession(playerA.userID, playerA.username)
	sessionHolder.add(second)
	secondConnID := second.ID().String()
	presence.Announce(secondConnID, playerA.userID, playerA.username)

	if err := presence.ClaimForMatch(playerA.connID, playerB.connID); err != nil {
		t.Fatal(err)
	}

	//The claimed identity's other connection cannot be claimed again
	if err := presence.ClaimForMatch(secondConnID, playerC.connID); err != ErrTargetUnavailable {
		t.Fatalf("expected ErrTargetUnavailable for a claimed identity, got %v", err)
	}
	if entry := presence.Get(playerC.connID); entry == nil || entry.Status != StatusAvailable {
		t.Error("the failed claim must not flip the counterpart")
	}

	//Both identities of the same user are refused
	if err := presence.ClaimForMatch(playerC.connID, playerC.connID); err == nil {
		t.Error("claiming one connection twice should fail")
	}

	//Releasing frees the seats for a new claim
	presence.ReleaseClaim(playerA.connID, playerB.connID)
	if err := presence.ClaimForMatch(secondConnID, playerC.connID); err != nil {
		t.Fatal(err)
	}

}

func TestClaimForMatchRejectsSameIdentityPair(t *testing.T) {

	presence, sessionHolder, ledger := newPresenceFixture(t)
	playerA := connectPlayer(sessionHolder, presence, ledger, "alice", 1000)

	second := newFakeSession(playerA.userID, playerA.username)
	sessionHolder.add(second)
	secondConnID := second.ID().String()
	presence.Announce(secondConnID, playerA.userID, playerA.username)

	if err := presence.ClaimForMatch(playerA.connID, secondConnID); err != ErrSelfChallenge {
		t.Errorf("expected ErrSelfChallenge for one identity on both seats, got %v", err)
	}

}

func TestClaimForMatchConcurrentOverlap(t *testing.T) {

	presence, sessionHolder, ledger := newPresenceFixture(t)
	playerA := connectPlayer(sessionHolder, presence, ledger, "alice", 1000)
	playerB := connectPlayer(sessionHolder, presence, ledger, "bob", 1000)
	playerC := connectPlayer(sessionHolder, presence, ledger, "carol", 1000)

	//Two overlapping claims race for the shared identity; exactly one
	//may win regardless of interleaving
	results := make(chan error, 2)
	go func() { results <- presence.ClaimForMatch(playerA.connID, playerB.connID) }()
	go func() { results <- presence.ClaimForMatch(playerB.connID, playerC.connID) }()

	succeeded := 0
	for i := 0; i < 2; i++ {
		if err := <-results; err == nil {
			succeeded++
		}
	}
	if succeeded != 1 {
		t.Fatalf("expected exactly one overlapping claim to win, got %d", succeeded)
	}

	entry := presence.Get(playerB.connID)
	if entry == nil || entry.Status != StatusInMatch {
		t.Error("the shared identity should be claimed exactly once")
	}

}

func TestListAvailableFiltersStatusAndSelf(t *testing.T) {

	presence, sessionHolder, ledger := newPresenceFixture(t)
	playerA := connectPlayer(sessionHolder, presence, ledger, "alice", 1000)
	playerB := connectPlayer(sessionHolder, presence, ledger, "bob", 1000)
	playerC := connectPlayer(sessionHolder, presence, ledger, "carol", 1000)

	presence.SetStatus(playerC.connID, StatusInMatch)

	list := presence.ListAvailable(playerA.userID)
	if len(list) != 1 {
		t.Fatalf("expected 1 available player, got %d", len(list))
	}
	if list[0].UserID != playerB.userID {
		t.Errorf("expected %s, got %s", playerB.userID, list[0].UserID)
	}

}

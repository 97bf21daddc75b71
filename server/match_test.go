package server

import (
	"testing"

	"github.com/siredave/rps-battle/socketapi"
)

func newTestMatch(totalRounds int) (*MatchSession, string, string) {
	connA := "00000000-0000-0000-0000-00000000000a"
	connB := "00000000-0000-0000-0000-00000000000b"
	m := NewMatchSession(&MatchSide{
		ConnID:   connA,
		UserID:   "5d0c0000000000000000000a",
		Username: "alice",
		Wager:    50,
	}, &MatchSide{
		ConnID:   connB,
		UserID:   "5d0c0000000000000000000b",
		Username: "bob",
		Wager:    50,
	}, totalRounds)
	return m, connA, connB
}

func TestResolveChoices(t *testing.T) {

	cases := []struct {
		a, b     string
		expected string
	}{
		{socketapi.ChoiceRock, socketapi.ChoiceRock, RoundResultTie},
		{socketapi.ChoicePaper, socketapi.ChoicePaper, RoundResultTie},
		{socketapi.ChoiceScissors, socketapi.ChoiceScissors, RoundResultTie},
		{socketapi.ChoiceRock, socketapi.ChoiceScissors, RoundResultSideA},
		{socketapi.ChoicePaper, socketapi.ChoiceRock, RoundResultSideA},
		{socketapi.ChoiceScissors, socketapi.ChoicePaper, RoundResultSideA},
		{socketapi.ChoiceScissors, socketapi.ChoiceRock, RoundResultSideB},
		{socketapi.ChoiceRock, socketapi.ChoicePaper, RoundResultSideB},
		{socketapi.ChoicePaper, socketapi.ChoiceScissors, RoundResultSideB},
	}

	for _, c := range cases {
		if result := resolveChoices(c.a, c.b); result != c.expected {
			t.Errorf("resolveChoices(%s, %s) = %s, expected %s", c.a, c.b, result, c.expected)
		}
	}

}

func TestResolveChoicesMirrorSymmetry(t *testing.T) {

	choices := []string{socketapi.ChoiceRock, socketapi.ChoicePaper, socketapi.ChoiceScissors}

	for _, a := range choices {
		for _, b := range choices {
			forward := resolveChoices(a, b)
			backward := resolveChoices(b, a)

			switch forward {
			case RoundResultTie:
				if backward != RoundResultTie {
					t.Errorf("(%s, %s) is a tie but (%s, %s) = %s", a, b, b, a, backward)
				}
			case RoundResultSideA:
				if backward != RoundResultSideB {
					t.Errorf("(%s, %s) = side_a but (%s, %s) = %s", a, b, b, a, backward)
				}
			case RoundResultSideB:
				if backward != RoundResultSideA {
					t.Errorf("(%s, %s) = side_b but (%s, %s) = %s", a, b, b, a, backward)
				}
			}
		}
	}

}

func TestSubmitMoveResolvesRound(t *testing.T) {

	m, connA, connB := newTestMatch(10)

	outcome, err := m.SubmitMove(connA, 0, socketapi.ChoiceRock)
	if err != nil {
		t.Fatal(err)
	}
	if outcome != nil {
		t.Fatal("round should not resolve before the second move")
	}

	outcome, err = m.SubmitMove(connB, 0, socketapi.ChoiceScissors)
	if err != nil {
		t.Fatal(err)
	}
	if outcome == nil {
		t.Fatal("round should resolve with both moves present")
	}
	if outcome.Result.Result != RoundResultSideA {
		t.Errorf("rock vs scissors should be won by side a, got %s", outcome.Result.Result)
	}
	if outcome.RoundsWon != [2]int{1, 0} {
		t.Errorf("unexpected tally %v", outcome.RoundsWon)
	}
	if outcome.Final {
		t.Error("first round of ten must not be final")
	}
	if m.CurrentRound != 1 {
		t.Errorf("current round should advance to 1, got %d", m.CurrentRound)
	}

}

func TestSubmitMoveValidation(t *testing.T) {

	m, connA, connB := newTestMatch(10)

	if _, err := m.SubmitMove(connA, 3, socketapi.ChoiceRock); err != ErrWrongRound {
		t.Errorf("expected ErrWrongRound, got %v", err)
	}

	if _, err := m.SubmitMove(connA, 0, "lizard"); err != ErrInvalidChoice {
		t.Errorf("expected ErrInvalidChoice, got %v", err)
	}

	if _, err := m.SubmitMove("00000000-0000-0000-0000-00000000000c", 0, socketapi.ChoiceRock); err != ErrNotParticipant {
		t.Errorf("expected ErrNotParticipant, got %v", err)
	}

	if _, err := m.SubmitMove(connA, 0, socketapi.ChoiceRock); err != nil {
		t.Fatal(err)
	}
	if _, err := m.SubmitMove(connA, 0, socketapi.ChoicePaper); err != ErrDuplicateMove {
		t.Errorf("expected ErrDuplicateMove, got %v", err)
	}

	//The rejected duplicate must not have replaced the original choice
	if m.Sides[0].moves[0] != socketapi.ChoiceRock {
		t.Errorf("original choice was overwritten: %s", m.Sides[0].moves[0])
	}

	m.Status = MatchStatusVoided
	if _, err := m.SubmitMove(connB, 0, socketapi.ChoiceRock); err != ErrSessionNotLive {
		t.Errorf("expected ErrSessionNotLive, got %v", err)
	}

}

func TestMatchPlaysAllRounds(t *testing.T) {

	m, connA, connB := newTestMatch(10)

	//Side a wins the first six rounds; the match still runs the full ten
	plays := [][2]string{
		{socketapi.ChoiceRock, socketapi.ChoiceScissors},
		{socketapi.ChoiceRock, socketapi.ChoiceScissors},
		{socketapi.ChoiceRock, socketapi.ChoiceScissors},
		{socketapi.ChoiceRock, socketapi.ChoiceScissors},
		{socketapi.ChoiceRock, socketapi.ChoiceScissors},
		{socketapi.ChoiceRock, socketapi.ChoiceScissors},
		{socketapi.ChoicePaper, socketapi.ChoiceScissors},
		{socketapi.ChoicePaper, socketapi.ChoiceScissors},
		{socketapi.ChoicePaper, socketapi.ChoiceScissors},
		{socketapi.ChoicePaper, socketapi.ChoiceScissors},
	}

	var last *RoundOutcome
	for round, play := range plays {
		if _, err := m.SubmitMove(connA, round, play[0]); err != nil {
			t.Fatal(err)
		}
		outcome, err := m.SubmitMove(connB, round, play[1])
		if err != nil {
			t.Fatal(err)
		}
		if outcome == nil {
			t.Fatalf("round %d did not resolve", round)
		}
		if round < 9 && outcome.Final {
			t.Fatalf("round %d reported final", round)
		}
		last = outcome
	}

	if !last.Final {
		t.Fatal("tenth round must be final")
	}
	if last.RoundsWon != [2]int{6, 4} {
		t.Errorf("unexpected final tally %v", last.RoundsWon)
	}
	if m.Status != MatchStatusSettling {
		t.Errorf("session should be settling, got %s", m.Status)
	}
	if len(m.RoundLog) != 10 {
		t.Errorf("round log should hold 10 entries, got %d", len(m.RoundLog))
	}

	//No further moves once the session left the awaiting state
	if _, err := m.SubmitMove(connA, 10, socketapi.ChoiceRock); err != ErrSessionNotLive {
		t.Errorf("expected ErrSessionNotLive after final round, got %v", err)
	}

}

func TestDetachAndRebind(t *testing.T) {

	m, connA, _ := newTestMatch(10)

	sideIndex, live := m.Detach(connA)
	if sideIndex != 0 || !live {
		t.Fatalf("detach returned (%d, %v)", sideIndex, live)
	}

	//A detached connection no longer maps to its seat
	if _, err := m.SubmitMove(connA, 0, socketapi.ChoiceRock); err != ErrNotParticipant {
		t.Errorf("expected ErrNotParticipant for detached conn, got %v", err)
	}

	newConn := "00000000-0000-0000-0000-00000000000d"
	if !m.Rebind(m.Sides[0].UserID, newConn) {
		t.Fatal("rebind failed for detached seat")
	}
	if m.Sides[0].ConnID != newConn || m.Sides[0].Detached {
		t.Error("seat was not rebound")
	}

	//Moves made before the disconnect survive on the rebound seat
	if _, err := m.SubmitMove(newConn, 0, socketapi.ChoiceRock); err != nil {
		t.Fatal(err)
	}

	//Rebind without a preceding detach is refused
	if m.Rebind(m.Sides[1].UserID, newConn) {
		t.Error("rebind must require a detached seat")
	}

}

func TestVoidOnlyWhileLive(t *testing.T) {

	m, _, _ := newTestMatch(10)

	if !m.Void() {
		t.Fatal("live session should void")
	}
	if m.Status != MatchStatusVoided {
		t.Errorf("status should be voided, got %s", m.Status)
	}

	m2, _, _ := newTestMatch(10)
	m2.Status = MatchStatusSettling
	if m2.Void() {
		t.Error("settling session must not void")
	}

}

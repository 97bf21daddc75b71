package server

import (
	"sync"
	"time"

	"github.com/satori/go.uuid"

	"github.com/siredave/rps-battle/socketapi"
)

const (
	MatchStatusAwaitingMoves     = "awaiting_moves"
	MatchStatusSettling          = "settling"
	MatchStatusPendingSettlement = "pending_settlement"
	MatchStatusCompleted         = "completed"
	MatchStatusVoided            = "voided"
)

// Round results are recorded relative to side indexes, not users.
const (
	RoundResultSideA = "side_a"
	RoundResultSideB = "side_b"
	RoundResultTie   = "tie"
)

type RoundResult struct {
	Round   int
	ChoiceA string
	ChoiceB string
	Result  string
}

// MatchSide is one participant of a session. ConnID is rebound when a
// player reconnects within the disconnect grace period.
type MatchSide struct {
	ConnID    string
	UserID    string
	Username  string
	Wager     int64
	RoundsWon int
	Detached  bool

	moves map[int]string
}

// MatchSession is the per-pair state machine. All mutation runs under
// the embedded mutex; cross-session operations never share state.
type MatchSession struct {
	sync.Mutex
	ID           string
	Sides        [2]*MatchSide
	TotalRounds  int
	CurrentRound int
	RoundLog     []RoundResult
	Pot          int64
	Status       string
	Settlement   *SettlementResult
	StartedAt    time.Time

	//Managed by the match handler, guarded by the session mutex
	graceTimer *time.Timer
	moveTimer  *time.Timer
}

// RoundOutcome describes one resolved round, returned to the caller
// for notification delivery outside the session lock.
type RoundOutcome struct {
	Round     int
	Result    RoundResult
	RoundsWon [2]int
	Final     bool
}

func NewMatchSession(sideA *MatchSide, sideB *MatchSide, totalRounds int) *MatchSession {

	sideA.moves = make(map[int]string, totalRounds)
	sideB.moves = make(map[int]string, totalRounds)

	return &MatchSession{
		ID:          uuid.NewV4().String(),
		Sides:       [2]*MatchSide{sideA, sideB},
		TotalRounds: totalRounds,
		RoundLog:    make([]RoundResult, 0, totalRounds),
		Pot:         sideA.Wager + sideB.Wager,
		Status:      MatchStatusAwaitingMoves,
		StartedAt:   time.Now().UTC(),
	}

}

//resolveChoices applies the fixed outcome rule for one round. It is
//deterministic and mirror-symmetric: swapping the arguments swaps
//side_a and side_b results.
func resolveChoices(a string, b string) string {
	if a == b {
		return RoundResultTie
	}
	switch {
	case a == socketapi.ChoiceRock && b == socketapi.ChoiceScissors,
		a == socketapi.ChoicePaper && b == socketapi.ChoiceRock,
		a == socketapi.ChoiceScissors && b == socketapi.ChoicePaper:
		return RoundResultSideA
	}
	return RoundResultSideB
}

func validChoice(choice string) bool {
	switch choice {
	case socketapi.ChoiceRock, socketapi.ChoicePaper, socketapi.ChoiceScissors:
		return true
	}
	return false
}

// SubmitMove records one side's choice for the given round. The first
// submission per side per round wins; duplicates are rejected without
// mutation. When the second choice of the round lands, the round
// resolves synchronously and the returned outcome is non-nil.
func (m *MatchSession) SubmitMove(connID string, round int, choice string) (*RoundOutcome, error) {
	m.Lock()
	defer m.Unlock()

	if m.Status != MatchStatusAwaitingMoves {
		return nil, ErrSessionNotLive
	}
	if round != m.CurrentRound {
		return nil, ErrWrongRound
	}
	if !validChoice(choice) {
		return nil, ErrInvalidChoice
	}

	sideIndex := m.sideIndexByConn(connID)
	if sideIndex < 0 {
		return nil, ErrNotParticipant
	}

	side := m.Sides[sideIndex]
	if _, already := side.moves[round]; already {
		return nil, ErrDuplicateMove
	}
	side.moves[round] = choice

	other := m.Sides[1-sideIndex]
	if _, ok := other.moves[round]; !ok {
		//Waiting for the opponent
		return nil, nil
	}

	//Both choices present, resolve exactly once. The duplicate-move
	//rejection above guarantees this block cannot run twice for the
	//same round.
	result := RoundResult{
		Round:   round,
		ChoiceA: m.Sides[0].moves[round],
		ChoiceB: m.Sides[1].moves[round],
	}
	result.Result = resolveChoices(result.ChoiceA, result.ChoiceB)

	switch result.Result {
	case RoundResultSideA:
		m.Sides[0].RoundsWon++
	case RoundResultSideB:
		m.Sides[1].RoundsWon++
	}

	m.RoundLog = append(m.RoundLog, result)
	m.CurrentRound++

	outcome := &RoundOutcome{
		Round:     round,
		Result:    result,
		RoundsWon: [2]int{m.Sides[0].RoundsWon, m.Sides[1].RoundsWon},
	}

	//Fixed round policy: every round is played even when the margin is
	//already decided. Only the final tally picks the winner.
	if m.CurrentRound == m.TotalRounds {
		m.Status = MatchStatusSettling
		outcome.Final = true
	}

	return outcome, nil

}

func (m *MatchSession) sideIndexByConn(connID string) int {
	for i, side := range m.Sides {
		if side.ConnID == connID && !side.Detached {
			return i
		}
	}
	return -1
}

// SideIndexByUser ignores the detached flag so a reconnecting player
// can be matched back to their seat.
func (m *MatchSession) SideIndexByUser(userID string) int {
	for i, side := range m.Sides {
		if side.UserID == userID {
			return i
		}
	}
	return -1
}

// Detach marks the side of the given connection as disconnected and
// reports whether the session is still live.
func (m *MatchSession) Detach(connID string) (int, bool) {
	m.Lock()
	defer m.Unlock()

	for i, side := range m.Sides {
		if side.ConnID == connID {
			side.Detached = true
			return i, m.Status == MatchStatusAwaitingMoves
		}
	}
	return -1, false
}

// Rebind attaches a new connection to the seat of a previously
// detached identity.
func (m *MatchSession) Rebind(userID string, connID string) bool {
	m.Lock()
	defer m.Unlock()

	for _, side := range m.Sides {
		if side.UserID == userID && side.Detached {
			side.ConnID = connID
			side.Detached = false
			return true
		}
	}
	return false
}

// VoidIf terminates a live session without settlement when cond still
// holds. cond runs under the session mutex, so the check and the
// transition are one step and a timer firing against a session that
// progressed in the meantime cannot void it. A session already
// settling or beyond is never voided since escrowed funds are owed to
// the settlement path.
func (m *MatchSession) VoidIf(cond func() bool) bool {
	m.Lock()
	defer m.Unlock()

	if m.Status != MatchStatusAwaitingMoves {
		return false
	}
	if cond != nil && !cond() {
		return false
	}
	m.Status = MatchStatusVoided
	return true
}

// Void terminates a live session unconditionally.
func (m *MatchSession) Void() bool {
	return m.VoidIf(nil)
}

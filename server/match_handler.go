package server

import (
	"time"

	"github.com/siredave/rps-battle/socketapi"
)

// MatchHandler drives active match sessions: it routes moves into the
// state machine, delivers round results, hands terminal sessions to
// the settlement engine and applies the disconnect and move-timeout
// policies. Policy for an interrupted match is void-and-refund: after
// the grace period (or an expired round timer) the session terminates
// without settlement and each side gets its own wager back.
type MatchHandler struct {
	matchHolder   *MatchHolder
	sessionHolder *SessionHolder
	presence      *PresenceRegistry
	settlement    *SettlementEngine
	ledger        Ledger
	config        *Config
	stats         *Stats
	logger        *Logger
}

func NewMatchHandler(matchHolder *MatchHolder, sessionHolder *SessionHolder, presence *PresenceRegistry, settlement *SettlementEngine, ledger Ledger, config *Config, stats *Stats, logger *Logger) *MatchHandler {
	return &MatchHandler{
		matchHolder:   matchHolder,
		sessionHolder: sessionHolder,
		presence:      presence,
		settlement:    settlement,
		ledger:        ledger,
		config:        config,
		stats:         stats,
		logger:        logger,
	}
}

// Begin arms the round timer for a freshly created session.
func (h *MatchHandler) Begin(m *MatchSession) {
	h.armMoveTimer(m)
}

// SubmitMove feeds one choice into the session. A nil error with no
// notification means the move was recorded and the opponent is still
// due; a resolved round notifies both sides and a final round hands
// the session to settlement.
func (h *MatchHandler) SubmitMove(connID string, sessionID string, round int, choice string) error {

	m := h.matchHolder.Get(sessionID)
	if m == nil {
		return ErrSessionUnknown
	}

	outcome, err := m.SubmitMove(connID, round, choice)
	if err != nil {
		return err
	}
	if outcome == nil {
		return nil
	}

	h.stats.IncrRoundResolved()

	if outcome.Final {
		h.cancelMoveTimer(m)
	} else {
		h.armMoveTimer(m)
	}

	h.notifyRound(m, outcome)

	if outcome.Final {
		if err := h.settlement.Settle(m); err != nil {
			go h.retrySettlement(m)
		}
	}

	return nil

}

func (h *MatchHandler) notifyRound(m *MatchSession, outcome *RoundOutcome) {

	choices := [2]string{outcome.Result.ChoiceA, outcome.Result.ChoiceB}

	for i, side := range m.Sides {
		session := h.sessionHolder.GetByConnID(side.ConnID)
		if session == nil {
			continue
		}

		sideOutcome := socketapi.OutcomeTie
		switch outcome.Result.Result {
		case RoundResultSideA:
			if i == 0 {
				sideOutcome = socketapi.OutcomeWin
			} else {
				sideOutcome = socketapi.OutcomeLoss
			}
		case RoundResultSideB:
			if i == 1 {
				sideOutcome = socketapi.OutcomeWin
			} else {
				sideOutcome = socketapi.OutcomeLoss
			}
		}

		envelope := socketapi.NewEnvelope("", socketapi.TypeRoundComplete, &socketapi.RoundComplete{
			SessionID:         m.ID,
			Round:             outcome.Round,
			Outcome:           sideOutcome,
			YourChoice:        choices[i],
			OpponentChoice:    choices[1-i],
			YourRoundsWon:     outcome.RoundsWon[i],
			OpponentRoundsWon: outcome.RoundsWon[1-i],
		})
		if err := session.Send(envelope); err != nil {
			h.logger.Warnw("Could not deliver round result", "sessionID", m.ID, "userID", side.UserID, "error", err)
		}
	}

}

//retrySettlement keeps a pending settlement alive until the ledger
//recovers. The applied-leg flags inside the session make each retry
//idempotent.
func (h *MatchHandler) retrySettlement(m *MatchSession) {

	backoff := time.Duration(h.config.GameConfig.SettlementRetryBackoff) * time.Millisecond
	if backoff <= 0 {
		backoff = 200 * time.Millisecond
	}

	for wait := backoff * 10; ; wait *= 2 {
		if wait > time.Minute {
			wait = time.Minute
		}
		time.Sleep(wait)

		m.Lock()
		status := m.Status
		m.Unlock()
		if status != MatchStatusPendingSettlement {
			return
		}

		if err := h.settlement.Settle(m); err == nil {
			return
		}
		h.logger.Warnw("Settlement still pending after retry", "sessionID", m.ID)
	}

}

// HandleDisconnect detaches the seat of a dropped connection. The
// session itself keeps running; only the expired grace timer ends it.
func (h *MatchHandler) HandleDisconnect(connID string, userID string) {

	m := h.matchHolder.GetByUserID(userID)
	if m == nil {
		return
	}

	_, live := m.Detach(connID)
	if !live {
		return
	}

	grace := time.Duration(h.config.GameConfig.DisconnectGraceTime) * time.Millisecond
	if grace <= 0 {
		return
	}

	m.Lock()
	if m.graceTimer != nil {
		m.graceTimer.Stop()
	}
	//A player who rebound exactly at grace expiry keeps their match;
	//the seat check runs under the same lock as the void transition
	m.graceTimer = time.AfterFunc(grace, func() {
		h.voidMatchIf(m, "opponent disconnected", func() bool {
			return m.Sides[0].Detached || m.Sides[1].Detached
		})
	})
	m.Unlock()

	h.logger.Infow("Player disconnected mid-match, grace period started", "sessionID", m.ID, "userID", userID)

}

// HandleReconnect rebinds a returning identity to its seat. Reports
// whether a live session was resumed.
func (h *MatchHandler) HandleReconnect(connID string, userID string) bool {

	m := h.matchHolder.GetByUserID(userID)
	if m == nil {
		return false
	}

	if !m.Rebind(userID, connID) {
		return false
	}

	m.Lock()
	if m.graceTimer != nil {
		m.graceTimer.Stop()
		m.graceTimer = nil
	}
	bothAttached := !m.Sides[0].Detached && !m.Sides[1].Detached
	sideIndex := m.SideIndexByUser(userID)
	opponent := m.Sides[1-sideIndex]
	snapshot := &socketapi.MatchStarted{
		SessionID:        m.ID,
		TotalRounds:      m.TotalRounds,
		Pot:              m.Pot,
		OpponentUserID:   opponent.UserID,
		OpponentUsername: opponent.Username,
	}
	m.Unlock()

	h.presence.SetStatus(connID, StatusInMatch)

	session := h.sessionHolder.GetByConnID(connID)
	if session != nil {
		_ = session.Send(socketapi.NewEnvelope("", socketapi.TypeMatchStarted, snapshot))
	}

	if bothAttached {
		h.logger.Infow("Player reconnected, match resumed", "sessionID", m.ID, "userID", userID)
	}

	return true

}

// VoidMatch terminates a live session without settlement and refunds
// both escrowed wagers. The refunded sum equals the pot, so funds are
// conserved on this path too.
func (h *MatchHandler) VoidMatch(m *MatchSession, reason string) {
	h.voidMatchIf(m, reason, nil)
}

//voidMatchIf voids only when cond still holds inside the session
//lock; the timer callbacks use it so a session that moved on between
//the timer firing and the transition is left alone
func (h *MatchHandler) voidMatchIf(m *MatchSession, reason string, cond func() bool) {

	if !m.VoidIf(cond) {
		return
	}

	h.cancelMoveTimer(m)
	m.Lock()
	if m.graceTimer != nil {
		m.graceTimer.Stop()
		m.graceTimer = nil
	}
	m.Unlock()

	for _, side := range m.Sides {
		if err := h.refundWithRetry(side.UserID, side.Wager); err != nil {
			h.logger.Errorw("Could not refund voided match wager, manual reconciliation needed", "sessionID", m.ID, "userID", side.UserID, "wager", side.Wager, "error", err)
		}
	}

	for _, side := range m.Sides {
		if side.Detached {
			continue
		}
		h.presence.SetStatus(side.ConnID, StatusAvailable)
		session := h.sessionHolder.GetByConnID(side.ConnID)
		if session != nil {
			_ = session.Send(socketapi.NewEnvelope("", socketapi.TypeMatchVoided, &socketapi.MatchVoided{
				SessionID: m.ID,
				Reason:    reason,
				Refund:    side.Wager,
			}))
		}
	}

	h.matchHolder.Remove(m.ID)

	h.logger.Infow("Match voided", "sessionID", m.ID, "reason", reason)

}

func (h *MatchHandler) refundWithRetry(userID string, amount int64) error {

	backoff := time.Duration(h.config.GameConfig.SettlementRetryBackoff) * time.Millisecond
	attempts := h.config.GameConfig.SettlementRetryCount
	if attempts < 1 {
		attempts = 1
	}

	var err error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			time.Sleep(backoff)
		}
		if err = h.ledger.Refund(userID, amount); err == nil {
			return nil
		}
	}
	return err

}

func (h *MatchHandler) armMoveTimer(m *MatchSession) {

	timeout := time.Duration(h.config.GameConfig.MoveTimeout) * time.Millisecond
	if timeout <= 0 {
		return
	}

	m.Lock()
	round := m.CurrentRound
	if m.moveTimer != nil {
		m.moveTimer.Stop()
	}
	m.moveTimer = time.AfterFunc(timeout, func() {
		h.voidMatchIf(m, "round timed out", func() bool {
			return m.CurrentRound == round
		})
	})
	m.Unlock()

}

func (h *MatchHandler) cancelMoveTimer(m *MatchSession) {
	m.Lock()
	if m.moveTimer != nil {
		m.moveTimer.Stop()
		m.moveTimer = nil
	}
	m.Unlock()
}

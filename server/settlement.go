package server

import (
	"strconv"
	"time"

	"github.com/globalsign/mgo"
	"github.com/globalsign/mgo/bson"
	"github.com/pkg/errors"

	"github.com/siredave/rps-battle/model"
	"github.com/siredave/rps-battle/socketapi"
)

// SettlementResult is populated exactly once per session. The applied
// flags make retries idempotent: a leg that already committed is never
// re-applied even when the other leg keeps failing.
type SettlementResult struct {
	WinnerSideIndex *int
	PayoutPerWinner int64

	applied [2]bool
}

// SettlementEngine distributes the pot once a session leaves the
// settling state and finalizes the match afterwards. Leaderboard,
// notification, pubsub and the archive db are optional collaborators;
// a missing one only skips its own side effect.
type SettlementEngine struct {
	ledger        Ledger
	matchHolder   *MatchHolder
	sessionHolder *SessionHolder
	presence      *PresenceRegistry
	leaderboard   *Leaderboard
	notification  *Notification
	pubsub        *PubSub
	db            *mgo.Session
	config        *Config
	stats         *Stats
	logger        *Logger
}

func NewSettlementEngine(ledger Ledger, matchHolder *MatchHolder, sessionHolder *SessionHolder, presence *PresenceRegistry, leaderboard *Leaderboard, notification *Notification, pubsub *PubSub, db *mgo.Session, config *Config, stats *Stats, logger *Logger) *SettlementEngine {
	return &SettlementEngine{
		ledger:        ledger,
		matchHolder:   matchHolder,
		sessionHolder: sessionHolder,
		presence:      presence,
		leaderboard:   leaderboard,
		notification:  notification,
		pubsub:        pubsub,
		db:            db,
		config:        config,
		stats:         stats,
		logger:        logger,
	}
}

// Settle applies the payout for a session in the settling state. The
// sum credited always equals the pot: full pot to a strict winner,
// half to each side on a tie (wagers are equal, so the split is
// exact). Ledger legs are retried with backoff; if a leg still fails
// after the configured attempts the session stays in
// pending_settlement and Settle can be invoked again.
func (se *SettlementEngine) Settle(m *MatchSession) error {

	m.Lock()
	if m.Status != MatchStatusSettling && m.Status != MatchStatusPendingSettlement {
		m.Unlock()
		return errors.Errorf("session %s is not awaiting settlement", m.ID)
	}

	if m.Settlement == nil {
		result := &SettlementResult{}
		switch {
		case m.Sides[0].RoundsWon > m.Sides[1].RoundsWon:
			winner := 0
			result.WinnerSideIndex = &winner
			result.PayoutPerWinner = m.Pot
		case m.Sides[1].RoundsWon > m.Sides[0].RoundsWon:
			winner := 1
			result.WinnerSideIndex = &winner
			result.PayoutPerWinner = m.Pot
		default:
			result.PayoutPerWinner = m.Pot / 2
		}
		m.Settlement = result
	}
	result := m.Settlement
	sides := m.Sides
	sessionID := m.ID
	m.Unlock()

	//Ledger legs run outside the session lock; the applied flags are
	//only touched from here and Settle is never invoked concurrently
	//for one session (single transition out of settling).
	backoff := time.Duration(se.config.GameConfig.SettlementRetryBackoff) * time.Millisecond
	attempts := se.config.GameConfig.SettlementRetryCount
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			se.stats.IncrSettlementRetry()
			time.Sleep(backoff)
		}

		lastErr = nil
		for i := 0; i < 2; i++ {
			if result.applied[i] {
				continue
			}
			if err := se.ledger.ApplySettlement(sides[i].UserID, se.creditFor(result, i), se.deltaFor(result, i)); err != nil {
				lastErr = errors.Wrapf(err, "settlement leg for user %s", sides[i].UserID)
				continue
			}
			result.applied[i] = true
		}
		if lastErr == nil {
			break
		}
	}

	if lastErr != nil {
		//Never report the match completed while one side is owed
		//funds. The session stays pending until a later retry or a
		//manual reconciliation succeeds.
		m.Lock()
		m.Status = MatchStatusPendingSettlement
		m.Unlock()
		se.logger.Errorw("Settlement could not be completed, session left pending", "sessionID", sessionID, "error", lastErr)
		return lastErr
	}

	m.Lock()
	m.Status = MatchStatusCompleted
	m.Unlock()

	se.finalize(m)

	return nil

}

func (se *SettlementEngine) creditFor(result *SettlementResult, sideIndex int) int64 {
	if result.WinnerSideIndex == nil {
		return result.PayoutPerWinner
	}
	if *result.WinnerSideIndex == sideIndex {
		return result.PayoutPerWinner
	}
	return 0
}

func (se *SettlementEngine) deltaFor(result *SettlementResult, sideIndex int) StatsDelta {
	if result.WinnerSideIndex == nil {
		return StatsDelta{Games: 1}
	}
	if *result.WinnerSideIndex == sideIndex {
		return StatsDelta{Games: 1, Wins: 1}
	}
	return StatsDelta{Games: 1, Losses: 1}
}

//finalize runs only after every ledger leg durably succeeded
func (se *SettlementEngine) finalize(m *MatchSession) {

	se.stats.IncrMatchSettled()

	result := m.Settlement

	for i, side := range m.Sides {
		outcome := socketapi.OutcomeTie
		if result.WinnerSideIndex != nil {
			if *result.WinnerSideIndex == i {
				outcome = socketapi.OutcomeWin
			} else {
				outcome = socketapi.OutcomeLoss
			}
		}

		payout := se.creditFor(result, i)

		se.presence.SetStatus(side.ConnID, StatusAvailable)

		session := se.sessionHolder.GetByConnID(side.ConnID)
		if session != nil {
			envelope := socketapi.NewEnvelope("", socketapi.TypeMatchCompleted, &socketapi.MatchCompleted{
				SessionID:         m.ID,
				Outcome:           outcome,
				Payout:            payout,
				YourRoundsWon:     side.RoundsWon,
				OpponentRoundsWon: m.Sides[1-i].RoundsWon,
			})
			if err := session.Send(envelope); err != nil {
				se.logger.Warnw("Could not deliver match result", "sessionID", m.ID, "userID", side.UserID, "error", err)
			}
		}
	}

	if se.leaderboard != nil && result.WinnerSideIndex != nil {
		winner := m.Sides[*result.WinnerSideIndex]
		//Score net winnings, the pot minus the winner's own stake
		if err := se.leaderboard.Score(winner.UserID, result.PayoutPerWinner-winner.Wager); err != nil {
			se.logger.Errorw("Could not record leaderboard score", "sessionID", m.ID, "userID", winner.UserID, "error", err)
		}
	}

	record := se.buildRecord(m)

	if se.db != nil {
		se.archive(record)
	}

	if se.pubsub != nil {
		if err := se.pubsub.PublishMatchEvent(record); err != nil {
			se.logger.Errorw("Could not publish match event", "sessionID", m.ID, "error", err)
		}
	}

	if se.notification != nil {
		se.notify(m, record)
	}

	se.matchHolder.Remove(m.ID)

}

func (se *SettlementEngine) buildRecord(m *MatchSession) *model.MatchRecord {

	record := &model.MatchRecord{
		SessionID:   m.ID,
		TotalRounds: m.TotalRounds,
		Pot:         m.Pot,
		Payout:      m.Settlement.PayoutPerWinner,
		StartedAt:   m.StartedAt,
		EndedAt:     time.Now().UTC(),
	}

	for i, side := range m.Sides {
		record.Players[i] = model.MatchPlayer{
			UserID:    bson.ObjectIdHex(side.UserID),
			Username:  side.Username,
			Wager:     side.Wager,
			RoundsWon: side.RoundsWon,
		}
	}

	for _, round := range m.RoundLog {
		record.Rounds = append(record.Rounds, model.MatchRound{
			Round:   round.Round,
			ChoiceA: round.ChoiceA,
			ChoiceB: round.ChoiceB,
			Result:  round.Result,
		})
	}

	if m.Settlement.WinnerSideIndex != nil {
		id := bson.ObjectIdHex(m.Sides[*m.Settlement.WinnerSideIndex].UserID)
		record.WinnerUserID = &id
	}

	return record

}

func (se *SettlementEngine) archive(record *model.MatchRecord) {

	conn := se.db.Copy()
	defer conn.Close()
	db := conn.DB(se.config.DBConfig.Name)

	if err := db.C(record.GetCollectionName()).Insert(record); err != nil {
		se.logger.Errorw("Could not archive match record", "sessionID", record.SessionID, "error", err)
	}

}

func (se *SettlementEngine) notify(m *MatchSession, record *model.MatchRecord) {

	headings := map[string]string{"en": "Match finished"}

	if m.Settlement.WinnerSideIndex != nil {
		winner := m.Sides[*m.Settlement.WinnerSideIndex]
		loser := m.Sides[1-*m.Settlement.WinnerSideIndex]
		se.notification.SendNotificationWithUserIDs(headings, map[string]string{
			"en": "You won the pot of " + formatAmount(m.Pot) + " against " + loser.Username,
		}, winner.UserID)
		se.notification.SendNotificationWithUserIDs(headings, map[string]string{
			"en": "You lost your wager of " + formatAmount(loser.Wager) + " against " + winner.Username,
		}, loser.UserID)
		return
	}

	for _, side := range m.Sides {
		se.notification.SendNotificationWithUserIDs(headings, map[string]string{
			"en": "The match ended in a tie, your wager of " + formatAmount(side.Wager) + " was returned",
		}, side.UserID)
	}

}

func formatAmount(amount int64) string {
	return strconv.FormatInt(amount, 10)
}

package server

import (
	"sync"
	"time"

	"github.com/siredave/rps-battle/socketapi"
)

// Challenge is ephemeral handshake state. It lives between issue and
// accept/reject/timeout and is never persisted.
type Challenge struct {
	ChallengerConnID string
	TargetConnID     string
	Wager            int64
	IssuedAt         time.Time

	timer *time.Timer
}

// ChallengeBroker mediates the challenge handshake between two
// present identities and constructs the match session once escrow
// succeeded. One outstanding challenge per challenger connection; a
// newer challenge replaces the previous one.
type ChallengeBroker struct {
	sync.Mutex
	challenges map[string]*Challenge

	presence      *PresenceRegistry
	sessionHolder *SessionHolder
	matchHolder   *MatchHolder
	ledger        Ledger
	config        *Config
	stats         *Stats
	logger        *Logger
}

func NewChallengeBroker(presence *PresenceRegistry, sessionHolder *SessionHolder, matchHolder *MatchHolder, ledger Ledger, config *Config, stats *Stats, logger *Logger) *ChallengeBroker {
	return &ChallengeBroker{
		challenges:    make(map[string]*Challenge),
		presence:      presence,
		sessionHolder: sessionHolder,
		matchHolder:   matchHolder,
		ledger:        ledger,
		config:        config,
		stats:         stats,
		logger:        logger,
	}
}

// IssueChallenge delivers a challenge notification to the target.
// Balances are deliberately not checked here; sufficiency is
// re-verified atomically at accept time so a stale read can never
// leak into escrow.
func (b *ChallengeBroker) IssueChallenge(fromConnID string, toUserID string, wager int64) error {

	if wager <= 0 {
		return ErrInvalidWager
	}

	challenger := b.presence.Get(fromConnID)
	if challenger == nil {
		return ErrTargetUnavailable
	}

	if challenger.UserID == toUserID {
		return ErrSelfChallenge
	}

	target := b.presence.GetByUserID(toUserID)
	if target == nil {
		return ErrTargetUnavailable
	}

	challenge := &Challenge{
		ChallengerConnID: fromConnID,
		TargetConnID:     target.ConnID,
		Wager:            wager,
		IssuedAt:         time.Now().UTC(),
	}

	b.Lock()
	if previous, ok := b.challenges[fromConnID]; ok && previous.timer != nil {
		previous.timer.Stop()
	}
	b.challenges[fromConnID] = challenge
	if timeout := b.config.GameConfig.ChallengeTimeout; timeout > 0 {
		challenge.timer = time.AfterFunc(time.Duration(timeout)*time.Millisecond, func() {
			b.expire(fromConnID, challenge)
		})
	}
	b.Unlock()

	targetSession := b.sessionHolder.GetByConnID(target.ConnID)
	if targetSession != nil {
		envelope := socketapi.NewEnvelope("", socketapi.TypeChallengeReceived, &socketapi.ChallengeReceived{
			ChallengerConnID: fromConnID,
			FromUserID:       challenger.UserID,
			FromUsername:     challenger.Username,
			Wager:            wager,
		})
		if err := targetSession.Send(envelope); err != nil {
			b.logger.Warnw("Could not deliver challenge", "targetUserID", toUserID, "error", err)
		}
	}

	return nil

}

// AcceptChallenge validates the handshake, escrows both wagers as one
// logical step and constructs the match session. Any rejection leaves
// both wallets untouched.
func (b *ChallengeBroker) AcceptChallenge(byConnID string, challengerConnID string, wager int64) (*MatchSession, error) {

	b.Lock()
	challenge, ok := b.challenges[challengerConnID]
	if !ok || challenge.TargetConnID != byConnID {
		b.Unlock()
		return nil, ErrChallengeUnknown
	}
	//The accept consumes the challenge regardless of how it resolves
	delete(b.challenges, challengerConnID)
	if challenge.timer != nil {
		challenge.timer.Stop()
	}
	b.Unlock()

	//A stale or replayed accept carries the wrong wager
	if wager != challenge.Wager {
		return nil, ErrWagerMismatch
	}

	//Claiming both seats is atomic per identity: it refuses when any
	//connection of either identity is already in a match, so a second
	//socket of the same user or two racing accepts cannot produce two
	//concurrent sessions for one identity
	if err := b.presence.ClaimForMatch(challengerConnID, byConnID); err != nil {
		return nil, err
	}

	challenger := b.presence.Get(challengerConnID)
	acceptor := b.presence.Get(byConnID)
	if challenger == nil || acceptor == nil {
		b.presence.ReleaseClaim(challengerConnID, byConnID)
		return nil, ErrTargetUnavailable
	}

	//Both debits succeed or neither does; partial escrow never occurs
	if err := b.ledger.EscrowWagers(challenger.UserID, acceptor.UserID, wager); err != nil {
		b.presence.ReleaseClaim(challengerConnID, byConnID)
		return nil, err
	}

	m := NewMatchSession(&MatchSide{
		ConnID:   challengerConnID,
		UserID:   challenger.UserID,
		Username: challenger.Username,
		Wager:    wager,
	}, &MatchSide{
		ConnID:   byConnID,
		UserID:   acceptor.UserID,
		Username: acceptor.Username,
		Wager:    wager,
	}, b.config.GameConfig.TotalRounds)

	b.matchHolder.Add(m)
	b.stats.IncrMatchStarted()

	for i, side := range m.Sides {
		session := b.sessionHolder.GetByConnID(side.ConnID)
		if session == nil {
			continue
		}
		opponent := m.Sides[1-i]
		envelope := socketapi.NewEnvelope("", socketapi.TypeMatchStarted, &socketapi.MatchStarted{
			SessionID:        m.ID,
			TotalRounds:      m.TotalRounds,
			Pot:              m.Pot,
			OpponentUserID:   opponent.UserID,
			OpponentUsername: opponent.Username,
		})
		if err := session.Send(envelope); err != nil {
			b.logger.Warnw("Could not deliver match start", "sessionID", m.ID, "userID", side.UserID, "error", err)
		}
	}

	b.logger.Infow("Match session created", "sessionID", m.ID, "challenger", challenger.UserID, "acceptor", acceptor.UserID, "pot", m.Pot)

	return m, nil

}

// RejectChallenge disposes the challenge and notifies the challenger.
func (b *ChallengeBroker) RejectChallenge(byConnID string, challengerConnID string) {

	b.Lock()
	challenge, ok := b.challenges[challengerConnID]
	if ok && challenge.TargetConnID == byConnID {
		delete(b.challenges, challengerConnID)
		if challenge.timer != nil {
			challenge.timer.Stop()
		}
	}
	b.Unlock()

	if !ok {
		return
	}

	rejector := b.presence.Get(byConnID)
	targetUserID := ""
	if rejector != nil {
		targetUserID = rejector.UserID
	}

	session := b.sessionHolder.GetByConnID(challengerConnID)
	if session != nil {
		_ = session.Send(socketapi.NewEnvelope("", socketapi.TypeChallengeRejected, &socketapi.ChallengeRejected{
			TargetUserID: targetUserID,
		}))
	}

}

// DropByConn disposes every challenge issued by or aimed at a
// connection that went away.
func (b *ChallengeBroker) DropByConn(connID string) {
	b.Lock()
	defer b.Unlock()

	for key, challenge := range b.challenges {
		if challenge.ChallengerConnID == connID || challenge.TargetConnID == connID {
			if challenge.timer != nil {
				challenge.timer.Stop()
			}
			delete(b.challenges, key)
		}
	}
}

func (b *ChallengeBroker) expire(connID string, challenge *Challenge) {
	b.Lock()
	current, ok := b.challenges[connID]
	if !ok || current != challenge {
		b.Unlock()
		return
	}
	delete(b.challenges, connID)
	b.Unlock()

	session := b.sessionHolder.GetByConnID(connID)
	if session != nil {
		_ = session.Send(socketapi.NewEnvelope("", socketapi.TypeChallengeRejected, &socketapi.ChallengeRejected{
			Reason: "challenge timed out",
		}))
	}
}

package server

import (
	"github.com/pkg/errors"

	"github.com/siredave/rps-battle/socketapi"
)

// Pipeline routes incoming socket envelopes into the coordinator. Each
// session's Consume loop calls handleSocketRequests sequentially, so a
// single connection's events arrive in order; serialization across the
// two connections of one match happens inside the match session.
type Pipeline struct {
	config        *Config
	sessionHolder *SessionHolder
	presence      *PresenceRegistry
	broker        *ChallengeBroker
	matchHandler  *MatchHandler
	logger        *Logger
}

func NewPipeline(config *Config, sessionHolder *SessionHolder, presence *PresenceRegistry, broker *ChallengeBroker, matchHandler *MatchHandler, logger *Logger) *Pipeline {
	return &Pipeline{
		config:        config,
		sessionHolder: sessionHolder,
		presence:      presence,
		broker:        broker,
		matchHandler:  matchHandler,
		logger:        logger,
	}
}

func (p *Pipeline) handleSocketRequests(session Session, envelope *socketapi.Envelope) bool {

	switch envelope.Type {
	case socketapi.TypeUserJoin:
		p.userJoin(session, envelope)
	case socketapi.TypeChallengePlayer:
		p.challengePlayer(session, envelope)
	case socketapi.TypeChallengeResponse:
		p.challengeResponse(session, envelope)
	case socketapi.TypePlayRound:
		p.playRound(session, envelope)
	default:
		// If we reached this point the envelope was valid but the contents are missing or unknown.
		// Usually caused by a version mismatch, and should cause the session making this request to close.
		p.logger.Warnw("Unrecognizable payload received", "type", envelope.Type)
		_ = session.Send(socketapi.NewErrorEnvelope(envelope.Cid, socketapi.ErrorUnrecognizedPayload, "Unrecognized message."))
		return false
	}

	return true

}

// sessionClosed is installed as the session close hook. It withdraws
// presence, disposes outstanding challenges and starts the disconnect
// grace period for an in-progress match.
func (p *Pipeline) sessionClosed(session Session) {
	connID := session.ID().String()
	p.broker.DropByConn(connID)
	p.presence.Withdraw(connID)
	p.matchHandler.HandleDisconnect(connID, session.UserID())
}

func (p *Pipeline) userJoin(session Session, envelope *socketapi.Envelope) {

	p.presence.Announce(session.ID().String(), session.UserID(), session.Username())

	//A player coming back within the grace period is reseated into
	//their running match
	p.matchHandler.HandleReconnect(session.ID().String(), session.UserID())

	_ = session.Send(socketapi.NewEnvelope(envelope.Cid, socketapi.TypeAck, nil))

}

func (p *Pipeline) challengePlayer(session Session, envelope *socketapi.Envelope) {

	incoming := &socketapi.ChallengePlayer{}
	if err := envelope.Bind(incoming); err != nil {
		_ = session.Send(socketapi.NewErrorEnvelope(envelope.Cid, socketapi.ErrorBadRequest, err.Error()))
		return
	}

	if err := p.broker.IssueChallenge(session.ID().String(), incoming.TargetUserID, incoming.Wager); err != nil {
		_ = session.Send(socketapi.NewErrorEnvelope(envelope.Cid, p.errorCode(err), err.Error()))
		return
	}

	_ = session.Send(socketapi.NewEnvelope(envelope.Cid, socketapi.TypeAck, nil))

}

func (p *Pipeline) challengeResponse(session Session, envelope *socketapi.Envelope) {

	incoming := &socketapi.ChallengeResponse{}
	if err := envelope.Bind(incoming); err != nil {
		_ = session.Send(socketapi.NewErrorEnvelope(envelope.Cid, socketapi.ErrorBadRequest, err.Error()))
		return
	}

	if !incoming.Accepted {
		p.broker.RejectChallenge(session.ID().String(), incoming.ChallengerConnID)
		_ = session.Send(socketapi.NewEnvelope(envelope.Cid, socketapi.TypeAck, nil))
		return
	}

	m, err := p.broker.AcceptChallenge(session.ID().String(), incoming.ChallengerConnID, incoming.Wager)
	if err != nil {
		_ = session.Send(socketapi.NewErrorEnvelope(envelope.Cid, p.errorCode(err), err.Error()))
		return
	}

	p.matchHandler.Begin(m)

}

func (p *Pipeline) playRound(session Session, envelope *socketapi.Envelope) {

	incoming := &socketapi.PlayRound{}
	if err := envelope.Bind(incoming); err != nil {
		_ = session.Send(socketapi.NewErrorEnvelope(envelope.Cid, socketapi.ErrorBadRequest, err.Error()))
		return
	}

	if err := p.matchHandler.SubmitMove(session.ID().String(), incoming.SessionID, incoming.Round, incoming.Choice); err != nil {
		_ = session.Send(socketapi.NewErrorEnvelope(envelope.Cid, p.errorCode(err), err.Error()))
		return
	}

	_ = session.Send(socketapi.NewEnvelope(envelope.Cid, socketapi.TypeAck, nil))

}

func (p *Pipeline) errorCode(err error) int32 {
	switch {
	case errors.Cause(err) == ErrInsufficientFunds:
		return socketapi.ErrorInsufficientFunds
	case errors.Cause(err) == ErrSessionUnknown:
		return socketapi.ErrorMatchNotFound
	case isConflict(err):
		return socketapi.ErrorConflict
	}
	return socketapi.ErrorBadRequest
}

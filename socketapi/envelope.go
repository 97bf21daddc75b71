package socketapi

import (
	"encoding/json"

	"github.com/pkg/errors"
)

// Envelope is the frame exchanged over the socket in both directions.
// Cid is an optional client-chosen correlation id that is echoed back
// on direct responses so clients can match replies to requests.
type Envelope struct {
	Cid     string          `json:"cid,omitempty"`
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Message types sent by clients.
const (
	TypeUserJoin          = "user_join"
	TypeChallengePlayer   = "challenge_player"
	TypeChallengeResponse = "challenge_response"
	TypePlayRound         = "play_round"
)

// Message types sent by the server.
const (
	TypeAck               = "ack"
	TypePlayersUpdated    = "players_updated"
	TypeChallengeReceived = "challenge_received"
	TypeChallengeRejected = "challenge_rejected"
	TypeMatchStarted      = "match_started"
	TypeRoundComplete     = "round_complete"
	TypeMatchCompleted    = "match_completed"
	TypeMatchVoided       = "match_voided"
	TypeError             = "error"
)

// Round choices as they travel on the wire.
const (
	ChoiceRock     = "rock"
	ChoicePaper    = "paper"
	ChoiceScissors = "scissors"
)

// Outcomes relative to the receiving side.
const (
	OutcomeWin  = "win"
	OutcomeLoss = "loss"
	OutcomeTie  = "tie"
)

// PlayerEntry is one row of the available-player list.
type PlayerEntry struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
	Status   string `json:"status"`
}

type PlayersUpdated struct {
	Players []PlayerEntry `json:"players"`
}

type ChallengePlayer struct {
	TargetUserID string `json:"target_user_id"`
	Wager        int64  `json:"wager"`
}

type ChallengeReceived struct {
	ChallengerConnID string `json:"challenger_conn_id"`
	FromUserID       string `json:"from_user_id"`
	FromUsername     string `json:"from_username"`
	Wager            int64  `json:"wager"`
}

type ChallengeResponse struct {
	ChallengerConnID string `json:"challenger_conn_id"`
	Accepted         bool   `json:"accepted"`
	Wager            int64  `json:"wager"`
}

type ChallengeRejected struct {
	TargetUserID string `json:"target_user_id"`
	Reason       string `json:"reason,omitempty"`
}

type MatchStarted struct {
	SessionID        string `json:"session_id"`
	TotalRounds      int    `json:"total_rounds"`
	Pot              int64  `json:"pot"`
	OpponentUserID   string `json:"opponent_user_id"`
	OpponentUsername string `json:"opponent_username"`
}

type PlayRound struct {
	SessionID string `json:"session_id"`
	Round     int    `json:"round"`
	Choice    string `json:"choice"`
}

type RoundComplete struct {
	SessionID         string `json:"session_id"`
	Round             int    `json:"round"`
	Outcome           string `json:"outcome"`
	YourChoice        string `json:"your_choice"`
	OpponentChoice    string `json:"opponent_choice"`
	YourRoundsWon     int    `json:"your_rounds_won"`
	OpponentRoundsWon int    `json:"opponent_rounds_won"`
}

type MatchCompleted struct {
	SessionID         string `json:"session_id"`
	Outcome           string `json:"outcome"`
	Payout            int64  `json:"payout"`
	YourRoundsWon     int    `json:"your_rounds_won"`
	OpponentRoundsWon int    `json:"opponent_rounds_won"`
}

type MatchVoided struct {
	SessionID string `json:"session_id"`
	Reason    string `json:"reason"`
	Refund    int64  `json:"refund"`
}

// Error codes delivered inside TypeError envelopes.
const (
	ErrorUnrecognizedPayload int32 = iota
	ErrorBadRequest
	ErrorConflict
	ErrorInsufficientFunds
	ErrorMatchNotFound
)

type Error struct {
	Code    int32  `json:"code"`
	Message string `json:"message"`
}

// NewEnvelope marshals payload and wraps it with the given type. It
// panics only on unmarshalable payloads, which would be a programming
// error in this package's own types.
func NewEnvelope(cid string, msgType string, payload interface{}) *Envelope {
	var raw json.RawMessage
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			panic(err)
		}
		raw = data
	}
	return &Envelope{Cid: cid, Type: msgType, Payload: raw}
}

func NewErrorEnvelope(cid string, code int32, message string) *Envelope {
	return NewEnvelope(cid, TypeError, &Error{Code: code, Message: message})
}

// Bind decodes the envelope payload into v.
func (e *Envelope) Bind(v interface{}) error {
	if len(e.Payload) == 0 {
		return errors.New("envelope has no payload")
	}
	if err := json.Unmarshal(e.Payload, v); err != nil {
		return errors.Wrapf(err, "could not decode %s payload", e.Type)
	}
	return nil
}

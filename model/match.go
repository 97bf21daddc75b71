package model

import (
	"time"

	"github.com/globalsign/mgo/bson"
)

// MatchPlayer is one side of an archived match.
type MatchPlayer struct {
	UserID    bson.ObjectId `bson:"userID" json:"user_id"`
	Username  string        `bson:"username" json:"username"`
	Wager     int64         `bson:"wager" json:"wager"`
	RoundsWon int           `bson:"roundsWon" json:"rounds_won"`
}

type MatchRound struct {
	Round   int    `bson:"round" json:"round"`
	ChoiceA string `bson:"choiceA" json:"choice_a"`
	ChoiceB string `bson:"choiceB" json:"choice_b"`
	Result  string `bson:"result" json:"result"` // side_a, side_b or tie
}

// MatchRecord is the write-behind archive of a settled match session.
// It is only ever inserted after settlement has durably succeeded.
type MatchRecord struct {
	Id           bson.ObjectId  `bson:"_id,omitempty" json:"id"`
	SessionID    string         `bson:"sessionID" json:"session_id"`
	Players      [2]MatchPlayer `bson:"players" json:"players"`
	TotalRounds  int            `bson:"totalRounds" json:"total_rounds"`
	Rounds       []MatchRound   `bson:"rounds" json:"rounds"`
	Pot          int64          `bson:"pot" json:"pot"`
	WinnerUserID *bson.ObjectId `bson:"winnerUserID,omitempty" json:"winner_user_id,omitempty"`
	Payout       int64          `bson:"payout" json:"payout"`
	StartedAt    time.Time      `bson:"startedAt" json:"started_at"`
	EndedAt      time.Time      `bson:"endedAt" json:"ended_at"`
}

func (m MatchRecord) GetCollectionName() string {
	return "matches"
}

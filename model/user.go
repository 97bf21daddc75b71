package model

import (
	"time"

	"github.com/globalsign/mgo/bson"
)

// Wallet holds the spendable balance and the cumulative wager
// counters. Balance never goes below zero; debits are guarded by a
// conditional update in the ledger.
type Wallet struct {
	Balance      int64 `bson:"balance" json:"balance"`
	TotalWagered int64 `bson:"totalWagered" json:"total_wagered"`
	TotalWon     int64 `bson:"totalWon" json:"total_won"`
	TotalLost    int64 `bson:"totalLost" json:"total_lost"`
}

type PlayerStats struct {
	TotalGames int `bson:"totalGames" json:"total_games"`
	Wins       int `bson:"wins" json:"wins"`
	Losses     int `bson:"losses" json:"losses"`
}

type User struct {
	Id           bson.ObjectId `bson:"_id,omitempty" json:"id"`
	Username     string        `bson:"username" json:"username"`
	Email        string        `bson:"email,omitempty" json:"email,omitempty"`
	PasswordHash string        `bson:"password,omitempty" json:"-"`
	Fingerprint  string        `bson:"fingerprint,omitempty" json:"-"`
	DisplayName  string        `bson:"displayName" json:"display_name"`
	AvatarUrl    string        `bson:"avatarURL" json:"avatar_url"`
	Wallet       Wallet        `bson:"wallet" json:"wallet"`
	Stats        PlayerStats   `bson:"stats" json:"stats"`
	CreatedAt    time.Time     `bson:"createdAt" json:"created_at"`
	LastLogin    time.Time     `bson:"lastLogin,omitempty" json:"last_login,omitempty"`
}

func (u User) GetCollectionName() string {
	return "users"
}

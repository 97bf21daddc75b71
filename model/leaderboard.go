package model

import "github.com/globalsign/mgo/bson"

type LeaderboardModel struct {
	Id     bson.ObjectId `bson:"_id,omitempty" json:"id"`
	Type   string        `bson:"type" json:"type"`                //day, week, month, overall
	TypeID *string       `bson:"typeID" json:"type_id,omitempty"` //nil for overall
	UserID bson.ObjectId `bson:"userID" json:"user_id"`
	Score  int64         `bson:"score" json:"score"`
}

func (_ LeaderboardModel) GetCollectionName() string {
	return "scores"
}

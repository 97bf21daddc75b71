package server

import (
	"net/http"

	"github.com/globalsign/mgo"
	"github.com/globalsign/mgo/bson"
	"github.com/gorilla/mux"

	"github.com/siredave/rps-battle/model"
)

func (s *Server) matchHistoryHandler(w http.ResponseWriter, r *http.Request) {

	userID := r.Context().Value(ctxUserIDKey{}).(string)
	if !bson.IsObjectIdHex(userID) {
		s.writeError(w, http.StatusBadRequest, "Invalid user id")
		return
	}

	conn := s.db.Copy()
	defer conn.Close()
	db := conn.DB(s.config.DBConfig.Name)

	matches := make([]model.MatchRecord, 0)
	err := db.C(model.MatchRecord{}.GetCollectionName()).Find(bson.M{
		"players.userID": bson.ObjectIdHex(userID),
	}).Sort("-endedAt").Limit(20).All(&matches)
	if err != nil {
		s.logger.Errorw("Could not fetch match history", "userID", userID, "error", err)
		s.writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{"matches": matches})

}

func (s *Server) matchHandler(w http.ResponseWriter, r *http.Request) {

	sessionID := mux.Vars(r)["id"]

	conn := s.db.Copy()
	defer conn.Close()
	db := conn.DB(s.config.DBConfig.Name)

	record := &model.MatchRecord{}
	err := db.C(record.GetCollectionName()).Find(bson.M{
		"sessionID": sessionID,
	}).One(record)
	if err != nil {
		if err == mgo.ErrNotFound {
			s.writeError(w, http.StatusNotFound, "Match couldn't found")
			return
		}
		s.logger.Errorw("Could not fetch match", "sessionID", sessionID, "error", err)
		s.writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{"match": record})

}

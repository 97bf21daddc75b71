package server

import (
	"log"
	"net/http"
	"strconv"

	"github.com/globalsign/mgo/bson"

	"github.com/siredave/rps-battle/model"
)

type leaderboardItem struct {
	User  *model.User `json:"user"`
	Score int64       `json:"score"`
}

type leaderboardResponse struct {
	Items       []*leaderboardItem `json:"items"`
	ItemCount   int                `json:"item_count"`
	Page        int                `json:"page"`
	HasNextPage bool               `json:"has_next_page"`
}

func (s *Server) leaderboardHandler(w http.ResponseWriter, r *http.Request) {

	page := 0
	itemPerPage := 20

	reqPage, err := strconv.Atoi(r.URL.Query().Get("page"))
	if err == nil {
		page = reqPage
	}

	response := &leaderboardResponse{
		Page: page,
	}

	scores, err := s.leaderboard.GetScores(r.URL.Query().Get("type"), page, itemPerPage)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	if len(scores) == itemPerPage {
		response.HasNextPage = true
	} else {
		response.HasNextPage = false
	}

	items := make([]*leaderboardItem, 0)
	conn := s.db.Copy()
	defer conn.Close()
	db := conn.DB(s.config.DBConfig.Name)

	for _, score := range scores {

		var user model.User
		err = db.C(model.User{}.GetCollectionName()).Find(bson.M{
			"_id": score.UserID,
		}).One(&user)
		if err != nil {
			log.Println(err)
		}

		items = append(items, &leaderboardItem{
			User:  &user,
			Score: score.Score,
		})

	}

	response.Items = items
	response.ItemCount = len(items)

	s.writeJSON(w, http.StatusOK, response)

}

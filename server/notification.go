package server

import (
	"net/http"
	"strings"

	"github.com/globalsign/mgo"
	"github.com/globalsign/mgo/bson"
	"github.com/tbalthazar/onesignal-go"

	"github.com/siredave/rps-battle/model"
)

type Notification struct {
	db     *mgo.Session
	config *Config
	client *onesignal.Client
	logger *Logger
}

func NewNotificationService(db *mgo.Session, config *Config, logger *Logger) *Notification {

	client := onesignal.NewClient(nil)
	client.AppKey = config.NotificationConfig.AppKey

	return &Notification{
		db:     db,
		config: config,
		client: client,
		logger: logger,
	}

}

func (n Notification) SendNotificationWithUserIDs(headings map[string]string, body map[string]string, sUserIDs ...string) {

	userIDs := make([]bson.ObjectId, 0)
	for _, id := range sUserIDs {
		userIDs = append(userIDs, bson.ObjectIdHex(id))
	}

	conn := n.db.Copy()
	defer conn.Close()
	db := conn.DB(n.config.DBConfig.Name)

	notificationTokens := make([]model.NotificationToken, 0)

	err := db.C(model.NotificationToken{}.GetCollectionName()).Find(bson.M{
		"userID": bson.M{
			"$in": userIDs,
		},
	}).All(&notificationTokens)
	if err != nil {
		n.logger.Errorw("Error while fetching all notification tokens belongs to given user ids", "userIDs", userIDs, "error", err)
		return
	}

	tokens := make([]string, 0)
	for _, token := range notificationTokens {
		tokens = append(tokens, token.Token)
	}

	n.SendNotificationWithTokens(headings, body, tokens)

}

func (n Notification) SendNotificationWithTokens(headings map[string]string, body map[string]string, tokens []string) {

	loopCount := len(tokens) / 2000

	if len(tokens)%2000 > 0 {
		loopCount = loopCount + 1
	}

	for i := 0; i < loopCount; i++ {
		limit := (i + 1) * 2000

		if limit > len(tokens) {
			limit = len(tokens)
		}

		notificationReq := &onesignal.NotificationRequest{
			AppID:            n.config.NotificationConfig.AppID,
			Headings:         headings,
			Contents:         body,
			IncludePlayerIDs: tokens[i*2000 : limit],
		}

		_, _, err := n.client.Notifications.Create(notificationReq)

		if err != nil {
			n.logger.Errorw("Error while creating notification request", "headings", headings, "contents", body, "error", err)
			return
		}
	}

}

type notificationTokenRequest struct {
	Token string `json:"token"`
}

func (s *Server) addNotificationTokenHandler(w http.ResponseWriter, r *http.Request) {

	userID := r.Context().Value(ctxUserIDKey{}).(string)

	req := &notificationTokenRequest{}
	if !s.readJSON(w, r, req) {
		return
	}

	token := strings.TrimSpace(req.Token)
	if token == "" {
		s.writeError(w, http.StatusBadRequest, "Token couldn't be empty")
		return
	}

	modelS := model.NotificationToken{
		UserID: bson.ObjectIdHex(userID),
		Token:  token,
	}

	conn := s.db.Copy()
	defer conn.Close()
	db := conn.DB(s.config.DBConfig.Name)

	count, err := db.C(modelS.GetCollectionName()).Find(bson.M{
		"userID": bson.ObjectIdHex(userID),
		"token":  token,
	}).Count()
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "DB error: "+err.Error())
		return
	}
	//This entry already exists in db so we don't need to create it again
	if count > 0 {
		s.writeJSON(w, http.StatusOK, map[string]interface{}{})
		return
	}

	err = db.C(modelS.GetCollectionName()).Insert(modelS)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "DB error: "+err.Error())
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{})

}

func (s *Server) deleteNotificationTokenHandler(w http.ResponseWriter, r *http.Request) {

	userID := r.Context().Value(ctxUserIDKey{}).(string)

	req := &notificationTokenRequest{}
	if !s.readJSON(w, r, req) {
		return
	}

	token := strings.TrimSpace(req.Token)
	if token == "" {
		s.writeError(w, http.StatusBadRequest, "Token couldn't be empty")
		return
	}

	conn := s.db.Copy()
	defer conn.Close()
	db := conn.DB(s.config.DBConfig.Name)

	err := db.C(model.NotificationToken{}.GetCollectionName()).Remove(bson.M{
		"userID": bson.ObjectIdHex(userID),
		"token":  token,
	})
	if err != nil && err != mgo.ErrNotFound {
		s.writeError(w, http.StatusInternalServerError, "DB error: "+err.Error())
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{})

}

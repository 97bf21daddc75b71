package server

import (
	"net/http"
	"time"

	"github.com/dgrijalva/jwt-go"

	"github.com/siredave/rps-battle/model"
)

type sessionResponse struct {
	Token string      `json:"token"`
	User  *model.User `json:"user"`
}

func (s *Server) registerHandler(w http.ResponseWriter, r *http.Request) {
	s.stats.IncrRequest()

	request := struct {
		Username string `json:"username"`
		Email    string `json:"email"`
		Password string `json:"password"`
	}{}
	if !s.readJSON(w, r, &request) {
		return
	}

	user, err := RegisterUser(request.Username, request.Email, request.Password, s.db, s.config)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	token, _ := generateToken(user.Id.Hex(), user.Username, s.config)

	s.writeJSON(w, http.StatusCreated, &sessionResponse{Token: token, User: user})

}

func (s *Server) loginHandler(w http.ResponseWriter, r *http.Request) {
	s.stats.IncrRequest()

	request := struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}{}
	if !s.readJSON(w, r, &request) {
		return
	}

	user, err := LoginUser(request.Email, request.Password, s.db, s.config)
	if err != nil {
		s.writeError(w, http.StatusUnauthorized, err.Error())
		return
	}

	token, _ := generateToken(user.Id.Hex(), user.Username, s.config)

	s.writeJSON(w, http.StatusOK, &sessionResponse{Token: token, User: user})

}

func (s *Server) fingerprintHandler(w http.ResponseWriter, r *http.Request) {
	s.stats.IncrRequest()

	request := struct {
		Fingerprint string `json:"fingerprint"`
	}{}
	if !s.readJSON(w, r, &request) {
		return
	}

	user, err := AuthenticateFingerprint(request.Fingerprint, s.db, s.config)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	token, _ := generateToken(user.Id.Hex(), user.Username, s.config)

	s.writeJSON(w, http.StatusOK, &sessionResponse{Token: token, User: user})

}

func (s *Server) profileHandler(w http.ResponseWriter, r *http.Request) {

	userID := r.Context().Value(ctxUserIDKey{}).(string)

	user, err := GetUser(userID, s.db, s.config)
	if err != nil {
		if err == ErrUserNotFound {
			s.writeError(w, http.StatusNotFound, "User couldn't found")
			return
		}
		s.logger.Errorw("Could not fetch profile", "userID", userID, "error", err)
		s.writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	s.writeJSON(w, http.StatusOK, user)

}

func generateToken(userID, username string, config *Config) (string, int64) {
	exp := time.Now().UTC().Add(time.Duration(config.AuthConfig.TokenExpireTime) * time.Second).Unix()
	return generateTokenWithExpiry(userID, username, exp, config)
}

func generateTokenWithExpiry(userID, username string, exp int64, config *Config) (string, int64) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"uid": userID,
		"exp": exp,
		"usn": username,
	})
	signedToken, _ := token.SignedString([]byte(config.AuthConfig.JWTSecret))
	return signedToken, exp
}

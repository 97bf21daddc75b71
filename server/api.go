package server

import (
	"context"
	"crypto"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"net/http"
	"strings"

	"github.com/dgrijalva/jwt-go"
	"github.com/globalsign/mgo"
	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/mediocregopher/radix/v3"
)

type ctxUserIDKey struct{}
type ctxUsernameKey struct{}
type ctxExpiryKey struct{}

type Server struct {
	db           *mgo.Session
	httpServer   *http.Server
	config       *Config
	leaderboard  *Leaderboard
	notification *Notification
	stats        *Stats
	logger       *Logger
}

func (s *Server) Stop() {
	if err := s.httpServer.Shutdown(context.Background()); err != nil {
		s.logger.Error("Couldn't shutdown http server")
	}
}

func StartServer(sessionHolder *SessionHolder, config *Config, pipeline *Pipeline, db *mgo.Session, leaderboard *Leaderboard, notification *Notification, stats *Stats, logger *Logger) *Server {

	s := &Server{
		db:           db,
		config:       config,
		leaderboard:  leaderboard,
		notification: notification,
		stats:        stats,
		logger:       logger,
	}

	router := mux.NewRouter()

	// Special case routes. Do NOT enable compression on WebSocket route, it results in "http: response.Write on hijacked connection" errors.
	router.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200) }).Methods("GET")
	router.HandleFunc("/ws", NewSocketAcceptor(sessionHolder, config, pipeline, stats, logger)).Methods("GET")
	router.Handle("/metrics", stats.Handler()).Methods("GET")

	router.HandleFunc("/v1/account/register", s.registerHandler).Methods("POST")
	router.HandleFunc("/v1/account/login", s.loginHandler).Methods("POST")
	router.HandleFunc("/v1/account/authenticate/fingerprint", s.fingerprintHandler).Methods("POST")
	router.HandleFunc("/v1/account/profile", s.authenticated(s.profileHandler)).Methods("GET")
	router.HandleFunc("/v1/leaderboard", s.leaderboardHandler).Methods("GET")
	router.HandleFunc("/v1/match/history", s.authenticated(s.matchHistoryHandler)).Methods("GET")
	router.HandleFunc("/v1/match/{id}", s.authenticated(s.matchHandler)).Methods("GET")
	router.HandleFunc("/v1/notification/token", s.authenticated(s.addNotificationTokenHandler)).Methods("POST")
	router.HandleFunc("/v1/notification/token", s.authenticated(s.deleteNotificationTokenHandler)).Methods("DELETE")

	// Enable CORS on all requests.
	CORSHeaders := handlers.AllowedHeaders([]string{"Authorization", "Content-Type", "User-Agent"})
	CORSOrigins := handlers.AllowedOrigins([]string{"*"})
	CORSMethods := handlers.AllowedMethods([]string{"GET", "HEAD", "POST", "PUT", "DELETE"})
	handlerWithCORS := handlers.CORS(CORSHeaders, CORSOrigins, CORSMethods)(router)

	s.httpServer = &http.Server{
		MaxHeaderBytes: 5120,
		Handler:        handlerWithCORS,
	}

	logger.Infow("Starting server for HTTP requests", "port", config.Port)
	go func() {
		listener, err := net.Listen("tcp", fmt.Sprintf(":%d", config.Port))
		if err != nil {
			logger.Fatalw("Error while creating listener for http server", "error", err)
		}
		if err := s.httpServer.Serve(listener); err != nil && err != http.ErrServerClosed {
			logger.Fatalw("Error while serving http server", "error", err)
		}
	}()

	return s

}

//authenticated wraps a handler with bearer token validation and puts
//the token claims into the request context
func (s *Server) authenticated(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.stats.IncrRequest()

		auth := r.Header.Get("Authorization")
		userID, username, exp, ok := parseBearerAuth([]byte(s.config.AuthConfig.JWTSecret), auth)
		if !ok {
			s.writeError(w, http.StatusUnauthorized, "Auth token invalid")
			return
		}

		ctx := context.WithValue(context.WithValue(context.WithValue(r.Context(), ctxUserIDKey{}, userID), ctxUsernameKey{}, username), ctxExpiryKey{}, exp)
		next(w, r.WithContext(ctx))
	}
}

func (s *Server) readJSON(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, s.config.MaxRequestBodySize)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		s.writeError(w, http.StatusBadRequest, "Malformed request body")
		return false
	}
	return true
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Errorw("Could not encode response", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"message": message})
}

func parseBearerAuth(hmacSecretByte []byte, auth string) (userID string, username string, exp int64, ok bool) {
	if auth == "" {
		return
	}
	const prefix = "Bearer "
	if !strings.HasPrefix(auth, prefix) {
		return
	}
	return parseToken(hmacSecretByte, string(auth[len(prefix):]))
}

func parseToken(hmacSecretByte []byte, tokenString string) (userID string, username string, exp int64, ok bool) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if s, ok := token.Method.(*jwt.SigningMethodHMAC); !ok || s.Hash != crypto.SHA256 {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return hmacSecretByte, nil
	})
	if err != nil {
		return
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return
	}
	userID, ok = claims["uid"].(string)
	if !ok {
		return
	}
	return userID, claims["usn"].(string), int64(claims["exp"].(float64)), true
}

func ConnectDB(config *Config) *mgo.Session {

	conn, err := mgo.Dial(config.DBConfig.ConnString)
	if err != nil {
		log.Fatal("Cannot dial mongo", err)
	}
	log.Println("Mongo connection completed")
	return conn

}

func ConnectRedis(config *Config) radix.Client {

	pool, err := radix.NewPool("tcp", config.RedisConfig.ConnString, config.RedisConfig.PoolSize)
	if err != nil {
		log.Fatal("Cannot connect redis", err)
	}
	return pool

}

package server

import (
	"sync"

	"github.com/satori/go.uuid"

	"github.com/siredave/rps-battle/socketapi"
)

type Session interface {
	ID() uuid.UUID
	UserID() string
	ClientIP() string
	ClientPort() string

	Username() string

	Expiry() int64

	Consume(handlerFunc func(session Session, envelope *socketapi.Envelope) bool)

	Send(envelope *socketapi.Envelope) error
	SendBytes(payload []byte) error

	Close()
	IsClosed() bool
}

// SessionHolder maintains a thread-safe list of sessions to their IDs.
type SessionHolder struct {
	sync.RWMutex
	sessions map[uuid.UUID]Session
	config   *Config
}

func NewSessionHolder(config *Config) *SessionHolder {
	return &SessionHolder{
		sessions: make(map[uuid.UUID]Session),
		config:   config,
	}
}

func (r *SessionHolder) Stop() {}

func (r *SessionHolder) Get(sessionID uuid.UUID) Session {
	var s Session
	r.RLock()
	s = r.sessions[sessionID]
	r.RUnlock()
	return s
}

// GetByConnID resolves the string form of a session id, which the
// coordinator uses as the connection id.
func (r *SessionHolder) GetByConnID(connID string) Session {
	id, err := uuid.FromString(connID)
	if err != nil {
		return nil
	}
	return r.Get(id)
}

func (r *SessionHolder) GetByUserID(userID string) Session {
	r.RLock()
	defer r.RUnlock()
	for _, s := range r.sessions {
		if s.UserID() == userID {
			return s
		}
	}
	return nil
}

func (r *SessionHolder) All() []Session {
	r.RLock()
	defer r.RUnlock()
	sessions := make([]Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		sessions = append(sessions, s)
	}
	return sessions
}

func (r *SessionHolder) add(s Session) {
	r.Lock()
	r.sessions[s.ID()] = s
	r.Unlock()
}

func (r *SessionHolder) remove(sessionID uuid.UUID) {
	r.Lock()
	delete(r.sessions, sessionID)
	r.Unlock()
}

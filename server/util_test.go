package server

import (
	"sync"

	"github.com/globalsign/mgo/bson"
	"github.com/satori/go.uuid"

	"github.com/siredave/rps-battle/socketapi"
)

var (
	statsOnce   sync.Once
	sharedStats *Stats
)

// Stat views can only be registered once per process.
func testStats() *Stats {
	statsOnce.Do(func() {
		sharedStats = NewStatsHolder()
	})
	return sharedStats
}

func testConfig() *Config {
	config := &Config{}
	config.GameConfig.TotalRounds = 10
	config.GameConfig.StartingBalance = 1000
	config.GameConfig.ChallengeTimeout = 30000
	config.GameConfig.DisconnectGraceTime = 60000
	config.GameConfig.SettlementRetryCount = 3
	config.GameConfig.SettlementRetryBackoff = 1
	config.DevelopmentEnabled = true
	return config
}

func testLogger() *Logger {
	config := testConfig()
	return NewLogger(config)
}

type fakeSession struct {
	sync.Mutex
	id       uuid.UUID
	userID   string
	username string
	closed   bool
	sent     []*socketapi.Envelope
}

func newFakeSession(userID, username string) *fakeSession {
	return &fakeSession{
		id:       uuid.NewV4(),
		userID:   userID,
		username: username,
	}
}

func (s *fakeSession) ID() uuid.UUID      { return s.id }
func (s *fakeSession) UserID() string     { return s.userID }
func (s *fakeSession) ClientIP() string   { return "127.0.0.1" }
func (s *fakeSession) ClientPort() string { return "0" }
func (s *fakeSession) Username() string   { return s.username }
func (s *fakeSession) Expiry() int64      { return 0 }

func (s *fakeSession) Consume(handlerFunc func(session Session, envelope *socketapi.Envelope) bool) {
}

func (s *fakeSession) Send(envelope *socketapi.Envelope) error {
	s.Lock()
	defer s.Unlock()
	s.sent = append(s.sent, envelope)
	return nil
}

func (s *fakeSession) SendBytes(payload []byte) error { return nil }

func (s *fakeSession) Close() {
	s.Lock()
	defer s.Unlock()
	s.closed = true
}

func (s *fakeSession) IsClosed() bool {
	s.Lock()
	defer s.Unlock()
	return s.closed
}

// sentOfType returns every delivered envelope of the given type.
func (s *fakeSession) sentOfType(msgType string) []*socketapi.Envelope {
	s.Lock()
	defer s.Unlock()
	envelopes := make([]*socketapi.Envelope, 0)
	for _, e := range s.sent {
		if e.Type == msgType {
			envelopes = append(envelopes, e)
		}
	}
	return envelopes
}

type fakeWallet struct {
	balance int64
	games   int
	wins    int
	losses  int
}

// fakeLedger is an in-memory stand-in with per-user failure injection
// for the settlement paths.
type fakeLedger struct {
	sync.Mutex
	wallets map[string]*fakeWallet

	//Remaining times ApplySettlement and Refund should fail per user
	failApply  map[string]int
	failRefund map[string]int

	applyCalls map[string]int
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{
		wallets:    make(map[string]*fakeWallet),
		failApply:  make(map[string]int),
		failRefund: make(map[string]int),
		applyCalls: make(map[string]int),
	}
}

func (l *fakeLedger) addUser(userID string, balance int64) {
	l.Lock()
	defer l.Unlock()
	l.wallets[userID] = &fakeWallet{balance: balance}
}

func (l *fakeLedger) balanceOf(userID string) int64 {
	l.Lock()
	defer l.Unlock()
	if w, ok := l.wallets[userID]; ok {
		return w.balance
	}
	return 0
}

func (l *fakeLedger) statsOf(userID string) (int, int, int) {
	l.Lock()
	defer l.Unlock()
	if w, ok := l.wallets[userID]; ok {
		return w.games, w.wins, w.losses
	}
	return 0, 0, 0
}

func (l *fakeLedger) GetBalance(userID string) (int64, error) {
	l.Lock()
	defer l.Unlock()
	w, ok := l.wallets[userID]
	if !ok {
		return 0, ErrUserNotFound
	}
	return w.balance, nil
}

func (l *fakeLedger) Debit(userID string, amount int64) error {
	l.Lock()
	defer l.Unlock()
	return l.debit(userID, amount)
}

func (l *fakeLedger) debit(userID string, amount int64) error {
	w, ok := l.wallets[userID]
	if !ok {
		return ErrUserNotFound
	}
	if w.balance < amount {
		return ErrInsufficientFunds
	}
	w.balance -= amount
	return nil
}

func (l *fakeLedger) Credit(userID string, amount int64) error {
	l.Lock()
	defer l.Unlock()
	w, ok := l.wallets[userID]
	if !ok {
		return ErrUserNotFound
	}
	w.balance += amount
	return nil
}

func (l *fakeLedger) IncrementStats(userID string, delta StatsDelta) error {
	l.Lock()
	defer l.Unlock()
	w, ok := l.wallets[userID]
	if !ok {
		return ErrUserNotFound
	}
	w.games += delta.Games
	w.wins += delta.Wins
	w.losses += delta.Losses
	return nil
}

func (l *fakeLedger) EscrowWagers(userIDA, userIDB string, wager int64) error {
	l.Lock()
	defer l.Unlock()
	if err := l.debit(userIDA, wager); err != nil {
		return err
	}
	if err := l.debit(userIDB, wager); err != nil {
		l.wallets[userIDA].balance += wager
		return err
	}
	return nil
}

func (l *fakeLedger) Refund(userID string, amount int64) error {
	l.Lock()
	defer l.Unlock()
	if remaining := l.failRefund[userID]; remaining > 0 {
		l.failRefund[userID] = remaining - 1
		return ErrUserNotFound
	}
	w, ok := l.wallets[userID]
	if !ok {
		return ErrUserNotFound
	}
	w.balance += amount
	return nil
}

func (l *fakeLedger) ApplySettlement(userID string, credit int64, delta StatsDelta) error {
	l.Lock()
	defer l.Unlock()
	l.applyCalls[userID]++
	if remaining := l.failApply[userID]; remaining > 0 {
		l.failApply[userID] = remaining - 1
		return ErrUserNotFound
	}
	w, ok := l.wallets[userID]
	if !ok {
		return ErrUserNotFound
	}
	w.balance += credit
	w.games += delta.Games
	w.wins += delta.Wins
	w.losses += delta.Losses
	return nil
}

// testPlayer bundles the pieces of one connected identity.
type testPlayer struct {
	userID   string
	username string
	session  *fakeSession
	connID   string
}

// connectPlayer registers a fake session and announces its presence.
func connectPlayer(sessionHolder *SessionHolder, presence *PresenceRegistry, ledger *fakeLedger, username string, balance int64) *testPlayer {
	userID := bson.NewObjectId().Hex()
	session := newFakeSession(userID, username)
	sessionHolder.add(session)
	connID := session.ID().String()
	presence.Announce(connID, userID, username)
	ledger.addUser(userID, balance)
	return &testPlayer{
		userID:   userID,
		username: username,
		session:  session,
		connID:   connID,
	}
}

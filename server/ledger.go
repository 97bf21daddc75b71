package server

import (
	"github.com/globalsign/mgo"
	"github.com/globalsign/mgo/bson"
	"github.com/kayalardanmehmet/redsync-radix"
	"github.com/mediocregopher/radix/v3"
	"github.com/pkg/errors"

	"github.com/siredave/rps-battle/model"
)

// StatsDelta is applied to a user's cumulative match counters together
// with the balance movement of the same settlement leg.
type StatsDelta struct {
	Games  int
	Wins   int
	Losses int
}

// Ledger is the balance-and-stats store consumed by the challenge
// broker and the settlement engine. Implementations must make every
// operation atomic per identity.
type Ledger interface {
	GetBalance(userID string) (int64, error)
	Debit(userID string, amount int64) error
	Credit(userID string, amount int64) error
	IncrementStats(userID string, delta StatsDelta) error

	//EscrowWagers debits both identities as one logical step. Either
	//both debits happen or neither does.
	EscrowWagers(userIDA, userIDB string, wager int64) error

	//Refund returns escrowed funds without counting them as winnings.
	Refund(userID string, amount int64) error

	//ApplySettlement commits a credit and the matching stat increments
	//for one identity together.
	ApplySettlement(userID string, credit int64, delta StatsDelta) error
}

type mongoLedger struct {
	db     *mgo.Session
	dbName string
	redis  radix.Client
	logger *Logger
}

func NewMongoLedger(db *mgo.Session, config *Config, redis radix.Client, logger *Logger) Ledger {
	return &mongoLedger{
		db:     db,
		dbName: config.DBConfig.Name,
		redis:  redis,
		logger: logger,
	}
}

//lockWallet serializes read-modify-write sequences for one identity
//across every session that touches its wallet.
func (l *mongoLedger) lockWallet(userID string) func() {
	rs := redsyncradix.New([]radix.Client{l.redis})
	mutex := rs.NewMutex("lock|wallet|" + userID)
	if err := mutex.Lock(); err != nil {
		l.logger.Errorw("Could not acquire wallet lock", "userID", userID, "error", err)
		return func() {}
	}
	return func() { mutex.Unlock() }
}

func (l *mongoLedger) GetBalance(userID string) (int64, error) {

	conn := l.db.Copy()
	defer conn.Close()
	db := conn.DB(l.dbName)

	user := &model.User{}
	err := db.C(user.GetCollectionName()).FindId(bson.ObjectIdHex(userID)).Select(bson.M{"wallet": 1}).One(user)
	if err != nil {
		if err == mgo.ErrNotFound {
			return 0, ErrUserNotFound
		}
		return 0, errors.Wrap(err, "could not fetch wallet")
	}

	return user.Wallet.Balance, nil

}

func (l *mongoLedger) Debit(userID string, amount int64) error {
	if amount <= 0 {
		return ErrInvalidWager
	}

	unlock := l.lockWallet(userID)
	defer unlock()

	return l.debit(userID, amount)
}

//debit assumes the caller holds the wallet lock. The balance filter
//keeps the wallet non-negative even if the lock could not be taken.
func (l *mongoLedger) debit(userID string, amount int64) error {

	conn := l.db.Copy()
	defer conn.Close()
	db := conn.DB(l.dbName)

	err := db.C(model.User{}.GetCollectionName()).Update(bson.M{
		"_id":            bson.ObjectIdHex(userID),
		"wallet.balance": bson.M{"$gte": amount},
	}, bson.M{
		"$inc": bson.M{
			"wallet.balance":      -amount,
			"wallet.totalWagered": amount,
		},
	})
	if err != nil {
		if err == mgo.ErrNotFound {
			//Either the user is missing or the balance is short;
			//disambiguate so callers can report the right class
			count, cErr := db.C(model.User{}.GetCollectionName()).FindId(bson.ObjectIdHex(userID)).Count()
			if cErr == nil && count == 0 {
				return ErrUserNotFound
			}
			return ErrInsufficientFunds
		}
		return errors.Wrap(err, "could not debit wallet")
	}

	return nil

}

func (l *mongoLedger) Credit(userID string, amount int64) error {

	unlock := l.lockWallet(userID)
	defer unlock()

	return l.credit(userID, amount)
}

func (l *mongoLedger) credit(userID string, amount int64) error {

	conn := l.db.Copy()
	defer conn.Close()
	db := conn.DB(l.dbName)

	err := db.C(model.User{}.GetCollectionName()).UpdateId(bson.ObjectIdHex(userID), bson.M{
		"$inc": bson.M{
			"wallet.balance":  amount,
			"wallet.totalWon": amount,
		},
	})
	if err != nil {
		if err == mgo.ErrNotFound {
			return ErrUserNotFound
		}
		return errors.Wrap(err, "could not credit wallet")
	}

	return nil

}

func (l *mongoLedger) Refund(userID string, amount int64) error {

	unlock := l.lockWallet(userID)
	defer unlock()

	conn := l.db.Copy()
	defer conn.Close()
	db := conn.DB(l.dbName)

	err := db.C(model.User{}.GetCollectionName()).UpdateId(bson.ObjectIdHex(userID), bson.M{
		"$inc": bson.M{
			"wallet.balance":      amount,
			"wallet.totalWagered": -amount,
		},
	})
	if err != nil {
		if err == mgo.ErrNotFound {
			return ErrUserNotFound
		}
		return errors.Wrap(err, "could not refund wallet")
	}

	return nil

}

func (l *mongoLedger) IncrementStats(userID string, delta StatsDelta) error {

	conn := l.db.Copy()
	defer conn.Close()
	db := conn.DB(l.dbName)

	err := db.C(model.User{}.GetCollectionName()).UpdateId(bson.ObjectIdHex(userID), bson.M{
		"$inc": bson.M{
			"stats.totalGames": delta.Games,
			"stats.wins":       delta.Wins,
			"stats.losses":     delta.Losses,
		},
	})
	if err != nil {
		if err == mgo.ErrNotFound {
			return ErrUserNotFound
		}
		return errors.Wrap(err, "could not increment stats")
	}

	return nil

}

func (l *mongoLedger) EscrowWagers(userIDA, userIDB string, wager int64) error {
	if wager <= 0 {
		return ErrInvalidWager
	}

	//Always lock in a stable order so two concurrent escrows involving
	//the same identities cannot deadlock
	first, second := userIDA, userIDB
	if second < first {
		first, second = second, first
	}

	unlockFirst := l.lockWallet(first)
	defer unlockFirst()
	unlockSecond := l.lockWallet(second)
	defer unlockSecond()

	balanceA, err := l.GetBalance(userIDA)
	if err != nil {
		return err
	}
	if balanceA < wager {
		return ErrInsufficientFunds
	}

	balanceB, err := l.GetBalance(userIDB)
	if err != nil {
		return err
	}
	if balanceB < wager {
		return ErrInsufficientFunds
	}

	if err := l.debit(userIDA, wager); err != nil {
		return err
	}

	if err := l.debit(userIDB, wager); err != nil {
		//Roll the first debit back so no partial escrow survives. The
		//compensating credit must not count as winnings.
		conn := l.db.Copy()
		defer conn.Close()
		db := conn.DB(l.dbName)
		if rbErr := db.C(model.User{}.GetCollectionName()).UpdateId(bson.ObjectIdHex(userIDA), bson.M{
			"$inc": bson.M{
				"wallet.balance":      wager,
				"wallet.totalWagered": -wager,
			},
		}); rbErr != nil {
			l.logger.Errorw("Could not roll back escrow debit", "userID", userIDA, "wager", wager, "error", rbErr)
		}
		return err
	}

	return nil

}

func (l *mongoLedger) ApplySettlement(userID string, credit int64, delta StatsDelta) error {

	unlock := l.lockWallet(userID)
	defer unlock()

	conn := l.db.Copy()
	defer conn.Close()
	db := conn.DB(l.dbName)

	//Balance movement and stat increments commit in one document
	//update, so a settlement leg is atomic per identity
	inc := bson.M{
		"stats.totalGames": delta.Games,
		"stats.wins":       delta.Wins,
		"stats.losses":     delta.Losses,
	}
	if credit > 0 {
		inc["wallet.balance"] = credit
		inc["wallet.totalWon"] = credit
	}

	err := db.C(model.User{}.GetCollectionName()).UpdateId(bson.ObjectIdHex(userID), bson.M{"$inc": inc})
	if err != nil {
		if err == mgo.ErrNotFound {
			return ErrUserNotFound
		}
		return errors.Wrap(err, "could not apply settlement")
	}

	return nil

}

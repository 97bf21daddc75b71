package server

import (
	"strings"
	"time"

	"cirello.io/goherokuname"
	"github.com/globalsign/mgo"
	"github.com/globalsign/mgo/bson"
	"github.com/pkg/errors"
	"golang.org/x/crypto/bcrypt"

	"github.com/siredave/rps-battle/model"
)

// RegisterUser creates an email/password account with the starting
// balance. Username and email must be unused.
func RegisterUser(username string, email string, password string, conn *mgo.Session, config *Config) (*model.User, error) {

	username = strings.TrimSpace(username)
	email = strings.ToLower(strings.TrimSpace(email))

	if len(username) < 3 {
		return nil, errors.New("username must be at least 3 characters")
	}
	if email == "" || !strings.Contains(email, "@") {
		return nil, errors.New("email is not valid")
	}
	if len(password) < 6 {
		return nil, errors.New("password must be at least 6 characters")
	}

	cConn := conn.Copy()
	defer cConn.Close()
	db := cConn.DB(config.DBConfig.Name)

	count, err := db.C(model.User{}.GetCollectionName()).Find(bson.M{
		"$or": []bson.M{
			{"username": username},
			{"email": email},
		},
	}).Count()
	if err != nil {
		return nil, err
	}
	if count > 0 {
		return nil, errors.New("username or email is already taken")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	user := &model.User{
		Id:           bson.NewObjectId(),
		Username:     username,
		Email:        email,
		PasswordHash: string(hash),
		DisplayName:  username,
		AvatarUrl:    "http://api.adorable.io/avatars/150/" + username + ".png",
		Wallet: model.Wallet{
			Balance: config.GameConfig.StartingBalance,
		},
		CreatedAt: time.Now().UTC(),
	}

	if err := db.C(user.GetCollectionName()).Insert(&user); err != nil {
		return nil, err
	}

	return user, nil

}

// LoginUser validates email/password credentials and stamps the last
// login time.
func LoginUser(email string, password string, conn *mgo.Session, config *Config) (*model.User, error) {

	email = strings.ToLower(strings.TrimSpace(email))

	if email == "" || password == "" {
		return nil, errors.New("email or password couldn't be empty")
	}

	cConn := conn.Copy()
	defer cConn.Close()
	db := cConn.DB(config.DBConfig.Name)

	user := &model.User{}
	err := db.C(user.GetCollectionName()).Find(bson.M{
		"email": email,
	}).One(user)
	if err != nil {
		if err == mgo.ErrNotFound {
			return nil, errors.New("invalid credentials")
		}
		return nil, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, errors.New("invalid credentials")
	}

	user.LastLogin = time.Now().UTC()
	_ = db.C(user.GetCollectionName()).UpdateId(user.Id, bson.M{"$set": bson.M{"lastLogin": user.LastLogin}})

	return user, nil

}

// AuthenticateFingerprint logs a guest in by device fingerprint,
// creating an account with a generated username on first sight.
func AuthenticateFingerprint(fingerprint string, conn *mgo.Session, config *Config) (*model.User, error) {

	if fingerprint == "" {
		return nil, errors.New("fingerprint couldn't be empty")
	}

	cConn := conn.Copy()
	defer cConn.Close()
	db := cConn.DB(config.DBConfig.Name)

	//First check if user exists with given fingerprint
	user := &model.User{}

	err := db.C(user.GetCollectionName()).Find(bson.M{
		"fingerprint": fingerprint,
	}).One(user)
	if err != nil {
		if err.Error() == mgo.ErrNotFound.Error() {

			username := goherokuname.HaikunateCustom("-", 4, "DfWx9873214560jzrl")

			//Generate user name until find one that doesn't exists in db
			for {
				count, err := db.C(user.GetCollectionName()).Find(bson.M{"username": username}).Count()
				if err != nil {
					return nil, err
				}
				if count == 0 {
					break
				}
				username = goherokuname.HaikunateCustom("-", 4, "DfWx9873214560jzrl")
			}

			user := &model.User{
				Id:          bson.NewObjectId(),
				Username:    username,
				Fingerprint: fingerprint,
				DisplayName: username,
				AvatarUrl:   "http://api.adorable.io/avatars/150/" + username + ".png",
				Wallet: model.Wallet{
					Balance: config.GameConfig.StartingBalance,
				},
				CreatedAt: time.Now().UTC(),
			}

			err = db.C(user.GetCollectionName()).Insert(&user)
			if err != nil {
				return nil, err
			}

			return user, nil

		} else {
			return nil, err
		}
	} else {
		return user, nil
	}

}

// GetUser fetches a user document by its hex id.
func GetUser(userID string, conn *mgo.Session, config *Config) (*model.User, error) {

	if !bson.IsObjectIdHex(userID) {
		return nil, ErrUserNotFound
	}

	cConn := conn.Copy()
	defer cConn.Close()
	db := cConn.DB(config.DBConfig.Name)

	user := &model.User{}
	err := db.C(user.GetCollectionName()).FindId(bson.ObjectIdHex(userID)).One(user)
	if err != nil {
		if err == mgo.ErrNotFound {
			return nil, ErrUserNotFound
		}
		return nil, err
	}

	return user, nil

}

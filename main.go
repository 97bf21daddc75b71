package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/jinzhu/configor"

	"github.com/siredave/rps-battle/server"
)

func main() {

	config := &server.Config{}
	err := configor.Load(config, "config.yml")
	if err != nil {
		log.Fatal("Error while reading configurations from config.yml", err)
	}

	logger := server.NewLogger(config)
	defer logger.Sync()

	stats := server.NewStatsHolder()

	db := server.ConnectDB(config)
	redis := server.ConnectRedis(config)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sessionHolder := server.NewSessionHolder(config)
	presence := server.NewPresenceRegistry(sessionHolder, logger)
	matchHolder := server.NewMatchHolder()

	ledger := server.NewMongoLedger(db, config, redis, logger)
	leaderboard := server.NewLeaderboard(db, config)
	notification := server.NewNotificationService(db, config, logger)
	pubsub := server.NewPubSub(config, logger, ctx)

	settlement := server.NewSettlementEngine(ledger, matchHolder, sessionHolder, presence, leaderboard, notification, pubsub, db, config, stats, logger)
	matchHandler := server.NewMatchHandler(matchHolder, sessionHolder, presence, settlement, ledger, config, stats, logger)
	broker := server.NewChallengeBroker(presence, sessionHolder, matchHolder, ledger, config, stats, logger)

	pipeline := server.NewPipeline(config, sessionHolder, presence, broker, matchHandler, logger)

	s := server.StartServer(sessionHolder, config, pipeline, db, leaderboard, notification, stats, logger)

	c := make(chan os.Signal, 2)
	signal.Notify(c, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	log.Println("Startup was completed")

	<-c

	s.Stop()

}

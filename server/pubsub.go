package server

import (
	"context"
	"encoding/json"

	"github.com/streadway/amqp"

	"github.com/siredave/rps-battle/model"
)

// PubSub publishes completed match records to a fanout exchange so external
// consumers (analytics, feeds) can follow match results. It is disabled when
// no RabbitMQ connection string is configured.
type PubSub struct {
	isEnabled bool
	pubChan   *amqp.Channel
	logger    *Logger
	context   context.Context
}

func NewPubSub(config *Config, logger *Logger, context context.Context) *PubSub {

	if config.RabbitMQ.ConnectionString != "" {
		conn, err := amqp.Dial(config.RabbitMQ.ConnectionString)
		if err != nil {
			logger.Fatalw("Error while trying to connect amqp server", "error", err)
		}

		pubChan, err := conn.Channel()
		if err != nil {
			logger.Fatalw("Error while trying to open a channel for publish over amqp connection", "error", err)
		}

		err = pubChan.ExchangeDeclare(
			"match_events",
			"fanout",
			true,
			false,
			false,
			false,
			nil,
		)
		if err != nil {
			logger.Fatalw("Error while trying to define exchange over publish channel", "error", err)
		}

		go func() {
			<-context.Done()
			logger.Info("Closing amqp connection")
			_ = conn.Close()
		}()

		return &PubSub{
			isEnabled: true,
			pubChan:   pubChan,
			logger:    logger,
			context:   context,
		}
	} else {
		return &PubSub{
			isEnabled: false,
			logger:    logger,
			context:   context,
		}
	}

}

func (ps *PubSub) PublishMatchEvent(record *model.MatchRecord) error {

	if !ps.isEnabled {
		return nil
	}

	data, err := json.Marshal(record)
	if err != nil {
		ps.logger.Errorw("Error while trying to marshal match record in publish method of pubsub module", "error", err)
		return err
	}

	err = ps.pubChan.Publish(
		"match_events",
		"",
		false,
		false,
		amqp.Publishing{
			ContentType: "application/json",
			Body:        data,
		})

	if err != nil {
		ps.logger.Errorw("Error while trying to publish data in publish method of pubsub module", "error", err)
		return err
	}

	return nil

}

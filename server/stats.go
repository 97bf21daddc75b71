package server

import (
	"context"
	"log"
	"net/http"

	"go.opencensus.io/exporter/prometheus"
	"go.opencensus.io/stats"
	"go.opencensus.io/stats/view"
	"go.opencensus.io/tag"
)

type Stats struct {
	prometheusExporter *prometheus.Exporter
	mSocketConnection  *stats.Int64Measure
	mSocketRequest     *stats.Int64Measure
	mRequest           *stats.Int64Measure
	mMatchStarted      *stats.Int64Measure
	mRoundResolved     *stats.Int64Measure
	mMatchSettled      *stats.Int64Measure
	mSettlementRetry   *stats.Int64Measure
}

func NewStatsHolder() *Stats {

	mSocketConnection := stats.Int64("rpsbattle/socket_connection", "Socket Connection Count", "By")
	vSocketConnectionSum := &view.View{
		Name:        "rpsbattle/socket_connection_sum",
		Measure:     mSocketConnection,
		Description: "The number of open socket connections",
		Aggregation: view.Sum(),
	}

	mSocketRequest := stats.Int64("rpsbattle/socket_requests", "Socket Request Count", "By")
	vSocketRequestSum := &view.View{
		Name:        "rpsbattle/socket_requests_sum",
		Measure:     mSocketRequest,
		Description: "The number of total socket requests",
		Aggregation: view.Sum(),
	}

	mRequest := stats.Int64("rpsbattle/requests", "Request Count", "By")
	vRequestSum := &view.View{
		Name:        "rpsbattle/requests_sum",
		Measure:     mRequest,
		Description: "The number of total api requests",
		Aggregation: view.Sum(),
	}

	mMatchStarted := stats.Int64("rpsbattle/matches_started", "Started Match Count", "By")
	vMatchStartedSum := &view.View{
		Name:        "rpsbattle/matches_started_sum",
		Measure:     mMatchStarted,
		Description: "The number of match sessions created",
		Aggregation: view.Sum(),
	}

	mRoundResolved := stats.Int64("rpsbattle/rounds_resolved", "Resolved Round Count", "By")
	vRoundResolvedSum := &view.View{
		Name:        "rpsbattle/rounds_resolved_sum",
		Measure:     mRoundResolved,
		Description: "The number of resolved rounds",
		Aggregation: view.Sum(),
	}

	mMatchSettled := stats.Int64("rpsbattle/matches_settled", "Settled Match Count", "By")
	vMatchSettledSum := &view.View{
		Name:        "rpsbattle/matches_settled_sum",
		Measure:     mMatchSettled,
		Description: "The number of settled match sessions",
		Aggregation: view.Sum(),
	}

	mSettlementRetry := stats.Int64("rpsbattle/settlement_retries", "Settlement Retry Count", "By")
	vSettlementRetrySum := &view.View{
		Name:        "rpsbattle/settlement_retries_sum",
		Measure:     mSettlementRetry,
		Description: "The number of retried settlement legs",
		Aggregation: view.Sum(),
	}

	if err := view.Register(vSocketConnectionSum, vSocketRequestSum, vRequestSum, vMatchStartedSum, vRoundResolvedSum, vMatchSettledSum, vSettlementRetrySum); err != nil {
		log.Fatalln("Error while registering stat views")
	}

	pe, err := prometheus.NewExporter(prometheus.Options{
		Namespace: "rpsbattle",
	})
	if err != nil {
		log.Fatalln("Error while creating new prometheus exporter")
	}

	view.RegisterExporter(pe)

	return &Stats{
		prometheusExporter: pe,
		mSocketConnection:  mSocketConnection,
		mSocketRequest:     mSocketRequest,
		mRequest:           mRequest,
		mMatchStarted:      mMatchStarted,
		mRoundResolved:     mRoundResolved,
		mMatchSettled:      mMatchSettled,
		mSettlementRetry:   mSettlementRetry,
	}

}

// Handler exposes the prometheus scrape endpoint.
func (s Stats) Handler() http.Handler {
	return s.prometheusExporter
}

func (s Stats) record(m *stats.Int64Measure, value int64) {
	ctx, _ := tag.New(context.Background())
	stats.Record(ctx, m.M(value))
}

func (s Stats) IncrSocketConnection() {
	s.record(s.mSocketConnection, 1)
}

func (s Stats) DecrSocketConnection() {
	s.record(s.mSocketConnection, -1)
}

func (s Stats) IncrSocketRequest() {
	s.record(s.mSocketRequest, 1)
}

func (s Stats) IncrRequest() {
	s.record(s.mRequest, 1)
}

func (s Stats) IncrMatchStarted() {
	s.record(s.mMatchStarted, 1)
}

func (s Stats) IncrRoundResolved() {
	s.record(s.mRoundResolved, 1)
}

func (s Stats) IncrMatchSettled() {
	s.record(s.mMatchSettled, 1)
}

func (s Stats) IncrSettlementRetry() {
	s.record(s.mSettlementRetry, 1)
}

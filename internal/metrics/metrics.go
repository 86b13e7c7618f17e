package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	AwardsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "movement", Name: "awards_total", Help: "Ledger lines appended",
	}, []string{"kind"})
	AwardsClamped = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "movement", Name: "awards_clamped_total", Help: "Awards reduced by a cap",
	})
	Recalculations = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "movement", Name: "recalculations_total", Help: "Record total recalculations",
	})
	DBPing = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "movement", Name: "db_ping_seconds", Help: "DB ping latency",
		Buckets: prometheus.DefBuckets,
	})
)

func init() {
	prometheus.MustRegister(AwardsTotal, AwardsClamped, Recalculations, DBPing)
}

func Handler() http.Handler { return promhttp.Handler() }

func ObserveDBPing(d time.Duration) { DBPing.Observe(d.Seconds()) }

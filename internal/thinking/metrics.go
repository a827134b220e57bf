package thinking

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Step outcome labels.
const (
	resultAccepted = "accepted"
	resultRejected = "rejected"
	resultFailed   = "failed"
)

var (
	// stepsTotal counts processed steps by outcome
	stepsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "seqthink_steps_total",
		Help: "Total submitted thoughts by result",
	}, []string{"result"})

	// revisionsTotal counts accepted steps flagged as revisions
	revisionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "seqthink_revisions_total",
		Help: "Total accepted thoughts that revise an earlier thought",
	})

	// historyLength tracks the most recent store's history length
	historyLength = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "seqthink_history_length",
		Help: "Number of thoughts in the history",
	})

	// branchCount tracks the number of known branches
	branchCount = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "seqthink_branches",
		Help: "Number of distinct branch ids",
	})
)

package callback

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	outcomeTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "callback_outcomes_total",
		Help: "Reward callbacks processed, by network and outcome.",
	}, []string{"network", "outcome"})

	forwardTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "callback_forwards_total",
		Help: "Forward notifications sent to application callback URLs.",
	}, []string{"network", "result"})
)

package streaming

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	outcomeLabel = "outcome"

	outcomeInline = "inline"
	outcomeLinked = "linked"
	outcomeFailed = "failed"
)

var (
	headerResolutions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "meshstream_header_resolutions",
		Help: "Chunk header resolutions by outcome.",
	}, []string{
		outcomeLabel,
	})

	fetchedBytes = promauto.NewCounter(prometheus.CounterOpts{
		Name: "meshstream_fetched_bytes",
		Help: "Bytes read from linked asset files.",
	})

	activeParsers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "meshstream_active_parsers",
		Help: "The number of streamed chunks currently loading.",
	})
)

func instrumentResolution(outcome string) {
	headerResolutions.With(prometheus.Labels{
		outcomeLabel: outcome,
	}).Inc()
}

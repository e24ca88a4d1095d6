package tracker

import (
	"fmt"
	"sort"

	"github.com/sharmina-lina/livetweets-main/pkg/models"
)

// Window is one ranking lookback expressed in polling ticks. Label is
// the window depth in seconds, derived from the cadence.
type Window struct {
	Label string
	Ticks int
}

// windowTicks are the ranking lookbacks in polling ticks, shallowest
// first.
var windowTicks = []int{1, 2, 6}

// windowsForCadence derives the ranking windows from the polling
// cadence: one, two, and six ticks deep, labeled by their depth in
// seconds.
func windowsForCadence(cadenceSeconds int) []Window {
	windows := make([]Window, 0, len(windowTicks))
	for _, k := range windowTicks {
		windows = append(windows, Window{
			Label: fmt.Sprintf("%d", k*cadenceSeconds),
			Ticks: k,
		})
	}
	return windows
}

// rankDeltas computes, per window, the growth in total engagement of
// each post between its newest sample and the sample k ticks back, and
// returns the topN fastest-growing posts per window. Posts with fewer
// than two samples never rank; a post needs at least k+1 samples to
// rank in a k-tick window. Only strictly positive growth ranks.
func rankDeltas(ids []string, samples map[string][]models.EngagementSample, windows []Window, topN int) map[string][]models.RankedDelta {
	ranked := make(map[string][]models.RankedDelta, len(windows))

	for _, window := range windows {
		var deltas []models.RankedDelta
		for _, id := range ids {
			series := samples[id]
			if len(series) < 2 || len(series) < window.Ticks+1 {
				continue
			}
			delta := series[0].Total() - series[window.Ticks].Total()
			if delta <= 0 {
				continue
			}
			deltas = append(deltas, models.RankedDelta{ID: id, Count: delta})
		}

		sort.SliceStable(deltas, func(i, j int) bool {
			return deltas[i].Count > deltas[j].Count
		})
		if len(deltas) > topN {
			deltas = deltas[:topN]
		}
		ranked[window.Label] = deltas
	}

	return ranked
}

package domain

import "time"

// Metrics receives observations from the discovery cache and dispatcher.
type Metrics interface {
	ObserveDiscoveryRefresh(duration time.Duration, err error)
	ObserveToolCall(status OutcomeStatus, duration time.Duration)
	ObserveIndexLookup(hit bool)
	SetIndexSize(size int)
}

// Package connector implements the source connectors feeding the
// digest pipeline: web feeds, video feeds, code-host activity and
// social posts. Each connector is isolated per source so one failing
// feed never poisons a run.
package connector

import (
	"context"
	"sync"

	"aidigest/internal/item"
)

// Connector produces raw items from one source.
type Connector interface {
	// Name identifies the source for error reporting and timeline
	// events, e.g. "rss:https://example.com/feed".
	Name() string
	Fetch(ctx context.Context) ([]item.Item, error)
}

// SourceError records a per-source fetch failure.
type SourceError struct {
	Source string
	Err    error
}

func (e SourceError) Error() string { return e.Source + ": " + e.Err.Error() }

// FetchResult aggregates the fan-out output.
type FetchResult struct {
	Items  []item.Item
	Errors []SourceError
	// PerSource counts fetched items per connector name.
	PerSource map[string]int
}

// maxConcurrentFetches bounds the fan-out worker pool.
const maxConcurrentFetches = 8

// FetchAll invokes every connector concurrently, collecting items and
// per-source errors. Item order follows connector order, with each
// connector's items kept contiguous.
func FetchAll(ctx context.Context, connectors []Connector) FetchResult {
	type slot struct {
		items []item.Item
		err   error
	}
	slots := make([]slot, len(connectors))

	var wg sync.WaitGroup
	sem := make(chan struct{}, maxConcurrentFetches)
	for i, c := range connectors {
		wg.Add(1)
		go func(i int, c Connector) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			items, err := c.Fetch(ctx)
			slots[i] = slot{items: items, err: err}
		}(i, c)
	}
	wg.Wait()

	result := FetchResult{PerSource: make(map[string]int, len(connectors))}
	for i, c := range connectors {
		s := slots[i]
		if s.err != nil {
			result.Errors = append(result.Errors, SourceError{Source: c.Name(), Err: s.err})
			continue
		}
		result.PerSource[c.Name()] = len(s.items)
		result.Items = append(result.Items, s.items...)
	}
	return result
}

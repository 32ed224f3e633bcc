package publishers

import (
	"context"
	"errors"
	"fmt"
)

// Fanout delivers one lifecycle event to every configured sink. Sinks are
// independent: a failing queue never blocks the webhook sink next to it.
type Fanout struct {
	publishers []Publisher
}

// NewFanout builds a Fanout over the given publishers, dropping nils.
func NewFanout(pubs []Publisher) *Fanout {
	cp := make([]Publisher, 0, len(pubs))
	for _, p := range pubs {
		if p == nil {
			continue
		}
		cp = append(cp, p)
	}
	return &Fanout{publishers: cp}
}

// Publish sends the event to every sink and reports how many accepted it.
// Per-sink failures are joined into one error so the caller sees each sink's
// outcome without short-circuiting the rest.
func (f *Fanout) Publish(ctx context.Context, evt Event) (int, error) {
	if f == nil || len(f.publishers) == 0 {
		return 0, nil
	}

	var errs []error
	delivered := 0
	for _, p := range f.publishers {
		if err := p.Publish(ctx, evt); err != nil {
			errs = append(errs, fmt.Errorf("%s publisher[%s]: %w", p.Type(), p.ID(), err))
			continue
		}
		delivered++
	}
	return delivered, errors.Join(errs...)
}

// Size reports how many sinks will receive each event.
func (f *Fanout) Size() int {
	if f == nil {
		return 0
	}
	return len(f.publishers)
}

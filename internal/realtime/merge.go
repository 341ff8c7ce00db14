package realtime

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
)

type mergedFeed []Feed

// Merge combines feeds into one. Subscribe fails only when every feed fails;
// the merged channel closes once all inputs have closed.
func Merge(feeds ...Feed) Feed {
	return mergedFeed(feeds)
}

func (m mergedFeed) Subscribe(ctx context.Context, actorID uuid.UUID) (<-chan Change, error) {
	out := make(chan Change, subscriberBuffer)

	var wg sync.WaitGroup
	var errs []error
	for _, f := range m {
		in, err := f.Subscribe(ctx, actorID)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			for c := range in {
				if ctx.Err() != nil {
					continue
				}
				select {
				case out <- c:
				default:
				}
			}
		}()
	}

	if len(errs) > 0 && len(errs) == len(m) {
		return nil, errors.Join(errs...)
	}
	go func() {
		wg.Wait()
		close(out)
	}()
	return out, nil
}

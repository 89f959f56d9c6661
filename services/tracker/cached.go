package tracker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/trezcool/ukaguzi/core"
	"github.com/trezcool/ukaguzi/core/event"
	"github.com/trezcool/ukaguzi/core/inspection"
)

// Cached is a read-through cache of event lists in front of a Tracker.
// Cache failures are logged and fall through to the tracker.
type Cached struct {
	inspection.Tracker
	cache  core.Cache
	ttl    time.Duration
	logger core.Logger
}

var _ inspection.Tracker = (*Cached)(nil)

// NewCached wraps tr; a zero ttl disables caching and returns tr unchanged.
func NewCached(tr inspection.Tracker, cache core.Cache, ttl time.Duration, logger core.Logger) inspection.Tracker {
	if cache == nil || ttl <= 0 {
		return tr
	}
	return &Cached{Tracker: tr, cache: cache, ttl: ttl, logger: logger}
}

func eventsKey(orgUnit, program string) string {
	return fmt.Sprintf("ukaguzi:events:%s:%s", orgUnit, program)
}

func (c *Cached) Events(ctx context.Context, orgUnit, program string) ([]event.Event, error) {
	key := eventsKey(orgUnit, program)
	if b, ok, err := c.cache.Get(ctx, key); err != nil {
		c.logger.Warn("reading events cache", err)
	} else if ok {
		var events []event.Event
		if err = json.Unmarshal(b, &events); err == nil {
			return events, nil
		}
		c.logger.Warn("decoding cached events", err)
	}

	events, err := c.Tracker.Events(ctx, orgUnit, program)
	if err != nil {
		return nil, err
	}
	if b, err := json.Marshal(events); err == nil {
		if err = c.cache.Set(ctx, key, b, c.ttl); err != nil {
			c.logger.Warn("writing events cache", err)
		}
	}
	return events, nil
}

// PostEvents drops the cached events of every org unit/program it posted to.
func (c *Cached) PostEvents(ctx context.Context, events ...event.Event) ([]string, error) {
	ids, err := c.Tracker.PostEvents(ctx, events...)
	if err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(events))
	for _, e := range events {
		keys = append(keys, eventsKey(e.OrgUnit, e.Program))
	}
	if err = c.cache.Delete(ctx, keys...); err != nil {
		c.logger.Warn("invalidating events cache", err)
	}
	return ids, nil
}

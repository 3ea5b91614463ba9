package ruleengine

import (
	"context"
	"errors"
	"time"

	"github.com/marketpulse/marketpulse-x/internal/store"
)

// cooldownActive reports whether (ruleID, marketID) emitted a signal more
// recently than cooldownSecs ago, per spec.md §4.3 step 2 / §8.
func cooldownActive(ctx context.Context, st *store.Store, ruleID, marketID string, now time.Time, cooldownSecs float64) (bool, error) {
	last, err := st.LastSignalAt(ctx, ruleID, marketID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return now.Sub(last) < time.Duration(cooldownSecs)*time.Second, nil
}

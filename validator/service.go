package validator

import (
	"context"
	"time"

	"github.com/geanlabs/gean/types"
)

// Run drives OnInterval on the same tick cadence as the chain service
// (seconds_per_slot/4), until ctx is cancelled.
func (d *Duties) Run(ctx context.Context) {
	ticker := time.NewTicker(time.Duration(types.SecondsPerInterval) * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.onTick(ctx)
		}
	}
}

func (d *Duties) onTick(ctx context.Context) {
	now := uint64(time.Now().Unix())
	if now < d.GenesisTime {
		return
	}

	numValidators, err := d.Chain.NumValidators(ctx)
	if err != nil {
		d.Logger.Warn("validator: num validators lookup failed", "error", err)
		return
	}

	elapsed := now - d.GenesisTime
	slot := types.Slot(elapsed / types.SecondsPerSlot)
	interval := (elapsed % types.SecondsPerSlot) / types.SecondsPerInterval

	d.OnInterval(ctx, slot, interval, numValidators)
}

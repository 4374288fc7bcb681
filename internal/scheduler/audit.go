package scheduler

import (
	"errors"
	"fmt"
)

// ErrBrokenChain reports an audit trail whose records do not link up.
var ErrBrokenChain = errors.New("scheduler: broken status history")

// ValidateChain checks that ordered audit records form one contiguous path
// through the lifecycle: the first record has no old status and lands on
// requested, each later record starts where the previous one ended, and every
// step is a legal edge.
func ValidateChain(changes []StatusChange) error {
	for i, change := range changes {
		if i == 0 {
			if change.OldStatus != nil || change.NewStatus != StatusRequested {
				return fmt.Errorf("%w: record 1 must be the creation record", ErrBrokenChain)
			}
			continue
		}
		prev := changes[i-1].NewStatus
		if change.OldStatus == nil || *change.OldStatus != prev {
			return fmt.Errorf("%w: record %d does not start at %s", ErrBrokenChain, i+1, prev)
		}
		if !CanTransition(prev, change.NewStatus) {
			return fmt.Errorf("%w: record %d moves %s to %s", ErrBrokenChain, i+1, prev, change.NewStatus)
		}
	}
	return nil
}

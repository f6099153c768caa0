package automation

import (
	"fmt"

	"github.com/matthewbaird/rentpulse/internal/types"
)

// actionTransitions lists the statuses a pending action may move to from each
// status. Statuses with no entry are terminal.
var actionTransitions = map[types.ActionStatus][]types.ActionStatus{
	types.StatusPending:  {types.StatusApproved, types.StatusRejected, types.StatusExpired},
	types.StatusApproved: {types.StatusExecuted},
}

// ValidateTransition returns nil if an action in status current may move to
// target, or a descriptive error otherwise.
func ValidateTransition(current, target types.ActionStatus) error {
	allowed, ok := actionTransitions[current]
	if !ok {
		return fmt.Errorf("action is %s and accepts no further transitions", current)
	}
	for _, s := range allowed {
		if s == target {
			return nil
		}
	}
	return fmt.Errorf("transition from %q to %q is not allowed", current, target)
}

// IsTerminal reports whether no transition leaves status s.
func IsTerminal(s types.ActionStatus) bool {
	_, ok := actionTransitions[s]
	return !ok
}

package store

import "github.com/Silence-XiXi/queue-system/internal/models"

// transitionMap lists the ticket statuses each dispatch action accepts as its
// starting point. Manual call covers "called" so an operator can rebind a
// ticket that another counter already called.
var transitionMap = map[string][]string{
	"call_next":   {models.StatusWaiting},
	"call_manual": {models.StatusWaiting, models.StatusCalled},
	"complete":    {models.StatusCalled},
	"cancel":      {models.StatusWaiting},
}

func ValidTransition(action, fromStatus string) bool {
	allowed, ok := transitionMap[action]
	if !ok {
		return false
	}
	for _, status := range allowed {
		if status == fromStatus {
			return true
		}
	}
	return false
}

package grid

import (
	"fmt"

	"github.com/vadiminshakov/gridbot/internal/domain"
)

// InvariantError signals a logic or configuration defect. The state it carries
// is the last consistent state before the violation.
type InvariantError struct {
	Op     string
	Reason string
	Action domain.Action
	State  domain.State
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("invariant violated in %s: %s", e.Op, e.Reason)
}

func (p *pass) invariant(op, format string, args ...any) error {
	return &InvariantError{
		Op:     op,
		Reason: fmt.Sprintf(format, args...),
		Action: p.action,
		State:  p.state,
	}
}

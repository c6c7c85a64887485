package ledger

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidAmount   = errors.New("transaction amount must be positive")
	ErrNotTransitional = errors.New("transaction not in a transitional state")
)

type LimitScope string

const (
	LimitScopeSingle LimitScope = "single"
	LimitScopeDaily  LimitScope = "daily"
)

// LimitError reports a ceiling hit before anything was persisted.
type LimitError struct {
	Scope       LimitScope
	Type        Type
	LimitCents  int64
	AmountCents int64
}

func (e *LimitError) Error() string {
	return fmt.Sprintf("ledger limit exceeded: scope=%s type=%s limit=%d requested=%d",
		e.Scope, e.Type, e.LimitCents, e.AmountCents)
}

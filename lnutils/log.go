package lnutils

import (
	"github.com/davecgh/go-spew/spew"
)

// LogClosure defers an expensive formatting step until the logger actually
// emits the line.
type LogClosure func() string

// String invokes the closure.
func (c LogClosure) String() string {
	return c()
}

// NewLogClosure wraps c so it can be passed as a fmt.Stringer.
func NewLogClosure(c func() string) LogClosure {
	return LogClosure(c)
}

// SpewLogClosure dumps a with spew when logged.
func SpewLogClosure(a any) LogClosure {
	return func() string {
		return spew.Sdump(a)
	}
}

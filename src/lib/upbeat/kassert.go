package upbeat

import (
	"fmt"
	"path/filepath"
	"runtime"
)

// AssertInfo records where an assertion failed.
type AssertInfo struct {
	Expr string
	File string
	Func string
	Line int
}

func (a *AssertInfo) String() string {
	return fmt.Sprintf("assertion '%s' failed at %s:%d (%s)", a.Expr, a.File, a.Line, a.Func)
}

// AssertionError is what KAssert panics with when no failure hook is
// installed.
type AssertionError struct {
	Info AssertInfo
}

func (a *AssertionError) Error() string {
	return a.Info.String()
}

// AssertHook is called with the failed assertion.  It must not return.
type AssertHook func(info AssertInfo)

var assertHook AssertHook

// SetAssertHook installs the function that handles failed assertions and
// returns the previous one.  Passing nil restores the default, which panics
// with an *AssertionError.
func SetAssertHook(h AssertHook) AssertHook {
	prev := assertHook
	assertHook = h
	return prev
}

// KAssert checks an invariant.  A violation is fatal: the hook is called with
// the caller's file, function and line and control never comes back.
func KAssert(cond bool, expr string) {
	if cond {
		return
	}
	info := AssertInfo{Expr: expr, File: "?", Func: "?"}
	if pc, file, line, ok := runtime.Caller(1); ok {
		info.File = filepath.Base(file)
		info.Line = line
		if fn := runtime.FuncForPC(pc); fn != nil {
			info.Func = fn.Name()
		}
	}
	if assertHook != nil {
		assertHook(info)
	}
	panic(&AssertionError{Info: info})
}

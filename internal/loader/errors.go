package loader

import "fmt"

// LoadError is returned for every spec-resolution failure: malformed specs,
// missing plugin files, missing symbols, and capability mismatches. The
// message always carries a remediation hint where one exists.
type LoadError struct {
	msg string
}

func (e *LoadError) Error() string {
	return e.msg
}

func loadErrorf(format string, args ...any) *LoadError {
	return &LoadError{msg: fmt.Sprintf(format, args...)}
}

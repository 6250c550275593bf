package types

import "fmt"

// ValidationError reports a config-document defect; it is never retried (§7).
type ValidationError struct {
	Path string
	Msg  string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error at %s: %s", e.Path, e.Msg)
}

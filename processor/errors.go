package processor

import "fmt"

// MalformedSnapshotError reports a raw snapshot whose required fields are
// missing or structurally invalid. Retrying a fetch cannot fix it, so it
// is surfaced to the caller as-is.
type MalformedSnapshotError struct {
	Instrument string
	Reason     string
}

func (e *MalformedSnapshotError) Error() string {
	if e.Instrument == "" {
		return fmt.Sprintf("malformed snapshot: %s", e.Reason)
	}
	return fmt.Sprintf("malformed snapshot for %s: %s", e.Instrument, e.Reason)
}

// InvalidParameterError reports a caller-supplied argument that is out of
// range or matches nothing, such as a non-positive level count or an
// unknown instrument name.
type InvalidParameterError struct {
	Param  string
	Reason string
}

func (e *InvalidParameterError) Error() string {
	return fmt.Sprintf("invalid parameter %s: %s", e.Param, e.Reason)
}

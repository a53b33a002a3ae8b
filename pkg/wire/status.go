package wire

// Status represents a response status code.
type Status uint8

const (
	// StatusSuccess indicates the operation completed successfully.
	StatusSuccess Status = 0

	// StatusNotFound indicates the PV is not hosted by the server.
	StatusNotFound Status = 1

	// StatusReadOnly indicates an attempt to write to a read-only PV.
	StatusReadOnly Status = 2

	// StatusTypeMismatch indicates the value does not match the PV kind.
	StatusTypeMismatch Status = 3

	// StatusOutOfRange indicates a scalar value outside the PV range.
	StatusOutOfRange Status = 4

	// StatusInvalidRequest indicates a malformed request or payload.
	StatusInvalidRequest Status = 5

	// StatusBusy indicates the server cannot accept the request right now.
	StatusBusy Status = 6

	// StatusUnsupported indicates the operation is not supported by this server.
	StatusUnsupported Status = 7

	// StatusTimeout indicates the operation timed out.
	StatusTimeout Status = 8
)

// String returns the status name.
func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "SUCCESS"
	case StatusNotFound:
		return "NOT_FOUND"
	case StatusReadOnly:
		return "READ_ONLY"
	case StatusTypeMismatch:
		return "TYPE_MISMATCH"
	case StatusOutOfRange:
		return "OUT_OF_RANGE"
	case StatusInvalidRequest:
		return "INVALID_REQUEST"
	case StatusBusy:
		return "BUSY"
	case StatusUnsupported:
		return "UNSUPPORTED"
	case StatusTimeout:
		return "TIMEOUT"
	default:
		return "UNKNOWN"
	}
}

// IsSuccess returns true if the status indicates success.
func (s Status) IsSuccess() bool {
	return s == StatusSuccess
}

// IsError returns true if the status indicates an error.
func (s Status) IsError() bool {
	return s != StatusSuccess
}

// Severity is the alarm severity attached to a PV value.
type Severity uint8

const (
	SeverityNone    Severity = 0
	SeverityMinor   Severity = 1
	SeverityMajor   Severity = 2
	SeverityInvalid Severity = 3
)

// String returns the severity name.
func (s Severity) String() string {
	switch s {
	case SeverityNone:
		return "NO_ALARM"
	case SeverityMinor:
		return "MINOR"
	case SeverityMajor:
		return "MAJOR"
	case SeverityInvalid:
		return "INVALID"
	default:
		return "UNKNOWN"
	}
}

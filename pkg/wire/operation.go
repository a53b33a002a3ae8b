package wire

// Operation represents a PV network request operation.
type Operation uint8

const (
	// OpGet reads the current value of a PV.
	OpGet Operation = 1

	// OpPut writes a value into a PV.
	OpPut Operation = 2

	// OpMonitor registers for change notifications on a PV.
	// A Monitor request with an empty name cancels a subscription.
	OpMonitor Operation = 3

	// OpSearch asks a server where a PV is hosted.
	OpSearch Operation = 4

	// OpInfo returns the metadata of a PV (kind, access, range).
	OpInfo Operation = 5

	// OpRegister announces the PVs hosted at an address to a name server.
	OpRegister Operation = 6
)

// String returns the operation name.
func (o Operation) String() string {
	switch o {
	case OpGet:
		return "Get"
	case OpPut:
		return "Put"
	case OpMonitor:
		return "Monitor"
	case OpSearch:
		return "Search"
	case OpInfo:
		return "Info"
	case OpRegister:
		return "Register"
	default:
		return "Unknown"
	}
}

// IsValid returns true if the operation is a known operation.
func (o Operation) IsValid() bool {
	return o >= OpGet && o <= OpRegister
}

// RequiresName returns true if requests with this operation must name a PV.
func (o Operation) RequiresName() bool {
	switch o {
	case OpGet, OpPut, OpSearch, OpInfo:
		return true
	default:
		return false
	}
}

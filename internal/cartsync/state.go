package cartsync

import "github.com/utafrali/storefront/internal/domain"

// Phase is the synchronizer's lifecycle state for the bound principal.
type Phase int

const (
	// Unbound means no principal is signed in and no mirror exists.
	Unbound Phase = iota
	// Loading means a remote call for the bound principal is in flight.
	Loading
	// Ready means no call is in flight. The mirror may still be nil when the
	// initial load failed.
	Ready
)

func (p Phase) String() string {
	switch p {
	case Unbound:
		return "unbound"
	case Loading:
		return "loading"
	case Ready:
		return "ready"
	default:
		return "unknown"
	}
}

// MarshalText renders the phase by name in JSON.
func (p Phase) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// Snapshot is a point-in-time copy of the synchronizer state. Consumers may
// keep and modify it freely.
type Snapshot struct {
	Phase   Phase              `json:"phase"`
	UserID  string             `json:"userId,omitempty"`
	Mirror  *domain.CartMirror `json:"cart"`
	Loading bool               `json:"loading"`
	Epoch   uint64             `json:"-"`
}

// Count is the server-reported item count, zero without a mirror.
func (s Snapshot) Count() int {
	if s.Mirror == nil {
		return 0
	}
	return s.Mirror.Count
}

// Change describes a successful cart mutation and the mirror it produced.
type Change struct {
	UserID    string
	Op        Op
	ProductID string
	Quantity  int
	Mirror    *domain.CartMirror
}

// Op names a cart mutation.
type Op string

const (
	OpAdd    Op = "add"
	OpUpdate Op = "update"
	OpRemove Op = "remove"
	OpClear  Op = "clear"
)

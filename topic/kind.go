package topic

import "strings"

// Kind is the closed set of addressing schemes.
type Kind uint8

const (
	// KindStation addresses numbered game stations in a shared namespace.
	KindStation Kind = iota + 1
	// KindSide addresses the left or right tablet of a paired machine.
	KindSide
)

func (k Kind) String() string {
	switch k {
	case KindStation:
		return "station"
	case KindSide:
		return "side"
	default:
		return "unknown"
	}
}

// ParseKind accepts the scheme names and the namespace names used in the field
// ("game" for stations, "fm" for sides). Matching is case-insensitive.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "station", "game":
		return KindStation, nil
	case "side", "fm":
		return KindSide, nil
	default:
		return 0, ErrUnknownKind
	}
}

package topic

import "strings"

// Side is one of the two tablets attached to a paired machine.
type Side uint8

const (
	// Left is the left hand tablet.
	Left Side = iota + 1
	// Right is the right hand tablet.
	Right
)

func (s Side) String() string {
	switch s {
	case Left:
		return "left"
	case Right:
		return "right"
	default:
		return "unknown"
	}
}

// Other returns the opposite side.
func (s Side) Other() Side {
	if s == Left {
		return Right
	}
	return Left
}

// ParseSide accepts "left" or "right" in any case.
func ParseSide(s string) (Side, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "left":
		return Left, nil
	case "right":
		return Right, nil
	default:
		return 0, ErrInvalidSide
	}
}

// SideNamespace addresses one side. Both requests and responses carry the side
// in the topic.
type SideNamespace struct {
	root string
	side Side
}

// NewSide returns the namespace for side under root.
func NewSide(root string, side Side) (SideNamespace, error) {
	if err := validRoot(root); err != nil {
		return SideNamespace{}, err
	}
	if side != Left && side != Right {
		return SideNamespace{}, ErrInvalidSide
	}
	return SideNamespace{root: root, side: side}, nil
}

// ParseSideNamespace parses id as a side.
func ParseSideNamespace(root, id string) (SideNamespace, error) {
	side, err := ParseSide(id)
	if err != nil {
		return SideNamespace{}, err
	}
	return NewSide(root, side)
}

func (n SideNamespace) Kind() Kind { return KindSide }

func (n SideNamespace) Root() string { return n.root }

// Side returns the addressed side.
func (n SideNamespace) Side() Side { return n.side }

func (n SideNamespace) Identifier() string { return n.side.String() }

func (n SideNamespace) RequestTopic(action string) string {
	return join(n.root, n.Identifier(), action)
}

func (n SideNamespace) ResponseTopic(action string) string {
	return join(n.root, n.Identifier(), action, response)
}

func (n SideNamespace) ParseResponseTopic(topic string) (string, bool) {
	rest, ok := strings.CutPrefix(topic, join(n.root, n.Identifier())+separator)
	if !ok {
		return "", false
	}
	action, ok := strings.CutSuffix(rest, separator+response)
	if !ok || !validAction(action) {
		return "", false
	}
	return action, true
}

func (n SideNamespace) BroadcastTopic(name string) string {
	return join(n.root, name)
}

func (n SideNamespace) WithIdentifier(id string) (Namespace, error) {
	next, err := ParseSideNamespace(n.root, id)
	if err != nil {
		return nil, err
	}
	return next, nil
}

func (n SideNamespace) String() string {
	return n.root + "#" + n.Identifier()
}

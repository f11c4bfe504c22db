// Package topic derives station-scoped publish/subscribe topic names.
//
// A Namespace is an immutable pair of a root prefix and the identifier of the
// station (or tablet side) a client instance represents. Two addressing schemes
// exist side by side on the installation's broker:
//
//	station: <root>/<action>                  requests
//	         <root>/<action>/response/<id>    responses
//	side:    <root>/<side>/<action>           requests
//	         <root>/<side>/<action>/response  responses
//
// Response topics of two different identifiers never overlap, which is what keeps
// one station's client from reacting to another station's traffic.
package topic

import (
	"strings"
)

const (
	separator = "/"
	response  = "response"
)

// Namespace maps message actions to topics for one identifier.
type Namespace interface {
	// Kind reports the addressing scheme.
	Kind() Kind
	// Root is the shared prefix of every topic in the namespace.
	Root() string
	// Identifier is the station id or side this namespace addresses,
	// it is also the value embedded in request payloads.
	Identifier() string
	// RequestTopic is where requests for action are published.
	RequestTopic(action string) string
	// ResponseTopic is where the backend answers requests for action.
	ResponseTopic(action string) string
	// ParseResponseTopic is the inverse of ResponseTopic for this identifier.
	ParseResponseTopic(topic string) (action string, ok bool)
	// BroadcastTopic is a topic shared by every identifier under Root.
	BroadcastTopic(name string) string
	// WithIdentifier returns a copy of the namespace addressing id.
	WithIdentifier(id string) (Namespace, error)
	String() string
}

// Parse builds a namespace of the given kind from external input such as a
// config file or an operator selection.
func Parse(kind Kind, root, id string) (Namespace, error) {
	var (
		ns  Namespace
		err error
	)
	switch kind {
	case KindStation:
		ns, err = ParseStation(root, id)
	case KindSide:
		ns, err = ParseSideNamespace(root, id)
	default:
		return nil, ErrUnknownKind
	}
	if err != nil {
		return nil, err
	}
	return ns, nil
}

func validRoot(root string) error {
	if root == "" {
		return ErrEmptyRoot
	}
	if strings.HasPrefix(root, separator) || strings.HasSuffix(root, separator) {
		return ErrInvalidRoot
	}
	if strings.ContainsAny(root, "+#") {
		return ErrInvalidRoot
	}
	return nil
}

func validAction(action string) bool {
	return action != "" && !strings.ContainsAny(action, "+#") &&
		!strings.HasPrefix(action, separator) && !strings.HasSuffix(action, separator)
}

func join(parts ...string) string {
	return strings.Join(parts, separator)
}

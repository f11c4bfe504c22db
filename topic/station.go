package topic

import (
	"strconv"
	"strings"
)

// StationNamespace addresses a numbered station inside a namespace shared by
// every station. Requests go to a single shared topic per action and carry the
// station id in the payload; responses come back on a per-station topic.
type StationNamespace struct {
	root    string
	station int
}

// NewStation returns the namespace for station under root.
func NewStation(root string, station int) (StationNamespace, error) {
	if err := validRoot(root); err != nil {
		return StationNamespace{}, err
	}
	if station < 1 {
		return StationNamespace{}, ErrInvalidStation
	}
	return StationNamespace{root: root, station: station}, nil
}

// ParseStation parses id as a station number.
func ParseStation(root, id string) (StationNamespace, error) {
	n, err := strconv.Atoi(strings.TrimSpace(id))
	if err != nil {
		return StationNamespace{}, ErrInvalidStation
	}
	return NewStation(root, n)
}

func (n StationNamespace) Kind() Kind { return KindStation }

func (n StationNamespace) Root() string { return n.root }

// Station returns the numeric station id.
func (n StationNamespace) Station() int { return n.station }

func (n StationNamespace) Identifier() string { return strconv.Itoa(n.station) }

func (n StationNamespace) RequestTopic(action string) string {
	return join(n.root, action)
}

func (n StationNamespace) ResponseTopic(action string) string {
	return join(n.root, action, response, n.Identifier())
}

func (n StationNamespace) ParseResponseTopic(topic string) (string, bool) {
	rest, ok := strings.CutPrefix(topic, n.root+separator)
	if !ok {
		return "", false
	}
	action, ok := strings.CutSuffix(rest, separator+response+separator+n.Identifier())
	if !ok || !validAction(action) {
		return "", false
	}
	return action, true
}

func (n StationNamespace) BroadcastTopic(name string) string {
	return join(n.root, name)
}

func (n StationNamespace) WithIdentifier(id string) (Namespace, error) {
	next, err := ParseStation(n.root, id)
	if err != nil {
		return nil, err
	}
	return next, nil
}

func (n StationNamespace) String() string {
	return n.root + "#" + n.Identifier()
}

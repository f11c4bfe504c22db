package config

import (
	"encoding/json"
	"path/filepath"
	"strings"

	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"
)

// Serializer converts persisted settings to and from file contents.
type Serializer interface {
	Serialize(s Settings) ([]byte, error)
	Deserialize(b []byte, into *Settings) error
}

// SerializerFor picks the serializer matching the extension of path.
func SerializerFor(path string) (Serializer, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return yamlSerializer{}, nil
	case ".json", ".jsonc":
		return jsonSerializer{}, nil
	default:
		return nil, ErrUnknownFormat
	}
}

type yamlSerializer struct{}

func (yamlSerializer) Serialize(s Settings) ([]byte, error) {
	return yaml.Marshal(s)
}

func (yamlSerializer) Deserialize(b []byte, into *Settings) error {
	return yaml.Unmarshal(b, into)
}

// jsonSerializer accepts comments and trailing commas, operators edit these files by hand.
type jsonSerializer struct{}

func (jsonSerializer) Serialize(s Settings) ([]byte, error) {
	b, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(b, '\n'), nil
}

func (jsonSerializer) Deserialize(b []byte, into *Settings) error {
	return json.Unmarshal(jsonc.ToJSON(b), into)
}

package stationlink

import (
	"bytes"
	"encoding/json"

	"github.com/ambitiousfew/stationlink/codec"
)

// Wire field names shared by requests and responses.
const (
	fieldKey           = "key"
	fieldStation       = "station"
	fieldCorrelationID = "correlation_id"
)

var (
	envelopeCodec  codec.Codec[Envelope]  = codec.JSON[Envelope]{}
	responseCodec  codec.Codec[Response]  = codec.JSON[Response]{}
	broadcastCodec codec.Codec[Broadcast] = codec.JSON[Broadcast]{}
)

// Envelope is an outbound request. Fields are flattened next to key and
// station on the wire:
//
//	{"key":"alice","station":"3","score":120}
//
// Field names must not be key, station or correlation_id, encoding fails
// with ErrReservedField otherwise. Numbers in Fields decode as json.Number so
// integers keep their exact value.
type Envelope struct {
	Key           string
	Station       string
	CorrelationID string
	Fields        map[string]any
}

func (e Envelope) MarshalJSON() ([]byte, error) {
	m := make(map[string]any, len(e.Fields)+3)
	for k, v := range e.Fields {
		if reservedField(k) {
			return nil, OpError{Action: ActionEncoding, Target: k, Err: ErrReservedField}
		}
		m[k] = v
	}
	m[fieldKey] = e.Key
	m[fieldStation] = e.Station
	if e.CorrelationID != "" {
		m[fieldCorrelationID] = e.CorrelationID
	}
	return json.Marshal(m)
}

func (e *Envelope) UnmarshalJSON(b []byte) error {
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	var m map[string]any
	if err := dec.Decode(&m); err != nil {
		return err
	}

	out := Envelope{}
	if v, ok := m[fieldKey].(string); ok {
		out.Key = v
	}
	out.Station = stationString(m[fieldStation])
	if v, ok := m[fieldCorrelationID].(string); ok {
		out.CorrelationID = v
	}

	delete(m, fieldKey)
	delete(m, fieldStation)
	delete(m, fieldCorrelationID)
	if len(m) > 0 {
		out.Fields = m
	}

	*e = out
	return nil
}

func reservedField(name string) bool {
	switch name {
	case fieldKey, fieldStation, fieldCorrelationID:
		return true
	}
	return false
}

// EncodeEnvelope returns the wire form of e.
func EncodeEnvelope(e Envelope) ([]byte, error) {
	return envelopeCodec.Encode(e)
}

// DecodeEnvelope parses the wire form of a request, as a backend would.
func DecodeEnvelope(b []byte) (Envelope, error) {
	var e Envelope
	err := envelopeCodec.Decode(b, &e)
	return e, err
}

// Response is the backend's answer to a request. Result is read from either
// "result" or "is_unique", the latter being what username checks reply with.
type Response struct {
	Key           string `json:"key"`
	Station       string `json:"station,omitempty"`
	CorrelationID string `json:"correlation_id,omitempty"`
	Success       bool   `json:"success"`
	Result        bool   `json:"result"`
}

func (r *Response) UnmarshalJSON(b []byte) error {
	var aux struct {
		Key           string          `json:"key"`
		Station       json.RawMessage `json:"station"`
		CorrelationID string          `json:"correlation_id"`
		Success       bool            `json:"success"`
		Result        *bool           `json:"result"`
		IsUnique      *bool           `json:"is_unique"`
	}
	if err := json.Unmarshal(b, &aux); err != nil {
		return err
	}

	if aux.Key == "" && aux.CorrelationID == "" {
		return ErrMalformedResponse
	}

	out := Response{
		Key:           aux.Key,
		CorrelationID: aux.CorrelationID,
		Success:       aux.Success,
	}
	switch {
	case aux.Result != nil:
		out.Result = *aux.Result
	case aux.IsUnique != nil:
		out.Result = *aux.IsUnique
	}

	if len(aux.Station) > 0 {
		var v any
		if err := json.Unmarshal(aux.Station, &v); err != nil {
			return err
		}
		out.Station = stationString(v)
	}

	*r = out
	return nil
}

// DecodeResponse parses a response payload.
func DecodeResponse(b []byte) (Response, error) {
	var r Response
	err := responseCodec.Decode(b, &r)
	return r, err
}

// EncodeResponse returns the wire form of r, used by backends and tests.
func EncodeResponse(r Response) ([]byte, error) {
	return responseCodec.Encode(r)
}

// Entry is one row of a broadcast ranking.
type Entry struct {
	Rank     int     `json:"rank"`
	Name     string  `json:"name"`
	Score    int     `json:"score"`
	Distance float64 `json:"distance"`
	Time     float64 `json:"time"`
}

// Broadcast is a periodically published ranking such as the top-10 list.
type Broadcast struct {
	Entries []Entry `json:"entries"`
}

func (bc *Broadcast) UnmarshalJSON(b []byte) error {
	var aux struct {
		Entries *[]Entry `json:"entries"`
	}
	if err := json.Unmarshal(b, &aux); err != nil {
		return err
	}
	if aux.Entries == nil {
		return ErrMalformedBroadcast
	}
	bc.Entries = *aux.Entries
	return nil
}

// DecodeBroadcast parses a broadcast payload.
func DecodeBroadcast(b []byte) (Broadcast, error) {
	var bc Broadcast
	err := broadcastCodec.Decode(b, &bc)
	return bc, err
}

// EncodeBroadcast returns the wire form of bc.
func EncodeBroadcast(bc Broadcast) ([]byte, error) {
	return broadcastCodec.Encode(bc)
}

// stationString accepts both "3" and 3 for the station field.
func stationString(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case json.Number:
		return s.String()
	case nil:
		return ""
	default:
		b, err := json.Marshal(s)
		if err != nil {
			return ""
		}
		return string(bytes.TrimSpace(b))
	}
}

package stationlink

import (
	"encoding/json"
	"errors"
	"reflect"
	"testing"
)

func TestEnvelope_RoundTrip(t *testing.T) {
	tests := []struct {
		name string
		env  Envelope
	}{
		{"key only", Envelope{Key: "alice", Station: "3"}},
		{"with fields", Envelope{Key: "bob", Station: "left", Fields: map[string]any{
			"first_name": "Bob",
			"score":      json.Number("1520"),
			"distance":   json.Number("2.5"),
			"newsletter": true,
		}}},
		{"with correlation id", Envelope{Key: "carol", Station: "12", CorrelationID: "0b6e6f1c", Fields: map[string]any{"time": json.Number("93.4")}}},
		{"large integer", Envelope{Key: "dan", Station: "7", Fields: map[string]any{"player_id": json.Number("9007199254740993")}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, err := EncodeEnvelope(tt.env)
			if err != nil {
				t.Fatalf("error encoding: %v", err)
			}
			got, err := DecodeEnvelope(b)
			if err != nil {
				t.Fatalf("error decoding: %v", err)
			}
			if !reflect.DeepEqual(got, tt.env) {
				t.Fatalf("expected %+v, got %+v", tt.env, got)
			}
		})
	}
}

func TestEnvelope_WireIsFlat(t *testing.T) {
	b, err := EncodeEnvelope(Envelope{Key: "alice", Station: "3", Fields: map[string]any{"score": 10}})
	if err != nil {
		t.Fatalf("error encoding: %v", err)
	}

	want := `{"key":"alice","score":10,"station":"3"}`
	if string(b) != want {
		t.Fatalf("expected %s, got %s", want, b)
	}
}

func TestEnvelope_ReservedFields(t *testing.T) {
	for _, name := range []string{"key", "station", "correlation_id"} {
		t.Run(name, func(t *testing.T) {
			_, err := EncodeEnvelope(Envelope{Key: "alice", Station: "3", Fields: map[string]any{name: "spoofed"}})
			if !errors.Is(err, ErrReservedField) {
				t.Fatalf("expected ErrReservedField, got %v", err)
			}
		})
	}
}

func TestEnvelope_NumericStation(t *testing.T) {
	got, err := DecodeEnvelope([]byte(`{"key":"alice","station":3,"score":12}`))
	if err != nil {
		t.Fatalf("error decoding: %v", err)
	}
	if got.Station != "3" || got.Fields["score"] != json.Number("12") {
		t.Fatalf("unexpected envelope %+v", got)
	}
}

func TestDecodeResponse(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		want    Response
		err     bool
	}{
		{"is_unique", `{"key":"alice","success":true,"is_unique":false}`, Response{Key: "alice", Success: true}, false},
		{"result", `{"key":"alice","success":true,"result":true}`, Response{Key: "alice", Success: true, Result: true}, false},
		{"numeric station", `{"key":"a","success":false,"station":7}`, Response{Key: "a", Station: "7"}, false},
		{"string station", `{"key":"a","station":"right"}`, Response{Key: "a", Station: "right"}, false},
		{"correlation only", `{"correlation_id":"x1","result":true}`, Response{CorrelationID: "x1", Result: true}, false},
		{"no key", `{"success":true}`, Response{}, true},
		{"not json", `<html>`, Response{}, true},
		{"wrong type", `{"key":5}`, Response{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeResponse([]byte(tt.payload))
			if (err != nil) != tt.err {
				t.Fatalf("expected error %v, got %v", tt.err, err)
			}
			if !tt.err && got != tt.want {
				t.Fatalf("expected %+v, got %+v", tt.want, got)
			}
		})
	}

	if _, err := DecodeResponse([]byte(`{}`)); !errors.Is(err, ErrMalformedResponse) {
		t.Fatalf("expected ErrMalformedResponse, got %v", err)
	}
}

func TestDecodeBroadcast(t *testing.T) {
	payload := `{"entries":[{"rank":1,"name":"alice","score":1520,"distance":2.5,"time":93.4},{"rank":2,"name":"bob","score":1200,"distance":2.1,"time":101}]}`

	bc, err := DecodeBroadcast([]byte(payload))
	if err != nil {
		t.Fatalf("error decoding: %v", err)
	}
	want := Broadcast{Entries: []Entry{
		{Rank: 1, Name: "alice", Score: 1520, Distance: 2.5, Time: 93.4},
		{Rank: 2, Name: "bob", Score: 1200, Distance: 2.1, Time: 101},
	}}
	if !reflect.DeepEqual(bc, want) {
		t.Fatalf("expected %+v, got %+v", want, bc)
	}

	empty, err := DecodeBroadcast([]byte(`{"entries":[]}`))
	if err != nil || len(empty.Entries) != 0 {
		t.Fatalf("expected an empty ranking to decode, got %+v, %v", empty, err)
	}

	if _, err := DecodeBroadcast([]byte(`{"top":[]}`)); !errors.Is(err, ErrMalformedBroadcast) {
		t.Fatalf("expected ErrMalformedBroadcast, got %v", err)
	}

	var syntaxErr *json.SyntaxError
	if _, err := DecodeBroadcast([]byte(`{`)); !errors.As(err, &syntaxErr) {
		t.Fatalf("expected a syntax error, got %v", err)
	}
}

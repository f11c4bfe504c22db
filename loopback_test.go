package stationlink_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/ambitiousfew/stationlink"
	"github.com/ambitiousfew/stationlink/topic"
	"github.com/ambitiousfew/stationlink/transport"
	"github.com/ambitiousfew/stationlink/transport/loopback"
)

// backend answers username checks: only "taken" is not unique.
func backend(t *testing.T, ctx context.Context, broker *loopback.Broker) {
	t.Helper()

	tr := loopback.New(broker, "backend")
	tr.SetHandler(transport.HandlerFunc(func(topicName string, payload []byte) {
		env, err := stationlink.DecodeEnvelope(payload)
		if err != nil {
			return
		}
		if env.Key == "silent" {
			return
		}
		reply, _ := json.Marshal(map[string]any{
			"key":       env.Key,
			"success":   true,
			"is_unique": env.Key != "taken",
			"station":   env.Station,
		})
		_ = tr.Publish(ctx, topicName+"/response/"+env.Station, reply)
	}))

	if err := tr.Connect(ctx); err != nil {
		t.Fatalf("error connecting backend: %v", err)
	}
	if err := tr.Subscribe(ctx, "leaderboard/check_username"); err != nil {
		t.Fatalf("error subscribing backend: %v", err)
	}
}

func TestClient_OverLoopback(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	broker := loopback.NewBroker()
	defer broker.Close()
	backend(t, ctx, broker)

	d := stationlink.NewDispatcher(loopback.New(broker, "station-3"))
	go d.Run(ctx)
	if err := d.Connect(ctx); err != nil {
		t.Fatalf("error connecting: %v", err)
	}

	ns, err := topic.NewStation("leaderboard", 3)
	if err != nil {
		t.Fatalf("error creating namespace: %v", err)
	}
	client := stationlink.NewClient(d, ns,
		stationlink.WithTimeout(200*time.Millisecond),
		stationlink.WithActions("check_username"),
	)
	defer client.Close()

	tests := []struct {
		key        string
		value      bool
		resolution stationlink.Resolution
	}{
		{"alice", true, stationlink.ResolvedByResponse},
		{"taken", false, stationlink.ResolvedByResponse},
		{"silent", true, stationlink.ResolvedByTimeout},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			resultC := make(chan stationlink.Result, 1)
			client.IssueRequest(stationlink.Request{
				Action:   "check_username",
				Key:      tt.key,
				Fallback: stationlink.AssumeSuccess,
			}, func(r stationlink.Result) { resultC <- r })

			select {
			case r := <-resultC:
				if r.Key != tt.key || r.Value != tt.value || r.Resolution != tt.resolution {
					t.Fatalf("unexpected result %+v", r)
				}
			case <-ctx.Done():
				t.Fatalf("timed out waiting for the result")
			}
		})
	}
}

// Package stationlink is a station-addressed request/response client built on
// a publish/subscribe transport.
//
// A Client publishes typed requests on topics derived from the station (or
// tablet side) it represents, correlates the asynchronous responses to pending
// requests and, when no response arrives in time, resolves the request with a
// caller supplied fallback so a slow or absent backend never blocks the
// interactive experience. A BroadcastListener receives periodically published
// messages such as the top-10 list, and a Switcher moves every component to a
// different station or side at runtime.
//
// All inbound messages and every result callback run on a single Dispatcher
// goroutine:
//
//	d := stationlink.NewDispatcher(tr)
//	go d.Run(ctx)
//	client := stationlink.NewClient(d, ns, stationlink.WithTimeout(3*time.Second))
//	_ = d.Connect(ctx)
//	client.IssueRequest(stationlink.Request{
//		Action:   "check_username",
//		Key:      "alice",
//		Fallback: stationlink.AssumeSuccess,
//	}, func(r stationlink.Result) { ... })
package stationlink

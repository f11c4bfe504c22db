package main

import (
	"fmt"
	"net"
	"net/url"
	"strconv"

	"github.com/ambitiousfew/stationlink/config"
	"github.com/ambitiousfew/stationlink/log"
	"github.com/ambitiousfew/stationlink/transport"
	"github.com/ambitiousfew/stationlink/transport/amqp"
	"github.com/ambitiousfew/stationlink/transport/kafka"
	"github.com/ambitiousfew/stationlink/transport/loopback"
	"github.com/ambitiousfew/stationlink/transport/mqtt"
)

// newTransport builds the adapter for cfg.Transport.Kind.
func newTransport(cfg config.Config, logger log.Logger) (transport.Transport, error) {
	tc := cfg.Transport
	tlsCfg, err := tc.TLS.Build()
	if err != nil {
		return nil, err
	}

	clientID := tc.ClientID
	if clientID == "" {
		clientID = "stationlink-" + cfg.Station.Root + "-" + cfg.Station.Identifier
	}
	logger = logger.With(log.String("transport", tc.Kind))

	switch tc.Kind {
	case config.TransportMQTT:
		opts := []mqtt.Option{
			mqtt.WithClientID(clientID),
			mqtt.WithLogger(logger),
		}
		if tc.Username != "" {
			opts = append(opts, mqtt.WithCredentials(tc.Username, tc.Password))
		}
		if tlsCfg != nil {
			opts = append(opts, mqtt.WithTLS(tlsCfg))
		}
		return mqtt.New(mqtt.BrokerURL(tc.Address, tc.Port, tlsCfg != nil), opts...), nil

	case config.TransportAMQP:
		opts := []amqp.Option{
			amqp.WithExchange(tc.Exchange),
			amqp.WithConsumerTag(clientID),
			amqp.WithLogger(logger),
		}
		if tc.Username != "" {
			opts = append(opts, amqp.WithCredentials(tc.Username, tc.Password))
		}
		if tlsCfg != nil {
			opts = append(opts, amqp.WithTLS(tlsCfg))
		}
		return amqp.New(amqpURL(tc.Address, tc.Port, tlsCfg != nil), opts...), nil

	case config.TransportKafka:
		opts := []kafka.Option{
			kafka.WithClientID(clientID),
			kafka.WithLogger(logger),
		}
		if tc.Username != "" {
			opts = append(opts, kafka.WithCredentials(tc.Username, tc.Password))
		}
		if tlsCfg != nil {
			opts = append(opts, kafka.WithTLS(tlsCfg))
		}
		port := tc.Port
		if port == 0 {
			port = 9092
		}
		return kafka.New([]string{net.JoinHostPort(tc.Address, strconv.Itoa(port))}, opts...), nil

	case config.TransportLoopback:
		broker := loopback.NewBroker(loopback.WithBrokerLogger(logger))
		return loopback.New(broker, clientID), nil

	default:
		return nil, fmt.Errorf("unknown transport kind %q", tc.Kind)
	}
}

// amqpURL builds the broker url from an address, which may already be a url.
func amqpURL(address string, port int, useTLS bool) string {
	if u, err := url.Parse(address); err == nil && (u.Scheme == "amqp" || u.Scheme == "amqps") {
		return address
	}

	scheme, defaultPort := "amqp", 5672
	if useTLS {
		scheme, defaultPort = "amqps", 5671
	}
	if port == 0 {
		port = defaultPort
	}
	return (&url.URL{Scheme: scheme, Host: net.JoinHostPort(address, strconv.Itoa(port)), Path: "/"}).String()
}

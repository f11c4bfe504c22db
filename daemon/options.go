package daemon

import (
	"os"

	"github.com/ambitiousfew/stationlink/log"
)

type DaemonOption func(*Daemon)

// WithSignals sets the OS signals that the daemon should listen for. If no signals are provided, the daemon
// will listen for SIGINT and SIGTERM by default.
func WithSignals(signals ...os.Signal) DaemonOption {
	return func(d *Daemon) {
		d.signals = signals
	}
}

// WithLogger sets the daemon logger, each service logs through a child carrying its name.
func WithLogger(logger log.Logger) DaemonOption {
	return func(d *Daemon) {
		if logger != nil {
			d.logger = logger
		}
	}
}

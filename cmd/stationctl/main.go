// Command stationctl runs a stationlink client against the configured broker.
//
// It is the operator's tool for an installation: check a key against the
// backend, follow the broadcast ranking, move a station to another identifier
// or keep it in sync with the settings file.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/ambitiousfew/stationlink"
	"github.com/ambitiousfew/stationlink/config"
	"github.com/ambitiousfew/stationlink/daemon"
	"github.com/ambitiousfew/stationlink/log"
	"github.com/spf13/pflag"
	"golang.org/x/term"
	"golang.org/x/time/rate"
)

type options struct {
	configPath     string
	level          string
	check          string
	action         string
	watch          bool
	switchTo       string
	followSettings bool
	askPassword    bool
	checkConfig    bool
}

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func parseFlags(args []string) (options, bool, error) {
	var opts options

	flagSet := pflag.NewFlagSet("stationctl", pflag.ContinueOnError)
	flagSet.StringVarP(&opts.configPath, "config", "c", "", "path to the configuration file (yaml, json or toml)")
	flagSet.StringVar(&opts.level, "level", "", "log level, overrides log.level")
	flagSet.StringVar(&opts.check, "check", "", "issue a request for this key and print the result")
	flagSet.StringVar(&opts.action, "action", "check_username", "action used by --check")
	flagSet.BoolVar(&opts.watch, "watch", false, "print every broadcast until interrupted")
	flagSet.StringVar(&opts.switchTo, "switch", "", "switch the station or side to this identifier")
	flagSet.BoolVar(&opts.followSettings, "follow-settings", false, "switch whenever the settings file names another identifier")
	flagSet.BoolVar(&opts.askPassword, "ask-password", false, "prompt for the broker password")
	flagSet.BoolVar(&opts.checkConfig, "check-config", false, "validate the configuration and exit")
	flagSet.BoolP("help", "h", false, "show help")

	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			printHelp(flagSet)
			return opts, true, nil
		}
		return opts, false, err
	}
	if help, _ := flagSet.GetBool("help"); help {
		printHelp(flagSet)
		return opts, true, nil
	}
	if rest := flagSet.Args(); len(rest) > 0 {
		return opts, false, fmt.Errorf("unexpected argument: %s", rest[0])
	}
	return opts, false, nil
}

func printHelp(flagSet *pflag.FlagSet) {
	fmt.Fprintf(os.Stderr, `stationctl connects one station or tablet side to the installation's broker.

Usage:
  stationctl [flags]

Examples:
  # Check whether a username is free as station 3
  STATIONLINK_STATION_IDENTIFIER=3 stationctl --config stationlink.yaml --check alice

  # Follow the top-10 broadcast
  stationctl --config stationlink.yaml --watch

  # Move this install to the right side and remember it
  stationctl --config fm.yaml --switch right

Flags:
`)
	flagSet.PrintDefaults()
}

func run(args []string) error {
	opts, done, err := parseFlags(args)
	if err != nil || done {
		return err
	}

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return err
	}
	if opts.level != "" {
		cfg.Log.Level = opts.level
	}

	logger := log.NewLogger(log.LevelFromString(cfg.Log.Level), log.NewHandler())

	store, err := config.OpenStore(cfg.Settings.Driver, cfg.Settings.Path)
	if err != nil {
		return err
	}
	defer store.Close()

	settings, err := store.Load(context.Background())
	if err != nil && !errors.Is(err, config.ErrSettingsNotFound) {
		return fmt.Errorf("load settings: %w", err)
	}
	cfg.Apply(settings)
	if err := cfg.Validate(); err != nil {
		return err
	}
	if opts.checkConfig {
		fmt.Println("configuration ok")
		return nil
	}

	if opts.askPassword {
		password, err := readPassword()
		if err != nil {
			return err
		}
		cfg.Transport.Password = password
	}

	// the daemon stops every service on SIGINT or SIGTERM.
	return serve(context.Background(), cfg, store, opts, logger)
}

func readPassword() (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", errors.New("--ask-password needs an interactive terminal")
	}
	fmt.Fprint(os.Stderr, "broker password: ")
	password, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("read password: %w", err)
	}
	return string(password), nil
}

func serve(ctx context.Context, cfg config.Config, store config.Store, opts options, logger log.Logger) error {
	if opts.followSettings && cfg.Settings.Driver != config.DriverFile {
		return fmt.Errorf("--follow-settings needs the %s settings driver", config.DriverFile)
	}

	tr, err := newTransport(cfg, logger)
	if err != nil {
		return err
	}

	ns, err := cfg.Namespace()
	if err != nil {
		return err
	}

	d := stationlink.NewDispatcher(tr,
		stationlink.WithDispatcherLogger(logger.With(log.String("component", "dispatcher"))),
		stationlink.WithOperationTimeout(cfg.Transport.OpTimeout),
	)

	clientOpts := []stationlink.ClientOption{
		stationlink.WithLogger(logger.With(log.String("component", "client"))),
		stationlink.WithTimeout(cfg.Client.Timeout),
	}
	if cfg.Client.CorrelationIDs {
		clientOpts = append(clientOpts, stationlink.WithCorrelationIDs())
	}
	if cfg.Client.PublishRate > 0 {
		clientOpts = append(clientOpts, stationlink.WithPublishLimit(rate.Limit(cfg.Client.PublishRate), cfg.Client.PublishBurst))
	}

	client := stationlink.NewClient(d, ns, clientOpts...)
	listener := stationlink.NewBroadcastListener(d, ns, cfg.Station.Broadcast,
		stationlink.WithListenerLogger(logger.With(log.String("component", "broadcast"))))
	switcher := stationlink.NewSwitcher([]stationlink.Switchable{client, listener},
		stationlink.WithSwitcherLogger(logger.With(log.String("component", "switcher"))),
		stationlink.WithPersister(config.StationPersister{Store: store}),
	)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	dmn := daemon.NewDaemon("stationctl", daemon.WithLogger(logger.With(log.String("component", "daemon"))))
	op := &operator{
		opts:        opts,
		daemon:      dmn,
		client:      client,
		listener:    listener,
		switcher:    switcher,
		logger:      logger.With(log.String("component", "operator")),
		connectWait: cfg.Transport.LostAfter,
		shutdown:    cancel,
	}

	services := []daemon.Service{
		daemon.NewService("dispatcher", dispatcherService{d: d}),
		daemon.NewService("broker", &brokerService{
			d:         d,
			store:     store,
			settings:  cfg.Transport,
			logger:    logger.With(log.String("component", "broker")),
			poll:      time.Second,
			lostAfter: cfg.Transport.LostAfter,
		}, daemon.WithRestart(cfg.Transport.ReconnectDelay, cfg.Transport.MaxReconnectDelay)),
		daemon.NewService("operator", op),
	}
	if opts.followSettings {
		services = append(services, daemon.NewService("settings", settingsService{
			path:     cfg.Settings.Path,
			switcher: switcher,
			logger:   logger.With(log.String("component", "settings")),
		}))
	}
	for _, s := range services {
		if err := dmn.AddService(s); err != nil {
			return err
		}
	}

	if err := dmn.Start(ctx); err != nil {
		return err
	}
	return op.err
}

func check(ctx context.Context, client *stationlink.Client, action, key string) (stationlink.Result, error) {
	done := make(chan stationlink.Result, 1)
	client.IssueRequest(stationlink.Request{Action: action, Key: key}, func(r stationlink.Result) {
		done <- r
	})

	select {
	case r := <-done:
		return r, nil
	case <-ctx.Done():
		return stationlink.Result{}, ctx.Err()
	}
}

func printBroadcast(bc stationlink.Broadcast) {
	fmt.Println("--")
	for _, e := range bc.Entries {
		fmt.Printf("%3d  %-20s %8d\n", e.Rank, e.Name, e.Score)
	}
}

// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"errors"
	"fmt"
	"strings"

	"github.com/nats-io/nats.go"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Thermoquad/rcsbridge/internal/bridge"
	"github.com/Thermoquad/rcsbridge/internal/logger"
	"github.com/Thermoquad/rcsbridge/pkg/bus"
	"github.com/Thermoquad/rcsbridge/pkg/rcs"
)

const (
	version = "1.0.0"

	appVendor = "rcs"
	appDevice = "rc65"

	envPrefix = "RCSBRIDGE"
)

var (
	errInvalidDebug   = errors.New("invalid debug level")
	errInvalidBaud    = errors.New("invalid baud rate")
	errInvalidSetting = errors.New("invalid setting")
)

// options is the resolved configuration from flags, environment and config file
type options struct {
	address      int
	debug        int
	iface        string
	logFile      string
	noBackground bool

	link linkOptions

	natsURL       string
	subjectPrefix string
	instance      string
	codec         bus.Codec

	state       string
	httpAddr    string
	pollTimeout int
	queueSize   int
	diffMode    bridge.DiffMode
}

// identity is the bridge's bus identity
func (o options) identity() bus.Identity {
	return bus.Identity{Vendor: appVendor, Device: appDevice, Instance: o.instance}
}

var (
	configFile string
	cfg        = viper.New()
	opts       options
)

var rootCmd = &cobra.Command{
	Use:   "rcsbridge",
	Short: "Bus gateway for RCS RC65 serial thermostats",
	Long: `rcsbridge - Connects an RCS RC65 style thermostat to the home automation bus.

Commands received on the bus (hvac.basic, hvac.transparent) are translated
into thermostat commands and sent over the serial link. The thermostat is
polled at a configurable rate; changes are reported as rcs.trigger messages
and command responses as rcs.status messages.

Connection modes:
  Serial:    --com-port /dev/ttyS0 [--baud 9600]
  WebSocket: --url ws://host/path [--username user]

For WebSocket authentication, the password is read from the RCSBRIDGE_PASSWORD
environment variable, or prompted interactively if not set.

Every flag may also be set in a YAML config file (--config, or rcsbridge.yaml
in /etc/rcsbridge, $HOME/.config/rcsbridge or the working directory) or via
RCSBRIDGE_* environment variables, e.g. RCSBRIDGE_COM_PORT.`,
	Version:           version,
	Args:              cobra.NoArgs,
	PersistentPreRunE: initConfig,
	RunE:              runBridge,
}

func init() {
	flags := rootCmd.PersistentFlags()

	flags.StringVar(&configFile, "config", "", "Config file (YAML)")

	flags.IntP("address", "a", rcs.DefaultAddress, "Thermostat address (0-255)")
	flags.IntP("debug", "d", 0, fmt.Sprintf("Debug level (%d-%d)", logger.MinDebug, logger.MaxDebug))
	flags.StringP("interface", "i", "", "Network interface for bus traffic")
	flags.StringP("log", "l", "", "Log file (when running in the background)")
	flags.BoolP("no-background", "n", false, "Stay in the foreground")

	// Link flags
	flags.StringP("com-port", "p", defaultPort(), "Serial port device")
	flags.Int("baud", rcs.DefaultBaudRate, "Baud rate (serial only)")
	flags.StringP("url", "u", "", "WebSocket serial gateway URL (ws:// or wss://)")
	flags.String("username", "", "Username for HTTP Basic auth")
	flags.Bool("no-ssl-verify", false, "Skip TLS certificate verification (wss:// only)")

	// Bus flags
	flags.String("nats", nats.DefaultURL, "Bus server URL")
	flags.String("subject-prefix", bus.DefaultSubjectPrefix, "Bus subject prefix")
	flags.String("instance", bus.DefaultInstance(), "Bus instance name")
	flags.String("codec", "json", "Bus message encoding (json or cbor)")

	// Bridge flags
	flags.String("state", "", "Config store path (.db or .sqlite selects SQLite, otherwise YAML; empty keeps it in memory)")
	flags.String("http", "", "Status API listen address, e.g. :8080 (empty disables)")
	flags.Int("poll-timeout", bridge.DefaultPollTimeout, "Ticks to wait for a poll response (0 disables)")
	flags.Int("queue-size", bridge.DefaultQueueSize, "Command queue capacity (0 is unbounded)")
	flags.Bool("diff-by-key", false, "Compare status fields by key instead of position")

	_ = cfg.BindPFlags(flags)
	cfg.SetEnvPrefix(envPrefix)
	cfg.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	cfg.AutomaticEnv()
}

// initConfig reads the config file and resolves options before any command runs
func initConfig(cmd *cobra.Command, _ []string) error {
	if err := readConfigFile(cfg, configFile); err != nil {
		return err
	}

	o, err := loadOptions(cfg)
	if err != nil {
		return err
	}
	opts = o

	// Argument errors above print usage; runtime errors below do not
	cmd.SilenceUsage = true
	return nil
}

// readConfigFile loads path, or searches the default locations when path is
// empty. A missing default config file is not an error.
func readConfigFile(v *viper.Viper, path string) error {
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		return nil
	}

	v.SetConfigName("rcsbridge")
	v.SetConfigType("yaml")
	v.AddConfigPath("/etc/rcsbridge")
	v.AddConfigPath("$HOME/.config/rcsbridge")
	v.AddConfigPath(".")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}
	return nil
}

// loadOptions resolves and validates the settings held by v
func loadOptions(v *viper.Viper) (options, error) {
	o := options{
		address:      v.GetInt("address"),
		debug:        v.GetInt("debug"),
		iface:        v.GetString("interface"),
		logFile:      v.GetString("log"),
		noBackground: v.GetBool("no-background"),
		link: linkOptions{
			port:        v.GetString("com-port"),
			baud:        v.GetInt("baud"),
			url:         v.GetString("url"),
			username:    v.GetString("username"),
			noSSLVerify: v.GetBool("no-ssl-verify"),
		},
		natsURL:       v.GetString("nats"),
		subjectPrefix: v.GetString("subject-prefix"),
		instance:      v.GetString("instance"),
		state:         v.GetString("state"),
		httpAddr:      v.GetString("http"),
		pollTimeout:   v.GetInt("poll-timeout"),
		queueSize:     v.GetInt("queue-size"),
		diffMode:      bridge.DiffPositional,
	}

	if !rcs.ValidAddress(o.address) {
		return options{}, fmt.Errorf("%w: %d (must be %d-%d)", rcs.ErrInvalidAddress, o.address, rcs.MinAddress, rcs.MaxAddress)
	}
	if !logger.ValidDebug(o.debug) {
		return options{}, fmt.Errorf("%w: %d (must be %d-%d)", errInvalidDebug, o.debug, logger.MinDebug, logger.MaxDebug)
	}
	if o.link.baud <= 0 {
		return options{}, fmt.Errorf("%w: %d", errInvalidBaud, o.link.baud)
	}
	if o.pollTimeout < 0 {
		return options{}, fmt.Errorf("%w: poll-timeout %d", errInvalidSetting, o.pollTimeout)
	}
	if o.queueSize < 0 {
		return options{}, fmt.Errorf("%w: queue-size %d", errInvalidSetting, o.queueSize)
	}
	if o.instance == "" {
		return options{}, fmt.Errorf("%w: empty instance", errInvalidSetting)
	}

	codec, err := bus.CodecByName(v.GetString("codec"))
	if err != nil {
		return options{}, err
	}
	o.codec = codec

	if v.GetBool("diff-by-key") {
		o.diffMode = bridge.DiffByKey
	}
	return o, nil
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

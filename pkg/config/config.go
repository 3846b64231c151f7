// Package config assembles the configuration of the radiolink programs.
//
// The effective configuration is layered: built-in defaults, then the TOML
// file given by -config (or RADIOLINK_CONFIG), then environment variables,
// then command line flags which were set explicitly.
package config

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/robotalks/radiolink/pkg/radio/link"
)

// Duration is a time.Duration written as "1s" or "250ms" in TOML.
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) (err error) {
	d.Duration, err = time.ParseDuration(string(text))
	return
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// Link configures the serial link.
type Link struct {
	Port             string   `toml:"port"`
	Baud             int      `toml:"baud"`
	Lookahead        int      `toml:"lookahead"`
	Oversize         int      `toml:"oversize"`
	GuardTime        Duration `toml:"guard_time"`
	EnterTimeout     Duration `toml:"enter_timeout"`
	ExitTimeout      Duration `toml:"exit_timeout"`
	CommandTimeout   Duration `toml:"command_timeout"`
	FrameBuffer      int      `toml:"frame_buffer"`
	DiagnosticBuffer int      `toml:"diagnostic_buffer"`
}

// MQTT configures the MQTT forwarder.
// e.g. url = "mqtt://host:1883/radiolink/"
type MQTT struct {
	URL     string `toml:"url"`
	Station string `toml:"station"`
	QoS     int    `toml:"qos"`
}

// WebSocket configures the dashboard feed.
type WebSocket struct {
	Listen string `toml:"listen"`
	Path   string `toml:"path"`
}

// Capture configures frame capture.
type Capture struct {
	Path string `toml:"path"`
}

// Config is the configuration of all programs.
type Config struct {
	Link      Link      `toml:"link"`
	MQTT      MQTT      `toml:"mqtt"`
	WebSocket WebSocket `toml:"websocket"`
	Capture   Capture   `toml:"capture"`
}

// Default returns the built-in defaults.
func Default() Config {
	def := link.DefaultConfig()
	return Config{
		Link: Link{
			Baud:             def.BaudRate,
			Lookahead:        def.Lookahead,
			Oversize:         def.Oversize,
			GuardTime:        Duration{def.GuardTime},
			EnterTimeout:     Duration{def.EnterTimeout},
			ExitTimeout:      Duration{def.ExitTimeout},
			CommandTimeout:   Duration{def.CommandTimeout},
			FrameBuffer:      def.FrameBuffer,
			DiagnosticBuffer: def.DiagnosticBuffer,
		},
		WebSocket: WebSocket{Path: "/ws"},
	}
}

// Load builds the configuration from defaults, the file at path (skipped
// when empty) and the environment.
func Load(path string) (*Config, error) {
	conf := Default()
	if path != "" {
		md, err := toml.DecodeFile(path, &conf)
		if err != nil {
			return nil, fmt.Errorf("config %s: %w", path, err)
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			return nil, fmt.Errorf("config %s: unknown key %q", path, undecoded[0].String())
		}
	}
	if err := conf.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	return &conf, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	if val, ok := lookup("RADIOLINK_PORT"); ok && val != "" {
		c.Link.Port = val
	}
	if val, ok := lookup("RADIOLINK_BAUD"); ok && val != "" {
		baud, err := strconv.Atoi(val)
		if err != nil {
			return fmt.Errorf("RADIOLINK_BAUD: %w", err)
		}
		c.Link.Baud = baud
	}
	if val, ok := lookup("RADIOLINK_MQTT_URL"); ok && val != "" {
		c.MQTT.URL = val
	}
	return nil
}

// Validate checks values which would make the link unusable.
func (c *Config) Validate() error {
	if c.Link.Baud <= 0 {
		return fmt.Errorf("invalid baud rate %d", c.Link.Baud)
	}
	if c.Link.Lookahead < 0 || c.Link.Oversize < 0 {
		return fmt.Errorf("lookahead and oversize must not be negative")
	}
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		return fmt.Errorf("invalid MQTT QoS %d", c.MQTT.QoS)
	}
	return nil
}

// LinkConfig converts the [link] section into a session configuration.
// Zero values keep the session defaults.
func (c *Config) LinkConfig() link.Config {
	conf := link.DefaultConfig()
	conf.PortName = c.Link.Port
	setInt(&conf.BaudRate, c.Link.Baud)
	setInt(&conf.Lookahead, c.Link.Lookahead)
	setInt(&conf.Oversize, c.Link.Oversize)
	setInt(&conf.FrameBuffer, c.Link.FrameBuffer)
	setInt(&conf.DiagnosticBuffer, c.Link.DiagnosticBuffer)
	// a zero guard time is meaningful: escape immediately
	conf.GuardTime = c.Link.GuardTime.Duration
	setDuration(&conf.EnterTimeout, c.Link.EnterTimeout)
	setDuration(&conf.ExitTimeout, c.Link.ExitTimeout)
	setDuration(&conf.CommandTimeout, c.Link.CommandTimeout)
	return conf
}

func setInt(dst *int, v int) {
	if v > 0 {
		*dst = v
	}
}

func setDuration(dst *time.Duration, d Duration) {
	if d.Duration > 0 {
		*dst = d.Duration
	}
}

// Flags binds command line flags to configuration values.
type Flags struct {
	fs   *flag.FlagSet
	path string
	conf Config
}

var cmdline Flags

func init() {
	cmdline.path = os.Getenv("RADIOLINK_CONFIG")
}

// SetupFlags registers the common flags on the command line.
func SetupFlags() {
	cmdline.Setup(flag.CommandLine)
}

// FromFlags returns the effective configuration after flag.Parse.
func FromFlags() (*Config, error) {
	return cmdline.Resolve()
}

// Setup registers flags on fs.
func (f *Flags) Setup(fs *flag.FlagSet) {
	f.fs, f.conf = fs, Default()
	fs.StringVar(&f.path, "config", f.path, "Configuration file (TOML).")
	fs.StringVar(&f.conf.Link.Port, "port", f.conf.Link.Port, "Serial port of the radio.")
	fs.IntVar(&f.conf.Link.Baud, "baud", f.conf.Link.Baud, "Baud rate of the serial port.")
	fs.StringVar(&f.conf.MQTT.URL, "mqtt", f.conf.MQTT.URL, "MQTT broker URL, e.g. mqtt://host:1883/radiolink/")
	fs.StringVar(&f.conf.MQTT.Station, "station", f.conf.MQTT.Station, "Station name in MQTT topics.")
	fs.StringVar(&f.conf.WebSocket.Listen, "listen", f.conf.WebSocket.Listen, "Address serving the WebSocket feed.")
	fs.StringVar(&f.conf.Capture.Path, "capture", f.conf.Capture.Path, "File recording decoded frames.")
}

// Resolve loads the configuration and applies flags set explicitly.
func (f *Flags) Resolve() (*Config, error) {
	conf, err := Load(f.path)
	if err != nil {
		return nil, err
	}
	if f.fs != nil {
		f.fs.Visit(func(fl *flag.Flag) {
			switch fl.Name {
			case "port":
				conf.Link.Port = f.conf.Link.Port
			case "baud":
				conf.Link.Baud = f.conf.Link.Baud
			case "mqtt":
				conf.MQTT.URL = f.conf.MQTT.URL
			case "station":
				conf.MQTT.Station = f.conf.MQTT.Station
			case "listen":
				conf.WebSocket.Listen = f.conf.WebSocket.Listen
			case "capture":
				conf.Capture.Path = f.conf.Capture.Path
			}
		})
	}
	if err = conf.Validate(); err != nil {
		return nil, err
	}
	return conf, nil
}

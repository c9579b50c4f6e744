// Package config loads the channel layout and probe settings from a TOML
// file.
package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"

	"swotrace/pkg/itm"

	"github.com/pelletier/go-toml/v2"
)

// Sink names accepted in a channel's sinks list.
const (
	SinkConsole = "console"
	SinkEcho    = "echo"
	SinkWeb     = "web"
	SinkRecord  = "record"
)

var (
	ErrInvalidChannel   = errors.New("config: channel id out of range")
	ErrDuplicateChannel = errors.New("config: duplicate channel id")
	ErrUnknownSink      = errors.New("config: unknown sink")
)

type Config struct {
	Host     string `toml:"host"`
	Port     int    `toml:"port"`
	CPUClock int64  `toml:"cpu_clock"`
	// ConnectRetrySeconds bounds how long the Tcl server is retried. 0 tries once.
	ConnectRetrySeconds int `toml:"connect_retry_seconds"`

	Flash    Flash     `toml:"flash"`
	HTTP     HTTP      `toml:"http"`
	Record   Record    `toml:"record"`
	Channels []Channel `toml:"channel"`
}

// Flash holds the parameters of the key commands that program and lock the
// target.
type Flash struct {
	Image   string `toml:"image"`
	Address string `toml:"address"`
	Driver  string `toml:"driver"`
}

type HTTP struct {
	// Listen enables the web viewer and metrics endpoint, e.g. "localhost:8080".
	Listen string `toml:"listen"`
}

type Record struct {
	// Path of the output log that receives lines of channels with the record sink.
	Path string `toml:"path"`
}

type Channel struct {
	ID     int      `toml:"id"`
	Prefix string   `toml:"prefix"`
	Sinks  []string `toml:"sinks"`
}

// Default returns the layout of the classic setup: channel 0 for info,
// 1 for warnings and 2 for errors.
func Default() *Config {
	return &Config{
		Host:     "localhost",
		Port:     6666,
		CPUClock: 80000000,
		Flash: Flash{
			Image:   "main.bin",
			Address: "0x08000000",
			Driver:  "stm32l4x",
		},
		Channels: []Channel{
			{ID: 0, Prefix: "", Sinks: []string{SinkConsole, SinkEcho}},
			{ID: 1, Prefix: "WARNING: ", Sinks: []string{SinkConsole}},
			{ID: 2, Prefix: "ERROR: ", Sinks: []string{SinkConsole, SinkEcho}},
		},
	}
}

// Load reads path on top of the defaults. An empty path returns the
// defaults. Channels listed in the file replace the default channels.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	if err := cfg.parse(data); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	return cfg, nil
}

func (c *Config) parse(data []byte) error {
	defaults := c.Channels
	c.Channels = nil
	if err := toml.Unmarshal(data, c); err != nil {
		return err
	}
	if len(c.Channels) == 0 {
		c.Channels = defaults
	}
	return nil
}

// Addr returns the Tcl server address.
func (c *Config) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// Validate checks ranges and channel uniqueness.
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("config: invalid port %d", c.Port)
	}
	if c.CPUClock <= 0 {
		return fmt.Errorf("config: cpu clock must be positive, got %d", c.CPUClock)
	}
	if c.ConnectRetrySeconds < 0 {
		return fmt.Errorf("config: connect_retry_seconds must not be negative")
	}

	seen := make(map[int]bool)
	for _, ch := range c.Channels {
		if ch.ID < 0 || ch.ID >= itm.NumChannels {
			return fmt.Errorf("%w: %d", ErrInvalidChannel, ch.ID)
		}
		if seen[ch.ID] {
			return fmt.Errorf("%w: %d", ErrDuplicateChannel, ch.ID)
		}
		seen[ch.ID] = true

		for _, sink := range ch.Sinks {
			switch sink {
			case SinkConsole, SinkEcho, SinkWeb, SinkRecord:
			default:
				return fmt.Errorf("%w %q on channel %d", ErrUnknownSink, sink, ch.ID)
			}
		}
	}
	return nil
}

// HasSink reports whether the channel writes to the named sink.
func (ch Channel) HasSink(name string) bool {
	for _, s := range ch.Sinks {
		if s == name {
			return true
		}
	}
	return false
}

// UsesSink reports whether any channel writes to the named sink.
func (c *Config) UsesSink(name string) bool {
	for _, ch := range c.Channels {
		if ch.HasSink(name) {
			return true
		}
	}
	return false
}

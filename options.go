package bridge

import (
	"context"
	"fmt"
	"time"

	"github.com/viant/afs"
	"gopkg.in/yaml.v3"

	"github.com/viant/mcp-bridge/router"
)

// Options configures the bridge. Values come from flags, optionally layered
// over a YAML config document; flags win.
type Options struct {
	Host      string `short:"H" long:"host" description:"http listen host" yaml:"Host"`
	Port      int    `short:"p" long:"port" description:"http listen port" yaml:"Port"`
	ConfigURL string `short:"f" long:"config" description:"config file URL (any afs scheme)" yaml:"-"`

	Name    string `long:"name" description:"bridge implementation name reported on initialize" yaml:"Name"`
	Version string `long:"version" description:"bridge implementation version" yaml:"Version"`

	CallTimeoutSec      int `short:"t" long:"call-timeout" description:"tools/call timeout in seconds" yaml:"CallTimeoutSec"`
	HandshakeTimeoutSec int `long:"handshake-timeout" description:"initialize/tools-list timeout in seconds" yaml:"HandshakeTimeoutSec"`
	PingIntervalSec     int `long:"ping-interval" description:"keepalive ping interval in seconds, 0 disables" yaml:"PingIntervalSec"`
	StopTimeoutSec      int `long:"stop-timeout" description:"graceful stop wait in seconds" yaml:"StopTimeoutSec"`

	BackoffBaseMs int     `long:"backoff-base" description:"restart backoff base in milliseconds" yaml:"BackoffBaseMs"`
	BackoffCapMs  int     `long:"backoff-cap" description:"restart backoff ceiling in milliseconds" yaml:"BackoffCapMs"`
	BackoffJitter float64 `long:"backoff-jitter" description:"restart backoff jitter fraction" yaml:"BackoffJitter"`
	RestartLimit  int     `long:"restart-limit" description:"max restarts within the restart window" yaml:"RestartLimit"`
	RestartWinSec int     `long:"restart-window" description:"restart budget window in seconds" yaml:"RestartWinSec"`

	AllowOrigins []string `long:"allow-origin" description:"CORS allowed origin, repeatable" yaml:"AllowOrigins"`
	LogLevel     string   `short:"l" long:"log-level" description:"debug|info|warn|error" yaml:"LogLevel"`

	// Subprocess command and arguments, everything after the -- separator.
	Command []string `yaml:"Command"`
}

// Init loads the optional YAML config and fills defaults. Flag-provided
// values take precedence: the config only fills fields still at their zero
// value.
func (o *Options) Init(ctx context.Context) error {
	if o.ConfigURL != "" {
		if err := o.loadConfig(ctx); err != nil {
			return err
		}
	}
	if o.Host == "" {
		o.Host = "127.0.0.1"
	}
	if o.Port == 0 {
		o.Port = 8095
	}
	if o.Name == "" {
		o.Name = "mcp-bridge"
	}
	if o.Version == "" {
		o.Version = "0.1.0"
	}
	if o.CallTimeoutSec == 0 {
		o.CallTimeoutSec = 30
	}
	if o.HandshakeTimeoutSec == 0 {
		o.HandshakeTimeoutSec = 30
	}
	if o.StopTimeoutSec == 0 {
		o.StopTimeoutSec = 5
	}
	if o.BackoffBaseMs == 0 {
		o.BackoffBaseMs = 500
	}
	if o.BackoffCapMs == 0 {
		o.BackoffCapMs = 30000
	}
	if o.BackoffJitter == 0 {
		o.BackoffJitter = 0.2
	}
	if o.RestartLimit == 0 {
		o.RestartLimit = 5
	}
	if o.RestartWinSec == 0 {
		o.RestartWinSec = 60
	}
	if o.LogLevel == "" {
		o.LogLevel = "info"
	}
	return o.Validate()
}

// Validate checks the launch surface is usable.
func (o *Options) Validate() error {
	if len(o.Command) == 0 {
		return fmt.Errorf("no subprocess command given, pass it after --")
	}
	if o.Port <= 0 || o.Port > 65535 {
		return fmt.Errorf("invalid port: %v", o.Port)
	}
	return nil
}

func (o *Options) loadConfig(ctx context.Context) error {
	fs := afs.New()
	data, err := fs.DownloadWithURL(ctx, o.ConfigURL)
	if err != nil {
		return fmt.Errorf("failed to load config %v: %w", o.ConfigURL, err)
	}
	var loaded Options
	if err := yaml.Unmarshal(data, &loaded); err != nil {
		return fmt.Errorf("failed to parse config %v: %w", o.ConfigURL, err)
	}
	o.merge(&loaded)
	return nil
}

// merge fills zero-valued fields from loaded.
func (o *Options) merge(loaded *Options) {
	if o.Host == "" {
		o.Host = loaded.Host
	}
	if o.Port == 0 {
		o.Port = loaded.Port
	}
	if o.Name == "" {
		o.Name = loaded.Name
	}
	if o.Version == "" {
		o.Version = loaded.Version
	}
	if o.CallTimeoutSec == 0 {
		o.CallTimeoutSec = loaded.CallTimeoutSec
	}
	if o.HandshakeTimeoutSec == 0 {
		o.HandshakeTimeoutSec = loaded.HandshakeTimeoutSec
	}
	if o.PingIntervalSec == 0 {
		o.PingIntervalSec = loaded.PingIntervalSec
	}
	if o.StopTimeoutSec == 0 {
		o.StopTimeoutSec = loaded.StopTimeoutSec
	}
	if o.BackoffBaseMs == 0 {
		o.BackoffBaseMs = loaded.BackoffBaseMs
	}
	if o.BackoffCapMs == 0 {
		o.BackoffCapMs = loaded.BackoffCapMs
	}
	if o.BackoffJitter == 0 {
		o.BackoffJitter = loaded.BackoffJitter
	}
	if o.RestartLimit == 0 {
		o.RestartLimit = loaded.RestartLimit
	}
	if o.RestartWinSec == 0 {
		o.RestartWinSec = loaded.RestartWinSec
	}
	if len(o.AllowOrigins) == 0 {
		o.AllowOrigins = loaded.AllowOrigins
	}
	if o.LogLevel == "" {
		o.LogLevel = loaded.LogLevel
	}
	if len(o.Command) == 0 {
		o.Command = loaded.Command
	}
}

// Addr is the HTTP listen address.
func (o *Options) Addr() string {
	return fmt.Sprintf("%v:%v", o.Host, o.Port)
}

// CallTimeout is the per tools/call deadline.
func (o *Options) CallTimeout() time.Duration {
	return time.Duration(o.CallTimeoutSec) * time.Second
}

// HandshakeTimeout bounds initialize and tools/list calls.
func (o *Options) HandshakeTimeout() time.Duration {
	return time.Duration(o.HandshakeTimeoutSec) * time.Second
}

// PingInterval is the keepalive cadence; zero disables keepalive.
func (o *Options) PingInterval() time.Duration {
	return time.Duration(o.PingIntervalSec) * time.Second
}

// StopTimeout bounds the graceful stop wait.
func (o *Options) StopTimeout() time.Duration {
	return time.Duration(o.StopTimeoutSec) * time.Second
}

// Cors builds the router CORS policy.
func (o *Options) Cors() *router.Cors {
	if len(o.AllowOrigins) == 0 {
		return &router.Cors{AllowOrigins: []string{"*"}}
	}
	return &router.Cors{AllowOrigins: o.AllowOrigins}
}

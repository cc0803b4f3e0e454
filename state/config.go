package state

import (
	"net"
	"net/url"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/hcl"
	"github.com/juju/errors"
	"github.com/temoto/linkctl/helpers"
	"github.com/temoto/linkctl/link"
	"github.com/temoto/linkctl/log2"
	"github.com/temoto/linkctl/tele"
	"gopkg.in/yaml.v3"
)

const DefaultBufferSize = 2048

type Config struct {
	// includeSeen contains absolute paths to prevent include loops
	includeSeen map[string]struct{}
	// only used for Unmarshal, do not access
	XXX_Include []ConfigSource `hcl:"include" yaml:"include"`

	Target struct {
		Host string `hcl:"host" yaml:"host"`
		Port int    `hcl:"port" yaml:"port"`
	} `hcl:"target" yaml:"target"`

	Link struct {
		AutoConnect      bool `hcl:"auto_connect" yaml:"auto_connect"`
		ConnectTimeoutMs int  `hcl:"connect_timeout_ms" yaml:"connect_timeout_ms"`
		TickMs           int  `hcl:"tick_ms" yaml:"tick_ms"`
		ProbeIntervalMs  int  `hcl:"probe_interval_ms" yaml:"probe_interval_ms"`
		ProbeTimeoutMs   int  `hcl:"probe_timeout_ms" yaml:"probe_timeout_ms"`
		ReadChunk        int  `hcl:"read_chunk" yaml:"read_chunk"`
		BufferSize       int  `hcl:"buffer_size" yaml:"buffer_size"`
		SendQueue        int  `hcl:"send_queue" yaml:"send_queue"`
		LogDebug         bool `hcl:"log_debug" yaml:"log_debug"`
	} `hcl:"link" yaml:"link"`

	Metrics struct {
		Listen string `hcl:"listen" yaml:"listen"`
	} `hcl:"metrics" yaml:"metrics"`

	Tele tele.Config `hcl:"tele" yaml:"tele"`

	_copy_guard sync.Mutex //nolint:unused
}

type ConfigSource struct {
	Name     string `hcl:"name,key" yaml:"name"`
	Optional bool   `hcl:"optional" yaml:"optional"`
}

func (c *Config) ConnectTimeout() time.Duration {
	return helpers.IntMillisecondDefault(c.Link.ConnectTimeoutMs, link.DefaultConnectTimeout)
}
func (c *Config) Tick() time.Duration {
	return helpers.IntMillisecondDefault(c.Link.TickMs, link.DefaultTick)
}
func (c *Config) ProbeInterval() time.Duration {
	return helpers.IntMillisecondDefault(c.Link.ProbeIntervalMs, link.DefaultProbeInterval)
}
func (c *Config) ProbeTimeout() time.Duration {
	return helpers.IntMillisecondDefault(c.Link.ProbeTimeoutMs, link.DefaultProbeTimeout)
}

// Normalize fills zero values with defaults.
func (c *Config) Normalize() {
	c.Target.Host = strings.TrimSpace(c.Target.Host)
	if c.Link.ConnectTimeoutMs == 0 {
		c.Link.ConnectTimeoutMs = int(link.DefaultConnectTimeout / time.Millisecond)
	}
	if c.Link.TickMs == 0 {
		c.Link.TickMs = int(link.DefaultTick / time.Millisecond)
	}
	if c.Link.ProbeIntervalMs == 0 {
		c.Link.ProbeIntervalMs = int(link.DefaultProbeInterval / time.Millisecond)
	}
	if c.Link.ProbeTimeoutMs == 0 {
		c.Link.ProbeTimeoutMs = int(link.DefaultProbeTimeout / time.Millisecond)
	}
	if c.Link.ReadChunk == 0 {
		c.Link.ReadChunk = link.DefaultReadChunk
	}
	if c.Link.BufferSize == 0 {
		c.Link.BufferSize = DefaultBufferSize
	}
	if c.Link.SendQueue == 0 {
		c.Link.SendQueue = link.DefaultSendQueue
	}
}

func (c *Config) Validate() error {
	errs := make([]error, 0, 8)
	if c.Target.Port != 0 && (c.Target.Port < 1 || c.Target.Port > 65535) {
		errs = append(errs, errors.NotValidf("config: target.port=%d", c.Target.Port))
	}
	if c.Link.AutoConnect && (c.Target.Host == "" || c.Target.Port == 0) {
		errs = append(errs, errors.NotValidf("config: link.auto_connect requires target.host and target.port"))
	}
	for _, x := range []struct {
		name  string
		value int
	}{
		{"link.connect_timeout_ms", c.Link.ConnectTimeoutMs},
		{"link.tick_ms", c.Link.TickMs},
		{"link.probe_interval_ms", c.Link.ProbeIntervalMs},
		{"link.probe_timeout_ms", c.Link.ProbeTimeoutMs},
		{"link.read_chunk", c.Link.ReadChunk},
		{"link.buffer_size", c.Link.BufferSize},
		{"link.send_queue", c.Link.SendQueue},
		{"tele.keepalive_sec", c.Tele.KeepaliveSec},
		{"tele.network_timeout_sec", c.Tele.NetworkTimeoutSec},
		{"tele.queue_size", c.Tele.QueueSize},
	} {
		if x.value < 0 {
			errs = append(errs, errors.NotValidf("config: %s=%d negative", x.name, x.value))
		}
	}
	if c.Metrics.Listen != "" {
		if _, _, err := net.SplitHostPort(c.Metrics.Listen); err != nil {
			errs = append(errs, errors.NewNotValid(err, "config: metrics.listen"))
		}
	}
	if c.Tele.Enabled {
		u, err := url.Parse(c.Tele.MqttBroker)
		if err != nil {
			errs = append(errs, errors.NewNotValid(err, "config: tele.mqtt_broker"))
		} else if u.Scheme == "" || u.Host == "" {
			errs = append(errs, errors.NotValidf("config: tele.mqtt_broker=%q expected scheme://host:port", c.Tele.MqttBroker))
		}
	}
	return helpers.FoldErrors(errs)
}

func (c *Config) read(log *log2.Log, fs FullReader, source ConfigSource, errs *[]error) {
	norm := fs.Normalize(source.Name)
	if _, ok := c.includeSeen[norm]; ok {
		*errs = append(*errs, errors.Errorf("config duplicate source=%s", source.Name))
		return
	}
	log.Debugf("config reading source='%s' path=%s", source.Name, norm)
	c.includeSeen[source.Name] = struct{}{}
	c.includeSeen[norm] = struct{}{}

	bs, err := fs.ReadAll(norm)
	if bs == nil && err == nil {
		if !source.Optional {
			err = errors.NotFoundf("config required name=%s path=%s", source.Name, norm)
			*errs = append(*errs, err)
		}
		return
	}
	if err != nil {
		*errs = append(*errs, errors.Annotatef(err, "config source=%s", source.Name))
		return
	}

	switch strings.ToLower(filepath.Ext(norm)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(bs, c)
	default:
		err = hcl.Unmarshal(bs, c)
	}
	if err != nil {
		err = errors.Annotatef(err, "config unmarshal source=%s", source.Name)
		*errs = append(*errs, err)
		return
	}

	var includes []ConfigSource
	includes, c.XXX_Include = c.XXX_Include, nil
	for _, include := range includes {
		includeNorm := fs.Normalize(include.Name)
		if _, ok := c.includeSeen[includeNorm]; ok {
			err = errors.Errorf("config include loop: from=%s include=%s", source.Name, include.Name)
			*errs = append(*errs, err)
			continue
		}
		c.read(log, fs, include, errs)
	}
}

// ReadConfig reads sources in order, later values overwrite earlier.
// Result is normalized and validated.
func ReadConfig(log *log2.Log, fs FullReader, names ...string) (*Config, error) {
	if len(names) == 0 {
		return nil, errors.Errorf("code error ReadConfig() without names")
	}

	if osfs, ok := fs.(*OsFullReader); ok {
		dir, name := filepath.Split(names[0])
		osfs.SetBase(dir)
		names[0] = name
	}
	c := &Config{
		includeSeen: make(map[string]struct{}),
	}
	errs := make([]error, 0, 8)
	for _, name := range names {
		c.read(log, fs, ConfigSource{Name: name}, &errs)
	}
	if len(errs) != 0 {
		return c, helpers.FoldErrors(errs)
	}
	c.Normalize()
	return c, c.Validate()
}

func MustReadConfig(log *log2.Log, fs FullReader, names ...string) *Config {
	c, err := ReadConfig(log, fs, names...)
	if err != nil {
		log.Fatal(errors.ErrorStack(err))
	}
	return c
}

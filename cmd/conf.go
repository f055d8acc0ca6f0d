package main

import (
	"fmt"
	"os"

	"github.com/goccy/go-yaml"
	"github.com/scitags/nlmsg/metrics"
	"github.com/scitags/nlmsg/netlink"
)

type Config struct {
	Socket   *netlink.Config         `yaml:"socket"`
	SockDiag *netlink.SockDiagConfig `yaml:"sockDiag"`
	Metrics  *metrics.Config         `yaml:"metrics"`
}

func (c Config) String() string {
	m, err := yaml.MarshalWithOptions(c, yaml.Indent(2), yaml.IndentSequence(true))
	if err != nil {
		return "marshalling error..."
	}
	return string(m)
}

func (c *Config) UnmarshalYAML(b []byte) error {
	// Needed to break recursive calls into UnmarshalYAML
	type config Config

	def := &config{}

	if err := yaml.Unmarshal(b, def); err != nil {
		return err
	}

	// The socket and sock_diag sections are always needed, so
	// fall back to their defaults if missing.
	if def.Socket == nil {
		s := netlink.DefaultConfig
		def.Socket = &s
	}
	if def.SockDiag == nil {
		sd := netlink.DefaultSockDiagConfig
		def.SockDiag = &sd
	}

	*c = Config(*def)

	return nil
}

// DefaultConf is used when no configuration file is given.
func DefaultConf() *Config {
	s, sd := netlink.DefaultConfig, netlink.DefaultSockDiagConfig
	return &Config{Socket: &s, SockDiag: &sd}
}

func ReadConf(path string) (*Config, error) {
	if path == "" {
		return DefaultConf(), nil
	}

	r, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading the configuration file: %w", err)
	}

	// Documents with no nodes (empty or comments only) never reach
	// UnmarshalYAML, so start off the defaults.
	conf := DefaultConf()
	if err := yaml.Unmarshal(r, conf); err != nil {
		return nil, fmt.Errorf("error unmarshaling the configuration: %w", err)
	}

	return conf, nil
}

package netlink

import (
	"fmt"
	"strconv"

	"github.com/goccy/go-yaml"
)

type Config struct {
	Protocol  Protocol `yaml:"protocol"`
	RxBuffer  int      `yaml:"rxBuffer"`
	TxBuffer  int      `yaml:"txBuffer"`
	LocalPort uint32   `yaml:"localPort"`
}

var DefaultConfig = Config{
	Protocol: Route,
	RxBuffer: DefaultBufferSize,
	TxBuffer: DefaultBufferSize,
}

func (c *Config) UnmarshalYAML(b []byte) error {
	// Needed to break recursive calls into UnmarshalYAML
	type config Config

	def := config(DefaultConfig)

	if err := yaml.Unmarshal(b, &def); err != nil {
		return err
	}

	*c = Config(def)

	return nil
}

// SockDiagConfig drives the sock_diag dumps issued by the CLI.
type SockDiagConfig struct {
	Family   uint8  `yaml:"family"`
	Protocol uint8  `yaml:"protocol"`
	Ext      uint8  `yaml:"ext"`
	State    uint32 `yaml:"state"`
}

var DefaultSockDiagConfig = SockDiagConfig{
	Family:   afInet,
	Protocol: ipprotoTCP,
	Ext: ExtFlag(INET_DIAG_MEMINFO) |
		ExtFlag(INET_DIAG_CONG) |
		ExtFlag(INET_DIAG_TOS) |
		ExtFlag(INET_DIAG_TCLASS) |
		ExtFlag(INET_DIAG_SHUTDOWN),
	State: TCP_ALL_FLAGS & ^(1 << uint(TCP_LISTEN)),
}

func (c *SockDiagConfig) UnmarshalYAML(b []byte) error {
	type config SockDiagConfig

	def := config(DefaultSockDiagConfig)

	if err := yaml.Unmarshal(b, &def); err != nil {
		return err
	}

	*c = SockDiagConfig(def)

	return nil
}

// Request turns the configuration into a sock_diag request matching the
// given ports, 0 meaning any.
func (c SockDiagConfig) Request(sport, dport uint16) SockDiagReq {
	return SockDiagReq{
		Family:   c.Family,
		Protocol: c.Protocol,
		Ext:      c.Ext,
		States:   c.State,
		ID:       InetDiagSockID{SPort: sport, DPort: dport},
	}
}

// UnmarshalYAML accepts both a family name such as "route" or
// "NETLINK_SOCK_DIAG" and its number.
func (p *Protocol) UnmarshalYAML(b []byte) error {
	var v any
	if err := yaml.Unmarshal(b, &v); err != nil {
		return err
	}
	raw := fmt.Sprint(v)

	if proto, ok := ParseProtocol(raw); ok {
		*p = proto
		return nil
	}

	n, err := strconv.Atoi(raw)
	if err != nil || !Protocol(n).Valid() {
		return fmt.Errorf("unknown netlink protocol %q", raw)
	}
	*p = Protocol(n)

	return nil
}

func (p Protocol) MarshalYAML() (any, error) {
	if _, ok := protocolName[p]; ok {
		return p.String(), nil
	}
	return int(p), nil
}

package main

import (
	"bytes"
	_ "embed"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-yaml"
	"github.com/mdlayher/netlink"
	"github.com/santhosh-tekuri/jsonschema/v6"
	nlmsg "github.com/scitags/nlmsg/netlink"
)

const schemaURL = "https://github.com/scitags/nlmsg/message-schema.json"

//go:embed message-schema.json
var rawSchema []byte

var messageSchema = func() *jsonschema.Schema {
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(rawSchema))
	if err != nil {
		panic(fmt.Sprintf("error parsing the embedded message schema: %v", err))
	}

	c := jsonschema.NewCompiler()
	if err := c.AddResource(schemaURL, doc); err != nil {
		panic(fmt.Sprintf("error loading the embedded message schema: %v", err))
	}

	return c.MustCompile(schemaURL)
}()

var (
	typeNames = map[string]netlink.HeaderType{
		"noop":                netlink.Noop,
		"error":               netlink.Error,
		"done":                netlink.Done,
		"overrun":             netlink.Overrun,
		"sock_diag_by_family": nlmsg.SOCK_DIAG_BY_FAMILY,
	}

	flagNames = map[string]netlink.HeaderFlags{
		"request":     netlink.Request,
		"multi":       netlink.Multi,
		"acknowledge": netlink.Acknowledge,
		"echo":        netlink.Echo,
		"root":        netlink.Root,
		"match":       netlink.Match,
		"atomic":      netlink.Atomic,
		"dump":        netlink.Dump,
		"replace":     netlink.Replace,
		"excl":        netlink.Excl,
		"create":      netlink.Create,
		"append":      netlink.Append,
	}
)

// MessageDesc is the YAML description of a message as taken by the encode
// and send subcommands:
//
//	type: 18
//	flags: [request, dump]
//	header: "0a000000"
//	attributes:
//	  - {type: 1, kind: string, value: eth0}
//	  - type: 2
//	    kind: nested
//	    attributes:
//	      - {type: 1, kind: u32, value: 0x10}
type MessageDesc struct {
	Type       any        `yaml:"type"`
	Flags      []string   `yaml:"flags"`
	Header     string     `yaml:"header"`
	Attributes []AttrDesc `yaml:"attributes"`
}

type AttrDesc struct {
	Type       uint16     `yaml:"type"`
	Kind       string     `yaml:"kind"`
	Value      any        `yaml:"value"`
	Attributes []AttrDesc `yaml:"attributes"`
}

// ParseMessageDesc validates b against the message schema before
// unmarshalling it.
func ParseMessageDesc(b []byte) (*MessageDesc, error) {
	js, err := yaml.YAMLToJSON(b)
	if err != nil {
		return nil, fmt.Errorf("error converting the description to JSON: %w", err)
	}

	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(js))
	if err != nil {
		return nil, fmt.Errorf("error unmarshalling the description: %w", err)
	}

	if err := messageSchema.Validate(inst); err != nil {
		return nil, fmt.Errorf("invalid message description: %w", err)
	}

	d := MessageDesc{}
	if err := yaml.Unmarshal(b, &d); err != nil {
		return nil, fmt.Errorf("error unmarshalling the description: %w", err)
	}

	return &d, nil
}

func (d *MessageDesc) HeaderType() (netlink.HeaderType, error) {
	if d.Type == nil {
		return 0, nil
	}
	if s, ok := d.Type.(string); ok {
		if t, ok := typeNames[strings.ToLower(s)]; ok {
			return t, nil
		}
	}

	n, err := toUint64(d.Type, 16)
	if err != nil {
		return 0, fmt.Errorf("bad message type %v: %w", d.Type, err)
	}
	return netlink.HeaderType(n), nil
}

func (d *MessageDesc) HeaderFlags() (netlink.HeaderFlags, error) {
	var flags netlink.HeaderFlags
	for _, f := range d.Flags {
		flag, ok := flagNames[strings.ToLower(f)]
		if !ok {
			return 0, fmt.Errorf("unknown header flag %q", f)
		}
		flags |= flag
	}
	return flags, nil
}

// Build turns the description into a message ready to be sent.
func (d *MessageDesc) Build() (*nlmsg.Message, error) {
	typ, err := d.HeaderType()
	if err != nil {
		return nil, err
	}
	flags, err := d.HeaderFlags()
	if err != nil {
		return nil, err
	}

	m := nlmsg.NewMessageWith(typ, flags)

	if d.Header != "" {
		hdr, err := decodeHex(d.Header)
		if err != nil {
			return nil, fmt.Errorf("bad family header: %w", err)
		}
		if err := m.Append(hdr); err != nil {
			return nil, err
		}
	}

	attrs, err := buildAttrs(d.Attributes)
	if err != nil {
		return nil, err
	}
	for _, a := range attrs {
		if err := m.Put(a.Type, a.Value); err != nil {
			return nil, fmt.Errorf("error putting attribute %d: %w", a.Type, err)
		}
	}

	return m, nil
}

func buildAttrs(descs []AttrDesc) ([]nlmsg.Attr, error) {
	attrs := make([]nlmsg.Attr, 0, len(descs))
	for i, d := range descs {
		v, err := d.value()
		if err != nil {
			return nil, fmt.Errorf("attribute %d (type %d): %w", i, d.Type, err)
		}
		attrs = append(attrs, nlmsg.Attr{Type: d.Type, Value: v})
	}
	return attrs, nil
}

func (d AttrDesc) value() (nlmsg.Value, error) {
	kind, ok := nlmsg.ParseKind(d.Kind)
	if !ok {
		return nil, fmt.Errorf("%w %q", nlmsg.ErrUnknownKind, d.Kind)
	}

	switch kind {
	case nlmsg.KindNested:
		children, err := buildAttrs(d.Attributes)
		if err != nil {
			return nil, err
		}
		return nlmsg.Nested(children), nil
	case nlmsg.KindFlag:
		if d.Value == nil {
			return nlmsg.Flag(true), nil
		}
		b, ok := d.Value.(bool)
		if !ok {
			return nil, fmt.Errorf("flag value %v is not a boolean", d.Value)
		}
		return nlmsg.Flag(b), nil
	case nlmsg.KindString:
		return nlmsg.String(fmt.Sprint(d.Value)), nil
	case nlmsg.KindBytes:
		s, ok := d.Value.(string)
		if !ok {
			return nil, fmt.Errorf("binary value %v is not a hex string", d.Value)
		}
		b, err := decodeHex(s)
		if err != nil {
			return nil, err
		}
		return nlmsg.Bytes(b), nil
	case nlmsg.KindMsecs:
		if s, ok := d.Value.(string); ok {
			dur, err := time.ParseDuration(s)
			if err != nil {
				return nil, err
			}
			return nlmsg.Msecs(dur), nil
		}
		n, err := toUint64(d.Value, 63)
		if err != nil {
			return nil, err
		}
		return nlmsg.Msecs(time.Duration(n) * time.Millisecond), nil
	}

	width := map[nlmsg.Kind]int{nlmsg.KindU8: 8, nlmsg.KindU16: 16, nlmsg.KindU32: 32, nlmsg.KindU64: 64}[kind]
	n, err := toUint64(d.Value, width)
	if err != nil {
		return nil, err
	}
	switch kind {
	case nlmsg.KindU8:
		return nlmsg.U8(n), nil
	case nlmsg.KindU16:
		return nlmsg.U16(n), nil
	case nlmsg.KindU32:
		return nlmsg.U32(n), nil
	default:
		return nlmsg.U64(n), nil
	}
}

// toUint64 accepts YAML integers as well as strings such as "0x1f", checking
// they fit in bits.
func toUint64(v any, bits int) (uint64, error) {
	var (
		n   uint64
		err error
	)

	switch x := v.(type) {
	case uint64:
		n = x
	case int64:
		if x < 0 {
			return 0, fmt.Errorf("negative value %d", x)
		}
		n = uint64(x)
	case int:
		if x < 0 {
			return 0, fmt.Errorf("negative value %d", x)
		}
		n = uint64(x)
	case float64:
		if x < 0 || x != float64(uint64(x)) {
			return 0, fmt.Errorf("value %v is not a natural number", x)
		}
		n = uint64(x)
	case string:
		n, err = strconv.ParseUint(x, 0, bits)
		if err != nil {
			return 0, err
		}
	default:
		return 0, fmt.Errorf("value %v is not an integer", v)
	}

	if bits < 64 && n >= 1<<bits {
		return 0, fmt.Errorf("value %d doesn't fit in %d bits", n, bits)
	}
	return n, nil
}

// decodeHex ignores whitespace and an optional 0x prefix.
func decodeHex(s string) ([]byte, error) {
	s = strings.Join(strings.Fields(s), "")
	s = strings.TrimPrefix(strings.ToLower(s), "0x")
	return hex.DecodeString(s)
}

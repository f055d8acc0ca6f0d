package netlink

import (
	"fmt"
	"log/slog"
)

// Policy tells Parse how to decode each attribute type, much like libnl's
// struct nla_policy arrays.
type Policy map[uint16]Rule

// Rule describes a single attribute type. Nested is only looked at when Kind
// is KindNested: children are then decoded according to it instead of being
// left as Bytes.
type Rule struct {
	Kind   Kind
	Nested Policy
}

// Parse decodes a whole attribute stream. Types missing from the policy are
// kept as Bytes. The first attribute failing to decode aborts the walk.
func Parse(b []byte, p Policy) ([]Attr, error) {
	it := NewIterator(b)

	attrs := []Attr{}
	for a, ok := it.Next(); ok; a, ok = it.Next() {
		attr, err := parseOne(a, p)
		if err != nil {
			return nil, fmt.Errorf("attribute %d: %w", a.Type(), err)
		}
		attrs = append(attrs, attr)
	}

	if it.Remaining() > 0 {
		slog.Debug("ignoring trailing bytes after the last attribute", "leftover", it.Remaining(), "nAttrs", len(attrs))
	}

	return attrs, nil
}

func parseOne(a Attribute, p Policy) (Attr, error) {
	rule, ok := p[a.Type()]
	if !ok {
		return a.Attr(KindBytes)
	}

	if rule.Kind != KindNested || rule.Nested == nil {
		return a.Attr(rule.Kind)
	}

	children, err := Parse(a.Bytes(), rule.Nested)
	if err != nil {
		return Attr{}, err
	}

	return Attr{Type: a.Type(), Value: Nested(children)}, nil
}

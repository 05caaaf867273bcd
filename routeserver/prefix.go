// SPDX-FileCopyrightText: 2025 Free Mobile
// SPDX-License-Identifier: AGPL-3.0-only

package routeserver

import (
	"fmt"
	"net/netip"
	"reflect"

	"github.com/go-viper/mapstructure/v2"

	"rsbuilder/common/helpers"
)

// PrefixEntry is an entry of a prefix list. When Exact is false, more
// specific prefixes are accepted, optionally restricted by GE and LE.
type PrefixEntry struct {
	Prefix  netip.Prefix `json:"prefix" yaml:"prefix"`
	Exact   bool         `json:"exact,omitempty" yaml:"exact,omitempty"`
	GE      int          `json:"ge,omitempty" yaml:"ge,omitempty"`
	LE      int          `json:"le,omitempty" yaml:"le,omitempty"`
	Comment string       `json:"comment,omitempty" yaml:"comment,omitempty"`
}

// Check verifies the consistency of GE and LE with the prefix length.
func (p PrefixEntry) Check() error {
	if !p.Prefix.IsValid() {
		return fmt.Errorf("invalid prefix %q", p.Prefix)
	}
	length := p.Prefix.Bits()
	maxLength := p.Prefix.Addr().BitLen()
	for _, bound := range []struct {
		name  string
		value int
	}{{"ge", p.GE}, {"le", p.LE}} {
		if bound.value == 0 {
			continue
		}
		if p.Exact {
			return fmt.Errorf("%s: %q cannot be used with an exact match", p.Prefix, bound.name)
		}
		if bound.value < length {
			return fmt.Errorf("%s: %q (%d) must be greater than or equal to the prefix length (%d)",
				p.Prefix, bound.name, bound.value, length)
		}
		if bound.value > maxLength {
			return fmt.Errorf("%s: %q (%d) must be lower than or equal to %d",
				p.Prefix, bound.name, bound.value, maxLength)
		}
	}
	if p.GE != 0 && p.LE != 0 && p.GE > p.LE {
		return fmt.Errorf("%s: \"ge\" (%d) must be lower than or equal to \"le\" (%d)",
			p.Prefix, p.GE, p.LE)
	}
	return nil
}

// Covers tells if the provided prefix is matched by the entry.
func (p PrefixEntry) Covers(other netip.Prefix) bool {
	if other.Addr().Is4() != p.Prefix.Addr().Is4() || !p.Prefix.Contains(other.Addr()) {
		return false
	}
	if other.Bits() < p.Prefix.Bits() {
		return false
	}
	if p.Exact {
		return other.Bits() == p.Prefix.Bits()
	}
	if p.GE != 0 && other.Bits() < p.GE {
		return false
	}
	if p.LE != 0 && other.Bits() > p.LE {
		return false
	}
	return true
}

// PrefixEntryUnmarshallerHook accepts the split notation for a prefix list
// entry ("prefix: 192.0.2.0" and "length: 24") in addition to the CIDR
// notation.
func PrefixEntryUnmarshallerHook() mapstructure.DecodeHookFunc {
	return func(from, to reflect.Value) (any, error) {
		from = helpers.ElemOrIdentity(from)
		to = helpers.ElemOrIdentity(to)
		if to.Type() != reflect.TypeOf(PrefixEntry{}) || from.Kind() != reflect.Map {
			return from.Interface(), nil
		}
		var prefixKey, lengthKey *reflect.Value
		keys := from.MapKeys()
		for i, k := range keys {
			k = helpers.ElemOrIdentity(k)
			if k.Kind() != reflect.String {
				return from.Interface(), nil
			}
			switch {
			case helpers.MapStructureMatchName(k.String(), "Prefix"):
				prefixKey = &keys[i]
			case helpers.MapStructureMatchName(k.String(), "Length"):
				lengthKey = &keys[i]
			}
		}
		if lengthKey == nil {
			return from.Interface(), nil
		}
		if prefixKey == nil {
			return nil, fmt.Errorf("%q without %q", "length", "prefix")
		}
		prefix := helpers.ElemOrIdentity(from.MapIndex(*prefixKey))
		length := helpers.ElemOrIdentity(from.MapIndex(*lengthKey))
		from.SetMapIndex(*prefixKey, reflect.ValueOf(fmt.Sprintf("%v/%v", prefix.Interface(), length.Interface())))
		from.SetMapIndex(*lengthKey, reflect.Value{})
		return from.Interface(), nil
	}
}

func init() {
	helpers.RegisterMapstructureUnmarshallerHook(PrefixEntryUnmarshallerHook())
}

// SPDX-FileCopyrightText: 2022 Free Mobile
// SPDX-License-Identifier: AGPL-3.0-only

package helpers

import (
	"net/netip"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Validate is a validator instance to be used everywhere.
var Validate *validator.Validate

// rpslSetName matches one component of an AS-SET name: either an AS number or
// a set name ("AS-" followed by letters, digits, "_" and "-", ending with a
// letter or a digit).
var rpslSetName = regexp.MustCompile(`^(?:AS\d+|AS-[A-Z0-9_\-]*[A-Z0-9])$`)

// IsASSetName tells if the provided string is a valid AS-SET name, including
// hierarchical names ("AS65000:AS-CUSTOMERS"). When requireSet is true, at
// least one component should be a set name.
func IsASSetName(name string, requireSet bool) bool {
	if name == "" {
		return false
	}
	found := false
	for _, part := range strings.Split(strings.ToUpper(name), ":") {
		if !rpslSetName.MatchString(part) {
			return false
		}
		if strings.HasPrefix(part, "AS-") {
			found = true
		}
	}
	return found || !requireSet
}

// isASSet validates an AS-SET name or an AS number (ASxxx).
func isASSet(fl validator.FieldLevel) bool {
	return IsASSetName(fl.Field().String(), false)
}

// netipValidation validates netip.Addr and netip.Prefix by turning them into
// strings (or nil when they are not set).
func netipValidation(fl reflect.Value) any {
	switch netipValue := fl.Interface().(type) {
	case netip.Addr:
		if (netipValue == netip.Addr{}) {
			return nil
		}
		return netipValue.String()
	case netip.Prefix:
		if (netipValue == netip.Prefix{}) {
			return nil
		}
		return netipValue.String()
	}
	return nil
}

func init() {
	Validate = validator.New()
	Validate.RegisterValidation("asset", isASSet)
	Validate.RegisterCustomTypeFunc(netipValidation, netip.Addr{}, netip.Prefix{})
}

// SPDX-FileCopyrightText: 2022 Free Mobile
// SPDX-License-Identifier: AGPL-3.0-only

package helpers

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/go-viper/mapstructure/v2"
)

var mapstructureUnmarshallerHookFuncs = []mapstructure.DecodeHookFunc{}

// RegisterMapstructureUnmarshallerHook registers a new decoder hook for
// mapstructure. This should only be done during init.
func RegisterMapstructureUnmarshallerHook(hook mapstructure.DecodeHookFunc) {
	mapstructureUnmarshallerHookFuncs = append(mapstructureUnmarshallerHookFuncs, hook)
}

// GetMapStructureDecoderConfig returns a decoder config for
// mapstructure with all registered hooks as well as appropriate
// default configuration.
func GetMapStructureDecoderConfig(config any, hooks ...mapstructure.DecodeHookFunc) *mapstructure.DecoderConfig {
	return &mapstructure.DecoderConfig{
		Result:           config,
		ErrorUnused:      true,
		WeaklyTypedInput: true,
		MatchName:        MapStructureMatchName,
		DecodeHook: ProtectedDecodeHookFunc(
			mapstructure.ComposeDecodeHookFunc(
				mapstructure.ComposeDecodeHookFunc(hooks...),
				mapstructure.ComposeDecodeHookFunc(mapstructureUnmarshallerHookFuncs...),
				mapstructure.TextUnmarshallerHookFunc(),
				mapstructure.StringToTimeDurationHookFunc(),
				stringToSliceHookFunc(","),
			),
		),
	}
}

// stringToSliceHookFunc splits a string into a slice of strings when
// the target is a slice. Unlike mapstructure's version, this also applies
// to slices of other types (like []uint32), each element being decoded
// from its string. Byte slices are left alone.
func stringToSliceHookFunc(sep string) mapstructure.DecodeHookFunc {
	return func(from, to reflect.Type, data any) (any, error) {
		if from.Kind() != reflect.String || to.Kind() != reflect.Slice || to.Elem().Kind() == reflect.Uint8 {
			return data, nil
		}
		raw := data.(string)
		if raw == "" {
			return []string{}, nil
		}
		return strings.Split(raw, sep), nil
	}
}

// ProtectedDecodeHookFunc wraps a DecodeHookFunc to recover and returns an error on panic.
func ProtectedDecodeHookFunc(hook mapstructure.DecodeHookFunc) mapstructure.DecodeHookFunc {
	return func(from, to reflect.Value) (v any, err error) {
		defer func() {
			if r := recover(); r != nil {
				v = nil
				err = fmt.Errorf("internal error while parsing: %s", r)
			}
		}()
		return mapstructure.DecodeHookExec(hook, from, to)
	}
}

// MapStructureMatchName tells if map key and field names are equal.
func MapStructureMatchName(mapKey, fieldName string) bool {
	key := strings.ToLower(strings.ReplaceAll(mapKey, "-", ""))
	field := strings.ToLower(fieldName)
	return key == field
}

// DefaultValuesUnmarshallerHook adds default values from the provided
// configuration. For each missing non-default key, it will add them.
func DefaultValuesUnmarshallerHook[Configuration any](defaultConfiguration Configuration) mapstructure.DecodeHookFunc {
	return func(from, to reflect.Value) (any, error) {
		from = ElemOrIdentity(from)
		to = ElemOrIdentity(to)
		if to.Type() != reflect.TypeOf(defaultConfiguration) {
			return from.Interface(), nil
		}
		if from.Kind() != reflect.Map {
			return from.Interface(), nil
		}

		// Which field is not to the default value in the default configuration?
		found := map[string]bool{}
		defaultV := reflect.ValueOf(defaultConfiguration)
		for i := range defaultV.NumField() {
			if !defaultV.Field(i).IsZero() {
				found[defaultV.Type().Field(i).Name] = false
			}
		}
		mapKeys := from.MapKeys()
		for _, key := range mapKeys {
			var keyStr string
			if ElemOrIdentity(key).Kind() == reflect.String {
				keyStr = ElemOrIdentity(key).String()
			} else {
				continue
			}
			for fieldName := range found {
				if MapStructureMatchName(keyStr, fieldName) {
					found[fieldName] = true
				}
			}
		}
		for fieldName := range found {
			if !found[fieldName] {
				from.SetMapIndex(reflect.ValueOf(fieldName), defaultV.FieldByName(fieldName))
			}
		}
		return from.Interface(), nil
	}
}

// RenameKeyUnmarshallerHook move a configuration setting from one place to another.
func RenameKeyUnmarshallerHook[Configuration any](zeroConfiguration Configuration, fromLabel, toLabel string) mapstructure.DecodeHookFunc {
	return func(from, to reflect.Value) (any, error) {
		if from.Kind() != reflect.Map || from.IsNil() || to.Type() != reflect.TypeOf(zeroConfiguration) {
			return from.Interface(), nil
		}

		// bgpq3-path -> path
		var fromKey, toKey *reflect.Value
		fromMap := from.MapKeys()
		for i, k := range fromMap {
			k = ElemOrIdentity(k)
			if k.Kind() != reflect.String {
				return from.Interface(), nil
			}
			if MapStructureMatchName(k.String(), fromLabel) {
				fromKey = &fromMap[i]
			} else if MapStructureMatchName(k.String(), toLabel) {
				toKey = &fromMap[i]
			}
		}
		if fromKey != nil && toKey != nil {
			return nil, fmt.Errorf("cannot have both %q and %q", fromKey.String(), toKey.String())
		}
		if fromKey != nil {
			from.SetMapIndex(reflect.ValueOf(toLabel), from.MapIndex(*fromKey))
			from.SetMapIndex(*fromKey, reflect.Value{})
		}

		return from.Interface(), nil
	}
}

// SPDX-FileCopyrightText: 2025 Free Mobile
// SPDX-License-Identifier: AGPL-3.0-only

package whoisdump

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/netip"
	"strconv"
	"strings"

	"github.com/hashicorp/go-version"
)

// Records maps origin ASNs to the prefixes they are authorized to
// announce.
type Records map[uint32][]netip.Prefix

func (r Records) add(asn uint32, prefix netip.Prefix) {
	for _, p := range r[asn] {
		if p == prefix {
			return
		}
	}
	r[asn] = append(r[asn], prefix)
}

// Len returns the number of route objects.
func (r Records) Len() int {
	count := 0
	for _, prefixes := range r {
		count += len(prefixes)
	}
	return count
}

var maxARINSchema = version.Must(version.NewVersion("0.2"))

type arinRecord struct {
	OriginAS *string `json:"originas"`
	Prefix   *string `json:"prefix"`
}

// parseOriginAS parses an "AS<n>" string.
func parseOriginAS(originAS string) (uint32, error) {
	if !strings.HasPrefix(originAS, "AS") {
		return 0, errors.New("origin AS must start with 'AS'")
	}
	asn, err := strconv.ParseUint(originAS[2:], 10, 32)
	if err != nil {
		return 0, errors.New("origin AS must be in 'AS<n>' format")
	}
	return uint32(asn), nil
}

func parsePrefix(prefix string) (netip.Prefix, error) {
	p, err := netip.ParsePrefix(strings.TrimSpace(prefix))
	if err != nil {
		return netip.Prefix{}, fmt.Errorf("invalid prefix: %s - %w", prefix, err)
	}
	return p.Masked(), nil
}

// parseARIN parses the ARIN bulk whois dump.
func parseARIN(raw []byte) (Records, error) {
	var dump struct {
		JSONSchema   *string                    `json:"json_schema"`
		Source       *string                    `json:"source"`
		WhoisRecords map[string]json.RawMessage `json:"whois_records"`
	}
	if err := json.Unmarshal(raw, &dump); err != nil {
		return nil, fmt.Errorf("cannot parse JSON: %w", err)
	}
	if dump.JSONSchema == nil {
		return nil, errors.New("'json_schema' key is missing")
	}
	schema, err := version.NewVersion(*dump.JSONSchema)
	if err != nil || schema.GreaterThanOrEqual(maxARINSchema) {
		return nil, fmt.Errorf("unsupported JSON schema version: %s", *dump.JSONSchema)
	}
	if dump.Source == nil {
		return nil, errors.New("'source' key is missing")
	}
	if *dump.Source != "ARIN-WHOIS" {
		return nil, fmt.Errorf("unsupported source: %s", *dump.Source)
	}
	if dump.WhoisRecords == nil {
		return nil, errors.New("'whois_records' key is missing")
	}
	_, hasV4 := dump.WhoisRecords["v4"]
	_, hasV6 := dump.WhoisRecords["v6"]
	if !hasV4 && !hasV6 {
		return nil, errors.New("'v4' and 'v6' lists missing")
	}

	records := Records{}
	for _, family := range []string{"v4", "v6"} {
		content, ok := dump.WhoisRecords[family]
		if !ok {
			continue
		}
		var list []json.RawMessage
		if err := json.Unmarshal(content, &list); err != nil {
			return nil, fmt.Errorf("'%s': a list was expected", family)
		}
		for _, item := range list {
			var record arinRecord
			if err := json.Unmarshal(item, &record); err != nil {
				return nil, fmt.Errorf("invalid record '%s': a dict was expected", item)
			}
			if record.OriginAS == nil {
				return nil, fmt.Errorf("invalid record '%s': 'originas' key is missing", item)
			}
			asn, err := parseOriginAS(*record.OriginAS)
			if err != nil {
				return nil, fmt.Errorf("invalid record '%s': %w", item, err)
			}
			if record.Prefix == nil {
				return nil, fmt.Errorf("invalid record '%s': 'prefix' key is missing", item)
			}
			prefix, err := parsePrefix(*record.Prefix)
			if err != nil {
				return nil, fmt.Errorf("invalid record '%s': %w", item, err)
			}
			records.add(asn, prefix)
		}
	}
	return records, nil
}

// parseRegistroBR parses the Registro.br whois dump. Each line is
// "AS<n>|<owner>|<id>|<prefix>|<prefix>...".
func parseRegistroBR(raw []byte) (Records, error) {
	records := Records{}
	scanner := bufio.NewScanner(bytes.NewReader(raw))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if !strings.Contains(line, "|") {
			return nil, fmt.Errorf("invalid record '%s': unknown record format, missing field separator ('|')", line)
		}
		fields := strings.Split(line, "|")
		if len(fields) < 3 {
			return nil, fmt.Errorf("invalid record '%s': unknown record format, less than 3 fields found", line)
		}
		asn, err := parseOriginAS(fields[0])
		if err != nil {
			return nil, fmt.Errorf("invalid record '%s': %w", line, err)
		}
		for _, field := range fields[3:] {
			prefix, err := parsePrefix(field)
			if err != nil {
				return nil, fmt.Errorf("invalid record '%s': %w", line, err)
			}
			records.add(asn, prefix)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return records, nil
}

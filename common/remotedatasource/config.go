// SPDX-FileCopyrightText: 2024 Free Mobile
// SPDX-License-Identifier: AGPL-3.0-only

package remotedatasource

import (
	"time"

	"github.com/itchyny/gojq"

	"rsbuilder/common/helpers"
)

// Source defines a remote JSON document.
type Source struct {
	// URL is the URL to fetch. It should provide a JSON document.
	URL string `validate:"url"`
	// Method defines which method to use (GET or POST)
	Method string `validate:"oneof=GET POST"`
	// Headers defines additional headers to send
	Headers map[string]string
	// Timeout tells the maximum time a single request should take
	Timeout time.Duration `validate:"min=1s"`
	// Transform is a jq string to transform the received JSON
	// data into a list of results.
	Transform TransformQuery
	// TLS defines the TLS configuration to reach the source.
	TLS helpers.TLSConfiguration
	// Retries is the number of retries when the source answers with
	// a temporary error (HTTP 429 or 5xx).
	Retries uint64
	// RetryInterval is the initial interval between two retries. It
	// increases exponentially.
	RetryInterval time.Duration `validate:"min=0"`
}

// TransformQuery represents a jq query to transform data.
type TransformQuery struct {
	*gojq.Query
}

// UnmarshalText parses a jq query.
func (jq *TransformQuery) UnmarshalText(text []byte) error {
	q, err := gojq.Parse(string(text))
	if err != nil {
		return err
	}
	*jq = TransformQuery{q}
	return nil
}

// String turns a jq query into a string.
func (jq TransformQuery) String() string {
	if jq.Query != nil {
		return jq.Query.String()
	}
	return "."
}

// MarshalText turns a jq query into a bytearray.
func (jq TransformQuery) MarshalText() ([]byte, error) {
	return []byte(jq.String()), nil
}

// MustParseTransformQuery parses a jq query and panics on error. It
// should only be used for default configurations and tests.
func MustParseTransformQuery(src string) TransformQuery {
	var q TransformQuery
	if err := q.UnmarshalText([]byte(src)); err != nil {
		panic(err)
	}
	return q
}

// DefaultSourceConfiguration is the default configuration for a source.
func DefaultSourceConfiguration() Source {
	return Source{
		Method:        "GET",
		Timeout:       time.Minute,
		Retries:       3,
		RetryInterval: 5 * time.Second,
	}
}

func init() {
	helpers.RegisterMapstructureUnmarshallerHook(
		helpers.DefaultValuesUnmarshallerHook(DefaultSourceConfiguration()))
}

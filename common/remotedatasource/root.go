// SPDX-FileCopyrightText: 2024 Free Mobile
// SPDX-License-Identifier: AGPL-3.0-only

// Package remotedatasource fetches remote JSON documents, transforms
// them with a jq query and decodes the results into structures.
package remotedatasource

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"reflect"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-playground/validator/v10"
	"github.com/go-viper/mapstructure/v2"
	"github.com/itchyny/gojq"
	"golang.org/x/sync/singleflight"

	"rsbuilder/common/helpers"
	"rsbuilder/common/reporter"
)

var (
	// ErrBuildRequest is triggered when we cannot build an HTTP request
	ErrBuildRequest = errors.New("cannot build HTTP request")
	// ErrFetchDataSource is triggered when we cannot fetch the data source
	ErrFetchDataSource = errors.New("cannot fetch data source")
	// ErrNotFound is triggered when the source answers with a 404
	ErrNotFound = errors.New("resource not found")
	// ErrStatusCode is triggered if status code is not 200
	ErrStatusCode = errors.New("unexpected HTTP status code")
	// ErrJSONDecode is triggered for any decoding issue
	ErrJSONDecode = errors.New("cannot decode JSON")
	// ErrMapResult is triggered when we cannot map the JSON result to the expected structure
	ErrMapResult = errors.New("cannot map JSON")
	// ErrValidate is triggered when there is a check failure
	ErrValidate = errors.New("cannot validate checks")
	// ErrJQExecute is triggered when we cannot execute the jq filter
	ErrJQExecute = errors.New("cannot execute jq filter")
	// ErrEmpty is triggered if the results are empty
	ErrEmpty = errors.New("empty result")
)

// Fetcher retrieves remote data sources and decodes them to a list of T.
type Fetcher[T any] struct {
	r        *reporter.Reporter
	dataType string
	group    singleflight.Group

	metrics struct {
		requests *reporter.CounterVec
		retries  *reporter.CounterVec
	}
}

// New creates a new remote data source fetcher. The data type is only
// used for logs and metrics.
func New[T any](r *reporter.Reporter, dataType string) *Fetcher[T] {
	f := Fetcher[T]{
		r:        r,
		dataType: dataType,
	}
	f.metrics.requests = r.CounterVec(
		reporter.CounterOpts{
			Name: "requests_total",
			Help: "Number of requests to remote data sources.",
		},
		[]string{"type", "result"})
	f.metrics.retries = r.CounterVec(
		reporter.CounterOpts{
			Name: "retries_total",
			Help: "Number of retried requests to remote data sources.",
		},
		[]string{"type"})
	return &f
}

// Fetch retrieves data from a configured Source, with the provided
// query parameters, and returns a list of results decoded from JSON
// to the generic type. Concurrent fetches of the same URL are
// collapsed into one request. Errors are returned without details,
// the details are logged.
func (f *Fetcher[T]) Fetch(ctx context.Context, source Source, params url.Values) ([]T, error) {
	target, err := url.Parse(source.URL)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBuildRequest, err)
	}
	if len(params) > 0 {
		query := target.Query()
		for key, values := range params {
			for _, value := range values {
				query.Add(key, value)
			}
		}
		target.RawQuery = query.Encode()
	}
	key := fmt.Sprintf("%s %s", source.Method, target)
	results, err, _ := f.group.Do(key, func() (any, error) {
		return f.fetch(ctx, source, target.String())
	})
	if err != nil {
		f.metrics.requests.WithLabelValues(f.dataType, resultLabel(err)).Inc()
		return nil, err
	}
	f.metrics.requests.WithLabelValues(f.dataType, "ok").Inc()
	return results.([]T), nil
}

func resultLabel(err error) string {
	switch {
	case errors.Is(err, ErrNotFound):
		return "not-found"
	case errors.Is(err, ErrEmpty):
		return "empty"
	default:
		return "error"
	}
}

// retryableError is an HTTP status code worth a retry.
type retryableError struct {
	status int
}

func (e retryableError) Error() string {
	return "HTTP status " + strconv.Itoa(e.status)
}

func (f *Fetcher[T]) fetch(ctx context.Context, source Source, target string) ([]T, error) {
	l := f.r.With().Str("type", f.dataType).Str("url", target).Logger()
	l.Debug().Msg("fetch data source")

	tlsConfig, err := source.TLS.MakeTLSConfig()
	if err != nil {
		l.Err(err).Msg("unable to build TLS configuration")
		return nil, ErrBuildRequest
	}
	client := &http.Client{
		Timeout: source.Timeout,
		Transport: &http.Transport{
			Proxy:           http.ProxyFromEnvironment,
			TLSClientConfig: tlsConfig,
		},
	}

	var got any
	operation := func() error {
		req, err := http.NewRequestWithContext(ctx, source.Method, target, nil)
		if err != nil {
			l.Err(err).Msg("unable to build new request")
			return backoff.Permanent(ErrBuildRequest)
		}
		for headerName, headerValue := range source.Headers {
			req.Header.Set(headerName, headerValue)
		}
		req.Header.Set("accept", "application/json")
		resp, err := client.Do(req)
		if err != nil {
			l.Err(err).Msg("unable to fetch data source")
			if ctx.Err() != nil {
				return backoff.Permanent(ErrFetchDataSource)
			}
			return ErrFetchDataSource
		}
		defer resp.Body.Close()
		switch {
		case resp.StatusCode == http.StatusNotFound:
			io.Copy(io.Discard, resp.Body)
			return backoff.Permanent(ErrNotFound)
		case resp.StatusCode == http.StatusTooManyRequests, resp.StatusCode >= 500:
			io.Copy(io.Discard, resp.Body)
			l.Warn().Int("status", resp.StatusCode).Msg("temporary error from data source")
			return retryableError{resp.StatusCode}
		case resp.StatusCode != http.StatusOK:
			l.Error().Int("status", resp.StatusCode).Msg("unexpected status code")
			return backoff.Permanent(ErrStatusCode)
		}
		reader := bufio.NewReader(resp.Body)
		decoder := json.NewDecoder(reader)
		if err := decoder.Decode(&got); err != nil {
			l.Err(err).Msg("cannot decode JSON output")
			return backoff.Permanent(ErrJSONDecode)
		}
		return nil
	}
	expBackoff := backoff.NewExponentialBackOff()
	expBackoff.InitialInterval = source.RetryInterval
	expBackoff.MaxElapsedTime = 0
	policy := backoff.WithContext(backoff.WithMaxRetries(expBackoff, source.Retries), ctx)
	notify := func(error, time.Duration) {
		f.metrics.retries.WithLabelValues(f.dataType).Inc()
	}
	if err := backoff.RetryNotify(operation, policy, notify); err != nil {
		var retryable retryableError
		if errors.As(err, &retryable) {
			return nil, ErrStatusCode
		}
		return nil, err
	}

	query := source.Transform.Query
	if query == nil {
		query, _ = gojq.Parse(".")
	}
	var results []T
	iter := query.RunWithContext(ctx, got)
	for idx := 0; ; idx++ {
		v, ok := iter.Next()
		if !ok {
			break
		}
		if err, ok := v.(error); ok {
			l.Err(err).Msg("cannot execute jq filter")
			return nil, ErrJQExecute
		}
		var result T
		config := &mapstructure.DecoderConfig{
			Metadata:         nil,
			Result:           &result,
			WeaklyTypedInput: true,
			MatchName:        helpers.MapStructureMatchName,
			DecodeHook:       helpers.ProtectedDecodeHookFunc(mapstructure.TextUnmarshallerHookFunc()),
		}
		decoder, err := mapstructure.NewDecoder(config)
		if err != nil {
			panic(err)
		}
		if err := decoder.Decode(v); err != nil {
			l.Err(err).Int("index", idx).Msg("cannot map returned value")
			return nil, ErrMapResult
		}
		if reflect.TypeFor[T]().Kind() == reflect.Struct {
			if err := helpers.Validate.StructCtx(ctx, result); err != nil {
				switch err := err.(type) {
				case validator.ValidationErrors:
					l.Err(err).Int("index", idx).Msgf("validation errors on %#v", result)
					return nil, ErrValidate
				default:
					l.Err(err).Int("index", idx).Msgf("unable to validate on %#v", result)
					return nil, ErrValidate
				}
			}
		}
		results = append(results, result)
	}
	if len(results) == 0 {
		l.Debug().Msg("empty result")
		return nil, ErrEmpty
	}
	return results, nil
}

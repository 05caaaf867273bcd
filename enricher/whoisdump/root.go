// SPDX-FileCopyrightText: 2025 Free Mobile
// SPDX-License-Identifier: AGPL-3.0-only

// Package whoisdump retrieves bulk whois dumps from ARIN and Registro.br.
// They are used as route objects for origin ASNs not covered by IRRs.
package whoisdump

import (
	"bytes"
	"compress/bzip2"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"rsbuilder/common/cache"
	"rsbuilder/common/reporter"
)

// ErrDump is returned when a dump cannot be retrieved or processed.
var ErrDump = errors.New("whois database dump error")

// Dump is one of the supported dumps.
type Dump int

const (
	// ARIN is the ARIN bulk whois dump.
	ARIN Dump = iota
	// RegistroBR is the Registro.br whois dump.
	RegistroBR
)

// String returns the name of a dump.
func (d Dump) String() string {
	switch d {
	case ARIN:
		return "ARIN"
	case RegistroBR:
		return "Registro.br"
	}
	return "unknown"
}

func (d Dump) category() string {
	if d == ARIN {
		return cache.CategoryARINWhoisDump
	}
	return cache.CategoryRegistroBRDump
}

func (d Dump) parse(raw []byte) (Records, error) {
	if d == ARIN {
		return parseARIN(raw)
	}
	return parseRegistroBR(raw)
}

// Component represents the whois dumps enricher.
type Component struct {
	r      *reporter.Reporter
	d      *Dependencies
	config Configuration

	metrics struct {
		records  *reporter.GaugeVec
		bypasses *reporter.CounterVec
	}
}

// Dependencies define the dependencies of the whois dumps enricher.
type Dependencies struct {
	Cache      *cache.Component
	HTTPClient *http.Client
}

// New creates a new whois dumps enricher.
func New(r *reporter.Reporter, configuration Configuration, dependencies Dependencies) (*Component, error) {
	if dependencies.Cache == nil {
		return nil, errors.New("whoisdump: a cache is required")
	}
	if dependencies.HTTPClient == nil {
		dependencies.HTTPClient = &http.Client{
			Timeout: configuration.Timeout,
			Transport: &http.Transport{
				Proxy: http.ProxyFromEnvironment,
			},
		}
	}
	c := Component{
		r:      r,
		d:      &dependencies,
		config: configuration,
	}
	c.metrics.records = r.GaugeVec(
		reporter.GaugeOpts{
			Name: "records",
			Help: "Number of route objects retained from a dump.",
		},
		[]string{"dump"})
	c.metrics.bypasses = r.CounterVec(
		reporter.CounterOpts{
			Name: "cache_bypasses_total",
			Help: "Number of cached dumps discarded because they could not be processed.",
		},
		[]string{"dump"})
	return &c, nil
}

func (c *Component) source(dump Dump) string {
	if dump == ARIN {
		return c.config.ARINSource
	}
	return c.config.RegistroBRSource
}

// Load returns the route objects of a dump. When origins is not nil,
// only the route objects of these origin ASNs are kept.
func (c *Component) Load(ctx context.Context, dump Dump, origins map[uint32]bool) (Records, error) {
	ref := cache.Key(dump.category())
	var raw string
	found, negative := c.d.Cache.LoadInto(ref, &raw)
	fromCache := found && !negative

	if !fromCache {
		content, err := c.retrieve(ctx, dump)
		if err != nil {
			return nil, err
		}
		raw = string(content)
	}
	c.r.Debug().Str("dump", dump.String()).Msg("processing whois database dump")
	records, err := dump.parse([]byte(raw))
	if err != nil && fromCache {
		c.r.Warn().Msgf("An error occurred while processing the %s Whois database dump: %s - trying to bypass the cache",
			dump, err)
		c.metrics.bypasses.WithLabelValues(dump.String()).Inc()
		fromCache = false
		content, err2 := c.retrieve(ctx, dump)
		if err2 != nil {
			return nil, err2
		}
		raw = string(content)
		records, err = dump.parse(content)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: an error occurred while processing the %s Whois database dump: %w",
			ErrDump, dump, err)
	}
	if !fromCache {
		if err := c.d.Cache.Save(ref, raw); err != nil {
			return nil, err
		}
	}

	if origins != nil {
		for asn := range records {
			if !origins[asn] {
				delete(records, asn)
			}
		}
	}
	c.metrics.records.WithLabelValues(dump.String()).Set(float64(records.Len()))
	c.r.Info().
		Str("dump", dump.String()).
		Int("asns", len(records)).
		Int("records", records.Len()).
		Msg("whois database dump loaded")
	return records, nil
}

// retrieve gets the raw content of a dump from an URL or a file.
func (c *Component) retrieve(ctx context.Context, dump Dump) ([]byte, error) {
	source := c.source(dump)
	var (
		content []byte
		err     error
	)
	lower := strings.ToLower(source)
	if strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://") {
		c.r.Debug().Str("url", source).Msgf("downloading %s Whois DB dump", dump)
		content, err = c.download(ctx, source)
		if err != nil {
			return nil, fmt.Errorf("%w: error while retrieving %s Whois DB dump from %s: %w",
				ErrDump, dump, source, err)
		}
	} else {
		c.r.Debug().Str("path", source).Msgf("loading %s Whois DB dump", dump)
		content, err = os.ReadFile(source)
		if err != nil {
			return nil, fmt.Errorf("%w: error while reading %s Whois DB dump from %s: %w",
				ErrDump, dump, source, err)
		}
	}
	if strings.HasSuffix(lower, ".bz2") {
		content, err = io.ReadAll(bzip2.NewReader(bytes.NewReader(content)))
		if err != nil {
			return nil, fmt.Errorf("%w: an error occurred while decompressing %s Whois DB BZ2 file: %w",
				ErrDump, dump, err)
		}
	}
	return content, nil
}

// retryableStatus is an HTTP status code worth a retry.
type retryableStatus int

func (s retryableStatus) Error() string {
	return fmt.Sprintf("HTTP status %d", int(s))
}

func (c *Component) download(ctx context.Context, url string) ([]byte, error) {
	var content []byte
	operation := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return backoff.Permanent(err)
		}
		resp, err := c.d.HTTPClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(err)
			}
			return err
		}
		defer resp.Body.Close()
		switch {
		case resp.StatusCode == http.StatusTooManyRequests, resp.StatusCode >= 500:
			io.Copy(io.Discard, resp.Body)
			return retryableStatus(resp.StatusCode)
		case resp.StatusCode != http.StatusOK:
			io.Copy(io.Discard, resp.Body)
			return backoff.Permanent(fmt.Errorf("unexpected HTTP status %d", resp.StatusCode))
		}
		content, err = io.ReadAll(resp.Body)
		return err
	}
	expBackoff := backoff.NewExponentialBackOff()
	expBackoff.InitialInterval = c.config.RetryInterval
	expBackoff.MaxElapsedTime = 0
	policy := backoff.WithContext(backoff.WithMaxRetries(expBackoff, c.config.Retries), ctx)
	notify := func(err error, next time.Duration) {
		c.r.Warn().Err(err).Str("url", url).Msgf("temporary error, retrying in %s", next)
	}
	if err := backoff.RetryNotify(operation, policy, notify); err != nil {
		return nil, err
	}
	return content, nil
}

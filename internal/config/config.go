// Copyright 2024 Canonical Ltd.
// See LICENSE file for licensing details.

// Package config defines the charm configuration relayed to the content
// cache, and its validation rules. A Configuration value only exists in
// validated form: New is the sole constructor, and every failure it
// returns carries a message suitable for a blocked status.
package config

import (
	"encoding/json"
	"net/netip"
	"regexp"
	"strconv"
	"strings"

	"github.com/juju/collections/transform"
	"github.com/juju/errors"
)

// Charm configuration option names. The integration data uses the same
// keys, so the principal charm can consume the payload without a mapping
// table.
const (
	HostnameKey            = "hostname"
	PathKey                = "path"
	BackendsKey            = "backends"
	ProtocolKey            = "protocol"
	BackendsPathKey        = "backends_path"
	HealthCheckPathKey     = "health_check_path"
	HealthCheckIntervalKey = "health_check_interval"
	ProxyCacheValidKey     = "proxy_cache_valid"
)

// Protocol is the scheme used to request the backends.
type Protocol string

const (
	ProtocolHTTP  Protocol = "http"
	ProtocolHTTPS Protocol = "https"
)

var (
	// A hostname segment is 1-63 alphanumeric or hyphen characters and
	// must not start or end with a hyphen.
	validHostnameSegment = regexp.MustCompile(`^(?i)[a-z0-9]([a-z0-9-]{0,61}[a-z0-9])?$`)

	// Valid characters for a location path are `/` plus the RFC 3986
	// pchar set: https://datatracker.ietf.org/doc/html/rfc3986#section-3.3
	validPath = regexp.MustCompile(`^(?i)[/a-z0-9.\-_~!$&'()*+,;=:@]+$`)
)

// Configuration holds one validated set of virtual host configuration for
// the content cache.
type Configuration struct {
	// Hostname is the hostname of the virtual host.
	Hostname string

	// Path is the location path served by the virtual host.
	Path string

	// Backends are the addresses of the servers to proxy to.
	Backends []netip.Addr

	// Protocol is the scheme used to request the backends.
	Protocol Protocol

	// BackendsPath is the path on the backends to proxy to.
	BackendsPath string

	// HealthCheckPath is the path on the backends probed for health.
	HealthCheckPath string

	// HealthCheckInterval is the time between health checks, in
	// milliseconds.
	HealthCheckInterval int

	// ProxyCacheValid holds nginx proxy_cache_valid directives, each of
	// the form "<code> [<code>...] <time>".
	ProxyCacheValid []string
}

// New builds a Configuration from the raw settings returned by config-get.
// String values are trimmed of surrounding whitespace before validation.
func New(settings map[string]interface{}) (Configuration, error) {
	empty := Configuration{}

	hostname := stringSetting(settings, HostnameKey)
	if err := validateHostname(hostname); err != nil {
		return empty, errors.Trace(err)
	}

	paths := map[string]string{
		PathKey:            stringSetting(settings, PathKey),
		BackendsPathKey:    stringSetting(settings, BackendsPathKey),
		HealthCheckPathKey: stringSetting(settings, HealthCheckPathKey),
	}
	for _, key := range []string{PathKey, BackendsPathKey, HealthCheckPathKey} {
		if err := validatePath(key, paths[key]); err != nil {
			return empty, errors.Trace(err)
		}
	}

	backends, err := parseBackends(stringSetting(settings, BackendsKey))
	if err != nil {
		return empty, errors.Trace(err)
	}

	protocol := Protocol(strings.ToLower(stringSetting(settings, ProtocolKey)))
	if protocol != ProtocolHTTP && protocol != ProtocolHTTPS {
		return empty, errors.Errorf("%s %q must be one of %q or %q",
			ProtocolKey, protocol, ProtocolHTTP, ProtocolHTTPS)
	}

	interval, err := intSetting(settings, HealthCheckIntervalKey)
	if err != nil {
		return empty, errors.Trace(err)
	}
	if interval <= 0 {
		return empty, errors.Errorf("%s must be a positive integer", HealthCheckIntervalKey)
	}

	cacheValid, err := parseProxyCacheValid(stringSetting(settings, ProxyCacheValidKey))
	if err != nil {
		return empty, errors.Trace(err)
	}

	return Configuration{
		Hostname:            hostname,
		Path:                paths[PathKey],
		Backends:            backends,
		Protocol:            protocol,
		BackendsPath:        paths[BackendsPathKey],
		HealthCheckPath:     paths[HealthCheckPathKey],
		HealthCheckInterval: interval,
		ProxyCacheValid:     cacheValid,
	}, nil
}

// IntegrationData converts the configuration to the format carried by the
// integration. Juju application data bags only hold strings, so any
// non-string field is JSON encoded.
func (c Configuration) IntegrationData() map[string]string {
	// Marshalling slices of strings cannot fail.
	backends, _ := json.Marshal(transform.Slice(c.Backends, func(a netip.Addr) string {
		return a.String()
	}))
	cacheValid, _ := json.Marshal(c.ProxyCacheValid)
	return map[string]string{
		HostnameKey:            c.Hostname,
		PathKey:                c.Path,
		BackendsKey:            string(backends),
		ProtocolKey:            string(c.Protocol),
		BackendsPathKey:        c.BackendsPath,
		HealthCheckPathKey:     c.HealthCheckPath,
		HealthCheckIntervalKey: strconv.Itoa(c.HealthCheckInterval),
		ProxyCacheValidKey:     string(cacheValid),
	}
}

func validateHostname(hostname string) error {
	if hostname == "" {
		return errors.Errorf("%s cannot be empty", HostnameKey)
	}
	if len(hostname) > 255 {
		return errors.Errorf("%s cannot be longer than 255 characters", HostnameKey)
	}
	for _, segment := range strings.Split(hostname, ".") {
		if !validHostnameSegment.MatchString(segment) {
			return errors.Errorf(
				"%s segment %q must be 1 to 63 alphanumeric or hyphen characters and must not start or end with a hyphen",
				HostnameKey, segment)
		}
	}
	return nil
}

func validatePath(key, path string) error {
	if path == "" {
		return errors.Errorf("%s cannot be empty", key)
	}
	if !validPath.MatchString(path) {
		return errors.Errorf("%s %q contains non-allowed character", key, path)
	}
	return nil
}

func parseBackends(value string) ([]netip.Addr, error) {
	if value == "" {
		return nil, errors.Errorf("empty %s configuration found", BackendsKey)
	}
	var backends []netip.Addr
	for _, field := range strings.Split(value, ",") {
		addr, err := netip.ParseAddr(strings.TrimSpace(field))
		if err != nil {
			return nil, errors.Errorf(
				"%s %q is not a valid IPv4 or IPv6 address", BackendsKey, strings.TrimSpace(field))
		}
		backends = append(backends, addr)
	}
	return backends, nil
}

// parseProxyCacheValid validates a JSON list of nginx proxy_cache_valid
// directives, e.g. `["200 302 30m", "404 1m"]`.
func parseProxyCacheValid(value string) ([]string, error) {
	if value == "" {
		return []string{}, nil
	}
	var decoded interface{}
	if err := json.Unmarshal([]byte(value), &decoded); err != nil {
		return nil, errors.Errorf("unable to parse %s: %s", ProxyCacheValidKey, value)
	}
	items, ok := decoded.([]interface{})
	if !ok {
		return nil, errors.Errorf("the %s is not a list: %s", ProxyCacheValidKey, value)
	}
	cacheValid := make([]string, 0, len(items))
	for _, raw := range items {
		item, ok := raw.(string)
		if !ok {
			return nil, errors.Errorf("non-string item in %s: %v", ProxyCacheValidKey, raw)
		}
		if err := validateCacheValidItem(item); err != nil {
			return nil, errors.Trace(err)
		}
		cacheValid = append(cacheValid, item)
	}
	return cacheValid, nil
}

func validateCacheValidItem(item string) error {
	fields := strings.Fields(item)
	if len(fields) < 2 {
		return errors.Errorf("invalid item in %s: %s", ProxyCacheValidKey, item)
	}
	for _, code := range fields[:len(fields)-1] {
		n, err := strconv.Atoi(code)
		if err != nil {
			return errors.Errorf("non-int status code in %s: %s", ProxyCacheValidKey, code)
		}
		if n < 100 || n > 599 {
			return errors.Errorf("invalid status code in %s: %d", ProxyCacheValidKey, n)
		}
	}
	return validateCacheValidTime(fields[len(fields)-1])
}

// validateCacheValidTime checks an nginx cache duration: a positive
// integer with an optional s, m, h or d unit suffix.
func validateCacheValidTime(token string) error {
	digits := token
	last := token[len(token)-1]
	switch {
	case last >= '0' && last <= '9':
	case last == 's', last == 'm', last == 'h', last == 'd':
		digits = token[:len(token)-1]
	default:
		return errors.Errorf("invalid time for %s: %s", ProxyCacheValidKey, token)
	}
	n, err := strconv.Atoi(digits)
	if err != nil {
		return errors.Errorf("non-int time in %s: %s", ProxyCacheValidKey, token)
	}
	if n <= 0 {
		return errors.Errorf("time must be positive int for %s: %s", ProxyCacheValidKey, token)
	}
	return nil
}

func stringSetting(settings map[string]interface{}, key string) string {
	value, _ := settings[key].(string)
	return strings.TrimSpace(value)
}

func intSetting(settings map[string]interface{}, key string) (int, error) {
	switch value := settings[key].(type) {
	case nil:
		return 0, nil
	case int:
		return value, nil
	case int64:
		return int(value), nil
	case float64:
		// config-get --format=json decodes integer options as float64.
		if value != float64(int(value)) {
			return 0, errors.Errorf("%s must be an integer", key)
		}
		return int(value), nil
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(value))
		if err != nil {
			return 0, errors.Errorf("%s must be an integer", key)
		}
		return n, nil
	default:
		return 0, errors.Errorf("%s must be an integer", key)
	}
}

package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/Sternrassler/vies-vat-checker/pkg/logging"
)

// ErrInvalid wraps every validation failure returned by Validate.
var ErrInvalid = errors.New("invalid configuration")

// Validate checks the configuration and reports all problems at once.
func (c Config) Validate() error {
	var errs []string
	addErr := func(format string, args ...any) {
		errs = append(errs, fmt.Sprintf(format, args...))
	}

	for name, raw := range map[string]string{
		"vies.check_vat_endpoint": c.VIES.CheckVATEndpoint,
		"vies.status_endpoint":    c.VIES.StatusEndpoint,
	} {
		u, err := url.Parse(raw)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			addErr("%s must be an http(s) URL, got %q", name, raw)
		}
	}
	if c.VIES.RequestTimeout < 0 {
		addErr("vies.request_timeout must not be negative")
	}

	switch strings.ToLower(c.Application.ReportFormat) {
	case FormatText, FormatCSV:
	default:
		addErr("application.report_format must be %q or %q, got %q", FormatText, FormatCSV, c.Application.ReportFormat)
	}

	if c.Throttle.StandardDelay < 0 || c.Throttle.LongDelay < 0 {
		addErr("throttle delays must not be negative")
	}
	if c.Throttle.LongDelay < c.Throttle.StandardDelay {
		addErr("throttle.long_delay (%s) must not be shorter than throttle.standard_delay (%s)",
			c.Throttle.LongDelay, c.Throttle.StandardDelay)
	}

	if c.Database.StoreActive && strings.TrimSpace(c.Database.Path) == "" {
		addErr("database.path is required when database.store_active is set")
	}

	if c.RedisEnabled() && strings.TrimSpace(c.Redis.Addr) == "" {
		addErr("redis.addr is required when the cache or quota tracker is enabled")
	}

	if _, err := logging.ParseLevel(c.Logging.Level); err != nil {
		addErr("logging.level: %v", err)
	}

	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %s", ErrInvalid, strings.Join(errs, "; "))
}

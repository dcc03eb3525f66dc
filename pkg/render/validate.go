package render

import (
	"errors"
	"net"
	"net/url"
	"strconv"
	"strings"

	"smfoperator/pkg/core"
)

func invalid(field, value, message string) error {
	return &core.ValidationError{Field: field, Value: value, Message: message}
}

// validateHTTPURL requires an absolute http(s) URL with a host and, if given, a valid port.
func validateHTTPURL(field, raw string) (*url.URL, error) {
	parsed, err := url.Parse(raw)
	if err != nil || !parsed.IsAbs() {
		return nil, invalid(field, raw, "not an absolute URL")
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, invalid(field, raw, "scheme must be http or https")
	}
	if parsed.Hostname() == "" {
		return nil, invalid(field, raw, "host is missing")
	}
	if port := parsed.Port(); port != "" {
		if err := validatePort(port); err != nil {
			return nil, invalid(field, raw, err.Error())
		}
	} else if strings.HasSuffix(parsed.Host, ":") {
		return nil, invalid(field, raw, "port is empty")
	}
	return parsed, nil
}

func validateNRFURL(raw, wantScheme string) error {
	parsed, err := validateHTTPURL("fiveg_nrf url", raw)
	if err != nil {
		return err
	}
	if parsed.Scheme != wantScheme {
		return invalid("fiveg_nrf url", raw, "scheme must be "+wantScheme+" to match the SBI scheme")
	}
	return nil
}

// validateHostPort requires host:port with a non-empty host.
func validateHostPort(field, raw string) error {
	host, port, err := net.SplitHostPort(raw)
	if err != nil {
		return invalid(field, raw, "must be host:port")
	}
	if host == "" {
		return invalid(field, raw, "host is missing")
	}
	if err := validatePort(port); err != nil {
		return invalid(field, raw, err.Error())
	}
	return nil
}

func validateDatabaseURI(raw string) error {
	if !strings.HasPrefix(raw, "mongodb://") && !strings.HasPrefix(raw, "mongodb+srv://") {
		return invalid("database uri", redactURI(raw), "scheme must be mongodb or mongodb+srv")
	}
	if _, err := url.Parse(raw); err != nil {
		return invalid("database uri", redactURI(raw), "not a valid URI")
	}
	return nil
}

var (
	errPortNotNumber  = errors.New("port is not a number")
	errPortOutOfRange = errors.New("port out of range")
)

func validatePort(port string) error {
	value, err := strconv.Atoi(port)
	if err != nil {
		return errPortNotNumber
	}
	if value < 1 || value > 65535 {
		return errPortOutOfRange
	}
	return nil
}

// redactURI drops credentials so they never end up in a status message.
func redactURI(raw string) string {
	if at := strings.LastIndex(raw, "@"); at >= 0 {
		if scheme := strings.Index(raw, "://"); scheme >= 0 && scheme < at {
			return raw[:scheme+3] + "***" + raw[at:]
		}
		return "***" + raw[at:]
	}
	return raw
}

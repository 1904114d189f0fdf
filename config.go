package boxmgr

import (
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// Config document paths rewritten before the core sees the configuration
const (
	pathLog                = "log"
	pathLogDisabled        = "log.disabled"
	pathLogOutput          = "log.output"
	pathLogTimestamp       = "log.timestamp"
	pathExperimental       = "experimental"
	pathClashAPI           = "experimental.clash_api"
	pathExternalController = "experimental.clash_api.external_controller"
	pathSecret             = "experimental.clash_api.secret"
)

// controlPlane is where the running core's control API can be reached
type controlPlane struct {
	// Listen is the address as written in the configuration
	Listen string
	// Endpoint is Listen resolved to a dialable host:port
	Endpoint string
	// Secret authenticates control API requests; empty means none
	Secret string
}

// normalizeConfig returns a rewritten copy of doc in which:
//   - an existing log section writes to stdout without timestamps and is never disabled
//   - experimental.clash_api exists with an external_controller
//
// A secret is generated only when the clash_api section had to be created.
// A user supplied section without a secret is left open.
func normalizeConfig(doc []byte, defaultListen string) ([]byte, controlPlane, error) {
	var cp controlPlane

	if !gjson.ValidBytes(doc) || !gjson.ParseBytes(doc).IsObject() {
		return nil, cp, ErrInvalidConfig
	}

	out := make([]byte, len(doc))
	copy(out, doc)

	var err error
	if gjson.GetBytes(out, pathLog).IsObject() {
		if out, err = sjson.DeleteBytes(out, pathLogDisabled); err != nil {
			return nil, cp, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
		}
		if out, err = sjson.SetBytes(out, pathLogOutput, "stdout"); err != nil {
			return nil, cp, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
		}
		if out, err = sjson.SetBytes(out, pathLogTimestamp, false); err != nil {
			return nil, cp, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
		}
	}

	created := false
	if !gjson.GetBytes(out, pathExperimental).IsObject() {
		if out, err = sjson.SetRawBytes(out, pathExperimental, []byte("{}")); err != nil {
			return nil, cp, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
		}
	}
	if !gjson.GetBytes(out, pathClashAPI).IsObject() {
		if out, err = sjson.SetRawBytes(out, pathClashAPI, []byte("{}")); err != nil {
			return nil, cp, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
		}
		created = true
	}

	if listen := gjson.GetBytes(out, pathExternalController); listen.Type == gjson.String {
		cp.Listen = listen.Str
	} else {
		cp.Listen = defaultListen
		if out, err = sjson.SetBytes(out, pathExternalController, cp.Listen); err != nil {
			return nil, cp, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
		}
	}

	if secret := gjson.GetBytes(out, pathSecret); secret.Type == gjson.String {
		cp.Secret = secret.Str
	} else if created {
		cp.Secret = newSecret()
		if out, err = sjson.SetBytes(out, pathSecret, cp.Secret); err != nil {
			return nil, cp, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
		}
	}

	endpoint, err := resolveEndpoint(cp.Listen)
	if err != nil {
		return nil, cp, fmt.Errorf("%w: external_controller %q: %w", ErrInvalidConfig, cp.Listen, err)
	}
	cp.Endpoint = endpoint

	return out, cp, nil
}

// resolveEndpoint turns a listen address into one a local client can dial.
// Wildcard and empty hosts are reached over loopback.
func resolveEndpoint(listen string) (string, error) {
	host, port, err := net.SplitHostPort(listen)
	if err != nil {
		return "", err
	}
	if port == "" {
		return "", errors.New("missing port")
	}

	switch ip := net.ParseIP(host); {
	case host == "":
		host = "127.0.0.1"
	case ip != nil && ip.IsUnspecified():
		if ip.To4() != nil {
			host = "127.0.0.1"
		} else {
			host = "::1"
		}
	}
	return net.JoinHostPort(host, port), nil
}

func newSecret() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

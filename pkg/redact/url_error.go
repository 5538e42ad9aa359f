// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package redact strips sensitive values from errors before they reach logs.
package redact

import (
	"errors"
	"fmt"
	"net/url"
	"regexp"
)

var sensitiveParams = regexp.MustCompile(`(?i)\b(apikey|api_key|passkey|token|password)=[^&\s]+`)

func redactURLString(u string) string {
	return sensitiveParams.ReplaceAllString(u, "$1=REDACTED")
}

// URLError redacts sensitive query parameters (apikey, api_key, passkey,
// token, password) from the URL embedded in a *url.Error, so download
// manager retry logs and catalog fetch errors never leak query-string
// credentials. Non-url.Error values pass through unchanged.
func URLError(err error) error {
	if err == nil {
		return nil
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		redacted := &url.Error{
			Op:  urlErr.Op,
			URL: redactURLString(urlErr.URL),
			Err: urlErr.Err,
		}

		if err == error(urlErr) {
			return redacted
		}

		// err wraps a url.Error deeper in the chain; preserve the
		// surrounding message but redact the full rendered string.
		return fmt.Errorf("%s", redactURLString(err.Error()))
	}

	return err
}

// Copyright (c) 2026, the cpdeploy contributors
//
// SPDX-License-Identifier: Apache-2.0

package util

import (
	"errors"
	"net/url"
	"os"
	"strings"
)

func FileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func IsDirectory(path string) bool {
	stat, err := os.Stat(path)
	if errors.Is(err, os.ErrNotExist) {
		return false
	}
	if stat == nil {
		return false
	}

	return stat.IsDir()
}

// FileSize returns the length of the file at path and whether it exists as a regular file
func FileSize(path string) (int64, bool) {
	stat, err := os.Stat(path)
	if err != nil || stat.IsDir() {
		return 0, false
	}

	return stat.Size(), true
}

// FileHasSuffix determines if name ends in any of the suffixes, case insensitively
func FileHasSuffix(name string, suffixes ...string) bool {
	lname := strings.ToLower(name)
	for _, suffix := range suffixes {
		if strings.HasSuffix(lname, strings.ToLower(suffix)) {
			return true
		}
	}

	return false
}

// RedactUrlCredentials renders a URL with any userinfo password masked, safe for logging
func RedactUrlCredentials(uri *url.URL) string {
	if uri == nil {
		return ""
	}

	return uri.Redacted()
}

// Copyright (c) 2026, the cpdeploy contributors
//
// SPDX-License-Identifier: Apache-2.0

package model

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	iu "github.com/credprov/cpdeploy/internal/util"
)

const (
	// BundleFileName is the only archive filename accepted in a source reference
	BundleFileName = "CredentialProviderBundle.zip"

	// DefaultSourceUrl is used when no source override is supplied
	DefaultSourceUrl = "https://download.credprov.io/stable/" + BundleFileName

	// FilterAll is the wildcard filter matching every archive entry
	FilterAll = "*"
)

// DefaultFilters selects the payload files deployed by the top level pipeline
var DefaultFilters = []string{".exe", ".dll", ".config"}

// BundleProperties describes the bundle to fetch and how to extract it
type BundleProperties struct {
	Url        string   `json:"url" yaml:"url"`                             // Url specifies where to download the bundle from
	Filters    []string `json:"filters,omitempty" yaml:"filters,omitempty"` // Filters are filename suffixes selecting entries to extract
	StagingDir string   `json:"staging,omitempty" yaml:"staging,omitempty"` // StagingDir overrides the directory the bundle is cached in
}

// Validate validates the bundle properties, it performs no I/O
func (p *BundleProperties) Validate() error {
	if p.Url == "" {
		return fmt.Errorf("%w: url cannot be empty", ErrInvalidSource)
	}

	uri, err := url.Parse(p.Url)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidSource, err)
	}

	if !uri.IsAbs() {
		return fmt.Errorf("%w: url must be absolute (include scheme like http:// or https://)", ErrInvalidSource)
	}

	filename := filepath.Base(uri.Path)
	if !strings.EqualFold(filename, BundleFileName) {
		return fmt.Errorf("%w: url filename must be %s, got %q", ErrInvalidSource, BundleFileName, filename)
	}

	if len(p.Filters) == 0 {
		return fmt.Errorf("%w: at least one filter is required", ErrInvalidFilters)
	}

	for _, f := range p.Filters {
		if f == "" {
			return fmt.Errorf("%w: filters cannot be empty strings", ErrInvalidFilters)
		}
	}

	return nil
}

// StagingPath is the local file the bundle is cached in between runs
func (p *BundleProperties) StagingPath() string {
	dir := p.StagingDir
	if dir == "" {
		dir = os.TempDir()
	}

	uri, err := url.Parse(p.Url)
	if err != nil {
		return filepath.Join(dir, BundleFileName)
	}

	return filepath.Join(dir, filepath.Base(uri.Path))
}

// MatchesFilters determines if an archive entry name qualifies for extraction
func MatchesFilters(name string, filters []string) bool {
	for _, f := range filters {
		if f == FilterAll {
			return true
		}
	}

	return iu.FileHasSuffix(name, filters...)
}

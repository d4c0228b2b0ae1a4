// Copyright (c) 2026, the cpdeploy contributors
//
// SPDX-License-Identifier: Apache-2.0

package model

import (
	"errors"
)

var (
	ErrInvalidSource       = errors.New("invalid source")
	ErrInvalidFilters      = errors.New("invalid filters")
	ErrDestinationRequired = errors.New("destination directory is required")
	ErrRequestFailed       = errors.New("request failed")
	ErrUnsafePath          = errors.New("entry path escapes the destination")
)

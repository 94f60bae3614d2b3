// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package config loads configuration for the bureau-dm client.
//
// Configuration comes from at most one file, named by the --config flag
// (via [LoadFile]) or the BUREAU_DM_CONFIG environment variable (via
// [Load]). There is no discovery under ~/.config. Files ending in .json
// or .jsonc are parsed as JSON with comments; anything else is YAML.
//
// The one value most users set is the homeserver base address. The
// MATRIX_HOMESERVER_URL environment variable overrides the file, and
// the built-in default is [DefaultHomeserverURL]. No other environment
// variable overrides config values.
package config

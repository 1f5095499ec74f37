// Package configs embeds the configuration template written by
// `notehunt config init`.
//
// The template lists every setting with its default value, so the file it
// produces loads to the same configuration as no file at all. See
// internal/config for the precedence between this file, environment
// variables and flags.
package configs

import _ "embed"

// UserConfigTemplate is written to $XDG_CONFIG_HOME/notehunt/config.yaml.
//
//go:embed config.example.yaml
var UserConfigTemplate string

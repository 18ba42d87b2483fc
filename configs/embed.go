// Package configs embeds the commented configuration templates written by
// `recidx config init`.
//
// Configuration hierarchy (see internal/config Load):
//  1. Hardcoded defaults (config.NewConfig)
//  2. User config ($XDG_CONFIG_HOME/recidx/config.yaml)
//  3. Project config (.recidx.yaml)
//  4. Environment variables (RECIDX_*)
//
// The project template spells out every default so a fresh file documents
// each knob.
package configs

import _ "embed"

// UserConfigTemplate is written by `recidx config init --user`.
//
//go:embed user-config.example.yaml
var UserConfigTemplate string

// ProjectConfigTemplate is written by `recidx config init` as .recidx.yaml.
//
//go:embed project-config.example.yaml
var ProjectConfigTemplate string

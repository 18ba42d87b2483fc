// Package logging configures structured logging for recidx.
//
// Components log through log/slog. By default the CLI logs warnings and
// above to stderr; with --debug, JSON logs are also written to a rotating
// file under ~/.recidx/logs/.
package logging

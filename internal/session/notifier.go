package session

import "github.com/rs/zerolog/log"

// Notifier surfaces transient user-facing notices: join failures,
// guess validation errors, kick notices, host-migration messages.
// Failures never propagate across clients; they end here.
type Notifier interface {
	Success(message string)
	Error(message string)
}

// LogNotifier is the default Notifier; it just logs. Transports
// (e.g. the websocket gateway) substitute their own.
type LogNotifier struct{}

func (LogNotifier) Success(message string) {
	log.Info().Str("notice", message).Msg("user notice")
}

func (LogNotifier) Error(message string) {
	log.Warn().Str("notice", message).Msg("user notice")
}

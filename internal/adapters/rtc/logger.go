package rtc

import (
	"github.com/pion/logging"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// LoggerFactory routes pion's internal logs through the global zerolog
// logger, filtered at Level.
type LoggerFactory struct {
	Level zerolog.Level
}

func (f LoggerFactory) NewLogger(scope string) logging.LeveledLogger {
	return &leveledLogger{
		l: log.With().Str("module", "pion").Str("scope", scope).Logger().Level(f.Level),
	}
}

type leveledLogger struct {
	l zerolog.Logger
}

func (p *leveledLogger) Trace(msg string) { p.l.Trace().Msg(msg) }
func (p *leveledLogger) Tracef(format string, args ...any) { p.l.Trace().Msgf(format, args...) }
func (p *leveledLogger) Debug(msg string) { p.l.Debug().Msg(msg) }
func (p *leveledLogger) Debugf(format string, args ...any) { p.l.Debug().Msgf(format, args...) }
func (p *leveledLogger) Info(msg string) { p.l.Info().Msg(msg) }
func (p *leveledLogger) Infof(format string, args ...any) { p.l.Info().Msgf(format, args...) }
func (p *leveledLogger) Warn(msg string) { p.l.Warn().Msg(msg) }
func (p *leveledLogger) Warnf(format string, args ...any) { p.l.Warn().Msgf(format, args...) }
func (p *leveledLogger) Error(msg string) { p.l.Error().Msg(msg) }
func (p *leveledLogger) Errorf(format string, args ...any) { p.l.Error().Msgf(format, args...) }

// Package logsvc provides the core.Logger implementations: a zerolog
// console logger for local output and a rollbar reporter for PROD.
package logsvc

import (
	"io"
	"os"

	"github.com/rs/zerolog"

	"github.com/trezcool/darasa/core"
	"github.com/trezcool/darasa/core/user"
)

// ZeroLogger is the default console logger.
type ZeroLogger struct {
	log zerolog.Logger
}

var _ core.Logger = (*ZeroLogger)(nil)

func NewZeroLogger(conf *core.Config) *ZeroLogger {
	var out io.Writer = os.Stderr
	level := zerolog.InfoLevel
	if conf.Debug {
		out = zerolog.ConsoleWriter{Out: os.Stderr}
		level = zerolog.DebugLevel
	}
	log := zerolog.New(out).
		Level(level).
		With().
		Timestamp().
		Str("app", conf.AppName).
		Logger()
	return &ZeroLogger{log: log}
}

// expected fmt: msg | error, map[string]interface{}, user.User
func (l ZeroLogger) event(ev *zerolog.Event, msg string, args []interface{}) {
	for _, arg := range args {
		switch v := arg.(type) {
		case error:
			ev = ev.Err(v)
		case map[string]interface{}:
			ev = ev.Fields(v)
		case user.User:
			ev = ev.Str("user", v.ID)
		default:
			ev = ev.Interface("arg", v)
		}
	}
	ev.Msg(msg)
}

func (l ZeroLogger) Debug(msg string, args ...interface{}) { l.event(l.log.Debug(), msg, args) }
func (l ZeroLogger) Info(msg string, args ...interface{})  { l.event(l.log.Info(), msg, args) }
func (l ZeroLogger) Warn(msg string, args ...interface{})  { l.event(l.log.Warn(), msg, args) }
func (l ZeroLogger) Error(msg string, args ...interface{}) { l.event(l.log.Error(), msg, args) }

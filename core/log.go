package core

import "github.com/hupe1980/agentloop/logging"

// scopedLog prefixes every record with a fixed set of attributes. RunContext
// and ToolContext embed it so callers write rc.LogInfo(...) directly.
type scopedLog struct {
	logger logging.Logger
	attrs  []any
}

// A nil logger discards everything.
func newScopedLog(l logging.Logger, attrs ...any) *scopedLog {
	if l == nil {
		l = logging.NoOpLogger{}
	}
	return &scopedLog{logger: l, attrs: attrs}
}

// Logger returns the logger without the scope attributes.
func (s *scopedLog) Logger() logging.Logger { return s.logger }

func (s *scopedLog) with(args []any) []any {
	if len(s.attrs) == 0 {
		return args
	}
	return append(append(make([]any, 0, len(s.attrs)+len(args)), s.attrs...), args...)
}

func (s *scopedLog) LogDebug(msg string, args ...any) { s.logger.Debug(msg, s.with(args)...) }

func (s *scopedLog) LogInfo(msg string, args ...any) { s.logger.Info(msg, s.with(args)...) }

func (s *scopedLog) LogWarn(msg string, args ...any) { s.logger.Warn(msg, s.with(args)...) }

func (s *scopedLog) LogError(msg string, args ...any) { s.logger.Error(msg, s.with(args)...) }

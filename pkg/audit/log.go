package audit

import (
	log "github.com/sirupsen/logrus"
)

// LogSink writes events to a logrus entry. Errors are logged at warning level, debug events
// at debug level, everything else at info.
type LogSink struct {
	entry *log.Entry
}

func NewLogSink(entry *log.Entry) *LogSink {
	if entry == nil {
		entry = log.NewEntry(log.StandardLogger())
	}
	return &LogSink{entry: entry}
}

func (s *LogSink) Append(e Event) {
	fields := log.Fields{
		"scope": e.Scope,
		"kind":  e.Kind,
		"ok":    e.OK,
	}
	for k, v := range e.Meta {
		fields["meta."+k] = v
	}
	if e.Error != "" {
		fields["error"] = e.Error
	}

	entry := s.entry.WithFields(fields)
	switch {
	case e.Kind == KindError || !e.OK && e.Kind != KindDebug:
		entry.Warn(e.Message)
	case e.Kind == KindDebug:
		entry.Debug(e.Message)
	default:
		entry.Info(e.Message)
	}
}

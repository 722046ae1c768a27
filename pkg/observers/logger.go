package observers

import (
	"context"
	"log/slog"

	"github.com/harunnryd/bargein/pkg/metrics"
)

// noticeEvents change what the user experiences and are logged at info;
// the rest of the stream goes to debug. Volume samples are never logged.
var noticeEvents = map[string]struct{}{
	metrics.EventInterruption:     {},
	metrics.EventNativeFallback:   {},
	metrics.EventTranscribeError:  {},
	metrics.EventSegmentAbandoned: {},
}

type LoggerObserver struct {
	log *slog.Logger
}

func NewLoggerObserver(log *slog.Logger) *LoggerObserver {
	if log == nil {
		log = slog.Default()
	}
	return &LoggerObserver{log: log.With("component", "metrics")}
}

func (o *LoggerObserver) RecordEvent(ev metrics.MetricsEvent) {
	if ev.Name == metrics.EventVolume {
		return
	}
	level := slog.LevelDebug
	if _, ok := noticeEvents[ev.Name]; ok {
		level = slog.LevelInfo
	}
	if !o.log.Enabled(context.Background(), level) {
		return
	}
	attrs := make([]slog.Attr, 0, 2+len(ev.Tags)+len(ev.Fields))
	attrs = append(attrs, slog.Time("event_time", ev.Time))
	if ev.Value != 0 {
		attrs = append(attrs, slog.Float64("value", ev.Value))
	}
	for k, v := range ev.Tags {
		attrs = append(attrs, slog.String(k, v))
	}
	for k, v := range ev.Fields {
		attrs = append(attrs, slog.Any(k, v))
	}
	o.log.LogAttrs(context.Background(), level, ev.Name, attrs...)
}

var _ metrics.Observer = (*LoggerObserver)(nil)

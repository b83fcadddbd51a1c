package annotations

import (
	"github.com/sirupsen/logrus"
)

// NewLogrusHandler logs events as structured entries. Errors log at error
// level, completed compilations at info, everything else at debug.
func NewLogrusHandler(logger logrus.FieldLogger) Handler {
	return func(event Event) {
		fields := logrus.Fields{"event": event.Name}
		if event.Latency > 0 {
			fields["latency"] = event.Latency.String()
		}
		if event.Caller != "" {
			fields["caller"] = event.Caller
		}
		for k, v := range event.Data {
			fields[k] = v
		}
		entry := logger.WithFields(fields)

		switch {
		case event.IsError():
			entry.Error("compilation error")
		case event.Name == CompileComplete:
			entry.Info("compilation complete")
		case event.Name == StatsFetched:
			entry.Info("statistics fetched")
		default:
			entry.Debug(event.Name)
		}
	}
}

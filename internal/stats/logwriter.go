package stats

import (
	"encoding/json"
	"fmt"
	"io"
	"time"
)

// LogWriter is a zerolog sink that feeds each line into the Collector's
// ring buffer, where the ops API serves it as the log tail. Wire it next
// to the console/file writer with zerolog.MultiLevelWriter.
type LogWriter struct {
	collector *Collector
}

// NewLogWriter creates a LogWriter that feeds into the given Collector.
func NewLogWriter(c *Collector) *LogWriter {
	return &LogWriter{collector: c}
}

var _ io.Writer = (*LogWriter)(nil)

func (w *LogWriter) Write(p []byte) (int, error) {
	w.collector.AddLog(parseLine(p))
	return len(p), nil
}

// parseLine decodes one zerolog JSON line. Lines that are not JSON are
// kept verbatim rather than dropped.
func parseLine(p []byte) LogEntry {
	var raw map[string]any
	if err := json.Unmarshal(p, &raw); err != nil {
		return LogEntry{Time: time.Now(), Level: "info", Message: string(p)}
	}

	entry := LogEntry{Time: time.Now()}
	for k, v := range raw {
		switch k {
		case "level":
			if s, ok := v.(string); ok {
				entry.Level = s
			}
		case "message":
			if s, ok := v.(string); ok {
				entry.Message = s
			}
		case "time":
			if s, ok := v.(string); ok {
				if parsed, err := time.Parse(time.RFC3339, s); err == nil {
					entry.Time = parsed
				}
			}
		default:
			if entry.Fields == nil {
				entry.Fields = make(map[string]string)
			}
			entry.Fields[k] = fmt.Sprint(v)
		}
	}
	return entry
}

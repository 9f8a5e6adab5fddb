package log

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/lmittmann/tint"
)

const (
	FormatJSON  = "json"
	FormatText  = "text"
	FormatCloud = "cloud"

	// CloudTraceHeader carries the trace context on requests served by Cloud Functions.
	CloudTraceHeader = "X-Cloud-Trace-Context"
)

type (
	ctxKey      struct{}
	traceCtxKey struct{}
)

// CloudLoggingHandler is a slog.Handler writing Google Cloud structured JSON lines.
type CloudLoggingHandler struct {
	mu    *sync.Mutex
	w     io.Writer
	level slog.Leveler
	attrs []slog.Attr
}

// NewCloudLoggingHandler creates a handler that writes one JSON entry per line to w.
func NewCloudLoggingHandler(w io.Writer, level slog.Leveler) *CloudLoggingHandler {
	if level == nil {
		level = slog.LevelInfo
	}
	return &CloudLoggingHandler{mu: &sync.Mutex{}, w: w, level: level}
}

// Handle processes log records.
func (h *CloudLoggingHandler) Handle(ctx context.Context, r slog.Record) error {
	entry := map[string]any{
		"severity": severityName(r.Level),
		"time":     recordTime(r).Format(time.RFC3339Nano),
		"message":  r.Message,
	}
	if traceID := TraceFromContext(ctx); traceID != "" {
		entry["logging.googleapis.com/trace"] = traceID
	}
	for k, v := range payload(h.attrs, r) {
		entry[k] = v
	}

	jsonData, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	_, err = h.w.Write(append(jsonData, '\n'))
	return err
}

func (h *CloudLoggingHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

// WithAttrs returns a new handler with additional attributes.
func (h *CloudLoggingHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &CloudLoggingHandler{mu: h.mu, w: h.w, level: h.level, attrs: appendAttrs(h.attrs, attrs)}
}

// WithGroup returns the same handler, as grouping is not implemented.
func (h *CloudLoggingHandler) WithGroup(_ string) slog.Handler {
	return h
}

// New builds the process logger. FormatCloud needs a client, see NewCloudHandler.
func New(format string, level slog.Leveler) *slog.Logger {
	switch format {
	case FormatText:
		return slog.New(tint.NewHandler(os.Stderr, &tint.Options{
			Level:      level,
			TimeFormat: time.Kitchen,
		}))
	default:
		return slog.New(NewCloudLoggingHandler(os.Stdout, level))
	}
}

func WithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, logger)
}

func LoggerFromContext(ctx context.Context) *slog.Logger {
	if logger, ok := ctx.Value(ctxKey{}).(*slog.Logger); ok {
		return logger
	}
	return slog.New(NewCloudLoggingHandler(os.Stdout, slog.LevelInfo))
}

// WithTrace stores the Cloud Trace id of the current request.
func WithTrace(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, traceCtxKey{}, traceID)
}

func TraceFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	traceID, _ := ctx.Value(traceCtxKey{}).(string)
	return traceID
}

// TraceFromHeader extracts "projects/<p>/traces/<id>" from the
// X-Cloud-Trace-Context header value "<id>/<span>;o=1".
func TraceFromHeader(projectID, header string) string {
	if header == "" || projectID == "" {
		return ""
	}
	id := header
	for i, c := range header {
		if c == '/' || c == ';' {
			id = header[:i]
			break
		}
	}
	if id == "" {
		return ""
	}
	return "projects/" + projectID + "/traces/" + id
}

func severityName(l slog.Level) string {
	switch {
	case l >= slog.LevelError:
		return "ERROR"
	case l >= slog.LevelWarn:
		return "WARNING"
	case l >= slog.LevelInfo:
		return "INFO"
	default:
		return "DEBUG"
	}
}

func recordTime(r slog.Record) time.Time {
	if r.Time.IsZero() {
		return time.Now()
	}
	return r.Time
}

func appendAttrs(base, extra []slog.Attr) []slog.Attr {
	out := make([]slog.Attr, len(base)+len(extra))
	copy(out, base)
	copy(out[len(base):], extra)
	return out
}

// payload merges handler attributes with record attributes, record wins.
func payload(attrs []slog.Attr, r slog.Record) map[string]any {
	out := make(map[string]any, len(attrs)+r.NumAttrs())
	for _, attr := range attrs {
		out[attr.Key] = attr.Value.Resolve().Any()
	}
	r.Attrs(func(attr slog.Attr) bool {
		out[attr.Key] = attr.Value.Resolve().Any()
		return true
	})
	return out
}

package log

import (
	"context"
	"fmt"
	"log/slog"

	"cloud.google.com/go/logging"
)

const logID = "chatter"

// CloudHandler sends records to Cloud Logging through the API instead of stdout.
type CloudHandler struct {
	logger *logging.Logger
	level  slog.Leveler
	attrs  []slog.Attr
}

// NewCloudClient opens a Cloud Logging client for projectID. The caller closes
// it on shutdown so buffered entries get flushed.
func NewCloudClient(ctx context.Context, projectID string) (*logging.Client, error) {
	client, err := logging.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("create logging client: %w", err)
	}
	return client, nil
}

func NewCloudHandler(client *logging.Client, level slog.Leveler) *CloudHandler {
	if level == nil {
		level = slog.LevelInfo
	}
	return &CloudHandler{logger: client.Logger(logID), level: level}
}

func (h *CloudHandler) Handle(ctx context.Context, r slog.Record) error {
	data := payload(h.attrs, r)
	data["message"] = r.Message
	h.logger.Log(logging.Entry{
		Timestamp: recordTime(r),
		Severity:  cloudSeverity(r.Level),
		Payload:   data,
		Trace:     TraceFromContext(ctx),
	})
	return nil
}

func (h *CloudHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *CloudHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &CloudHandler{logger: h.logger, level: h.level, attrs: appendAttrs(h.attrs, attrs)}
}

func (h *CloudHandler) WithGroup(_ string) slog.Handler {
	return h
}

func cloudSeverity(l slog.Level) logging.Severity {
	switch {
	case l >= slog.LevelError:
		return logging.Error
	case l >= slog.LevelWarn:
		return logging.Warning
	case l >= slog.LevelInfo:
		return logging.Info
	default:
		return logging.Debug
	}
}

package logger

import (
	"bytes"
	"context"
	"testing"

	"github.com/goccy/go-json"
)

func TestWithLogger_FromContext(t *testing.T) {
	var buf bytes.Buffer
	l, err := New(Config{Level: "info", Format: "json", Output: &buf})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	ctx := WithLogger(context.Background(), l)
	FromContext(ctx).Info("test message")

	if buf.Len() == 0 {
		t.Error("Logger from context should produce output")
	}
}

func TestFromContext_Default(t *testing.T) {
	if l := FromContext(context.Background()); l == nil {
		t.Error("FromContext should return default logger, got nil")
	}
}

func TestCheckpointID(t *testing.T) {
	tests := []struct {
		name string
		ctx  context.Context
		want string
	}{
		{"unset", context.Background(), ""},
		{"set", WithCheckpointID(context.Background(), "01HZX"), "01HZX"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CheckpointIDFromContext(tt.ctx); got != tt.want {
				t.Errorf("CheckpointIDFromContext() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestL(t *testing.T) {
	tests := []struct {
		name   string
		id     string
		wantID any
	}{
		{"with checkpoint id", "01HZX", "01HZX"},
		{"without checkpoint id", "", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			l, err := New(Config{Level: "info", Format: "json", Output: &buf})
			if err != nil {
				t.Fatalf("New() error = %v", err)
			}

			ctx := WithLogger(context.Background(), l)
			if tt.id != "" {
				ctx = WithCheckpointID(ctx, tt.id)
			}
			L(ctx).Info("checkpoint started")

			var entry map[string]any
			if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
				t.Fatalf("Failed to parse JSON log: %v", err)
			}
			if entry["checkpoint_id"] != tt.wantID {
				t.Errorf("checkpoint_id = %v, want %v", entry["checkpoint_id"], tt.wantID)
			}
		})
	}
}

func TestContextKeyCollision(t *testing.T) {
	ctx := context.WithValue(context.Background(), "reactq.checkpoint_id", "foreign")
	if got := CheckpointIDFromContext(ctx); got != "" {
		t.Errorf("plain string key leaked into CheckpointIDFromContext: %q", got)
	}
}

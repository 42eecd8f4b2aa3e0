package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap/zapcore"
)

func TestNewWithLevel(t *testing.T) {
	tests := []struct {
		level string
		want  zapcore.Level
	}{
		{"debug", zapcore.DebugLevel},
		{"WARN", zapcore.WarnLevel},
		{"error", zapcore.ErrorLevel},
		{"chatty", zapcore.InfoLevel},
		{"", zapcore.InfoLevel},
	}
	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			l := NewWithLevel(tt.level)
			assert.True(t, l.Desugar().Core().Enabled(tt.want))
			if tt.want > zapcore.DebugLevel {
				assert.False(t, l.Desugar().Core().Enabled(tt.want-1))
			}
		})
	}
}

func TestNopAndNamed(t *testing.T) {
	l := Nop().Named("booking")
	assert.NotNil(t, l.SugaredLogger)
	l.Infow("dropped", "key", "value")
}

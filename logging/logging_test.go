package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNew(t *testing.T) {
	t.Parallel()

	tests := []struct {
		level string
		dev   bool
		want  zap.AtomicLevel
		ok    bool
	}{
		{"", false, zap.NewAtomicLevelAt(zap.InfoLevel), true},
		{"debug", true, zap.NewAtomicLevelAt(zap.DebugLevel), true},
		{"warn", false, zap.NewAtomicLevelAt(zap.WarnLevel), true},
		{"loud", false, zap.AtomicLevel{}, false},
	}

	for _, tt := range tests {
		log, err := New(tt.level, tt.dev)
		if !tt.ok {
			assert.Error(t, err, tt.level)
			continue
		}
		require.NoError(t, err, tt.level)
		assert.True(t, log.Core().Enabled(tt.want.Level()), tt.level)
		if tt.want.Level() > zap.DebugLevel {
			assert.False(t, log.Core().Enabled(tt.want.Level()-1), tt.level)
		}
	}
}

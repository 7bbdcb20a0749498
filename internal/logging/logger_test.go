package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		want    zapcore.Level
		wantErr bool
	}{
		{name: "default", cfg: DefaultConfig(), want: zapcore.InfoLevel},
		{name: "development", cfg: DevelopmentConfig(), want: zapcore.DebugLevel},
		{name: "warn without outputs", cfg: Config{Level: "warn"}, want: zapcore.WarnLevel},
		{name: "bad level", cfg: Config{Level: "loud"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, err := New(tt.cfg)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, logger.Level())
		})
	}
}

func TestSetLevel(t *testing.T) {
	logger, err := New(DefaultConfig())
	require.NoError(t, err)

	require.NoError(t, logger.SetLevel("error"))
	assert.Equal(t, zapcore.ErrorLevel, logger.Level())
	assert.Error(t, logger.SetLevel("nope"))
	assert.Equal(t, zapcore.ErrorLevel, logger.Level())
}

func TestComponent(t *testing.T) {
	logger := NewNop()
	assert.NotNil(t, logger.Component("channel"))
}

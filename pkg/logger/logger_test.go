package logger

import (
	"testing"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
)

func TestSetup(t *testing.T) {
	defer Setup("info", "text")

	tests := []struct {
		level  string
		format string
		want   log.Level
	}{
		{"debug", "text", log.DebugLevel},
		{" WARN ", "json", log.WarnLevel},
		{"error", "", log.ErrorLevel},
		{"nonsense", "text", log.InfoLevel},
		{"", "", log.InfoLevel},
	}
	for _, tt := range tests {
		t.Run(tt.level+"/"+tt.format, func(t *testing.T) {
			Setup(tt.level, tt.format)
			assert.Equal(t, tt.want, log.GetLevel())
		})
	}

	Setup("info", "json")
	_, isJSON := log.StandardLogger().Formatter.(*log.JSONFormatter)
	assert.True(t, isJSON)
}

func TestComponent(t *testing.T) {
	entry := Component("relay")
	assert.Equal(t, "relay", entry.Data["component"])
}

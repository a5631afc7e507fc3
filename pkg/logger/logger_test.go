package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_JSONWithComponent(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Level: "debug", Format: "json", Component: "feed", Output: &buf})

	log.WithField("viewer", "abc").Debug("built")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "feed", entry["component"])
	assert.Equal(t, "abc", entry["viewer"])
	assert.Equal(t, "built", entry["msg"])
	assert.Equal(t, "debug", entry["level"])
}

func TestNew_InvalidLevelFallsBackToInfo(t *testing.T) {
	log := New(Config{Level: "chatty"})
	assert.Equal(t, logrus.InfoLevel, log.GetLevel())
}

func TestNamed_SharesOutput(t *testing.T) {
	var buf bytes.Buffer
	parent := New(Config{Format: "json", Component: "app", Output: &buf})
	child := parent.Named("chain")

	assert.Equal(t, "chain", child.Component())
	assert.Equal(t, "app", parent.Component())

	child.WithError(errors.New("boom")).Warn("submit failed")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "chain", entry["component"])
	assert.Equal(t, "boom", entry["error"])
}

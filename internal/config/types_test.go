package config

import (
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSecret_NeverLeaks(t *testing.T) {
	s := Secret("hunter2")

	assert.Equal(t, "[REDACTED]", s.String())
	assert.Equal(t, "[REDACTED]", fmt.Sprintf("%v", s))
	assert.Equal(t, "Secret([REDACTED])", fmt.Sprintf("%#v", s))
	assert.Equal(t, "hunter2", s.Value())
	assert.True(t, s.IsSet())

	data, err := json.Marshal(struct {
		Key Secret `json:"key"`
	}{Key: s})
	require.NoError(t, err)
	assert.JSONEq(t, `{"key":"[REDACTED]"}`, string(data))

	assert.Equal(t, "", Secret("").String())
	assert.False(t, Secret("").IsSet())
}

func TestSecret_UnmarshalJSON(t *testing.T) {
	var s Secret
	require.NoError(t, json.Unmarshal([]byte(`"abc"`), &s))
	assert.Equal(t, "abc", s.Value())
}

func TestDuration_UnmarshalText(t *testing.T) {
	var d Duration
	require.NoError(t, d.UnmarshalText([]byte("90s")))
	assert.Equal(t, 90*time.Second, d.Duration())

	assert.Error(t, d.UnmarshalText([]byte("-1s")))
	assert.Error(t, d.UnmarshalText([]byte("soon")))

	out, err := d.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "1m30s", string(out))
}

func TestDuration_BareSeconds(t *testing.T) {
	var d Duration
	require.NoError(t, d.UnmarshalText([]byte("600")))
	assert.Equal(t, 10*time.Minute, d.Duration())

	data, err := json.Marshal(struct {
		D Duration `json:"d"`
	}{D: d})
	require.NoError(t, err)
	assert.JSONEq(t, `{"d":"10m0s"}`, string(data))
}

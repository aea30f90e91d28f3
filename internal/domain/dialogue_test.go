package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
)

func TestResponseWindowOverride(t *testing.T) {
	d := Dialogue{Metadata: datatypes.JSON([]byte(`{"response_window_hours": 2.5}`))}
	window, ok := d.ResponseWindowOverride()
	require.True(t, ok)
	require.Equal(t, 150*time.Minute, window)
}

func TestSessionIdleThresholdOverride(t *testing.T) {
	d := Dialogue{Metadata: datatypes.JSON([]byte(`{"session_idle_threshold_hours": 6}`))}
	threshold, ok := d.SessionIdleThresholdOverride()
	require.True(t, ok)
	require.Equal(t, 6*time.Hour, threshold)
}

func TestOverrideAbsentWhenKeyMissing(t *testing.T) {
	d := Dialogue{Metadata: datatypes.JSON([]byte(`{"title": "irrelevant"}`))}
	_, ok := d.ResponseWindowOverride()
	require.False(t, ok)
}

func TestOverrideAbsentWhenMetadataEmpty(t *testing.T) {
	d := Dialogue{}
	_, ok := d.SessionIdleThresholdOverride()
	require.False(t, ok)

	d.Metadata = datatypes.JSON([]byte(``))
	_, ok = d.SessionIdleThresholdOverride()
	require.False(t, ok)
}

func TestOverrideAbsentWhenMalformedJSON(t *testing.T) {
	d := Dialogue{Metadata: datatypes.JSON([]byte(`not-json`))}
	_, ok := d.ResponseWindowOverride()
	require.False(t, ok)
}

func TestOverrideAbsentWhenValueNotNumeric(t *testing.T) {
	d := Dialogue{Metadata: datatypes.JSON([]byte(`{"response_window_hours": "soon"}`))}
	_, ok := d.ResponseWindowOverride()
	require.False(t, ok)
}

package schedule

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseUpdateObjectForm(t *testing.T) {
	payload := []byte(`{"timestamp": 1718000000, "waterings": {"0": [[6,30,15]], "2": [[23,30,90],[12,0,0]]}}`)

	u, err := ParseUpdate(payload)
	require.NoError(t, err)
	assert.Equal(t, int64(1718000000), u.Timestamp)
	assert.Equal(t, []WateringSlot{{6, 30, 15}}, u.Weekly[time.Sunday])
	assert.Equal(t, []WateringSlot{{23, 30, 90}, {12, 0, 0}}, u.Weekly[time.Tuesday])
	assert.Empty(t, u.Weekly[time.Monday])
	assert.Equal(t, 3, u.Weekly.SlotCount())
}

func TestParseUpdateArrayForm(t *testing.T) {
	payload := []byte(`{"timestamp": 5, "waterings": [[], [[7,0,20]], [], [], [], [], [[8,15,5]]]}`)

	u, err := ParseUpdate(payload)
	require.NoError(t, err)
	assert.Equal(t, []WateringSlot{{7, 0, 20}}, u.Weekly[time.Monday])
	assert.Equal(t, []WateringSlot{{8, 15, 5}}, u.Weekly[time.Saturday])
}

func TestParseUpdateRejects(t *testing.T) {
	tests := []struct {
		name    string
		payload string
	}{
		{"bad json", `{"timestamp": 5, "waterings": `},
		{"missing timestamp", `{"waterings": {}}`},
		{"missing waterings", `{"timestamp": 5}`},
		{"null waterings", `{"timestamp": 5, "waterings": null}`},
		{"scalar waterings", `{"timestamp": 5, "waterings": 3}`},
		{"bad weekday key", `{"timestamp": 5, "waterings": {"7": [[6,0,10]]}}`},
		{"named weekday key", `{"timestamp": 5, "waterings": {"monday": [[6,0,10]]}}`},
		{"too many days", `{"timestamp": 5, "waterings": [[],[],[],[],[],[],[],[]]}`},
		{"short slot", `{"timestamp": 5, "waterings": {"1": [[6,0]]}}`},
		{"long slot", `{"timestamp": 5, "waterings": {"1": [[6,0,10,1]]}}`},
		{"fractional field", `{"timestamp": 5, "waterings": {"1": [[6.5,0,10]]}}`},
		{"hour out of range", `{"timestamp": 5, "waterings": {"1": [[24,0,10]]}}`},
		{"minute out of range", `{"timestamp": 5, "waterings": {"1": [[6,60,10]]}}`},
		{"negative duration", `{"timestamp": 5, "waterings": {"1": [[6,0,-1]]}}`},
		{"duration over a week", `{"timestamp": 5, "waterings": {"2": [[23,30,10081]]}}`},
		{"overflowing duration", `{"timestamp": 5, "waterings": {"2": [[23,30,9223372036854775807]]}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseUpdate([]byte(tt.payload))
			assert.Error(t, err)
		})
	}
}

func TestFormatRequest(t *testing.T) {
	data, err := FormatRequest(1718000000)
	require.NoError(t, err)

	var parsed RequestPayload
	require.NoError(t, json.Unmarshal(data, &parsed))
	assert.Equal(t, int64(1718000000), parsed.Timestamp)
	assert.JSONEq(t, `{"timestamp":1718000000}`, string(data))
}

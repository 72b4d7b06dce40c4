package events

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventDataTypes(t *testing.T) {
	tests := []struct {
		data EventData
		want EventType
	}{
		{&MetricValueRecordedData{}, MetricValueRecorded},
		{&MetricDefinitionChangedData{}, MetricDefinitionChanged},
		{&FeatureToggledData{}, FeatureToggled},
		{&PricesSyncedData{}, PricesSynced},
	}

	for _, tt := range tests {
		t.Run(string(tt.want), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.data.EventType())
			assert.Contains(t, AllTypes, tt.want)
		})
	}
}

func TestFeatureToggledData_OmitsEmptyUser(t *testing.T) {
	jsonData, err := json.Marshal(&FeatureToggledData{Family: "performance", Enabled: false})
	require.NoError(t, err)
	assert.NotContains(t, string(jsonData), "user_id")
	assert.Contains(t, string(jsonData), `"enabled":false`)
}

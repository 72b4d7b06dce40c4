package events

// EventData is the interface that all event data types must implement
// This allows for type-safe event data while maintaining flexibility
type EventData interface {
	// EventType returns the event type this data is associated with
	EventType() EventType
}

// MetricValueRecordedData is emitted after every successful value upsert.
type MetricValueRecordedData struct {
	MetricID   string `json:"metric_id"`
	Target     string `json:"target"`
	Date       string `json:"date"`
	Provenance string `json:"provenance"`
	Scenario   string `json:"scenario,omitempty"`
}

// EventType returns the event type for MetricValueRecordedData
func (d *MetricValueRecordedData) EventType() EventType {
	return MetricValueRecorded
}

// MetricDefinitionChangedData is emitted when a custom metric is created, edited or deleted.
type MetricDefinitionChangedData struct {
	MetricID string `json:"metric_id"`
	Name     string `json:"name"`
	Action   string `json:"action"` // created, updated, deleted
	OwnerID  string `json:"owner_id,omitempty"`
}

// EventType returns the event type for MetricDefinitionChangedData
func (d *MetricDefinitionChangedData) EventType() EventType {
	return MetricDefinitionChanged
}

// FeatureToggledData is emitted when a system or user feature switch changes.
type FeatureToggledData struct {
	Family  string `json:"family"`
	UserID  string `json:"user_id,omitempty"` // empty for the system switch
	Enabled bool   `json:"enabled"`
}

// EventType returns the event type for FeatureToggledData
func (d *FeatureToggledData) EventType() EventType {
	return FeatureToggled
}

// PricesSyncedData summarises one market price sync run.
type PricesSyncedData struct {
	Source  string `json:"source"`
	Synced  int    `json:"synced"`
	Failed  int    `json:"failed"`
	Skipped int    `json:"skipped"`
}

// EventType returns the event type for PricesSyncedData
func (d *PricesSyncedData) EventType() EventType {
	return PricesSynced
}

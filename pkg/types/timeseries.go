package types

import "time"

// Time-series data types produced by the projection.
const (
	DataTypeMetric   = "metric"
	DataTypeLogEntry = "log_entry"
)

// Reserved attribute keys carried by tsdb_data nodes.
const (
	AttrMetricName = "metric_name"
	AttrValue      = "value"
	AttrMetricTags = "metric_tags"
	AttrLogMessage = "log_message"
	AttrLogLevel   = "log_level"
	AttrLogTags    = "log_tags"
	AttrDataType   = "data_type"
	AttrCreatedAt  = "created_at"
	AttrCreatedBy  = "created_by"
	AttrTimestamp  = "timestamp"
)

// TimeSeriesDataPoint is a read model projected from a tsdb_data node.
// It is never stored directly.
type TimeSeriesDataPoint struct {
	Timestamp  time.Time         `json:"timestamp"`
	MetricName string            `json:"metric_name"`
	Value      float64           `json:"value"`
	DataType   string            `json:"data_type"` // "metric" or "log_entry"
	Tags       map[string]string `json:"tags,omitempty"`
	Source     string            `json:"source,omitempty"` // created_by of the node
	Scope      GraphScope        `json:"scope"`
	NodeID     string            `json:"node_id"`

	// Log-only fields
	LogLevel   string `json:"log_level,omitempty"`
	LogMessage string `json:"log_message,omitempty"`
}

// ServiceCorrelation is the legacy correlation-style record written alongside
// each log observation.
type ServiceCorrelation struct {
	CorrelationID   string            `json:"correlation_id"`
	CorrelationType string            `json:"correlation_type"` // e.g. "log_entry"
	ServiceType     string            `json:"service_type"`
	HandlerName     string            `json:"handler_name"`
	ActionType      string            `json:"action_type"`
	RequestData     Attributes        `json:"request_data,omitempty"`
	ResponseData    Attributes        `json:"response_data,omitempty"`
	Status          string            `json:"status"`
	Tags            map[string]string `json:"tags,omitempty"`
	Timestamp       time.Time         `json:"timestamp"`
}

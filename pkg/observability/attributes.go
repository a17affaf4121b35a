package observability

import (
	"go.opentelemetry.io/otel/attribute"
)

// Attribute keys for resolution telemetry.
var (
	AttrOperation  = attribute.Key("helm_actions.operation")
	AttrActionID   = attribute.Key("helm_actions.action.id")
	AttrStepStatus = attribute.Key("helm_actions.step.status")
	AttrErrorKind  = attribute.Key("helm_actions.step.error_kind")
	AttrStepCount  = attribute.Key("helm_actions.plan.step_count")
	AttrDialect    = attribute.Key("helm_actions.query.dialect")
	AttrQueryCode  = attribute.Key("helm_actions.query.error_code")
)

// Step status values.
const (
	StatusBound = "bound"
	StatusError = "error"
)

// BoundStep returns the attributes recorded for a bound step.
func BoundStep(actionID string) []attribute.KeyValue {
	return []attribute.KeyValue{
		AttrActionID.String(actionID),
		AttrStepStatus.String(StatusBound),
	}
}

// ErrorStep returns the attributes recorded for a failed step.
func ErrorStep(actionID, kind string) []attribute.KeyValue {
	return []attribute.KeyValue{
		AttrActionID.String(actionID),
		AttrStepStatus.String(StatusError),
		AttrErrorKind.String(kind),
	}
}

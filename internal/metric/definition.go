// Package metric classifies metric definitions, evaluates their operators and
// tracks the dependency graph between calculated metrics.
package metric

import (
	"github.com/sells-group/salestrack/internal/apperr"
	"github.com/sells-group/salestrack/internal/model"
)

// IsLeaf reports whether m takes its values directly from submissions.
func IsLeaf(m *model.Metric) bool {
	return m.Operator == nil
}

// Operands returns the two operand metric ids of a calculated metric.
func Operands(m *model.Metric) (int64, int64, error) {
	if IsLeaf(m) {
		return 0, 0, apperr.Validation(apperr.CodeInvalidMetricDefinition,
			"metric %d is a leaf metric and has no operands", m.ID)
	}
	if m.Value1ID == nil || m.Value2ID == nil {
		return 0, 0, apperr.Validation(apperr.CodeInvalidMetricDefinition,
			"metric %d is missing an operand", m.ID)
	}
	return *m.Value1ID, *m.Value2ID, nil
}

// Validate checks the shape of a definition. A leaf must carry no operator or
// operands; a calculated metric needs a known operator and both operands.
func Validate(m *model.Metric) error {
	if m.Name == "" {
		return apperr.Validation(apperr.CodeInvalidMetricDefinition, "metric name is required")
	}
	if !m.Type.Valid() {
		return apperr.Validation(apperr.CodeInvalidMetricDefinition, "unknown metric type %q", m.Type)
	}

	if IsLeaf(m) {
		if m.Value1ID != nil || m.Value2ID != nil {
			return apperr.Validation(apperr.CodeInvalidMetricDefinition,
				"leaf metric %q must not reference operands", m.Name)
		}
		if m.IsCalculated {
			return apperr.Validation(apperr.CodeInvalidMetricDefinition,
				"metric %q is marked calculated but has no operator", m.Name)
		}
		return nil
	}

	if !m.Operator.Valid() {
		return apperr.Validation(apperr.CodeInvalidMetricDefinition,
			"metric %q has unsupported operator %q", m.Name, *m.Operator)
	}
	if m.Value1ID == nil || m.Value2ID == nil {
		return apperr.Validation(apperr.CodeInvalidMetricDefinition,
			"calculated metric %q requires two operands", m.Name)
	}
	if m.ID != 0 && (*m.Value1ID == m.ID || *m.Value2ID == m.ID) {
		return apperr.Validation(apperr.CodeDependencyCycle,
			"metric %q cannot reference itself", m.Name)
	}
	return nil
}

// Normalize sets IsCalculated from the operator and clears operands on leaves.
func Normalize(m *model.Metric) {
	m.IsCalculated = m.Operator != nil
	if !m.IsCalculated {
		m.Value1ID = nil
		m.Value2ID = nil
	}
}

// Apply evaluates a op b. An unrecognised operator yields a unchanged.
// Division by zero yields 0.
func Apply(a float64, op model.Operator, b float64) float64 {
	switch op {
	case model.OpAdd:
		return a + b
	case model.OpSub:
		return a - b
	case model.OpMul:
		return a * b
	case model.OpDiv:
		if b == 0 {
			return 0
		}
		return a / b
	default:
		return a
	}
}

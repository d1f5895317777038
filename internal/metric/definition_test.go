package metric

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/salestrack/internal/apperr"
	"github.com/sells-group/salestrack/internal/model"
)

func ptr[T any](v T) *T { return &v }

func calculated(id int64, op model.Operator, v1, v2 int64) model.Metric {
	return model.Metric{
		ID: id, Name: "m", Type: model.MetricTypeNumeric, IsCalculated: true,
		Operator: &op, Value1ID: ptr(v1), Value2ID: ptr(v2),
	}
}

func TestIsLeaf(t *testing.T) {
	assert.True(t, IsLeaf(&model.Metric{}))
	m := calculated(3, model.OpAdd, 1, 2)
	assert.False(t, IsLeaf(&m))
}

func TestOperands(t *testing.T) {
	m := calculated(3, model.OpMul, 1, 2)
	v1, v2, err := Operands(&m)
	require.NoError(t, err)
	assert.Equal(t, int64(1), v1)
	assert.Equal(t, int64(2), v2)

	_, _, err = Operands(&model.Metric{ID: 1})
	require.Error(t, err)
	assert.Equal(t, apperr.CodeInvalidMetricDefinition, apperr.CodeOf(err))
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
}

func TestValidate(t *testing.T) {
	badOp := model.Operator("%")
	tests := []struct {
		name string
		m    model.Metric
		code string
	}{
		{name: "leaf ok", m: model.Metric{Name: "Calls", Type: model.MetricTypeInteger}},
		{name: "calculated ok", m: calculated(0, model.OpDiv, 1, 2)},
		{name: "missing name", m: model.Metric{Type: model.MetricTypeInteger}, code: apperr.CodeInvalidMetricDefinition},
		{name: "bad type", m: model.Metric{Name: "x", Type: "money"}, code: apperr.CodeInvalidMetricDefinition},
		{
			name: "leaf with operand",
			m:    model.Metric{Name: "x", Type: model.MetricTypeInteger, Value1ID: ptr(int64(1))},
			code: apperr.CodeInvalidMetricDefinition,
		},
		{
			name: "calculated flag without operator",
			m:    model.Metric{Name: "x", Type: model.MetricTypeInteger, IsCalculated: true},
			code: apperr.CodeInvalidMetricDefinition,
		},
		{
			name: "unsupported operator",
			m:    model.Metric{Name: "x", Type: model.MetricTypeInteger, Operator: &badOp, Value1ID: ptr(int64(1)), Value2ID: ptr(int64(2))},
			code: apperr.CodeInvalidMetricDefinition,
		},
		{
			name: "missing operand",
			m:    model.Metric{Name: "x", Type: model.MetricTypeInteger, Operator: ptr(model.OpAdd), Value1ID: ptr(int64(1))},
			code: apperr.CodeInvalidMetricDefinition,
		},
		{name: "self reference", m: calculated(5, model.OpAdd, 5, 2), code: apperr.CodeDependencyCycle},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(&tt.m)
			if tt.code == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Equal(t, tt.code, apperr.CodeOf(err))
		})
	}
}

func TestNormalize(t *testing.T) {
	leaf := model.Metric{IsCalculated: true, Value1ID: ptr(int64(1))}
	Normalize(&leaf)
	assert.False(t, leaf.IsCalculated)
	assert.Nil(t, leaf.Value1ID)

	m := model.Metric{Operator: ptr(model.OpSub), Value1ID: ptr(int64(1)), Value2ID: ptr(int64(2))}
	Normalize(&m)
	assert.True(t, m.IsCalculated)
	assert.NotNil(t, m.Value2ID)
}

func TestApply(t *testing.T) {
	assert.Equal(t, 7.0, Apply(3, model.OpAdd, 4))
	assert.Equal(t, -1.0, Apply(3, model.OpSub, 4))
	assert.Equal(t, 12.0, Apply(3, model.OpMul, 4))
	assert.Equal(t, 0.75, Apply(3, model.OpDiv, 4))
	assert.Equal(t, 0.0, Apply(3, model.OpDiv, 0))
	assert.Equal(t, 3.0, Apply(3, model.Operator("^"), 4))
}

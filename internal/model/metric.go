package model

import (
	"strings"
	"time"

	"golang.org/x/text/cases"
)

// MetricType is the semantic type of a metric's values.
type MetricType string

const (
	MetricTypeInteger MetricType = "integer"
	MetricTypeNumeric MetricType = "numeric"
	MetricTypePercent MetricType = "percent"
)

// Valid reports whether t is a known metric type.
func (t MetricType) Valid() bool {
	switch t {
	case MetricTypeInteger, MetricTypeNumeric, MetricTypePercent:
		return true
	}
	return false
}

// Operator combines the two operands of a calculated metric.
type Operator string

const (
	OpAdd Operator = "+"
	OpSub Operator = "-"
	OpMul Operator = "*"
	OpDiv Operator = "/"
)

// Valid reports whether o is one of + - * /.
func (o Operator) Valid() bool {
	switch o {
	case OpAdd, OpSub, OpMul, OpDiv:
		return true
	}
	return false
}

// Metric is either a leaf (submitted directly) or calculated from two operand metrics.
type Metric struct {
	ID           int64      `json:"id"`
	Name         string     `json:"name"`
	Type         MetricType `json:"type"`
	IsCalculated bool       `json:"is_calculated"`
	Operator     *Operator  `json:"operator,omitempty"`
	Value1ID     *int64     `json:"value1_id,omitempty"`
	Value2ID     *int64     `json:"value2_id,omitempty"`
	IsDefault    bool       `json:"is_default"`
	CompanyID    *int64     `json:"company_id,omitempty"` // owner; nil for company-independent defaults
	CreatedBy    *int64     `json:"created_by,omitempty"`
	Deleted      bool       `json:"-"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// CompanyMetric attaches a metric to a company with an optional display label.
type CompanyMetric struct {
	CompanyID int64  `json:"company_id"`
	MetricID  int64  `json:"metric_id"`
	Label     string `json:"label,omitempty"`
}

// NameKey returns the case-folded, whitespace-collapsed form of a metric name
// used for uniqueness checks.
func NameKey(name string) string {
	return cases.Fold().String(strings.Join(strings.Fields(name), " "))
}

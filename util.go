package federation

import (
	"errors"
	"net/http"
	"regexp"
	"strings"
)

// HTTPDoer is an interface for making HTTP requests.
// It is implemented by *http.Client and can be mocked in tests.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Validation errors
var (
	ErrInvalidMetricName = errors.New("invalid metric name")
	ErrInvalidLabelKey   = errors.New("invalid label key")
	ErrInvalidLabelValue = errors.New("invalid label value")
)

// metricNameRegex validates metric names: alphanumeric, underscores, dots, colons.
// Must start with a letter or underscore.
var metricNameRegex = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_.:]*$`)

// labelKeyRegex validates label keys: alphanumeric and underscores.
var labelKeyRegex = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// maxMetricNameLen is the maximum allowed metric name length
const maxMetricNameLen = 256

// maxLabelKeyLen is the maximum allowed label key length
const maxLabelKeyLen = 128

// maxLabelValueLen is the maximum allowed label value length
const maxLabelValueLen = 512

// ValidateMetricName validates a metric name.
func ValidateMetricName(name string) error {
	if name == "" {
		return ErrInvalidMetricName
	}
	if len(name) > maxMetricNameLen {
		return ErrInvalidMetricName
	}
	if strings.Contains(name, "..") || strings.HasPrefix(name, "/") {
		return ErrInvalidMetricName
	}
	if !metricNameRegex.MatchString(name) {
		return ErrInvalidMetricName
	}
	return nil
}

// ValidateLabelKey validates a label key.
func ValidateLabelKey(key string) error {
	if key == "" {
		return ErrInvalidLabelKey
	}
	if len(key) > maxLabelKeyLen {
		return ErrInvalidLabelKey
	}
	if !labelKeyRegex.MatchString(key) {
		return ErrInvalidLabelKey
	}
	return nil
}

// ValidateLabelValue validates a label value.
func ValidateLabelValue(value string) error {
	if len(value) > maxLabelValueLen {
		return ErrInvalidLabelValue
	}
	for _, r := range value {
		if r < 32 && r != '\t' {
			return ErrInvalidLabelValue
		}
	}
	return nil
}

// ValidateWritePoint validates a decoded write point's metric name and labels.
func ValidateWritePoint(p *WritePoint) error {
	if err := ValidateMetricName(p.Metric); err != nil {
		return err
	}
	for k, v := range p.Labels {
		if err := ValidateLabelKey(k); err != nil {
			return err
		}
		if err := ValidateLabelValue(v); err != nil {
			return err
		}
	}
	return nil
}

package federation

import (
	"errors"
	"strings"
	"testing"
)

func TestValidateMetricName(t *testing.T) {
	tests := []struct {
		name    string
		metric  string
		wantErr bool
	}{
		{"valid simple", "cpu", false},
		{"valid with underscore", "cpu_usage", false},
		{"valid with dot", "system.cpu", false},
		{"valid with colon", "cpu:1m0s:mean", false},
		{"valid starting underscore", "_internal", false},
		{"valid complex", "node_cpu_seconds_total", false},
		{"empty", "", true},
		{"starts with number", "1cpu", true},
		{"contains dash", "cpu-usage", true},
		{"contains space", "cpu usage", true},
		{"path traversal", "../etc/passwd", true},
		{"absolute path", "/etc/passwd", true},
		{"double dot", "cpu..usage", true},
		{"too long", strings.Repeat("a", 257), true},
		{"max length", strings.Repeat("a", 256), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateMetricName(tt.metric)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateMetricName(%q) error = %v, wantErr %v", tt.metric, err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidMetricName) {
				t.Errorf("error should match ErrInvalidMetricName, got %v", err)
			}
		})
	}
}

func TestValidateLabelKey(t *testing.T) {
	tests := []struct {
		name    string
		key     string
		wantErr bool
	}{
		{"valid simple", "host", false},
		{"valid with underscore", "host_name", false},
		{"valid starting underscore", "_internal", false},
		{"valid with numbers", "host1", false},
		{"empty", "", true},
		{"starts with number", "1host", true},
		{"contains dot", "host.name", true},
		{"contains dash", "host-name", true},
		{"contains space", "host name", true},
		{"too long", strings.Repeat("a", 129), true},
		{"max length", strings.Repeat("a", 128), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateLabelKey(tt.key)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateLabelKey(%q) error = %v, wantErr %v", tt.key, err, tt.wantErr)
			}
		})
	}
}

func TestValidateLabelValue(t *testing.T) {
	tests := []struct {
		name    string
		value   string
		wantErr bool
	}{
		{"valid simple", "server1", false},
		{"valid with spaces", "my server", false},
		{"valid with special chars", "us-east-1", false},
		{"valid with dots", "10.0.0.1", false},
		{"empty allowed", "", false},
		{"tab allowed", "a\tb", false},
		{"newline rejected", "a\nb", true},
		{"control char rejected", "a\x01b", true},
		{"too long", strings.Repeat("a", 513), true},
		{"max length", strings.Repeat("a", 512), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateLabelValue(tt.value)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateLabelValue(%q) error = %v, wantErr %v", tt.value, err, tt.wantErr)
			}
		})
	}
}

func TestValidateWritePoint(t *testing.T) {
	tests := []struct {
		name    string
		point   WritePoint
		wantErr error
	}{
		{
			"valid",
			WritePoint{Metric: "cpu_usage", Labels: map[string]string{"host": "a"}, Value: 1},
			nil,
		},
		{
			"bad metric",
			WritePoint{Metric: "1cpu"},
			ErrInvalidMetricName,
		},
		{
			"bad label key",
			WritePoint{Metric: "cpu", Labels: map[string]string{"bad-key": "v"}},
			ErrInvalidLabelKey,
		},
		{
			"bad label value",
			WritePoint{Metric: "cpu", Labels: map[string]string{"host": "a\nb"}},
			ErrInvalidLabelValue,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateWritePoint(&tt.point)
			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("ValidateWritePoint() = %v, want nil", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("ValidateWritePoint() = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

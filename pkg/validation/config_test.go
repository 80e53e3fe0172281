package validation

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func TestConfigValidator_Required(t *testing.T) {
	cv := NewConfigValidator("ClusterConfig")
	cv.Required("ServerID", "")

	if !cv.HasErrors() {
		t.Error("Expected error for empty required field")
	}

	cv2 := NewConfigValidator("ClusterConfig")
	cv2.Required("ServerID", "s1")

	if cv2.HasErrors() {
		t.Error("Expected no error for non-empty required field")
	}
}

func TestConfigValidator_Durations(t *testing.T) {
	cv := NewConfigValidator("ClusterConfig")
	cv.RequiredDuration("AnswerTimeout", 0).
		MinDuration("ProbeTimeout", 10*time.Millisecond, time.Second)

	if len(cv.Errors()) != 2 {
		t.Errorf("Expected 2 errors, got %d", len(cv.Errors()))
	}

	cv2 := NewConfigValidator("ClusterConfig")
	cv2.RequiredDuration("AnswerTimeout", time.Second).
		MinDuration("ProbeTimeout", 5*time.Second, time.Second)

	if cv2.HasErrors() {
		t.Errorf("Expected no errors, got %v", cv2.Validate())
	}
}

func TestConfigValidator_RangeInt(t *testing.T) {
	tests := []struct {
		value   int
		wantErr bool
	}{
		{0, false},
		{4444, false},
		{65535, false},
		{-1, true},
		{65536, true},
	}

	for _, tt := range tests {
		cv := NewConfigValidator("ServerInfo")
		cv.RangeInt("ManagementPort", tt.value, 0, 65535)
		if cv.HasErrors() != tt.wantErr {
			t.Errorf("RangeInt(%d) error = %v, wantErr %v", tt.value, cv.HasErrors(), tt.wantErr)
		}
	}
}

func TestConfigValidator_PositiveNonNegative(t *testing.T) {
	cv := NewConfigValidator("ClusterConfig")
	cv.Positive("FailureThreshold", 0).NonNegative("MaxElectionRetries", -1)
	if len(cv.Errors()) != 2 {
		t.Errorf("Expected 2 errors, got %d", len(cv.Errors()))
	}

	cv2 := NewConfigValidator("ClusterConfig")
	cv2.Positive("FailureThreshold", 3).NonNegative("MaxElectionRetries", 0)
	if cv2.HasErrors() {
		t.Errorf("Expected no errors, got %v", cv2.Validate())
	}
}

func TestConfigValidator_OneOf(t *testing.T) {
	allowed := []string{"mangos", "nats", "zmq"}

	cv := NewConfigValidator("TransportConfig")
	cv.OneOf("Kind", "carrier-pigeon", allowed)
	if !cv.HasErrors() {
		t.Error("Expected error for value not in allowed list")
	}

	cv2 := NewConfigValidator("TransportConfig")
	cv2.OneOf("Kind", "nats", allowed)
	if cv2.HasErrors() {
		t.Error("Expected no error for allowed value")
	}
}

func TestConfigValidator_CustomAndWhen(t *testing.T) {
	sentinel := errors.New("bad id")

	cv := NewConfigValidator("ClusterConfig")
	cv.Custom("ServerID", func() error { return sentinel }).
		When(false, func(v *ConfigValidator) { v.Required("Skipped", "") })

	err := cv.Validate()
	if !errors.Is(err, sentinel) {
		t.Errorf("Expected wrapped sentinel, got %v", err)
	}
	if len(cv.Errors()) != 1 {
		t.Errorf("When(false) should not add errors, got %d", len(cv.Errors()))
	}
}

func TestConfigValidator_ValidateJoinsErrors(t *testing.T) {
	cv := NewConfigValidator("ClusterConfig")
	cv.Required("ServerID", "").Positive("FailureThreshold", 0)

	err := cv.Validate()
	if err == nil {
		t.Fatal("Expected error from Validate()")
	}
	for _, want := range []string{"ServerID", "FailureThreshold"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("Validate() = %q, missing %s", err, want)
		}
	}

	if NewConfigValidator("Empty").Validate() != nil {
		t.Error("Expected nil from an empty validator")
	}
}

func TestDefaults(t *testing.T) {
	if DefaultOrInt(0, 3) != 3 || DefaultOrInt(5, 3) != 5 {
		t.Error("DefaultOrInt returned the wrong value")
	}
	if DefaultOrDuration(0, time.Second) != time.Second {
		t.Error("Expected default for zero duration")
	}
	if DefaultOrDuration(2*time.Second, time.Second) != 2*time.Second {
		t.Error("Expected value for positive duration")
	}
}

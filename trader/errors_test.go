package trader

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/adshao/go-binance/v2/common"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected Class
	}{
		{"nil", nil, ClassTransient},
		{"insufficient funds sentinel", fmt.Errorf("place: %w", ErrInsufficientFunds), ClassRisk},
		{"order not found", ErrOrderNotFound, ClassPermanent},
		{"min notional", ErrMinNotional, ClassPermanent},
		{"context canceled", context.Canceled, ClassTransient},
		{"rate limit", &common.APIError{Code: -1003, Message: "too many requests"}, ClassTransient},
		{"margin insufficient", &common.APIError{Code: -2019, Message: "margin is insufficient"}, ClassRisk},
		{"unknown order", &common.APIError{Code: -2011, Message: "unknown order sent"}, ClassPermanent},
		{"bad api key", &common.APIError{Code: -2014, Message: "api-key format invalid"}, ClassFatal},
		{"parameter error", &common.APIError{Code: -1102, Message: "mandatory parameter missing"}, ClassPermanent},
		{"timeout text", errors.New("request timeout"), ClassTransient},
		{"insufficient text", errors.New("insufficient balance"), ClassRisk},
		{"parse failure", errors.New("invalid character in json"), ClassData},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.err); got != tt.expected {
				t.Errorf("Classify(%v) = %s, expected %s", tt.err, got, tt.expected)
			}
		})
	}
}

func TestRetryable(t *testing.T) {
	if !Retryable(errors.New("connection reset")) {
		t.Error("Expected connection errors to be retryable")
	}
	if Retryable(ErrInsufficientFunds) {
		t.Error("Expected risk errors not to be retryable")
	}
	if Retryable(&common.APIError{Code: -2014}) {
		t.Error("Expected auth errors not to be retryable")
	}
}

func TestRoundToStep(t *testing.T) {
	tests := []struct {
		value, step, expected float64
	}{
		{0.123456, 0.001, 0.123},
		{95.7, 0.5, 95.5},
		{100.0, 0.01, 100.0},
		{0.0019, 0.001, 0.001},
		{5.0, 0, 5.0},
	}
	for _, tt := range tests {
		if got := roundToStep(tt.value, tt.step); got != tt.expected {
			t.Errorf("roundToStep(%v, %v) = %v, expected %v", tt.value, tt.step, got, tt.expected)
		}
	}
}

func TestFormatStep(t *testing.T) {
	if got := formatStep(95.5, 0.5); got != "95.5" {
		t.Errorf("Expected 95.5, got %s", got)
	}
	if got := formatStep(0.123, 0.001); got != "0.123" {
		t.Errorf("Expected 0.123, got %s", got)
	}
	if got := formatStep(100, 1); got != "100" {
		t.Errorf("Expected 100, got %s", got)
	}
}

func TestClientID(t *testing.T) {
	id := NewClientID()
	if !IsOurOrder(id) {
		t.Errorf("Expected generated id %q to be recognized as ours", id)
	}
	if IsOurOrder("web_abcdef") {
		t.Error("Expected foreign client id to be rejected")
	}
}

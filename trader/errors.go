package trader

import (
	"context"
	"errors"
	"net"
	"strings"

	"github.com/adshao/go-binance/v2/common"
)

// Class buckets exchange errors so callers know whether to retry, skip or
// shut down
type Class int

const (
	// ClassTransient covers timeouts, rate limits, 5xx: retry with backoff
	ClassTransient Class = iota
	// ClassPermanent covers rejected requests that retries will not fix
	ClassPermanent
	// ClassData covers malformed or inconsistent exchange responses
	ClassData
	// ClassRisk covers venue-side risk rejections, insufficient margin
	ClassRisk
	// ClassFatal covers auth failures and anything requiring operator action
	ClassFatal
)

func (c Class) String() string {
	switch c {
	case ClassTransient:
		return "transient"
	case ClassPermanent:
		return "permanent"
	case ClassData:
		return "data"
	case ClassRisk:
		return "risk"
	case ClassFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Sentinel errors surfaced to the grid loop
var (
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrOrderNotFound     = errors.New("order not found")
	ErrMinNotional       = errors.New("order below minimum notional")
)

// Classify maps an error onto its class. Unknown errors default to
// transient so a flaky venue does not kill the loop.
func Classify(err error) Class {
	if err == nil {
		return ClassTransient
	}

	if errors.Is(err, ErrInsufficientFunds) {
		return ClassRisk
	}
	if errors.Is(err, ErrOrderNotFound) || errors.Is(err, ErrMinNotional) {
		return ClassPermanent
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return ClassTransient
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return ClassTransient
	}

	var apiErr *common.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case -1003, -1015: // rate limits
			return ClassTransient
		case -1021: // timestamp outside recv window
			return ClassTransient
		case -2019, -4164: // margin insufficient / notional too small
			return ClassRisk
		case -2011, -2013: // unknown order
			return ClassPermanent
		case -2014, -2015, -1022: // bad API key / signature
			return ClassFatal
		}
		if apiErr.Code <= -1100 && apiErr.Code > -1200 {
			// parameter errors
			return ClassPermanent
		}
		return ClassTransient
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "insufficient"):
		return ClassRisk
	case strings.Contains(msg, "timeout"), strings.Contains(msg, "connection"),
		strings.Contains(msg, "temporarily"), strings.Contains(msg, "eof"):
		return ClassTransient
	case strings.Contains(msg, "invalid"), strings.Contains(msg, "unmarshal"):
		return ClassData
	}
	return ClassTransient
}

// Retryable reports whether an error is worth retrying
func Retryable(err error) bool {
	return Classify(err) == ClassTransient
}

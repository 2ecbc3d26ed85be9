// Package glog holds logging helpers for log/slog.
package glog

import (
	"encoding/hex"
	"log/slog"
)

// Hex wraps a byte slice so it renders as lowercase hex in log output.
type Hex []byte

func (v Hex) LogValue() slog.Value {
	return slog.StringValue(hex.EncodeToString(v))
}

// ShortHex renders only the first four bytes,
// which is enough to tell digests apart in logs.
type ShortHex []byte

func (v ShortHex) LogValue() slog.Value {
	if len(v) > 4 {
		return slog.StringValue(hex.EncodeToString(v[:4]))
	}
	return slog.StringValue(hex.EncodeToString(v))
}

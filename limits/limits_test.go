package limits

import (
	"bytes"
	"errors"
	"testing"
)

func TestBlockSizesFitCryptoBound(t *testing.T) {
	// Both encrypted regions must fit inside a single crypto operation.
	if CommandBlockSize > MaxCryptoPayload {
		t.Errorf("CommandBlockSize = %d exceeds MaxCryptoPayload %d", CommandBlockSize, MaxCryptoPayload)
	}
	if TelemetryBlockSize > MaxCryptoPayload {
		t.Errorf("TelemetryBlockSize = %d exceeds MaxCryptoPayload %d", TelemetryBlockSize, MaxCryptoPayload)
	}
}

func TestValidatePayloadSize(t *testing.T) {
	cases := []struct {
		name    string
		payload []byte
		max     int
		wantErr error
	}{
		{name: "nil payload", payload: nil, max: 16, wantErr: ErrPayloadEmpty},
		{name: "empty payload", payload: []byte{}, max: 16, wantErr: ErrPayloadEmpty},
		{name: "at limit", payload: bytes.Repeat([]byte{0xAA}, 16), max: 16, wantErr: nil},
		{name: "over limit", payload: bytes.Repeat([]byte{0xAA}, 17), max: 16, wantErr: ErrPayloadTooLarge},
		{name: "single byte", payload: []byte{0x01}, max: 16, wantErr: nil},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidatePayloadSize(tc.payload, tc.max)
			if tc.wantErr == nil {
				if err != nil {
					t.Fatalf("ValidatePayloadSize() unexpected error: %v", err)
				}
				return
			}
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("ValidatePayloadSize() error = %v, want %v", err, tc.wantErr)
			}
		})
	}
}

func TestValidateCryptoPayload(t *testing.T) {
	if err := ValidateCryptoPayload(make([]byte, MaxCryptoPayload)); err != nil {
		t.Errorf("payload at MaxCryptoPayload should pass: %v", err)
	}

	err := ValidateCryptoPayload(make([]byte, MaxCryptoPayload+1))
	if !errors.Is(err, ErrPayloadTooLarge) {
		t.Errorf("oversized payload error = %v, want ErrPayloadTooLarge", err)
	}

	if !errors.Is(ValidateCryptoPayload(nil), ErrPayloadEmpty) {
		t.Error("nil payload should return ErrPayloadEmpty")
	}
}

func TestValidateFrame(t *testing.T) {
	if err := ValidateFrame(make([]byte, MaxPacketSize)); err != nil {
		t.Errorf("frame at MaxPacketSize should pass: %v", err)
	}

	if !errors.Is(ValidateFrame(make([]byte, MaxPacketSize+1)), ErrPayloadTooLarge) {
		t.Error("oversized frame should return ErrPayloadTooLarge")
	}
}

package clientrpc

import (
	"errors"
	"testing"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestNormalizeErrorMapsKnownCodes(t *testing.T) {
	cases := []struct {
		name string
		in   error
		want error
	}{
		{"not found", status.Error(codes.NotFound, "missing"), ErrNotFound},
		{"unavailable", status.Error(codes.Unavailable, "down"), ErrUnavailable},
		{"deadline exceeded", status.Error(codes.DeadlineExceeded, "slow"), ErrDeadlineExceeded},
		{"unknown code", status.Error(codes.Internal, "boom"), ErrInternal},
		{"non-status error", errors.New("plain"), ErrInternal},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := normalizeError(tc.in)
			if !errors.Is(got, tc.want) {
				t.Fatalf("normalizeError(%v) = %v, want %v", tc.in, got, tc.want)
			}
		})
	}
}

func TestNormalizeErrorNil(t *testing.T) {
	if err := normalizeError(nil); err != nil {
		t.Fatalf("normalizeError(nil) = %v, want nil", err)
	}
}

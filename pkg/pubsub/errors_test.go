package pubsub

import (
	"context"
	"errors"
	"testing"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestIsTransient(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{name: "nil", err: nil, want: false},
		{name: "unavailable", err: status.Error(codes.Unavailable, "broker down"), want: true},
		{name: "deadline code", err: status.Error(codes.DeadlineExceeded, "timed out"), want: true},
		{name: "resource exhausted", err: status.Error(codes.ResourceExhausted, "quota"), want: true},
		{name: "aborted", err: status.Error(codes.Aborted, "conflict"), want: true},
		{name: "internal", err: status.Error(codes.Internal, "server"), want: true},
		{name: "not found", err: status.Error(codes.NotFound, "missing topic"), want: false},
		{name: "invalid argument", err: status.Error(codes.InvalidArgument, "bad message"), want: false},
		{name: "permission denied", err: status.Error(codes.PermissionDenied, "iam"), want: false},
		{name: "context deadline", err: context.DeadlineExceeded, want: true},
		{name: "plain error", err: errors.New("boom"), want: false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := IsTransient(tc.err); got != tc.want {
				t.Fatalf("IsTransient(%v) = %v, want %v", tc.err, got, tc.want)
			}
		})
	}
}

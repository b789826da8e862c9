package blockstore

import (
	"fmt"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// NotFoundError reports an operation addressed to a block, temp block
// or lock that does not exist.
func NotFoundError(format string, args ...interface{}) error {
	return status.Errorf(codes.NotFound, format, args...)
}

// AlreadyExistsError reports an attempt to create or commit a block
// whose identity is already in use.
func AlreadyExistsError(format string, args ...interface{}) error {
	return status.Errorf(codes.AlreadyExists, format, args...)
}

// InvalidStateError reports a precondition violation against an
// existing entity, such as a session mismatch or an operation that
// only applies to committed blocks being issued against a temp block.
func InvalidStateError(format string, args ...interface{}) error {
	return status.Errorf(codes.FailedPrecondition, format, args...)
}

// OutOfSpaceError reports that no eviction plan could free enough
// space to satisfy a request.
func OutOfSpaceError(format string, args ...interface{}) error {
	return status.Errorf(codes.ResourceExhausted, format, args...)
}

// IOError wraps an underlying FileOps failure, preserving its message
// while mapping it onto the store's error taxonomy.
func IOError(err error, format string, args ...interface{}) error {
	return status.Errorf(codes.Internal, "%s: %s", fmt.Sprintf(format, args...), err)
}

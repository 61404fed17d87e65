package dialect

import (
	"context"
	"database/sql/driver"
	"errors"
	"net"
	"syscall"
)

// Class is the store-level meaning of a driver error.
type Class int

const (
	ClassNone Class = iota
	// ClassOther is any error the store propagates unchanged.
	ClassOther
	// ClassDuplicate is a uniqueness violation on a natural key.
	ClassDuplicate
	// ClassUnavailable is a transient connectivity or contention failure.
	ClassUnavailable
)

func (c Class) String() string {
	switch c {
	case ClassNone:
		return "none"
	case ClassDuplicate:
		return "duplicate"
	case ClassUnavailable:
		return "unavailable"
	default:
		return "other"
	}
}

// classifyCommon recognizes failures that look the same for every driver.
func classifyCommon(err error) Class {
	if errors.Is(err, driver.ErrBadConn) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNRESET) {
		return ClassUnavailable
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return ClassUnavailable
	}
	return ClassOther
}

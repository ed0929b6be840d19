package memory

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	// ErrModelUnavailable is returned when the embedding provider cannot
	// produce a vector. Saves still succeed; the record stays pending.
	ErrModelUnavailable = errors.New("embedding model unavailable")

	// ErrCapabilityUnavailable is returned when the vector search extension
	// is absent and the engine runs in trigger-only mode.
	ErrCapabilityUnavailable = errors.New("vector capability unavailable")

	// ErrStoreUnavailable is returned when the persistent store cannot be
	// reached (closed, locked, missing).
	ErrStoreUnavailable = errors.New("store unavailable")

	// ErrInvalidArgument is returned for programmer errors. It is the one
	// category reported to callers immediately instead of degraded.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrNotFound matches any NotFoundError via errors.Is.
	ErrNotFound = errors.New("not found")
)

// NotFoundError is returned when a load references a record or anchor that
// does not exist.
type NotFoundError struct {
	ID         int64
	SpecFolder string
	AnchorID   string

	// Anchors lists the anchors the memory does have, when an anchor lookup
	// missed.
	Anchors []string
}

func (e NotFoundError) Error() string {
	msg := e.message()
	if e.AnchorID != "" && len(e.Anchors) > 0 {
		msg += " (available: " + strings.Join(e.Anchors, ", ") + ")"
	}
	return msg
}

func (e NotFoundError) message() string {
	switch {
	case e.AnchorID != "" && e.ID != 0:
		return "anchor " + strconv.Quote(e.AnchorID) + " not found in memory " + strconv.FormatInt(e.ID, 10)
	case e.AnchorID != "":
		return fmt.Sprintf("anchor %q not found in spec folder %q", e.AnchorID, e.SpecFolder)
	case e.ID != 0:
		return "memory not found: " + strconv.FormatInt(e.ID, 10)
	case e.SpecFolder != "":
		return fmt.Sprintf("no memory in spec folder %q", e.SpecFolder)
	default:
		return "memory not found"
	}
}

// Is lets errors.Is(err, ErrNotFound) match NotFoundError values.
func (e NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// IsNotFound reports whether err is, or wraps, a NotFoundError.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// InvalidArgumentf wraps ErrInvalidArgument with a formatted message.
func InvalidArgumentf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidArgument, fmt.Sprintf(format, args...))
}

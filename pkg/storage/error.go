package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/papercomputeco/recall/pkg/memory"
)

// Unavailable wraps err with memory.ErrStoreUnavailable when it indicates the
// store cannot be reached (closed handle, connection gone). Other errors are
// returned unchanged.
func Unavailable(err error) error {
	if err == nil || errors.Is(err, memory.ErrStoreUnavailable) {
		return err
	}

	if errors.Is(err, sql.ErrConnDone) || strings.Contains(err.Error(), "database is closed") {
		return fmt.Errorf("%w: %v", memory.ErrStoreUnavailable, err)
	}

	return err
}

package data

import (
	"errors"

	kerrors "github.com/go-kratos/kratos/v2/errors"
)

// ErrSnapshotNotFound is returned when no snapshot exists for a lookup.
var ErrSnapshotNotFound = kerrors.NotFound("SNAPSHOT_NOT_FOUND", "snapshot not found")

// IsSnapshotNotFound reports whether err is or wraps ErrSnapshotNotFound.
func IsSnapshotNotFound(err error) bool {
	return errors.Is(err, ErrSnapshotNotFound)
}

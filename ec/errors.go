package ec

import (
	"syscall"

	"github.com/pkg/errors"
)

// Error kinds from the taxonomy: each wraps the brick-visible errno the
// upper layer ultimately sees, but is distinguishable in logs and in
// tests via errors.Is.
var (
	// ErrBrickUnavailable means a reply never arrived, or the brick
	// connection was down at dispatch time.
	ErrBrickUnavailable = errors.New("ec: brick unavailable")

	// ErrInsufficientBricks means popcount(mask) < minimum and < K.
	ErrInsufficientBricks = errors.New("ec: insufficient bricks")

	// ErrLockFailed means an inodelk/entrylk round failed on enough
	// bricks that the fop cannot proceed.
	ErrLockFailed = errors.New("ec: lock failed")

	// ErrMetadataCorrupt means VERSION/SIZE/CONFIG could not be
	// decoded, or CONFIG mismatched across bricks.
	ErrMetadataCorrupt = errors.New("ec: xattr metadata corrupt")

	// ErrAnswerDivergence means no answer group reached minimum.
	ErrAnswerDivergence = errors.New("ec: answer divergence")

	// ErrHealBusy means the background heal queue is full.
	ErrHealBusy = errors.New("ec: heal queue busy")
)

// Errno maps an engine error to the errno the upper layer should see,
// per spec.md §7. Errors not in the taxonomy pass through unchanged
// when they already carry a syscall.Errno (e.g. a brick-reported
// failure), else default to EIO.
func Errno(err error) syscall.Errno {
	if err == nil {
		return 0
	}
	switch {
	case errors.Is(err, ErrInsufficientBricks):
		return syscall.ENOTCONN
	case errors.Is(err, ErrMetadataCorrupt):
		return syscall.EIO
	case errors.Is(err, ErrAnswerDivergence):
		return syscall.EIO
	case errors.Is(err, ErrHealBusy):
		return syscall.EBUSY
	}
	var errno syscall.Errno
	if errors.As(err, &errno) {
		return errno
	}
	return syscall.EIO
}

// IsRecoverableRead reports whether errno is one of the errnos that
// justify a one-shot retry of a single-brick read-only fop on another
// brick (spec.md §4.1): connection reset, stale handle, missing entry,
// bad fd, or I/O error.
func IsRecoverableRead(errno syscall.Errno) bool {
	switch errno {
	case syscall.ECONNRESET, syscall.ESTALE, syscall.ENOENT, syscall.EBADF, syscall.EIO:
		return true
	default:
		return false
	}
}

// UpgradeWriteError upgrades a propagated child error to EIO when the
// parent fop had already committed a side-effecting write, signalling
// partial update to the upper layer rather than the child's original
// errno (spec.md §7 propagation rule).
func UpgradeWriteError(committed bool, err error) error {
	if err == nil || !committed {
		return err
	}
	return errors.Wrapf(syscall.EIO, "partial update committed before error: %v", err)
}

package dispatch

import (
	"io/fs"
	"os"
	"strconv"

	"github.com/pkg/errors"
)

// ErrLocked is returned when another dispatcher holds the lock.
var ErrLocked = errors.New("dispatcher already running")

// Lock is an exclusive lock file holding the owner's pid.
type Lock struct {
	path string
}

// AcquireLock creates path exclusively. It fails with ErrLocked if the file exists.
func AcquireLock(path string) (*Lock, error) {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			return nil, ErrLocked
		}
		return nil, errors.Wrapf(err, "create lock %s", path)
	}
	defer f.Close()

	if _, err := f.WriteString(strconv.Itoa(os.Getpid())); err != nil {
		_ = os.Remove(path)
		return nil, errors.Wrapf(err, "write lock %s", path)
	}
	return &Lock{path: path}, nil
}

// Release removes the lock file. Releasing twice is harmless.
func (l *Lock) Release() error {
	if err := os.Remove(l.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return errors.Wrapf(err, "remove lock %s", l.path)
	}
	return nil
}

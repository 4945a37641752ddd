package staging

import (
	"os"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// removeTimeout bounds how long Remove keeps retrying.
var removeTimeout = 2 * time.Second

// Remove deletes dir and everything in it. Removal is retried with
// exponential backoff because an assistant process that has just exited may
// still hold its attachments open for a moment, which blocks deletion on
// Windows. A missing dir is not an error.
func Remove(dir string) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 50 * time.Millisecond
	b.MaxElapsedTime = removeTimeout

	err := backoff.Retry(func() error {
		return os.RemoveAll(dir)
	}, b)
	if err != nil {
		return &ScratchDirError{Op: "remove", Path: dir, Err: err}
	}
	return nil
}

//go:build !unix

package store

import "os"

// lockFile is a no-op where flock is unavailable; one writer per log is assumed.
func lockFile(*os.File) error {
	return nil
}

func unlockFile(*os.File) error {
	return nil
}

//go:build !(linux || darwin || freebsd || netbsd || openbsd || dragonfly || windows)

package auth

import "os"

func tryLockFile(*os.File) error {
	return errLockUnsupported
}

func unlockFile(*os.File) error {
	return nil
}

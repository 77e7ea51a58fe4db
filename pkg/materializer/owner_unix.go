//go:build unix

package materializer

import "golang.org/x/sys/unix"

func IsElevated() bool {
	return unix.Geteuid() == 0
}

func ChownUser(path string, uid int) error {
	return unix.Chown(path, uid, -1)
}

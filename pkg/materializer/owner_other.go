//go:build !unix

package materializer

// Ownership is left to the platform default outside unix.
func IsElevated() bool {
	return false
}

func ChownUser(path string, uid int) error {
	return nil
}

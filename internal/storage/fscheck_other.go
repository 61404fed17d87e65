//go:build !darwin && !linux

package storage

// Without statfs there is nothing to inspect; the path is assumed local.
func detectFilesystemType(string) (string, error) {
	return "", errFilesystemUnknown
}

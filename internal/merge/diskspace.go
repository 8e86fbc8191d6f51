package merge

import "golang.org/x/sys/unix"

// availableDiskSpace reports the number of bytes free on the
// filesystem that holds path.
func availableDiskSpace(path string) (uint64, error) {
	var stat unix.Statfs_t
	if err := unix.Statfs(path, &stat); err != nil {
		return 0, err
	}
	return stat.Bavail * uint64(stat.Bsize), nil
}

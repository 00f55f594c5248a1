//go:build !windows

package validation

import "syscall"

// freeSpace returns total and free bytes of the filesystem holding dir,
// counting only blocks available to unprivileged users as free.
func freeSpace(dir string) (total, free int64, err error) {
	var st syscall.Statfs_t
	if err := syscall.Statfs(dir, &st); err != nil {
		return 0, 0, err
	}
	return int64(st.Blocks) * int64(st.Bsize), int64(st.Bavail) * int64(st.Bsize), nil
}

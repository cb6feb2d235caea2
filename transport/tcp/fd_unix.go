//go:build unix

package tcp

import (
	"os"
	"syscall"
)

// dupFD duplicates fd so the caller receives ownership of an independent
// descriptor after we close our own net.Conn (spec §4.9 detach).
func dupFD(fd uintptr) (uintptr, error) {
	nfd, err := syscall.Dup(int(fd))
	if err != nil {
		return 0, err
	}
	return uintptr(nfd), nil
}

func fdFile(fd uintptr) *os.File {
	return os.NewFile(fd, "dsock-tcp")
}

//go:build !unix

package transport

import "syscall"

func controlReuseAddr(_, _ string, _ syscall.RawConn) error {
	return nil
}

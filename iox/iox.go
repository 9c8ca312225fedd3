// Package iox provides small I/O cleanup helpers.
package iox

import (
	"io"
	"os"
)

// DiscardClose closes c and discards the error.
// Use in defer statements where close errors are unactionable:
//
//	defer iox.DiscardClose(f)
func DiscardClose(c io.Closer) { _ = c.Close() }

// CloseFunc returns a cleanup function that closes c.
// Designed for t.Cleanup and b.Cleanup registration:
//
//	t.Cleanup(iox.CloseFunc(client))
func CloseFunc(c io.Closer) func() {
	return func() { _ = c.Close() }
}

// DiscardErr calls fn and discards the returned error.
// Use for non-Close cleanup calls (e.g. Logoff, Umount) where errors are
// unactionable:
//
//	defer iox.DiscardErr(sess.Logoff)
func DiscardErr(fn func() error) { _ = fn() }

// RemoveQuiet deletes path and discards the error. Use when removing
// best-effort temporaries whose absence is equivalent to success.
func RemoveQuiet(path string) { _ = os.Remove(path) }

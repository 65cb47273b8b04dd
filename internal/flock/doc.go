// Package flock provides cross-platform advisory file locking.
//
// The state store locks each task directory before mutating its files,
// so a resume started while another process still holds the task fails
// fast instead of interleaving writes. Exclusive and Shared locks are
// non-blocking on both Unix and Windows.
//
// Usage:
//
//	file, _ := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0600)
//	if err := flock.Exclusive(file.Fd()); err != nil {
//	    // Lock not acquired - another process owns the task
//	}
//	defer flock.Unlock(file.Fd())
package flock

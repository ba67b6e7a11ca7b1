// Package shell spawns and supervises child processes.
//
// Every child started through Spawn is tracked by the Scope carried in the
// caller's context and by a process-wide registry. A Job handle can be
// signaled from any goroutine while another goroutine is blocked in Wait:
// Wait first blocks until the child has exited without consuming its exit
// status, and only then reaps it, so the pid is never recycled while a
// signal could still be sent to it.
//
// Children are always reaped. Close releases a handle and reaps the child
// once the last handle is gone; handles that are simply dropped are reaped by
// a runtime cleanup.
//
// TrapSignals turns SIGINT and SIGTERM into an orderly shutdown: the signal is
// forwarded to every tracked child in every scope, all of them are waited
// for, and the process exits with status 128+signal.
//
// Closures run in a child process through re-execution of the current
// binary. They are registered by name with Register, and Init must be the
// first call in main (or TestMain):
//
//	func main() {
//		if shell.Init() {
//			return
//		}
//		...
//	}
//
// The package only builds on Linux.
package shell

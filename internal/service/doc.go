// Package service implements supervision and execution of worker subprocesses.
//
// Overview
// The Supervisor owns a registry of Handles keyed by correlation id. A
// caller submits a model.TaskRequest, the Supervisor builds the argument
// vector, starts the worker and returns the Handle. Only one Handle per
// correlation id may be live at a time.
//
// Each worker runs in its own process group. Its stdout and stderr are
// attached to protocol.Splitter writers, so os/exec's copy goroutines frame
// the output into lines:
//   - fetch info lines are concatenated and parsed as model.VideoInfo at exit
//   - download lines are decoded and passed to Observer.OnLine immediately
//   - stderr lines go to the stderr func and a bounded tail
//
// Data flow:
//
//	Submit ---> register Handle ---> run goroutine
//	                                   | exec.Cmd.Start
//	                                   | stdout copy goroutine -> Splitter -> OnLine
//	                                   | stderr copy goroutine -> Splitter -> tail
//	                                   | exec.Cmd.Wait
//	                                   | classify -> Exit
//	           remove from registry <--|
//	           exit funcs, OnExit, close(Done)
//
// Invariants:
//   - A terminal state never changes.
//   - The correlation id is free again before any exit observer runs.
//   - Every Handle produces exactly one Exit, also when the start fails.
//   - Cancel sends SIGTERM to the process group and SIGKILL after the
//     grace period.
//   - A task is Cancelled only when its worker was signalled before it was
//     reaped. Cancel on a reaped worker returns false, even while its
//     output is still being dispatched.
//   - Close returns only after every worker is gone.
package service

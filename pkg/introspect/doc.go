// Package introspect implements two process-introspection calls serviced on
// behalf of a caller whose memory sits across a trust boundary:
//
//   - ArrayStats reduces a caller-owned array of int64 to {min, max, sum}.
//   - ProcessAncestors walks from the calling process up its parent chain,
//     writing one types.ProcessInfo per visited process.
//
// Every access to caller memory goes through boundary.Memory and may fail
// on its own. Both calls fail fast on the first fault. Results are reported
// as errors matching ErrInvalidArgument or ErrFault; Errno turns them into
// the negative codes of the raw call ABI, and Syscall dispatches by number.
//
// The process graph is read without locks. Snapshots are best effort: a
// concurrently changing hierarchy yields whatever counts were observed at
// scan time.
package introspect

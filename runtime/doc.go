// Package runtime implements the sandboxed tenant runtime: a single-
// threaded, tick-driven execution environment that dispatches a batch of
// inbound tasks against a registered task table, tracks outstanding
// subtasks (queries, fetches, timers) by stable id, and emits a batch of
// outbound host messages.
//
// Task functions run to completion synchronously, with one exception: a
// task may return a *Pending value from ExecuteQuery/Fetch in place of a
// result, deferring its CallResult/CallError emission to that subtask's
// resolution on a later tick. This models a single tail await per task
// invocation — the one pattern nearly every task actually needs (issue one
// query or fetch, return its result) — rather than a full coroutine chain.
// A task that needs to await more than once per invocation must split
// itself across its own subtask's resolve callback instead of chaining a
// second ExecuteQuery off the first's result; there is no continuation-
// monad equivalent to lean on in idiomatic Go, and building one would cost
// far more clarity than the uncommon multi-step case is worth.
package runtime

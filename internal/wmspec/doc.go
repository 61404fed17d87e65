// Package wmspec is the task graph a workload compiler produces and an
// execution layer consumes.
//
// A Workload owns exactly one root Task. Tasks form a tree: every Task other
// than the root is created through AddTask on exactly one existing parent, and
// no operation moves a Task or attaches it to a second parent, so the graph is
// acyclic by construction.
//
// Each Task carries ordered Steps, a splitting policy, a list of generators
// and an input reference. The input reference is either an external dataset
// or a named output module of a Step in an ancestor Task.
//
// Once the compiler calls Seal the graph is read-only; every mutator returns
// an errdefs.ErrInvalidArgument error afterwards.
package wmspec

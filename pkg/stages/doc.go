// Package stages builds one task graph node per preprocessing stage.
//
// Every builder takes the upstream handle, adds its node below it and returns the handle
// of the new node, whose priority is the upstream priority plus the stage increment.
// Builders only read a resolved Settings value: configuration lookups happen once, in
// LoadSettings, before the graph is assembled.
//
// At run time the node task computes the argument list of its external function from
// the upstream output folder and the session id, runs it once and exposes
// <LOCAL_FOLDER>/<session id> to the next node. Retries, timeouts and notifications are
// left to the scheduler.
package stages

// Package registry tracks the modules loaded into the host.
//
// A Registry maps live module handles to ModuleContext values. The
// context carries everything the host knows about one registration: the
// engine execution context, the per-resource-type dispatcher table, the
// resource counters and the last-activity timestamp.
//
// # Locking
//
// Membership (insert, remove, lookup) serializes on the registry's own
// lock and nothing else. Each context guards its mutable fields with its
// own lock, always acquired after (never under) the registry lock, so
// field updates on different modules proceed concurrently. A third lock,
// the call lock, serializes entry into the module's execution context;
// see ModuleContext.LockCall.
//
// # Removal
//
// Remove unlinks the context and clears its liveness flag in one critical
// section, so a context can never be found once removal has begun. The
// caller then finishes teardown outside the registry lock: acquire the
// call lock to wait out any in-flight dispatch, run the CleanupTable,
// destroy the execution context. Workers that already hold a context
// pointer re-check InUse after acquiring the call lock and back off when
// removal won.
package registry

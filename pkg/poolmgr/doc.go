// Package poolmgr owns the per-server connection pools for the whole
// process. It creates pools on first use from provider profiles,
// replaces pool generations wholesale (on a schedule and on sustained
// errors), probes pool health in the background, and routes released
// connections back to the generation that issued them.
//
// A Manager is constructed explicitly and has an Initialize/Shutdown
// lifecycle; nothing lives at package level. Background work (health
// probing, scheduled renewal, old-generation retirement) runs in
// goroutines owned by the Manager and stops at Shutdown.
//
// Renewal never stalls in-flight work: the new generation is swapped
// in atomically for new acquisitions while the old one keeps accepting
// releases, then is drained and destroyed after a grace window.
package poolmgr

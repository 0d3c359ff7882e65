// Package scenario implements declarative multi-device activities.
//
// A scenario definition names the participating devices, maps logical roles
// (display, volume, playback) to device IDs, and carries ordered startup and
// shutdown sequences with optional per-step conditions and delays.
//
// The Manager owns the single active scenario. Switching between scenarios
// performs shared-device analysis: devices present in both the outgoing and
// the incoming scenario stay powered across a graceful switch, non-shared
// outgoing devices are powered off, and the incoming startup sequence skips
// power commands on the shared set. The active scenario ID is persisted so a
// restart resumes where the system left off.
//
// Each loaded scenario is additionally projected as a synthetic virtual
// device (WBAdapter) with startup/shutdown pushbuttons and role-inherited
// controls, so wall panels can drive scenarios over the same bus topics as
// real devices.
//
// Definitions are plain JSON files in a watched directory; edits hot-reload
// without a restart.
package scenario

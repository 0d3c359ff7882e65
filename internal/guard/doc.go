// Package guard suppresses spurious device state changes during bus
// maintenance windows.
//
// A restart of the MQTT-side infrastructure replays retained messages and
// last-will payloads in a burst. The guard watches configurable sentinel
// topics; a sentinel message arms a suppression window during which inbound
// bus messages are ignored by the device manager instead of mutating state.
package guard

// Package device implements the device runtime: the Driver contract, the
// shared BaseDevice lifecycle, command parameter validation, the Wiren
// Board virtual-device projection, and the Manager that owns the fleet.
//
// Every device is published on MQTT as a virtual device: its commands
// become controls under /devices/{id}/controls/, with type and ordering
// inferred from the command definitions unless the config overrides them.
// Inbound control presses arrive on the corresponding /on topics and run
// through the same execute-action pipeline as REST calls.
//
// The Manager routes inbound bus messages (after maintenance-guard
// filtering), schedules state persistence after every mutation, and drives
// the ordered shutdown: synchronous persistence, device teardown with
// offline markers, pending-task drain, final state flush, repository close.
package device

// Package state provides the durable key-value repository for device states
// and the active scenario.
//
// Values are opaque JSON keyed by namespaced strings ("device:{id}",
// "active_scenario"). Every upsert refreshes an audit timestamp which Load
// injects into JSON objects as "_timestamp".
//
// The repository degrades rather than crashes: lookup errors return nil,
// write errors return false, and operations after Close are rejected with a
// warning. Only a missing schema at Initialize refuses startup.
package state

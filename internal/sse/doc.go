// Package sse fans events out to Server-Sent-Event subscribers.
//
// Three fixed channels exist: devices (state changes), scenarios (switches
// and sequence progress), and system (lifecycle events). Each subscriber has
// a bounded queue; broadcasts never block, and a subscriber that falls
// behind is dropped within one broadcast cycle.
//
// Events are single-line JSON envelopes framed as "data: {...}" with a
// millisecond id and an eventType field. Idle streams receive periodic
// keepalive events so proxies do not sever the connection.
package sse

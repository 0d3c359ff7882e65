// Package mqtt provides the gateway's MQTT client built on paho.mqtt.golang.
//
// The client handles broker connections with auto-reconnect and exponential
// backoff, tracked subscriptions restored on reconnect, per-device will
// message registration for availability signalling, and panic-safe message
// handler dispatch.
//
// Topic helpers implement the Wiren Board virtual-device convention
// (/devices/{id}/meta, /devices/{id}/controls/{control}, ...) used by every
// published device, plus wildcard matching for routing inbound messages.
//
// Usage:
//
//	client := mqtt.New(cfg.MQTT)
//	client.AddWillMessage("tv1", mqtt.DeviceAvailabilityTopic("tv1"), "0", 1, true)
//	if err := client.Connect(ctx); err != nil {
//		return err
//	}
//	defer client.Close()
//
//	client.Subscribe(mqtt.DeviceCommandsPattern("tv1"), 1, handleCommand)
package mqtt

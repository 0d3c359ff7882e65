package mqtt

import (
	"fmt"
	"strings"
)

// Topic builders for the Wiren Board virtual-device convention.
//
// Layout:
//
//	/devices/{device}/meta                      device metadata (JSON, retained)
//	/devices/{device}/meta/available            "1" online / "0" offline (retained)
//	/devices/{device}/meta/error                "" healthy / "offline" (retained)
//	/devices/{device}/controls/{control}        control state (retained)
//	/devices/{device}/controls/{control}/meta   control metadata (JSON, retained)
//	/devices/{device}/controls/{control}/on     inbound command (not retained)

// DeviceMetaTopic returns the device metadata topic.
func DeviceMetaTopic(deviceID string) string {
	return fmt.Sprintf("/devices/%s/meta", deviceID)
}

// DeviceAvailabilityTopic returns the device availability topic.
// Payload "1" marks the device online, "0" offline.
func DeviceAvailabilityTopic(deviceID string) string {
	return fmt.Sprintf("/devices/%s/meta/available", deviceID)
}

// DeviceErrorTopic returns the device error topic.
// Payload "" marks the device healthy, "offline" unreachable.
func DeviceErrorTopic(deviceID string) string {
	return fmt.Sprintf("/devices/%s/meta/error", deviceID)
}

// ControlStateTopic returns the retained state topic for a control.
func ControlStateTopic(deviceID, control string) string {
	return fmt.Sprintf("/devices/%s/controls/%s", deviceID, control)
}

// ControlMetaTopic returns the metadata topic for a control.
func ControlMetaTopic(deviceID, control string) string {
	return fmt.Sprintf("/devices/%s/controls/%s/meta", deviceID, control)
}

// ControlCommandTopic returns the inbound command topic for a control.
func ControlCommandTopic(deviceID, control string) string {
	return fmt.Sprintf("/devices/%s/controls/%s/on", deviceID, control)
}

// DeviceCommandsPattern returns the wildcard pattern matching all inbound
// command topics for a device.
func DeviceCommandsPattern(deviceID string) string {
	return fmt.Sprintf("/devices/%s/controls/+/on", deviceID)
}

// ParseCommandTopic extracts the device ID and control name from an inbound
// command topic.
//
// Parameters:
//   - topic: A topic of the form "/devices/{device}/controls/{control}/on"
//
// Returns:
//   - deviceID: The device segment
//   - control: The control segment
//   - ok: false if the topic does not match the command shape
func ParseCommandTopic(topic string) (deviceID, control string, ok bool) {
	parts := strings.Split(topic, "/")
	// ["", "devices", id, "controls", control, "on"]
	if len(parts) != 6 || parts[0] != "" || parts[1] != "devices" || parts[3] != "controls" || parts[5] != "on" {
		return "", "", false
	}
	if parts[2] == "" || parts[4] == "" {
		return "", "", false
	}
	return parts[2], parts[4], true
}

// TopicMatches reports whether a concrete topic matches an MQTT topic filter
// containing + (single-level) and # (multi-level) wildcards.
//
// Used by the message router to dispatch inbound messages to handlers whose
// subscriptions carry wildcards.
func TopicMatches(filter, topic string) bool {
	filterParts := strings.Split(filter, "/")
	topicParts := strings.Split(topic, "/")

	for i, fp := range filterParts {
		if fp == "#" {
			// # must be the last filter segment and matches the remainder.
			return i == len(filterParts)-1
		}
		if i >= len(topicParts) {
			return false
		}
		if fp != "+" && fp != topicParts[i] {
			return false
		}
	}

	return len(filterParts) == len(topicParts)
}

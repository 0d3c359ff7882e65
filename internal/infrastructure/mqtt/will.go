package mqtt

import (
	pahomqtt "github.com/eclipse/paho.mqtt.golang"
)

// WillMessage is a message the broker should deliver if the session drops
// ungracefully. Each device registers its own offline markers.
type WillMessage struct {
	Topic    string
	Payload  string
	QoS      byte
	Retained bool
}

// AddWillMessage registers a will message for a device.
//
// Will messages must be registered before Connect: the session will is
// captured into the client options when Connect builds them, and the paho
// auto-reconnect reuses those captured options. Messages registered while
// connected are not installed as the session will until a manual
// Connect-after-Close rebuilds the options; they are still published
// explicitly on graceful Close.
//
// Parameters:
//   - deviceID: Owning device (used for bulk removal)
//   - topic: Will topic
//   - payload: Will payload
//   - qos: Quality of Service level
//   - retained: Whether the broker retains the will message
func (c *Client) AddWillMessage(deviceID, topic, payload string, qos byte, retained bool) {
	c.willMu.Lock()
	defer c.willMu.Unlock()

	c.wills[deviceID] = append(c.wills[deviceID], WillMessage{
		Topic:    topic,
		Payload:  payload,
		QoS:      qos,
		Retained: retained,
	})
}

// RemoveDeviceWillMessages removes all will messages registered for a device.
func (c *Client) RemoveDeviceWillMessages(deviceID string) {
	c.willMu.Lock()
	defer c.willMu.Unlock()
	delete(c.wills, deviceID)
}

// WillMessages returns a copy of all registered will messages.
func (c *Client) WillMessages() []WillMessage {
	c.willMu.RLock()
	defer c.willMu.RUnlock()

	var all []WillMessage
	for _, msgs := range c.wills {
		all = append(all, msgs...)
	}
	return all
}

// installSessionWill installs the registered will messages on the client
// options before connecting.
//
// MQTT 3.1.1 permits a single session will, so the first registered message
// becomes the broker-delivered will. The remaining messages are covered by
// two paths: graceful shutdown publishes every registered message explicitly
// (Close), and each device republishes its availability on reconnect, so a
// crash is signalled by the session will plus broker-retained error topics.
func (c *Client) installSessionWill(opts *pahomqtt.ClientOptions) {
	c.willMu.RLock()
	defer c.willMu.RUnlock()

	for _, msgs := range c.wills {
		if len(msgs) > 0 {
			m := msgs[0]
			opts.SetWill(m.Topic, m.Payload, m.QoS, m.Retained)
			return
		}
	}
}

// publishWillMessages publishes every registered will message explicitly.
// Called during graceful Close, where the broker will not deliver the will.
func (c *Client) publishWillMessages() {
	for _, m := range c.WillMessages() {
		token := c.client.Publish(m.Topic, m.QoS, m.Retained, []byte(m.Payload))
		token.WaitTimeout(defaultPublishTimeout)
	}
}

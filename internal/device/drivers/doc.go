// Package drivers contains the concrete device classes the gateway ships
// with: IR remotes behind MQTT blasters, LG WebOS TVs, Apple TVs, Emotiva
// XMC-2 processors, Broadlink kitchen hoods, and Auralic streamers.
//
// Each class embeds device.BaseDevice for lifecycle, virtual-device
// publication, and the execute-action pipeline, and registers handlers for
// the actions its command table declares. Wire-protocol details live behind
// each driver's send path; the rest of the gateway sees only the Driver
// contract.
//
// Classes register themselves in init functions; importing this package
// populates the device class registry.
package drivers

package mqtt

import "fmt"

// TopicPrefix is the root of every conveyor topic.
const TopicPrefix = "conveyor"

// Topics builds conveyor MQTT topics.
//
//	topics := mqtt.Topics{}
//	topics.SlotState(42) // "conveyor/slot/42/state"
type Topics struct{}

// SlotState carries the retained state of one slot.
//
// Example: conveyor/slot/42/state
func (Topics) SlotState(slot int) string {
	return fmt.Sprintf("%s/slot/%d/state", TopicPrefix, slot)
}

// SlotsReset is published when the whole conveyor is cleared.
//
// Example: conveyor/slot/reset
func (Topics) SlotsReset() string {
	return TopicPrefix + "/slot/reset"
}

// ScanEvent carries scan workflow events by kind.
//
// Example: conveyor/scan/scanned
func (Topics) ScanEvent(kind string) string {
	return fmt.Sprintf("%s/scan/%s", TopicPrefix, kind)
}

// HangerSensor carries the retained hanger sensor state.
//
// Example: conveyor/sensor/hanger
func (Topics) HangerSensor() string {
	return TopicPrefix + "/sensor/hanger"
}

// SpotReport carries the summary of each POS batch.
//
// Example: conveyor/spot/report
func (Topics) SpotReport() string {
	return TopicPrefix + "/spot/report"
}

// DeviceStatus carries the retained connection state of a device link.
//
// Example: conveyor/device/opcua/status
func (Topics) DeviceStatus(device string) string {
	return fmt.Sprintf("%s/device/%s/status", TopicPrefix, device)
}

// Command is the topic remote terminals publish conveyor commands on.
//
// Example: conveyor/command/run
func (Topics) Command(name string) string {
	return fmt.Sprintf("%s/command/%s", TopicPrefix, name)
}

// SystemStatus carries the retained online/offline status of the core,
// including the broker-published LWT.
//
// Example: conveyor/system/status
func (Topics) SystemStatus() string {
	return TopicPrefix + "/system/status"
}

// AllSlotStates matches every slot state topic.
//
// Pattern: conveyor/slot/+/state
func (Topics) AllSlotStates() string {
	return TopicPrefix + "/slot/+/state"
}

// AllCommands matches every command topic.
//
// Pattern: conveyor/command/+
func (Topics) AllCommands() string {
	return TopicPrefix + "/command/+"
}

// AllTopics matches all conveyor traffic.
//
// Pattern: conveyor/#
func (Topics) AllTopics() string {
	return TopicPrefix + "/#"
}

// Package mqtt connects the conveyor core to an MQTT broker.
//
// The core publishes what happens on the line so store dashboards and the
// POS side can follow along without polling the ledger:
//   - retained slot states and hanger sensor state
//   - scan workflow events and POS batch summaries
//   - device link status and core online/offline status (with LWT)
//
// Remote terminals can also publish commands under conveyor/command/+.
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	err = client.PublishJSON(mqtt.Topics{}.SlotState(7), map[string]any{"state": "Reserved"}, true)
//
// Subscriptions are restored automatically after a reconnect.
package mqtt

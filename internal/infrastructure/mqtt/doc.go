// Package mqtt publishes the relay's button state mirror to an MQTT broker.
//
// The mirror is optional and write-only. Each saved button config is
// published retained on Topics.ButtonState, each key press on
// Topics.Press, and the relay's own liveness on Topics.SystemStatus, with
// a Last Will so subscribers see "offline" if the process dies.
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	topic := client.Topics().ButtonState(identity, "0_4")
//	err = client.PublishRetained(topic, payload)
//
// Publish failures are returned to the caller; the relay logs them and
// carries on, since the mirror is never the source of truth.
package mqtt

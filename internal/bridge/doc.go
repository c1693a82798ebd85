// Package bridge implements the local deck bridge.
//
// The bridge runs next to the device control software and relays between
// it and a hosted room:
//
//	┌─────────────────┐  ws://127.0.0.1  ┌─────────────────┐   wss   ┌──────────┐
//	│ Device Software │◄────────────────►│  Deck Bridge    │◄───────►│   Room   │
//	└─────────────────┘                  │   (this pkg)    │         └──────────┘
//	                                     └─────────────────┘
//
// # Key Responsibilities
//
//   - Register with the device software and request the global settings
//   - Track which button sits at which (row, column) on each device
//   - Forward every device message to the room as a rawSD envelope
//   - Send buttonLocationsUpdated snapshots when placement changes
//   - Relay room messages to the device, resolving position-addressed
//     messages to a button context
//   - Redial the room 5s after its socket closes
//
// # Room Envelopes
//
// Messages to the room are wrapped as {"type": ..., "data": ...}:
//
//	{"type":"init","data":{"pluginUUID":"..."}}
//	{"type":"buttonLocationsUpdated","data":{"buttonLocations":{...}}}
//	{"type":"rawSD","data":{<device message>}}
//
// Room messages are relayed as-is, except that a message with no context
// and a "coordinates" (or "buttonLocation") field is given the context of
// the first device, in first-seen order, with a button there. Messages
// that match no button are dropped.
//
// # Usage
//
//	b, err := bridge.New(bridge.Options{
//	    Port:          port,
//	    PluginUUID:    pluginUUID,
//	    RegisterEvent: registerEvent,
//	    Logger:        logger,
//	})
//	if err != nil {
//	    return err
//	}
//	if err := b.Start(ctx); err != nil {
//	    return err
//	}
//	defer b.Stop()
//	<-b.DeviceDisconnected()
package bridge

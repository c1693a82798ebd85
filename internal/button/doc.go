// Package button holds the room-side button domain for Deck Relay.
//
// A button is addressed by its Coordinate on the device grid and carries a
// Config: the title and image last shown on it, the ordered list of events
// to run when it is pressed, and an optional auto-refresh hint.
//
// # Key Types
//
//   - Coordinate: (row, column) address of one physical button
//   - Config: persisted per-button configuration
//   - EventSpec: one declarative action bound to a press, a closed set of Kinds
//   - Update: a validated POST or PATCH body ready to be merged
//   - Repository: Get/Put storage keyed by "<identity>/<row>_<column>"
//
// # Storage
//
// Two Repository implementations are provided. SQLiteRepository stores
// one row per key in the button_configs table. DynamoDBRepository stores
// one item per key with the config serialised as a JSON string.
//
// Missing configs are not an error at the call sites that matter: use
// Load to get the stored config or a default for the coordinate.
package button

package mqtt

import "fmt"

// DefaultTopicPrefix is used when no prefix is configured.
const DefaultTopicPrefix = "deckrelay"

// Topics builds mirror topic names under a common prefix.
//
//	topics := mqtt.Topics{Prefix: "deckrelay"}
//	topics.ButtonState("3f2a", "0_4")
//	// Returns: "deckrelay/3f2a/button/0_4"
type Topics struct {
	Prefix string
}

func (t Topics) prefix() string {
	if t.Prefix == "" {
		return DefaultTopicPrefix
	}
	return t.Prefix
}

// ButtonState returns the retained topic carrying a button's current config.
//
// Example: deckrelay/3f2a/button/0_4
func (t Topics) ButtonState(identity, coordinate string) string {
	return fmt.Sprintf("%s/%s/button/%s", t.prefix(), identity, coordinate)
}

// Press returns the topic a key press on a button is announced on.
//
// Example: deckrelay/3f2a/press/0_4
func (t Topics) Press(identity, coordinate string) string {
	return fmt.Sprintf("%s/%s/press/%s", t.prefix(), identity, coordinate)
}

// SystemStatus returns the relay's online/offline status topic.
//
// Example: deckrelay/system/status
func (t Topics) SystemStatus() string {
	return fmt.Sprintf("%s/system/status", t.prefix())
}

// AllButtonStates returns a pattern matching every mirrored button of identity.
//
// Pattern: deckrelay/3f2a/button/+
func (t Topics) AllButtonStates(identity string) string {
	return fmt.Sprintf("%s/%s/button/+", t.prefix(), identity)
}

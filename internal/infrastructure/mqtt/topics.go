package mqtt

import "fmt"

// Topics builds bridge infrastructure topics under the configured prefix.
//
// Reading topics (qcode/spontaneous/unknown) belong to the routing layer
// in internal/bridge; this type only covers the topics the client itself
// needs for status and the Last Will.
type Topics struct {
	// Prefix is the configured topic prefix (e.g., "serial/data").
	Prefix string
}

// Status returns the bridge status topic.
//
// Example: serial/data/status
func (t Topics) Status() string {
	return fmt.Sprintf("%s/status", t.Prefix)
}

package cells

import (
	"path/filepath"

	"github.com/adrg/xdg"
)

var ApplicationInfo = struct {
	Name   string
	Author string
}{
	Name:   "Cells",
	Author: "BringYour",
}

const DefaultBridgeQueueSize = 64

// Settings are resolved once at startup and injected into the core.
// The core never derives paths on its own.
type Settings struct {
	// per-user data location. templates are stored under `track_templates`
	DataDir string
	// when set, view bridge clients must present an HS256 jwt signed with it
	BridgeSecret []byte
	// outbound events buffered per bridge client before the client is dropped
	BridgeQueueSize int
}

func DefaultSettings() *Settings {
	return &Settings{
		DataDir:         DefaultDataDir(),
		BridgeQueueSize: DefaultBridgeQueueSize,
	}
}

func DefaultDataDir() string {
	return filepath.Join(xdg.DataHome, ApplicationInfo.Name)
}

package geyserplugin

import "errors"

var (
	// ErrUnsupportedABIVersion means the host delivered a replica variant
	// with no recognized version set. The plugin cannot decode
	// notifications from such a host build; the notification method
	// returns this error to the host and does not abort the process.
	ErrUnsupportedABIVersion = errors.New("unsupported plugin ABI version")

	// ErrNotLoaded means a notification arrived before OnLoad succeeded.
	ErrNotLoaded = errors.New("plugin is not loaded")
)

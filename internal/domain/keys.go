// Package domain contains the core types shared by the timer server.
package domain

// Store keys shared by every reader and writer of the key-value store.
// The names match the ones the browser shim uses for its local storage.
const (
	KeyTotalWatchTime   = "totalWatchTime"
	KeyShowMilliseconds = "showMilliseconds"
	KeyInstallation     = "installation"
)

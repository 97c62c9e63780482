// Package autostart registers the daemon to launch at login.
package autostart

// Enable registers the current executable for launch at login.
func Enable() error {
	return enablePlatform()
}

// Disable removes the login registration.
func Disable() error {
	return disablePlatform()
}

// IsEnabled reports whether a login registration exists.
func IsEnabled() bool {
	return isEnabledPlatform()
}

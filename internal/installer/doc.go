// Package installer pushes generated plugins into a running host through
// its admin API.
//
// The flow is Package (zip the plugin directory), then Install (log in and
// upload the archive), then CheckStatus (confirm the host loaded the plugin
// and look for errors in its log). Credentials come from the config file or
// from a credentials file written by SetCredentials; saved credentials win.
package installer

package copilot

import (
	"time"

	"github.com/dshills/copilot-bridge/internal/logging"
)

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the client logger.
func WithLogger(l *logging.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// WithEditorInfo sets the editor and plugin identity sent via
// setEditorInfo.
func WithEditorInfo(info EditorInfo, plugin EditorPluginInfo) Option {
	return func(c *Client) {
		c.editorInfo = info
		c.pluginInfo = plugin
	}
}

// WithEditorConfiguration sets the optional proxy and enterprise
// settings sent via setEditorInfo.
func WithEditorConfiguration(cfg EditorConfiguration) Option {
	return func(c *Client) { c.editorConfig = cfg }
}

// WithCompletionRetry tunes the bounded retry used when the server
// reports a transient error against a completion request. The server
// buffer model may lag the preceding didChange, so a few short-delay
// attempts usually resolve it.
func WithCompletionRetry(attempts int, delay time.Duration) Option {
	return func(c *Client) {
		if attempts > 0 {
			c.retryAttempts = attempts
		}
		c.retryDelay = delay
	}
}

// WithDispatcher replaces the notification dispatcher.
func WithDispatcher(d *Dispatcher) Option {
	return func(c *Client) { c.dispatcher = d }
}

// WithInstallDir enables the installation gate: construction fails
// with ErrNotInstalled or ErrOutdated unless dir holds a usable
// server installation.
func WithInstallDir(dir string) Option {
	return func(c *Client) { c.installDir = dir }
}

// WithTerminateGrace sets how long Terminate waits between SIGTERM
// and SIGKILL.
func WithTerminateGrace(d time.Duration) Option {
	return func(c *Client) { c.terminateGrace = d }
}

// Package config provides configuration loading, merging, and path management
// for the Warden engine.
//
// # Configuration Loading
//
// The Load function merges configuration from layered sources in priority
// order, later sources winning:
//
//  1. Built-in defaults
//  2. Global config (~/.config/warden/warden.json[c] - XDG compatible)
//  3. Workdir config (<workdir>/warden.json[c])
//  4. An explicit config file (--config)
//  5. WARDEN_* environment variables
//
// # Supported Formats
//
// Both JSON and JSONC (JSON with Comments) are accepted:
//   - warden.json - Standard JSON configuration
//   - warden.jsonc - JSON with comments, processed using tidwall/jsonc
//
// # Variable Interpolation
//
// Configuration files support two types of variable interpolation:
//   - {env:VAR_NAME} - Expands to the environment variable's value
//   - {file:path} - Expands to the file's contents
//
// Expanded values are escaped for JSON, so placeholders are meant for use
// inside strings. File paths support absolute paths, paths relative to the
// config file's directory, and home expansion (~/). A file placeholder
// whose file cannot be read is left in place.
//
// Example configuration with interpolation:
//
//	{
//	  "hooks": {
//	    "webhook": {
//	      "url": "https://hooks.internal/warden?token={env:WEBHOOK_TOKEN}"
//	    }
//	  },
//	  "runtime": {
//	    "systemPrompt": "{file:~/warden-prompt.txt}"
//	  }
//	}
//
// # Configuration Merging
//
// A file that sets a section (runtime, pool, store, policies, hooks,
// archive, log) replaces that section wholesale; sections a file omits keep
// their previously loaded values. Environment variables override individual
// fields after all files are merged.
//
// # Environment Variable Overrides
//
//   - WARDEN_MODEL - Default runtime model
//   - WARDEN_SCENARIO - Scripted-runtime scenario file
//   - WARDEN_STORE_DRIVER / WARDEN_STORE_PATH - Persistence backend
//   - WARDEN_ARCHIVE_DIR - Session archive directory
//   - WARDEN_LOG_LEVEL / WARDEN_LOG_PRETTY - Logging
//   - WARDEN_WEBHOOK_URL - Webhook hook receiver
//
// # Path Management
//
// The package provides XDG Base Directory Specification compliant path
// management through the Paths type:
//   - Data: ~/.local/share/warden (XDG_DATA_HOME)
//   - Config: ~/.config/warden (XDG_CONFIG_HOME)
//   - Cache: ~/.cache/warden (XDG_CACHE_HOME)
//   - State: ~/.local/state/warden (XDG_STATE_HOME)
//
// On Windows, these paths are adapted to use APPDATA as appropriate.
package config

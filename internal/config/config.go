package config

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
	"github.com/tidwall/jsonc"

	"github.com/wardenhq/warden/pkg/types"
)

// Load loads configuration from layered sources (later wins):
// 1. Built-in defaults
// 2. Global config (~/.config/warden/warden.json[c])
// 3. Workdir config (<workdir>/warden.json[c])
// 4. Explicit config file (--config)
// 5. WARDEN_* environment variables
func Load(workdir, configFile string) (*types.Config, error) {
	config := Defaults()

	// A file reachable through two layers only applies once
	loaded := make(map[string]bool)

	loadOnce := func(path string, baseDir string) error {
		abs, err := filepath.Abs(path)
		if err != nil {
			return nil
		}
		if loaded[abs] {
			return nil
		}
		switch err := loadConfigFile(path, config, baseDir); {
		case err == nil:
			loaded[abs] = true
			return nil
		case os.IsNotExist(err):
			return nil
		default:
			return err
		}
	}

	// 2. Global config
	globalDir := GetPaths().Config
	if err := loadOnce(filepath.Join(globalDir, "warden.json"), globalDir); err != nil {
		return nil, err
	}
	if err := loadOnce(filepath.Join(globalDir, "warden.jsonc"), globalDir); err != nil {
		return nil, err
	}

	// 3. Workdir config
	if workdir != "" {
		if err := loadOnce(filepath.Join(workdir, "warden.json"), workdir); err != nil {
			return nil, err
		}
		if err := loadOnce(filepath.Join(workdir, "warden.jsonc"), workdir); err != nil {
			return nil, err
		}
	}

	// 4. Explicit config file. Unlike the layered files this one must exist.
	if configFile != "" {
		if err := loadConfigFile(configFile, config, filepath.Dir(configFile)); err != nil {
			return nil, err
		}
	}

	// 5. Environment variables (highest priority)
	applyEnvOverrides(config)

	if err := validate(config); err != nil {
		return nil, err
	}
	return config, nil
}

// Defaults returns the built-in configuration.
func Defaults() *types.Config {
	paths := GetPaths()
	return &types.Config{
		Runtime: &types.RuntimeDefaults{},
		Pool: &types.PoolConfig{
			TimeoutSeconds: 30,
			MaxAttempts:    3,
			BackoffBaseMS:  500,
			BackoffMaxMS:   10000,
		},
		Store: &types.StoreConfig{
			Driver: "sqlite",
			Path:   paths.StorePath(),
		},
		Hooks: &types.HookConfig{
			Log: true,
		},
		Archive: &types.ArchiveConfig{
			Directory: paths.ArchiveDir(),
		},
		Log: &types.LogConfig{
			Level: "info",
		},
	}
}

// loadConfigFile reads one config file, expands placeholders and merges
// it into config.
func loadConfigFile(path string, config *types.Config, baseDir string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	data = jsonc.ToJSON(data)
	data = interpolate(data, baseDir)

	var parsed types.Config
	if err := json.Unmarshal(data, &parsed); err != nil {
		return fmt.Errorf("config %s: %w", path, err)
	}

	mergeConfig(config, &parsed)
	return nil
}

// placeholderPattern matches {env:NAME} and {file:path}.
var placeholderPattern = regexp.MustCompile(`\{(env|file):([^}]+)\}`)

// interpolate expands placeholders in raw config text. File contents
// have a trailing newline trimmed; a file that cannot be read leaves
// the placeholder in place. Relative paths resolve against baseDir,
// ~/ against HOME.
func interpolate(data []byte, baseDir string) []byte {
	return placeholderPattern.ReplaceAllFunc(data, func(match []byte) []byte {
		parts := placeholderPattern.FindSubmatch(match)
		kind, arg := string(parts[1]), string(parts[2])

		switch kind {
		case "env":
			return jsonEscape(os.Getenv(arg))
		case "file":
			path := arg
			if strings.HasPrefix(path, "~/") {
				path = filepath.Join(os.Getenv("HOME"), path[2:])
			} else if !filepath.IsAbs(path) {
				path = filepath.Join(baseDir, path)
			}
			content, err := os.ReadFile(path)
			if err != nil {
				return match
			}
			return jsonEscape(strings.TrimRight(string(content), "\n"))
		}
		return match
	})
}

// jsonEscape escapes s for splicing into a JSON string literal.
func jsonEscape(s string) []byte {
	b, _ := json.Marshal(s)
	return b[1 : len(b)-1]
}

// mergeConfig merges source config into target. A file that sets a
// section replaces that section wholesale.
func mergeConfig(target, source *types.Config) {
	if source.Schema != "" {
		target.Schema = source.Schema
	}
	if source.Runtime != nil {
		target.Runtime = source.Runtime
	}
	if source.Pool != nil {
		target.Pool = source.Pool
	}
	if source.Store != nil {
		target.Store = source.Store
	}
	if source.Policies != nil {
		target.Policies = source.Policies
	}
	if source.Hooks != nil {
		target.Hooks = source.Hooks
	}
	if source.Archive != nil {
		target.Archive = source.Archive
	}
	if source.Log != nil {
		target.Log = source.Log
	}
}

// applyEnvOverrides applies WARDEN_* environment variable overrides.
func applyEnvOverrides(config *types.Config) {
	if model := os.Getenv("WARDEN_MODEL"); model != "" {
		ensureRuntime(config).Model = model
	}
	if scenario := os.Getenv("WARDEN_SCENARIO"); scenario != "" {
		ensureRuntime(config).Scenario = scenario
	}

	if driver := os.Getenv("WARDEN_STORE_DRIVER"); driver != "" {
		ensureStore(config).Driver = driver
	}
	if path := os.Getenv("WARDEN_STORE_PATH"); path != "" {
		ensureStore(config).Path = path
	}

	if dir := os.Getenv("WARDEN_ARCHIVE_DIR"); dir != "" {
		if config.Archive == nil {
			config.Archive = &types.ArchiveConfig{}
		}
		config.Archive.Directory = dir
	}

	if level := os.Getenv("WARDEN_LOG_LEVEL"); level != "" {
		ensureLog(config).Level = level
	}
	if pretty := os.Getenv("WARDEN_LOG_PRETTY"); pretty != "" {
		if v, err := strconv.ParseBool(pretty); err == nil {
			ensureLog(config).Pretty = v
		}
	}

	if whURL := os.Getenv("WARDEN_WEBHOOK_URL"); whURL != "" {
		if config.Hooks == nil {
			config.Hooks = &types.HookConfig{}
		}
		if config.Hooks.Webhook == nil {
			config.Hooks.Webhook = &types.WebhookConfig{}
		}
		config.Hooks.Webhook.URL = whURL
	}
}

func ensureRuntime(config *types.Config) *types.RuntimeDefaults {
	if config.Runtime == nil {
		config.Runtime = &types.RuntimeDefaults{}
	}
	return config.Runtime
}

func ensureStore(config *types.Config) *types.StoreConfig {
	if config.Store == nil {
		config.Store = &types.StoreConfig{}
	}
	return config.Store
}

func ensureLog(config *types.Config) *types.LogConfig {
	if config.Log == nil {
		config.Log = &types.LogConfig{}
	}
	return config.Log
}

// validate rejects configurations the engine cannot run with. Errors
// name the offending key.
func validate(config *types.Config) error {
	if config.Store != nil {
		switch config.Store.Driver {
		case "", "sqlite", "memory":
		default:
			return fmt.Errorf("config: store.driver: unknown driver %q", config.Store.Driver)
		}
		if config.Store.Driver == "sqlite" && config.Store.Path == "" {
			return fmt.Errorf("config: store.path: required for the sqlite driver")
		}
	}

	if config.Pool != nil {
		if config.Pool.MaxAttempts < 0 {
			return fmt.Errorf("config: pool.maxAttempts: must not be negative")
		}
		if config.Pool.TimeoutSeconds < 0 {
			return fmt.Errorf("config: pool.timeoutSeconds: must not be negative")
		}
		if config.Pool.BackoffBaseMS < 0 || config.Pool.BackoffMaxMS < 0 {
			return fmt.Errorf("config: pool.backoff: must not be negative")
		}
	}

	if config.Policies != nil && config.Policies.RepeatThreshold < 0 {
		return fmt.Errorf("config: policies.repeatThreshold: must not be negative")
	}

	if config.Hooks != nil && config.Hooks.Webhook != nil {
		wh := config.Hooks.Webhook
		if wh.URL == "" {
			return fmt.Errorf("config: hooks.webhook.url: required")
		}
		u, err := url.Parse(wh.URL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
			return fmt.Errorf("config: hooks.webhook.url: not a valid http(s) URL")
		}
		if wh.TimeoutMS < 0 {
			return fmt.Errorf("config: hooks.webhook.timeoutMs: must not be negative")
		}
	}

	if config.Log != nil && config.Log.Level != "" {
		if _, err := zerolog.ParseLevel(config.Log.Level); err != nil {
			return fmt.Errorf("config: log.level: %w", err)
		}
	}

	return nil
}

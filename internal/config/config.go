// Package config defines the on-disk sync configuration. Config is an
// explicit value passed to the components that need it -- never a
// package-level singleton -- so tests can construct one in memory and
// components that refresh a token (internal/auth) mutate a value the
// caller owns and persists.
package config

import (
	"encoding/json"
	"os"

	"github.com/pkg/errors"
)

// Task describes one batch-run sync pairing (spec §6 config file
// fields: note/local/cloud/vault_root/enabled/force/overwrite).
type Task struct {
	Note      string `json:"note"`
	Local     string `json:"local"`
	Cloud     string `json:"cloud"`
	VaultRoot string `json:"vault_root,omitempty"`
	Enabled   *bool  `json:"enabled,omitempty"` // nil means enabled
	Force     bool   `json:"force,omitempty"`
	Overwrite bool   `json:"overwrite,omitempty"`

	// MaxParallelWorkers overrides Config.MaxParallelWorkers for this
	// task alone; zero means "use the config-wide default".
	MaxParallelWorkers int `json:"max_parallel_workers,omitempty"`
}

// IsEnabled reports whether the task should run; absent "enabled"
// defaults to true, matching the original's task.get("enabled", True).
func (t Task) IsEnabled() bool {
	return t.Enabled == nil || *t.Enabled
}

// Config is the full contents of sync_config.json.
type Config struct {
	FeishuAppID            string `json:"feishu_app_id"`
	FeishuAppSecret        string `json:"feishu_app_secret"`
	FeishuUserAccessToken  string `json:"feishu_user_access_token"`
	FeishuUserRefreshToken string `json:"feishu_user_refresh_token"`
	FeishuAssetsToken      string `json:"feishu_assets_token"`

	Tasks []Task `json:"tasks"`

	// ProtectedRemoteNames generalizes the original implementation's
	// hard-coded deny list (DocSync_Assets, assets, .Trash) into a
	// configurable set the orchestrator never deletes.
	ProtectedRemoteNames []string `json:"protected_remote_names"`

	// MaxParallelWorkers sizes the orchestrator's worker pool (spec
	// §4.8/§5 "MAX_PARALLEL_WORKERS (configurable)"); zero means use
	// orchestrator.DefaultMaxWorkers.
	MaxParallelWorkers int `json:"max_parallel_workers,omitempty"`
}

// Default returns a Config with the deny-list defaults the original
// folder sync manager hard-coded.
func Default() Config {
	return Config{
		ProtectedRemoteNames: []string{"DocSync_Assets", "assets", ".Trash"},
	}
}

// Load reads and parses path. A missing file is not an error; it
// returns Default().
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return Default(), nil
	}
	if err != nil {
		return Config{}, errors.Wrapf(err, "read config %s", path)
	}
	cfg := Default()
	if err := json.Unmarshal(data, &cfg); err != nil {
		return Config{}, errors.Wrapf(err, "parse config %s", path)
	}
	return cfg, nil
}

// Save persists cfg to path atomically (write-temp, rename), the same
// durability guarantee internal/syncstate uses for its store.
func Save(path string, cfg Config) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return errors.Wrap(err, "marshal config")
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return errors.Wrapf(err, "write temp config %s", tmp)
	}
	if err := os.Rename(tmp, path); err != nil {
		return errors.Wrapf(err, "rename config into place %s", path)
	}
	return nil
}

// IsProtected reports whether name is in cfg's remote deny list -- the
// orchestrator consults this before ever deleting a remote folder.
func (c Config) IsProtected(name string) bool {
	for _, n := range c.ProtectedRemoteNames {
		if n == name {
			return true
		}
	}
	return false
}

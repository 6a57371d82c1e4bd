package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/aryankumar/shardexec/internal/util"
)

const (
	defaultConfigName = ".shardexec"
	defaultConfigDir  = ".shardexec"
	envPrefix         = "SHARDEXEC"
)

// Output formats accepted in defaults.outputFormat
var validOutputFormats = []string{"table", "json", "yaml"}

// Manager handles shardexec configuration
type Manager struct {
	configPath string
	config     *Config
	viper      *viper.Viper
}

// NewManager creates a new configuration manager
func NewManager(configPath string) *Manager {
	return &Manager{
		configPath: configPath,
		viper:      viper.New(),
		config:     &Config{},
	}
}

// Load loads the configuration from file
func (m *Manager) Load() (*Config, error) {
	if m.configPath != "" {
		m.viper.SetConfigFile(m.configPath)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}

		// Check ~/.shardexec/.shardexec.yaml, then ~/.shardexec.yaml
		m.viper.AddConfigPath(filepath.Join(home, defaultConfigDir))
		m.viper.AddConfigPath(home)
		m.viper.SetConfigName(defaultConfigName)
		m.viper.SetConfigType("yaml")
	}

	m.viper.SetEnvPrefix(envPrefix)
	m.viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	m.viper.AutomaticEnv()

	m.config = &Config{}

	if err := m.viper.ReadInConfig(); err != nil {
		// A missing file is fine, defaults apply
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		m.unmarshalEnv()
		m.applyDefaults()
		return m.config, nil
	}

	if err := m.viper.Unmarshal(m.config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	m.unmarshalEnv()

	for name, shard := range m.config.Shards {
		if !m.viper.IsSet("shards." + name + ".enabled") {
			shard.Enabled = true
			m.config.Shards[name] = shard
		}
	}

	m.applyDefaults()

	return m.config, nil
}

// unmarshalEnv picks up SHARDEXEC_* overrides that have no file counterpart.
// AutomaticEnv only affects keys viper already knows about.
func (m *Manager) unmarshalEnv() {
	if v := m.viper.GetString("events.natsURL"); v != "" {
		m.config.Events.NATSURL = v
	}
	if m.viper.IsSet("defaults.exceptionSuppressed") {
		m.config.Defaults.ExceptionSuppressed = m.viper.GetBool("defaults.exceptionSuppressed")
	}
}

// Save saves the current configuration to file
func (m *Manager) Save() error {
	if m.configPath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("failed to get home directory: %w", err)
		}
		m.configPath = filepath.Join(home, defaultConfigDir, "config.yaml")
	}

	dir := filepath.Dir(m.configPath)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	// DSNs may carry passwords
	if err := m.viper.WriteConfigAs(m.configPath); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	if err := os.Chmod(m.configPath, 0600); err != nil {
		return fmt.Errorf("failed to restrict config file permissions: %w", err)
	}

	return nil
}

// GetConfig returns the current configuration
func (m *Manager) GetConfig() *Config {
	return m.config
}

// Path returns the configuration file path, or "" if none was used
func (m *Manager) Path() string {
	if m.configPath != "" {
		return m.configPath
	}
	return m.viper.ConfigFileUsed()
}

// GetShardConfig returns configuration for a specific shard
func (m *Manager) GetShardConfig(name string) (*ShardConfig, bool) {
	if m.config.Shards == nil {
		return nil, false
	}

	shard, ok := m.config.Shards[name]
	return &shard, ok
}

// SetShardConfig sets or updates configuration for a shard
func (m *Manager) SetShardConfig(name string, shard ShardConfig) {
	if m.config.Shards == nil {
		m.config.Shards = make(map[string]ShardConfig)
	}

	m.config.Shards[name] = shard
	m.viper.Set("shards", m.config.Shards)
}

// RemoveShardConfig removes configuration for a shard. It reports whether
// the shard existed.
func (m *Manager) RemoveShardConfig(name string) bool {
	if _, ok := m.config.Shards[name]; !ok {
		return false
	}

	delete(m.config.Shards, name)
	m.viper.Set("shards", m.config.Shards)
	return true
}

// GetEnabledShards returns the sorted names of enabled shards
func (m *Manager) GetEnabledShards() []string {
	return m.GetShardsByLabel(nil)
}

// GetShardsByLabel returns the sorted names of enabled shards matching the given labels
func (m *Manager) GetShardsByLabel(labels map[string]string) []string {
	matching := make([]string, 0)
	for name, shard := range m.config.Shards {
		if !shard.Enabled {
			continue
		}

		if matchesLabels(shard.Labels, labels) {
			matching = append(matching, name)
		}
	}

	sort.Strings(matching)
	return matching
}

// ResolveShards turns the --shards selection into shard names. An empty
// selection means every enabled shard. Explicitly named shards are used even
// when disabled, but must exist.
func (m *Manager) ResolveShards(names []string) ([]string, error) {
	if len(names) == 0 {
		enabled := m.GetEnabledShards()
		if len(enabled) == 0 {
			return nil, fmt.Errorf("no enabled shards configured: %w", util.ErrShardNotFound)
		}
		return enabled, nil
	}

	seen := make(map[string]bool, len(names))
	resolved := make([]string, 0, len(names))
	for _, name := range names {
		if seen[name] {
			continue
		}
		if _, ok := m.config.Shards[name]; !ok {
			return nil, fmt.Errorf("shard %q: %w", name, util.ErrShardNotFound)
		}
		seen[name] = true
		resolved = append(resolved, name)
	}
	return resolved, nil
}

// ShardInfos returns the listing view of every configured shard, sorted by name
func (m *Manager) ShardInfos() []ShardInfo {
	infos := make([]ShardInfo, 0, len(m.config.Shards))
	for name, shard := range m.config.Shards {
		infos = append(infos, ShardInfo{
			Name:    name,
			Host:    util.DSNHost(shard.DSN),
			DSN:     util.RedactDSN(shard.DSN),
			Enabled: shard.Enabled,
			Labels:  shard.Labels,
		})
	}

	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })
	return infos
}

// Validate checks the loaded configuration
func (m *Manager) Validate() error {
	var errs util.MultiError

	for name, shard := range m.config.Shards {
		if strings.TrimSpace(shard.DSN) == "" {
			errs.Add(util.NewValidationError("shards."+name+".dsn", nil, "must not be empty"))
			continue
		}
		if !looksLikeDSN(shard.DSN) {
			errs.Add(util.NewValidationError("shards."+name+".dsn", util.RedactDSN(shard.DSN),
				"must be a postgres:// URL or key=value connection string"))
		}
	}

	d := m.config.Defaults
	if d.Parallel < 1 {
		errs.Add(util.NewValidationError("defaults.parallel", d.Parallel, "must be at least 1"))
	}
	if d.Timeout < 0 {
		errs.Add(util.NewValidationError("defaults.timeout", d.Timeout, "must not be negative"))
	}
	if !isValidOutputFormat(d.OutputFormat) {
		errs.Add(util.NewValidationError("defaults.outputFormat", d.OutputFormat,
			"must be one of "+strings.Join(validOutputFormats, ", ")))
	}

	if strings.ContainsAny(m.config.Events.SubjectPrefix, " *>") {
		errs.Add(util.NewValidationError("events.subjectPrefix", m.config.Events.SubjectPrefix,
			"must not contain spaces or wildcards"))
	}

	return errs.ErrorOrNil()
}

// applyDefaults sets default values for configuration
func (m *Manager) applyDefaults() {
	if m.config == nil {
		return
	}

	if m.config.Defaults.Timeout == 0 {
		m.config.Defaults.Timeout = 30 * time.Second
	}

	if m.config.Defaults.Parallel == 0 {
		m.config.Defaults.Parallel = 5
	}

	if m.config.Defaults.OutputFormat == "" {
		m.config.Defaults.OutputFormat = "table"
	}
}

// matchesLabels checks if shard labels match the required labels
func matchesLabels(shardLabels, requiredLabels map[string]string) bool {
	for key, value := range requiredLabels {
		shardValue, exists := shardLabels[key]
		if !exists || shardValue != value {
			return false
		}
	}

	return true
}

func looksLikeDSN(dsn string) bool {
	return strings.HasPrefix(dsn, "postgres://") ||
		strings.HasPrefix(dsn, "postgresql://") ||
		strings.Contains(dsn, "=")
}

func isValidOutputFormat(format string) bool {
	for _, f := range validOutputFormats {
		if f == format {
			return true
		}
	}
	return false
}

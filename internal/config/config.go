package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"healthwatch/internal/alerts"
	"healthwatch/internal/logging"
)

const EnvPrefix = "HEALTHWATCH"

type Config struct {
	Paths      Paths      `mapstructure:"paths" yaml:"paths"`
	Monitoring Monitoring `mapstructure:"monitoring" yaml:"monitoring"`
	Thresholds Thresholds `mapstructure:"thresholds" yaml:"thresholds"`
	Docker     Docker     `mapstructure:"docker" yaml:"docker"`
	Reporting  Reporting  `mapstructure:"reporting" yaml:"reporting"`
	Alerts     Alerts     `mapstructure:"alerts" yaml:"alerts"`
	Logging    Logging    `mapstructure:"logging" yaml:"logging"`
	Server     Server     `mapstructure:"server" yaml:"server"`

	// Source is the config file that was read, empty when running on defaults.
	Source string `mapstructure:"-" yaml:"-"`
}

type Paths struct {
	HistoryFile string `mapstructure:"history_file" yaml:"history_file"`
	JournalFile string `mapstructure:"journal_file" yaml:"journal_file"`
	LogFile     string `mapstructure:"log_file" yaml:"log_file,omitempty"`
}

type Monitoring struct {
	HistoryRetentionDays int           `mapstructure:"history_retention_days" yaml:"history_retention_days"`
	JournalRetentionDays int           `mapstructure:"journal_retention_days" yaml:"journal_retention_days"`
	ErrorLogLines        int           `mapstructure:"error_log_lines_to_check" yaml:"error_log_lines_to_check"`
	CPUSampleInterval    time.Duration `mapstructure:"cpu_sample_interval" yaml:"cpu_sample_interval"`
}

// Thresholds keeps the flat key layout of existing config files. A missing key
// disables that check.
type Thresholds struct {
	CPUWarning           *float64                `mapstructure:"cpu_warning" yaml:"cpu_warning,omitempty"`
	CPUCritical          *float64                `mapstructure:"cpu_critical" yaml:"cpu_critical,omitempty"`
	RAMWarning           *float64                `mapstructure:"ram_warning" yaml:"ram_warning,omitempty"`
	RAMCritical          *float64                `mapstructure:"ram_critical" yaml:"ram_critical,omitempty"`
	DiskWarning          *float64                `mapstructure:"disk_warning" yaml:"disk_warning,omitempty"`
	DiskCritical         *float64                `mapstructure:"disk_critical" yaml:"disk_critical,omitempty"`
	ContainerRestartWarn *int                    `mapstructure:"container_restart_warning" yaml:"container_restart_warning,omitempty"`
	ContainerRestartCrit *int                    `mapstructure:"container_restart_critical" yaml:"container_restart_critical,omitempty"`
	Disks                map[string]alerts.Level `mapstructure:"disks" yaml:"disks,omitempty"`
}

type Docker struct {
	Socket             string        `mapstructure:"socket" yaml:"socket"`
	Timeout            time.Duration `mapstructure:"timeout" yaml:"timeout"`
	ContainersToIgnore []string      `mapstructure:"containers_to_ignore" yaml:"containers_to_ignore"`
}

type Reporting struct {
	HostName            string        `mapstructure:"host_name" yaml:"host_name,omitempty"`
	Window              time.Duration `mapstructure:"window" yaml:"window"`
	TopMemoryContainers int           `mapstructure:"top_memory_containers" yaml:"top_memory_containers"`
	TopCPUContainers    int           `mapstructure:"top_cpu_containers" yaml:"top_cpu_containers"`
	MaxErrorsInReport   int           `mapstructure:"max_errors_in_report" yaml:"max_errors_in_report"`
}

type Alerts struct {
	CriticalImmediate bool     `mapstructure:"critical_immediate" yaml:"critical_immediate"`
	Telegram          Telegram `mapstructure:"telegram" yaml:"telegram"`
	Discord           Discord  `mapstructure:"discord" yaml:"discord"`
}

type Telegram struct {
	Token  string `mapstructure:"token" yaml:"token,omitempty"`
	ChatID string `mapstructure:"chat_id" yaml:"chat_id,omitempty"`
}

type Discord struct {
	WebhookURL string `mapstructure:"webhook_url" yaml:"webhook_url,omitempty"`
	Username   string `mapstructure:"username" yaml:"username,omitempty"`
}

type Logging struct {
	Level      string `mapstructure:"level" yaml:"level"`
	Output     string `mapstructure:"output" yaml:"output"`
	MaxSizeMB  int    `mapstructure:"max_size_mb" yaml:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days" yaml:"max_age_days"`
	Compress   bool   `mapstructure:"compress" yaml:"compress"`
}

type Server struct {
	Addr string `mapstructure:"addr" yaml:"addr"`
}

var thresholdKeys = []string{
	"cpu_warning", "cpu_critical",
	"ram_warning", "ram_critical",
	"disk_warning", "disk_critical",
	"container_restart_warning", "container_restart_critical",
}

// fallbackThresholds apply only when no config file is found. A file that
// leaves a threshold out means that check is off.
var fallbackThresholds = map[string]float64{
	"cpu_warning":   80,
	"cpu_critical":  95,
	"ram_warning":   85,
	"ram_critical":  95,
	"disk_warning":  80,
	"disk_critical": 90,
}

// Load reads path, or searches the usual locations when path is empty, and
// applies HEALTHWATCH_* environment overrides.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	setDefaults(v)
	for _, k := range thresholdKeys {
		_ = v.BindEnv("thresholds." + k)
	}

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".healthwatch"))
		}
		v.AddConfigPath("/etc/healthwatch")
	}

	found := true
	if err := v.ReadInConfig(); err != nil {
		var nf viper.ConfigFileNotFoundError
		if !errors.As(err, &nf) && !errors.Is(err, os.ErrNotExist) {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		found = false
	}
	if !found {
		for k, val := range fallbackThresholds {
			v.SetDefault("thresholds."+k, val)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	if found {
		cfg.Source = v.ConfigFileUsed()
	}
	applyEnvOverrides(&cfg)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	d := Default()
	v.SetDefault("paths.history_file", d.Paths.HistoryFile)
	v.SetDefault("paths.journal_file", d.Paths.JournalFile)
	v.SetDefault("paths.log_file", d.Paths.LogFile)
	v.SetDefault("monitoring.history_retention_days", d.Monitoring.HistoryRetentionDays)
	v.SetDefault("monitoring.journal_retention_days", d.Monitoring.JournalRetentionDays)
	v.SetDefault("monitoring.error_log_lines_to_check", d.Monitoring.ErrorLogLines)
	v.SetDefault("monitoring.cpu_sample_interval", d.Monitoring.CPUSampleInterval)
	v.SetDefault("docker.socket", d.Docker.Socket)
	v.SetDefault("docker.timeout", d.Docker.Timeout)
	v.SetDefault("docker.containers_to_ignore", d.Docker.ContainersToIgnore)
	v.SetDefault("reporting.host_name", d.Reporting.HostName)
	v.SetDefault("reporting.window", d.Reporting.Window)
	v.SetDefault("reporting.top_memory_containers", d.Reporting.TopMemoryContainers)
	v.SetDefault("reporting.top_cpu_containers", d.Reporting.TopCPUContainers)
	v.SetDefault("reporting.max_errors_in_report", d.Reporting.MaxErrorsInReport)
	v.SetDefault("alerts.critical_immediate", d.Alerts.CriticalImmediate)
	v.SetDefault("alerts.telegram.token", "")
	v.SetDefault("alerts.telegram.chat_id", "")
	v.SetDefault("alerts.discord.webhook_url", "")
	v.SetDefault("alerts.discord.username", d.Alerts.Discord.Username)
	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.output", d.Logging.Output)
	v.SetDefault("logging.max_size_mb", d.Logging.MaxSizeMB)
	v.SetDefault("logging.max_backups", d.Logging.MaxBackups)
	v.SetDefault("logging.max_age_days", d.Logging.MaxAgeDays)
	v.SetDefault("logging.compress", d.Logging.Compress)
	v.SetDefault("server.addr", d.Server.Addr)
}

// applyEnvOverrides honours the unprefixed variables older deployments set.
func applyEnvOverrides(cfg *Config) {
	if cfg.Alerts.Telegram.Token == "" {
		cfg.Alerts.Telegram.Token = os.Getenv("TELEGRAM_BOT_TOKEN")
	}
	if cfg.Alerts.Telegram.ChatID == "" {
		cfg.Alerts.Telegram.ChatID = os.Getenv("TELEGRAM_CHAT_ID")
	}
	if cfg.Alerts.Discord.WebhookURL == "" {
		cfg.Alerts.Discord.WebhookURL = os.Getenv("DISCORD_WEBHOOK_URL")
	}
}

func Default() Config {
	return Config{
		Paths: Paths{
			HistoryFile: "./data/health_history.json",
			JournalFile: "./data/healthwatch.db",
		},
		Monitoring: Monitoring{
			HistoryRetentionDays: 7,
			JournalRetentionDays: 30,
			ErrorLogLines:        50,
			CPUSampleInterval:    time.Second,
		},
		Docker: Docker{
			Socket:             "unix:///var/run/docker.sock",
			Timeout:            10 * time.Second,
			ContainersToIgnore: []string{},
		},
		Reporting: Reporting{
			Window:              24 * time.Hour,
			TopMemoryContainers: 5,
			TopCPUContainers:    5,
			MaxErrorsInReport:   10,
		},
		Alerts: Alerts{
			CriticalImmediate: true,
			Discord:           Discord{Username: "healthwatch"},
		},
		Logging: Logging{
			Level:      "info",
			Output:     "stderr",
			MaxSizeMB:  10,
			MaxBackups: 5,
			MaxAgeDays: 30,
		},
		Server: Server{Addr: ":8080"},
	}
}

// Example is the starter file written by init-config.
func Example() Config {
	c := Default()
	c.Thresholds = Thresholds{
		CPUWarning:           ptr(80.0),
		CPUCritical:          ptr(95.0),
		RAMWarning:           ptr(85.0),
		RAMCritical:          ptr(95.0),
		DiskWarning:          ptr(80.0),
		DiskCritical:         ptr(90.0),
		ContainerRestartWarn: ptr(alerts.DefaultRestartThresholds.Warning),
		ContainerRestartCrit: ptr(alerts.DefaultRestartThresholds.Critical),
	}
	c.Paths.LogFile = "./logs/healthwatch.log"
	return c
}

// WriteExample writes the starter config to path. An existing file is left
// untouched unless overwrite is set.
func WriteExample(path string, overwrite bool) error {
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config %s already exists", path)
		}
	}
	b, err := yaml.Marshal(Example())
	if err != nil {
		return fmt.Errorf("encode example config: %w", err)
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("mkdir config dir: %w", err)
		}
	}
	return os.WriteFile(path, b, 0o600)
}

func (c Config) Validate() error {
	var errs []error
	if c.Paths.HistoryFile == "" {
		errs = append(errs, errors.New("paths.history_file is required"))
	}
	if c.Monitoring.HistoryRetentionDays <= 0 {
		errs = append(errs, fmt.Errorf("monitoring.history_retention_days must be positive, got %d", c.Monitoring.HistoryRetentionDays))
	}
	if c.Monitoring.ErrorLogLines < 0 {
		errs = append(errs, errors.New("monitoring.error_log_lines_to_check must not be negative"))
	}
	if c.Reporting.Window < 0 {
		errs = append(errs, errors.New("reporting.window must not be negative"))
	}
	if _, err := logging.ParseLevel(c.Logging.Level); err != nil {
		errs = append(errs, err)
	}
	th := c.Thresholds
	errs = append(errs,
		ordered("cpu", th.CPUWarning, th.CPUCritical),
		ordered("ram", th.RAMWarning, th.RAMCritical),
		ordered("disk", th.DiskWarning, th.DiskCritical),
	)
	for mount, lvl := range th.Disks {
		errs = append(errs, ordered("disk "+mount, lvl.Warning, lvl.Critical))
	}
	if th.ContainerRestartWarn != nil && th.ContainerRestartCrit != nil && *th.ContainerRestartWarn > *th.ContainerRestartCrit {
		errs = append(errs, errors.New("container_restart_warning exceeds container_restart_critical"))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

func ordered(name string, warn, crit *float64) error {
	if warn != nil && crit != nil && *warn > *crit {
		return fmt.Errorf("%s warning threshold %v exceeds critical %v", name, *warn, *crit)
	}
	return nil
}

// ThresholdConfig converts the flat keys into the evaluator's form.
func (c Config) ThresholdConfig() (alerts.ThresholdConfig, alerts.RestartOverride) {
	th := c.Thresholds
	out := alerts.ThresholdConfig{}
	put := func(key string, warn, crit *float64) {
		if warn == nil && crit == nil {
			return
		}
		out[key] = alerts.Level{Warning: warn, Critical: crit}
	}
	put(alerts.MetricCPU, th.CPUWarning, th.CPUCritical)
	put(alerts.MetricRAM, th.RAMWarning, th.RAMCritical)
	put(alerts.MetricDisk, th.DiskWarning, th.DiskCritical)
	for mount, lvl := range th.Disks {
		put(alerts.MetricDisk+":"+mount, lvl.Warning, lvl.Critical)
	}
	return out, alerts.RestartOverride{Warning: th.ContainerRestartWarn, Critical: th.ContainerRestartCrit}
}

func (c Config) Horizon() time.Duration {
	return time.Duration(c.Monitoring.HistoryRetentionDays) * 24 * time.Hour
}

func (c Config) LoggingConfig() logging.Config {
	return logging.Config{
		Level:      c.Logging.Level,
		Output:     c.Logging.Output,
		File:       c.Paths.LogFile,
		MaxSizeMB:  c.Logging.MaxSizeMB,
		MaxBackups: c.Logging.MaxBackups,
		MaxAgeDays: c.Logging.MaxAgeDays,
		Compress:   c.Logging.Compress,
	}
}

func ptr[T any](v T) *T { return &v }

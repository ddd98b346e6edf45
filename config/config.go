package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

// Config captures the daemon settings loaded from the TOML file.
type Config struct {
	ListenAddress string `toml:"ListenAddress"`
	DataDir       string `toml:"DataDir"`
	Environment   string `toml:"Environment"`

	// Lifecycle windows in seconds. Defaults are short to keep local
	// setups exercisable; production deployments use much longer windows.
	ComplainPeriodSecs int64 `toml:"ComplainPeriodSecs"`
	CancelPeriodSecs   int64 `toml:"CancelPeriodSecs"`

	// TreasuryAddress is the hex-encoded escrow/treasury account receiving
	// forfeited shares.
	TreasuryAddress string `toml:"TreasuryAddress"`

	// SupplyFile points at the TOML file listing the supplies this daemon
	// accepts commitments against.
	SupplyFile string `toml:"SupplyFile"`

	// AdminJWTSecret is the HS256 secret for operator tokens on the admin
	// endpoints. When empty the admin surface rejects every request.
	AdminJWTSecret string `toml:"AdminJWTSecret"`

	// Optional rotating log file. Empty disables file logging.
	LogFile       string `toml:"LogFile"`
	LogMaxSizeMB  int    `toml:"LogMaxSizeMB"`
	LogMaxBackups int    `toml:"LogMaxBackups"`
}

const (
	defaultListenAddress  = "127.0.0.1:8645"
	defaultComplainPeriod = 60
	defaultCancelPeriod   = 60
)

// Load loads the configuration from the given path, creating a default file
// when none exists yet.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}

	meta, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, err
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("config file %s has unknown field %s", path, undecoded[0])
	}

	applyDefaults(cfg, path)
	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyDefaults(cfg *Config, path string) {
	if strings.TrimSpace(cfg.ListenAddress) == "" {
		cfg.ListenAddress = defaultListenAddress
	}
	if strings.TrimSpace(cfg.DataDir) == "" {
		cfg.DataDir = filepath.Join(filepath.Dir(path), "data")
	}
	if cfg.ComplainPeriodSecs <= 0 {
		cfg.ComplainPeriodSecs = defaultComplainPeriod
	}
	if cfg.CancelPeriodSecs <= 0 {
		cfg.CancelPeriodSecs = defaultCancelPeriod
	}
	if strings.TrimSpace(cfg.SupplyFile) == "" {
		cfg.SupplyFile = filepath.Join(filepath.Dir(path), "supplies.toml")
	}
	if cfg.LogMaxSizeMB <= 0 {
		cfg.LogMaxSizeMB = 100
	}
	if cfg.LogMaxBackups < 0 {
		cfg.LogMaxBackups = 0
	}
}

func validate(cfg *Config) error {
	treasury := strings.TrimSpace(cfg.TreasuryAddress)
	if treasury == "" {
		return fmt.Errorf("config: TreasuryAddress is required")
	}
	trimmed := strings.TrimPrefix(strings.ToLower(treasury), "0x")
	if len(trimmed) != 40 {
		return fmt.Errorf("config: TreasuryAddress must be a 20-byte hex address")
	}
	for _, r := range trimmed {
		if (r < '0' || r > '9') && (r < 'a' || r > 'f') {
			return fmt.Errorf("config: TreasuryAddress must be a 20-byte hex address")
		}
	}
	return nil
}

func createDefault(path string) (*Config, error) {
	cfg := &Config{
		ListenAddress:      defaultListenAddress,
		DataDir:            filepath.Join(filepath.Dir(path), "data"),
		ComplainPeriodSecs: defaultComplainPeriod,
		CancelPeriodSecs:   defaultCancelPeriod,
		SupplyFile:         filepath.Join(filepath.Dir(path), "supplies.toml"),
		LogMaxSizeMB:       100,
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	file, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	if err := toml.NewEncoder(file).Encode(cfg); err != nil {
		return nil, err
	}
	// The generated file still needs a treasury address before the daemon
	// can start; surface that instead of silently running without one.
	return cfg, fmt.Errorf("config: wrote default config to %s; set TreasuryAddress and restart", path)
}

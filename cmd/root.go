package cmd

import (
	"errors"
	"io/fs"
	"log"
	"strings"
	"time"

	"github.com/spigell/interviewer/internal/grading/hybrid"
	"github.com/spigell/interviewer/internal/interview"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	app       = "interviewer"
	envPrefix = "INTERVIEWER"
)

type Config struct {
	Interview interview.Config `mapstructure:"interview"`
	Grading   hybrid.Config    `mapstructure:"grading"`
	Ledger    *LedgerConfig    `mapstructure:"ledger"`
	Storage   *StorageConfig   `mapstructure:"storage"`
	Bank      *FileConfig      `mapstructure:"bank"`
	Taxonomy  *FileConfig      `mapstructure:"taxonomy"`
	Providers *ProvidersConfig `mapstructure:"providers"`
}

// LedgerConfig selects where provider spend is accumulated.
type LedgerConfig struct {
	// Backend is memory or redis.
	Backend string        `mapstructure:"backend"`
	Period  time.Duration `mapstructure:"period"`
	Redis   *RedisConfig  `mapstructure:"redis"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password" json:"-"`
	DB       int    `mapstructure:"db"`
	Prefix   string `mapstructure:"prefix"`
}

type StorageConfig struct {
	// Driver is memory or sqlite.
	Driver string `mapstructure:"driver"`
	Path   string `mapstructure:"path"`
}

// FileConfig points to an optional YAML file replacing a built-in default.
type FileConfig struct {
	File string `mapstructure:"file"`
}

type ProvidersConfig struct {
	Gemini *GeminiConfig `mapstructure:"gemini"`
	// Tiers are ordered cheapest first; the last one is the premium tier.
	Tiers []TierConfig `mapstructure:"tiers"`
}

type GeminiConfig struct {
	APIKeyFile   string `mapstructure:"api-key-file"`
	APIKey       string `mapstructure:"api-key" json:"-"`
	Env          string `mapstructure:"env"`
	MaxRetries   int    `mapstructure:"max-retries"`
	MaxLogLength int    `mapstructure:"max-log-length"`
}

type TierConfig struct {
	Name        string  `mapstructure:"name"`
	Model       string  `mapstructure:"model"`
	CostPerCall float64 `mapstructure:"cost-per-call"`
	PricePer1K  float64 `mapstructure:"price-per-1k-tokens"`
	// Ceiling is the spend allowed per ledger period, zero means unlimited.
	Ceiling float64 `mapstructure:"ceiling"`
}

func defaultConfig() *Config {
	return &Config{
		Interview: interview.DefaultConfig(),
		Grading:   hybrid.DefaultConfig(),
		Ledger: &LedgerConfig{
			Backend: "memory",
			Period:  24 * time.Hour,
		},
		Storage: &StorageConfig{
			Driver: "memory",
			Path:   app + ".db",
		},
		Bank:     &FileConfig{},
		Taxonomy: &FileConfig{},
		Providers: &ProvidersConfig{
			Gemini: &GeminiConfig{
				Env:        "GEMINI_API_KEY",
				MaxRetries: 3,
			},
			Tiers: []TierConfig{
				{Name: "standard", Model: "gemini-2.5-flash-lite", PricePer1K: 0.0004, Ceiling: 5},
				{Name: "premium", Model: "gemini-2.5-pro", PricePer1K: 0.01, Ceiling: 20},
			},
		},
	}
}

var (
	// Used for flags.
	cfgFile string

	rootCmd = &cobra.Command{
		Use:   app,
		Short: "interviewer runs adaptive Excel skills interviews with hybrid rule and model grading",
	}
)

// Execute executes the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	if err := viper.BindEnv("providers.gemini.api-key-file", "GEMINI_API_KEY_FILE"); err != nil {
		log.Fatalf("binding GEMINI_API_KEY_FILE environment variable: %v", err)
	}

	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "a config file (default is interviewer.yaml in current directory)")
	rootCmd.PersistentFlags().BoolP("debug", "d", false, "verbose/debug output")
	rootCmd.PersistentFlags().BoolP("json", "j", false, "json format for logging")

	viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))
	viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
}

func initConfig() {
	if versionCmd.CalledAs() != "" {
		return
	}

	// .env is optional, but a broken one is not.
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Fatalf("loading .env: %v", err)
	}

	viper.SetEnvPrefix(envPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigName(app)
		viper.SetConfigType("yaml")
	}

	// Built-in defaults are enough to run without a file, but a file that
	// was found must parse.
	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			log.Fatal(err)
		}
	}
}

func getConfig() (*Config, error) {
	config := defaultConfig()
	// Configured tiers replace the defaults instead of being merged by index.
	if viper.IsSet("providers.tiers") {
		config.Providers.Tiers = nil
	}
	if err := viper.Unmarshal(config); err != nil {
		return nil, err
	}

	if err := config.validate(); err != nil {
		return nil, err
	}

	return config, nil
}

func (c *Config) validate() error {
	var errs []error
	if err := c.Interview.Validate(); err != nil {
		errs = append(errs, err)
	}
	if err := c.Grading.Validate(); err != nil {
		errs = append(errs, err)
	}

	switch strings.ToLower(c.Ledger.Backend) {
	case "memory":
	case "redis":
		if c.Ledger.Redis == nil || c.Ledger.Redis.Addr == "" {
			errs = append(errs, errors.New("ledger.redis.addr is required for the redis ledger"))
		}
	default:
		errs = append(errs, errors.New("ledger.backend must be memory or redis"))
	}

	switch strings.ToLower(c.Storage.Driver) {
	case "memory":
	case "sqlite":
		if c.Storage.Path == "" {
			errs = append(errs, errors.New("storage.path is required for the sqlite driver"))
		}
	default:
		errs = append(errs, errors.New("storage.driver must be memory or sqlite"))
	}

	if len(c.Providers.Tiers) == 0 {
		errs = append(errs, errors.New("at least one provider tier is required under providers.tiers"))
	}

	return errors.Join(errs...)
}

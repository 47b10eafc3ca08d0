package cfg

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Settings is the resolved engine configuration.
type Settings struct {
	WindowSize      int
	MinHistory      int
	TieEpsilon      float64
	StrategyTimeout time.Duration

	DefaultWeight float64
	MinWeight     float64
	MaxWeight     float64
	WeightAlpha   float64

	StreakMinRun  int
	StreakFade    bool
	PatternLength int

	ModelURL     string
	ModelName    string
	ModelTimeout time.Duration

	FeedURL  string
	FeedPing time.Duration

	DataPath    string
	SessionID   string
	MetricsPort int
}

// ConfigFile is the YAML layout.
type ConfigFile struct {
	Engine struct {
		WindowSize      int     `yaml:"windowSize"`
		MinHistory      int     `yaml:"minHistory"`
		TieEpsilon      float64 `yaml:"tieEpsilon"`
		StrategyTimeout string  `yaml:"strategyTimeout"`
	} `yaml:"engine"`

	Weights struct {
		Default float64 `yaml:"default"`
		Min     float64 `yaml:"min"`
		Max     float64 `yaml:"max"`
		Alpha   float64 `yaml:"alpha"`
	} `yaml:"weights"`

	Strategies struct {
		StreakMinRun  int  `yaml:"streakMinRun"`
		StreakFade    bool `yaml:"streakFade"`
		PatternLength int  `yaml:"patternLength"`
	} `yaml:"strategies"`

	Model struct {
		URL     string `yaml:"url"`
		Name    string `yaml:"name"`
		Timeout string `yaml:"timeout"`
	} `yaml:"model"`

	Feed struct {
		URL  string `yaml:"url"`
		Ping string `yaml:"ping"`
	} `yaml:"feed"`

	System struct {
		DataPath    string `yaml:"dataPath"`
		SessionID   string `yaml:"sessionId"`
		MetricsPort int    `yaml:"metricsPort"`
	} `yaml:"system"`
}

// Load reads the YAML file named by CONFIG_FILE, falling back to pure
// environment variables. Env vars override file values either way.
func Load() (Settings, error) {
	if configPath := os.Getenv("CONFIG_FILE"); configPath != "" {
		return loadFromYAML(configPath)
	}
	return loadFromEnv()
}

func loadFromYAML(path string) (Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Settings{}, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var config ConfigFile
	if err := yaml.Unmarshal(data, &config); err != nil {
		return Settings{}, fmt.Errorf("failed to parse config file: %w", err)
	}

	settings := Settings{
		WindowSize:      getIntFromEnvOrConfig("WINDOW_SIZE", config.Engine.WindowSize, 20),
		MinHistory:      getIntFromEnvOrConfig("MIN_HISTORY", config.Engine.MinHistory, 5),
		TieEpsilon:      getFloatFromEnvOrConfig("TIE_EPSILON", config.Engine.TieEpsilon, 1e-9),
		StrategyTimeout: durationFromConfig(config.Engine.StrategyTimeout, "STRATEGY_TIMEOUT", 2*time.Second),
		DefaultWeight:   getFloatFromEnvOrConfig("DEFAULT_WEIGHT", config.Weights.Default, 1.0),
		MinWeight:       getFloatFromEnvOrConfig("MIN_WEIGHT", config.Weights.Min, 0.1),
		MaxWeight:       getFloatFromEnvOrConfig("MAX_WEIGHT", config.Weights.Max, 2.0),
		WeightAlpha:     getFloatFromEnvOrConfig("WEIGHT_ALPHA", config.Weights.Alpha, 0.3),
		StreakMinRun:    getIntFromEnvOrConfig("STREAK_MIN_RUN", config.Strategies.StreakMinRun, 3),
		StreakFade:      getBoolOrDefault("STREAK_FADE", config.Strategies.StreakFade),
		PatternLength:   getIntFromEnvOrConfig("PATTERN_LENGTH", config.Strategies.PatternLength, 3),
		ModelURL:        getEnvOrDefault("MODEL_URL", config.Model.URL),
		ModelName:       getEnvOrDefault("MODEL_NAME", defaultString(config.Model.Name, "lstm")),
		ModelTimeout:    durationFromConfig(config.Model.Timeout, "MODEL_TIMEOUT", 5*time.Second),
		FeedURL:         getEnvOrDefault("FEED_URL", config.Feed.URL),
		FeedPing:        durationFromConfig(config.Feed.Ping, "FEED_PING", 15*time.Second),
		DataPath:        getEnvOrDefault("DATA_PATH", config.System.DataPath),
		SessionID:       getEnvOrDefault("SESSION_ID", config.System.SessionID),
		MetricsPort:     getIntFromEnvOrConfig("METRICS_PORT", config.System.MetricsPort, 9090),
	}

	if err := validateSettings(&settings); err != nil {
		return Settings{}, fmt.Errorf("configuration validation failed: %w", err)
	}
	return settings, nil
}

func loadFromEnv() (Settings, error) {
	settings := Settings{
		WindowSize:      getIntOrDefault("WINDOW_SIZE", 20),
		MinHistory:      getIntOrDefault("MIN_HISTORY", 5),
		TieEpsilon:      getFloatOrDefault("TIE_EPSILON", 1e-9),
		StrategyTimeout: getDurationOrDefault("STRATEGY_TIMEOUT", 2*time.Second),
		DefaultWeight:   getFloatOrDefault("DEFAULT_WEIGHT", 1.0),
		MinWeight:       getFloatOrDefault("MIN_WEIGHT", 0.1),
		MaxWeight:       getFloatOrDefault("MAX_WEIGHT", 2.0),
		WeightAlpha:     getFloatOrDefault("WEIGHT_ALPHA", 0.3),
		StreakMinRun:    getIntOrDefault("STREAK_MIN_RUN", 3),
		StreakFade:      getBoolOrDefault("STREAK_FADE", false),
		PatternLength:   getIntOrDefault("PATTERN_LENGTH", 3),
		ModelURL:        os.Getenv("MODEL_URL"), // optional
		ModelName:       getEnvOrDefault("MODEL_NAME", "lstm"),
		ModelTimeout:    getDurationOrDefault("MODEL_TIMEOUT", 5*time.Second),
		FeedURL:         os.Getenv("FEED_URL"), // optional
		FeedPing:        getDurationOrDefault("FEED_PING", 15*time.Second),
		DataPath:        os.Getenv("DATA_PATH"), // optional
		SessionID:       os.Getenv("SESSION_ID"),
		MetricsPort:     getIntOrDefault("METRICS_PORT", 9090),
	}

	if err := validateSettings(&settings); err != nil {
		return Settings{}, fmt.Errorf("configuration validation failed: %w", err)
	}
	return settings, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func defaultString(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func getDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultValue
}

func durationFromConfig(configValue, envKey string, defaultValue time.Duration) time.Duration {
	if v := os.Getenv(envKey); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	if configValue != "" {
		if d, err := time.ParseDuration(configValue); err == nil {
			return d
		}
	}
	return defaultValue
}

func getIntOrDefault(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultValue
}

func getFloatOrDefault(key string, defaultValue float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getBoolOrDefault(key string, defaultValue bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return defaultValue
}

func getIntFromEnvOrConfig(key string, configValue, defaultValue int) int {
	if env := os.Getenv(key); env != "" {
		if val, err := strconv.Atoi(env); err == nil {
			return val
		}
	}
	if configValue != 0 {
		return configValue
	}
	return defaultValue
}

func getFloatFromEnvOrConfig(key string, configValue, defaultValue float64) float64 {
	if env := os.Getenv(key); env != "" {
		if val, err := strconv.ParseFloat(env, 64); err == nil {
			return val
		}
	}
	if configValue != 0 {
		return configValue
	}
	return defaultValue
}

// validateSettings checks configuration values against their allowed
// ranges.
func validateSettings(settings *Settings) error {
	if settings.WindowSize < 1 || settings.WindowSize > 1000 {
		return fmt.Errorf("window size must be between 1 and 1000, got %d", settings.WindowSize)
	}
	if settings.MinHistory < 1 || settings.MinHistory > settings.WindowSize {
		return fmt.Errorf("min history must be between 1 and window size (%d), got %d", settings.WindowSize, settings.MinHistory)
	}
	if settings.TieEpsilon <= 0 || settings.TieEpsilon >= 1 {
		return fmt.Errorf("tie epsilon must be in (0, 1), got %g", settings.TieEpsilon)
	}
	if settings.StrategyTimeout < 10*time.Millisecond || settings.StrategyTimeout > time.Minute {
		return fmt.Errorf("strategy timeout must be between 10ms and 1m, got %v", settings.StrategyTimeout)
	}
	if settings.MinWeight <= 0 {
		return fmt.Errorf("min weight must be positive, got %f", settings.MinWeight)
	}
	if settings.MaxWeight <= settings.MinWeight {
		return fmt.Errorf("max weight must exceed min weight, got min=%f max=%f", settings.MinWeight, settings.MaxWeight)
	}
	if settings.DefaultWeight < settings.MinWeight || settings.DefaultWeight > settings.MaxWeight {
		return fmt.Errorf("default weight must be within [%f, %f], got %f", settings.MinWeight, settings.MaxWeight, settings.DefaultWeight)
	}
	if settings.WeightAlpha <= 0 || settings.WeightAlpha > 1 {
		return fmt.Errorf("weight alpha must be in (0, 1], got %f", settings.WeightAlpha)
	}
	if settings.StreakMinRun < 2 || settings.StreakMinRun > settings.WindowSize {
		return fmt.Errorf("streak min run must be between 2 and window size, got %d", settings.StreakMinRun)
	}
	if settings.PatternLength < 2 || settings.PatternLength >= settings.WindowSize {
		return fmt.Errorf("pattern length must be between 2 and window size, got %d", settings.PatternLength)
	}
	if settings.MetricsPort < 1024 || settings.MetricsPort > 65535 {
		return fmt.Errorf("metrics port must be between 1024 and 65535, got %d", settings.MetricsPort)
	}
	if settings.ModelTimeout < 100*time.Millisecond || settings.ModelTimeout > time.Minute {
		return fmt.Errorf("model timeout must be between 100ms and 1m, got %v", settings.ModelTimeout)
	}
	if settings.FeedPing < time.Second || settings.FeedPing > 5*time.Minute {
		return fmt.Errorf("feed ping must be between 1s and 5m, got %v", settings.FeedPing)
	}
	return nil
}

package config

import (
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	Server struct {
		Port         int           `yaml:"port" default:"8080"`
		Host         string        `yaml:"host" default:"0.0.0.0"`
		ReadTimeout  time.Duration `yaml:"read_timeout" default:"30s"`
		WriteTimeout time.Duration `yaml:"write_timeout" default:"30s"`
		IdleTimeout  time.Duration `yaml:"idle_timeout" default:"60s"`
	} `yaml:"server"`

	Search struct {
		ResultsWanted  int `yaml:"results_wanted" default:"300"`
		HoursOld       int `yaml:"hours_old" default:"336"`
		MaxReturned    int `yaml:"max_returned" default:"10"`
		ScanMultiplier int `yaml:"scan_multiplier" default:"8"`
		MaxScanResults int `yaml:"max_scan_results" default:"1200"`
		// Soft wall-clock budget for one synchronous search call. When it is
		// nearly spent mid-scan the controller stops expanding and returns a
		// partial, resumable page.
		SoftBudget time.Duration `yaml:"soft_budget" default:"48s"`
	} `yaml:"search"`

	Sessions struct {
		TTL        time.Duration `yaml:"ttl" default:"6h"`
		MaxGlobal  int           `yaml:"max_global" default:"200"`
		MaxPerUser int           `yaml:"max_per_user" default:"20"`
		Path       string        `yaml:"path"`
	} `yaml:"sessions"`

	Runs struct {
		TTL         time.Duration `yaml:"ttl" default:"6h"`
		MaxRuns     int           `yaml:"max_runs" default:"500"`
		WorkerCount int           `yaml:"worker_count" default:"2"`
		Path        string        `yaml:"path"`
	} `yaml:"runs"`

	RateLimit struct {
		RetryWindow    time.Duration `yaml:"retry_window" default:"180s"`
		InitialBackoff time.Duration `yaml:"initial_backoff" default:"2s"`
		MaxBackoff     time.Duration `yaml:"max_backoff" default:"30s"`
		AttemptTimeout time.Duration `yaml:"attempt_timeout" default:"35s"`
	} `yaml:"rate_limit"`

	Scraper struct {
		UserAgent         string        `yaml:"user_agent"`
		RequestTimeout    time.Duration `yaml:"request_timeout" default:"12s"`
		RequestsPerSecond float64       `yaml:"requests_per_second" default:"2"`
		Burst             int           `yaml:"burst" default:"4"`
	} `yaml:"scraper"`

	Dataset struct {
		Path           string `yaml:"path"`
		StaleAfterDays int    `yaml:"stale_after_days" default:"120"`
	} `yaml:"dataset"`

	Stores struct {
		DataDir     string `yaml:"data_dir"`
		JobDBPath   string `yaml:"job_db_path"`
		PrefsPath   string `yaml:"prefs_path"`
		SavedPath   string `yaml:"saved_path"`
		IgnoredPath string `yaml:"ignored_path"`
	} `yaml:"stores"`

	Maintenance struct {
		PruneSchedule string `yaml:"prune_schedule" default:"@every 15m"`
	} `yaml:"maintenance"`

	Logging struct {
		Level  string `yaml:"level" default:"info"`
		Format string `yaml:"format" default:"json"`
		Output string `yaml:"output" default:"stdout"`

		Adapters []struct {
			Name    string                 `yaml:"name"`
			Type    string                 `yaml:"type"`
			Enabled bool                   `yaml:"enabled"`
			Options map[string]interface{} `yaml:"options"`
		} `yaml:"adapters"`
	} `yaml:"logging"`
}

// expandEnvVars expands environment variables in a string using ${VAR} or $VAR syntax
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)
	s = re.ReplaceAllStringFunc(s, func(match string) string {
		varName := match[2 : len(match)-1]
		if val := os.Getenv(varName); val != "" {
			return val
		}
		return match
	})

	re2 := regexp.MustCompile(`\$([A-Za-z_][A-Za-z0-9_]*)`)
	s = re2.ReplaceAllStringFunc(s, func(match string) string {
		varName := match[1:]
		if val := os.Getenv(varName); val != "" {
			return val
		}
		return match
	})

	return s
}

// LoadConfig loads configuration from file and environment variables
func LoadConfig(configPath string) (*Config, error) {
	// Load .env file if it exists (ignore errors if file doesn't exist)
	_ = godotenv.Load()

	config := &Config{}

	// Set defaults
	config.Server.Port = 8080
	config.Server.Host = "0.0.0.0"
	config.Server.ReadTimeout = 30 * time.Second
	config.Server.WriteTimeout = 30 * time.Second
	config.Server.IdleTimeout = 60 * time.Second

	config.Search.ResultsWanted = 300
	config.Search.HoursOld = 336
	config.Search.MaxReturned = 10
	config.Search.ScanMultiplier = 8
	config.Search.MaxScanResults = 1200
	config.Search.SoftBudget = 48 * time.Second

	config.Sessions.TTL = 6 * time.Hour
	config.Sessions.MaxGlobal = 200
	config.Sessions.MaxPerUser = 20

	config.Runs.TTL = 6 * time.Hour
	config.Runs.MaxRuns = 500
	config.Runs.WorkerCount = 2

	config.RateLimit.RetryWindow = 180 * time.Second
	config.RateLimit.InitialBackoff = 2 * time.Second
	config.RateLimit.MaxBackoff = 30 * time.Second
	config.RateLimit.AttemptTimeout = 35 * time.Second

	config.Scraper.RequestTimeout = 12 * time.Second
	config.Scraper.RequestsPerSecond = 2
	config.Scraper.Burst = 4
	config.Scraper.UserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

	config.Dataset.StaleAfterDays = 120

	config.Stores.DataDir = "data"

	config.Maintenance.PruneSchedule = "@every 15m"

	config.Logging.Level = "info"
	config.Logging.Format = "json"
	config.Logging.Output = "stdout"

	// Load from YAML file if it exists
	if configPath != "" {
		if data, err := os.ReadFile(configPath); err == nil {
			yamlContent := expandEnvVars(string(data))

			if err := yaml.Unmarshal([]byte(yamlContent), config); err != nil {
				return nil, err
			}
		}
	}

	// Override with environment variables
	config.loadFromEnv()
	config.fillStorePaths()

	return config, nil
}

// fillStorePaths derives store file locations from the data dir when they
// were not set explicitly.
func (c *Config) fillStorePaths() {
	dir := c.Stores.DataDir
	if dir == "" {
		dir = "data"
		c.Stores.DataDir = dir
	}
	if c.Sessions.Path == "" {
		c.Sessions.Path = filepath.Join(dir, "search_sessions.json")
	}
	if c.Runs.Path == "" {
		c.Runs.Path = filepath.Join(dir, "search_runs.json")
	}
	if c.Stores.JobDBPath == "" {
		c.Stores.JobDBPath = filepath.Join(dir, "jobs.db")
	}
	if c.Stores.PrefsPath == "" {
		c.Stores.PrefsPath = filepath.Join(dir, "user_prefs.json")
	}
	if c.Stores.SavedPath == "" {
		c.Stores.SavedPath = filepath.Join(dir, "saved_jobs.json")
	}
	if c.Stores.IgnoredPath == "" {
		c.Stores.IgnoredPath = filepath.Join(dir, "ignored_jobs.json")
	}
	if c.Dataset.Path == "" {
		c.Dataset.Path = filepath.Join(dir, "sponsor_companies.csv")
	}
}

// loadFromEnv loads configuration from environment variables
func (c *Config) loadFromEnv() {
	if port := os.Getenv("PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			c.Server.Port = p
		}
	}

	if host := os.Getenv("HOST"); host != "" {
		c.Server.Host = host
	}

	if logLevel := os.Getenv("LOG_LEVEL"); logLevel != "" {
		c.Logging.Level = logLevel
	}

	if logFormat := os.Getenv("LOG_FORMAT"); logFormat != "" {
		c.Logging.Format = logFormat
	}

	if dataDir := os.Getenv("DATA_DIR"); dataDir != "" {
		c.Stores.DataDir = dataDir
	}

	if datasetPath := os.Getenv("COMPANY_DATASET_PATH"); datasetPath != "" {
		c.Dataset.Path = datasetPath
	}

	if staleDays := os.Getenv("DATASET_STALE_AFTER_DAYS"); staleDays != "" {
		if days, err := strconv.Atoi(staleDays); err == nil {
			c.Dataset.StaleAfterDays = days
		}
	}

	if ttl := os.Getenv("SEARCH_SESSION_TTL"); ttl != "" {
		if d, err := time.ParseDuration(ttl); err == nil {
			c.Sessions.TTL = d
		}
	}

	if maxSessions := os.Getenv("MAX_SEARCH_SESSIONS"); maxSessions != "" {
		if n, err := strconv.Atoi(maxSessions); err == nil {
			c.Sessions.MaxGlobal = n
		}
	}

	if maxPerUser := os.Getenv("MAX_SEARCH_SESSIONS_PER_USER"); maxPerUser != "" {
		if n, err := strconv.Atoi(maxPerUser); err == nil {
			c.Sessions.MaxPerUser = n
		}
	}

	if ttl := os.Getenv("SEARCH_RUN_TTL"); ttl != "" {
		if d, err := time.ParseDuration(ttl); err == nil {
			c.Runs.TTL = d
		}
	}

	if maxRuns := os.Getenv("MAX_SEARCH_RUNS"); maxRuns != "" {
		if n, err := strconv.Atoi(maxRuns); err == nil {
			c.Runs.MaxRuns = n
		}
	}

	if workers := os.Getenv("RUN_WORKER_COUNT"); workers != "" {
		if n, err := strconv.Atoi(workers); err == nil && n > 0 {
			c.Runs.WorkerCount = n
		}
	}

	if window := os.Getenv("RATE_LIMIT_RETRY_WINDOW"); window != "" {
		if d, err := time.ParseDuration(window); err == nil {
			c.RateLimit.RetryWindow = d
		}
	}

	if backoff := os.Getenv("RATE_LIMIT_INITIAL_BACKOFF"); backoff != "" {
		if d, err := time.ParseDuration(backoff); err == nil {
			c.RateLimit.InitialBackoff = d
		}
	}

	if backoff := os.Getenv("RATE_LIMIT_MAX_BACKOFF"); backoff != "" {
		if d, err := time.ParseDuration(backoff); err == nil {
			c.RateLimit.MaxBackoff = d
		}
	}

	if timeout := os.Getenv("SCRAPE_ATTEMPT_TIMEOUT"); timeout != "" {
		if d, err := time.ParseDuration(timeout); err == nil {
			c.RateLimit.AttemptTimeout = d
		}
	}

	if multiplier := os.Getenv("SCAN_MULTIPLIER"); multiplier != "" {
		if n, err := strconv.Atoi(multiplier); err == nil && n > 0 {
			c.Search.ScanMultiplier = n
		}
	}

	if maxScan := os.Getenv("MAX_SCAN_RESULTS"); maxScan != "" {
		if n, err := strconv.Atoi(maxScan); err == nil && n > 0 {
			c.Search.MaxScanResults = n
		}
	}

	if budget := os.Getenv("SEARCH_SOFT_BUDGET"); budget != "" {
		if d, err := time.ParseDuration(budget); err == nil {
			c.Search.SoftBudget = d
		}
	}

	if schedule := os.Getenv("PRUNE_SCHEDULE"); schedule != "" {
		c.Maintenance.PruneSchedule = schedule
	}
}

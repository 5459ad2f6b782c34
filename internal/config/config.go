package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"

	"github.com/couchcryptid/discharge-forecast-service/internal/domain"
)

// Store backends selectable with STORE_BACKEND.
const (
	BackendGitHub = "github"
	BackendS3     = "s3"
	BackendLocal  = "local"
)

var scheduleRE = regexp.MustCompile(`^([01]\d|2[0-3]):[0-5]\d$`)

// Config holds all service settings, populated from environment variables.
// The producer and the query service share it; each reads the fields it needs.
type Config struct {
	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	// Shared store.
	StoreBackend    string
	StoreTimeout    time.Duration
	GitHubToken     string
	GitHubRepo      string
	GitHubBranch    string
	GitHubAPIURL    string
	S3Bucket        string
	S3Prefix        string
	LocalStoreDir   string
	DownloadFolder  string
	ThresholdFolder string
	RasterFolder    string
	MeteoFolder     string
	RetentionCap    int
	StagingDir      string

	// Query snapshot cache. A zero TTL disables it.
	QueryCacheTTL  time.Duration
	QueryCacheSize int

	// Copernicus CDS retrieval.
	CDSAPIURL       string
	CDSAPIKey       string
	CDSPollInterval time.Duration
	CDSTimeout      time.Duration
	BBox            domain.BBox
	LeadTimeHours   []int

	// ECMWF open data.
	ECMWFEnabled bool
	ECMWFBaseURL string
	ECMWFParams  []string
	ECMWFSteps   []int

	// Clipping of the published summary grid.
	ClipPolygonPath  string
	ClipMinDischarge float64

	// Daily producer run time, UTC HH:MM.
	ProducerSchedule string

	// Grid publication notifications.
	KafkaEnabled bool
	KafkaBrokers []string
	KafkaTopic   string
}

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	p := parser{}
	cfg := &Config{
		HTTPAddr:        sharedcfg.EnvOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:        sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:       sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,

		StoreBackend:    strings.ToLower(sharedcfg.EnvOrDefault("STORE_BACKEND", BackendLocal)),
		StoreTimeout:    p.duration("STORE_TIMEOUT", "30s"),
		GitHubToken:     os.Getenv("GITHUB_TOKEN"),
		GitHubRepo:      sharedcfg.EnvOrDefault("GITHUB_REPO", "alimunozq/InundacionNetCDF"),
		GitHubBranch:    sharedcfg.EnvOrDefault("GITHUB_BRANCH", "main"),
		GitHubAPIURL:    strings.TrimRight(sharedcfg.EnvOrDefault("GITHUB_API_URL", "https://api.github.com"), "/"),
		S3Bucket:        os.Getenv("S3_BUCKET"),
		S3Prefix:        os.Getenv("S3_PREFIX"),
		LocalStoreDir:   sharedcfg.EnvOrDefault("LOCAL_STORE_DIR", "./data"),
		DownloadFolder:  sharedcfg.EnvOrDefault("DOWNLOAD_FOLDER", "download"),
		ThresholdFolder: sharedcfg.EnvOrDefault("THRESHOLD_FOLDER", "thresholds"),
		RasterFolder:    sharedcfg.EnvOrDefault("RASTER_FOLDER", "frontend/public/rasters"),
		MeteoFolder:     sharedcfg.EnvOrDefault("METEO_FOLDER", "frontend/public/coquimbo_meteo"),
		RetentionCap:    p.positiveInt("RETENTION_CAP", 5),
		StagingDir:      os.Getenv("STAGING_DIR"),

		QueryCacheTTL:  p.nonNegativeDuration("QUERY_CACHE_TTL", "0s"),
		QueryCacheSize: p.positiveInt("QUERY_CACHE_SIZE", 8),

		CDSAPIURL:       strings.TrimRight(sharedcfg.EnvOrDefault("CDSAPI_URL", "https://ewds.climate.copernicus.eu/api"), "/"),
		CDSAPIKey:       os.Getenv("CDSAPI_KEY"),
		CDSPollInterval: p.duration("CDS_POLL_INTERVAL", "15s"),
		CDSTimeout:      p.duration("CDS_TIMEOUT", "2h"),
		BBox: domain.BBox{
			North: p.float("BBOX_NORTH", domain.CoquimboBBox.North),
			South: p.float("BBOX_SOUTH", domain.CoquimboBBox.South),
			West:  p.float("BBOX_WEST", domain.CoquimboBBox.West),
			East:  p.float("BBOX_EAST", domain.CoquimboBBox.East),
		},
		LeadTimeHours: p.hours("LEADTIME_HOURS", defaultLeadTimes()),

		ECMWFEnabled: p.boolean("ECMWF_ENABLED", false),
		ECMWFBaseURL: strings.TrimRight(sharedcfg.EnvOrDefault("ECMWF_BASE_URL", "https://data.ecmwf.int/forecasts"), "/"),
		ECMWFParams:  splitList(sharedcfg.EnvOrDefault("ECMWF_PARAMS", "tp,2t")),
		ECMWFSteps:   p.hours("ECMWF_STEPS", []int{12, 24}),

		ClipPolygonPath:  os.Getenv("CLIP_POLYGON_PATH"),
		ClipMinDischarge: p.float("CLIP_MIN_DISCHARGE", domain.DefaultMinDischarge),

		ProducerSchedule: sharedcfg.EnvOrDefault("PRODUCER_SCHEDULE", "06:00"),

		KafkaEnabled: p.boolean("KAFKA_ENABLED", false),
		KafkaBrokers: sharedcfg.ParseBrokers(sharedcfg.EnvOrDefault("KAFKA_BROKERS", "localhost:9092")),
		KafkaTopic:   sharedcfg.EnvOrDefault("KAFKA_TOPIC", "grid-published"),
	}
	if p.err != nil {
		return nil, p.err
	}

	switch cfg.StoreBackend {
	case BackendGitHub:
		if cfg.GitHubRepo == "" || !strings.Contains(cfg.GitHubRepo, "/") {
			return nil, errors.New("GITHUB_REPO must be owner/name")
		}
	case BackendS3:
		if cfg.S3Bucket == "" {
			return nil, errors.New("S3_BUCKET is required when STORE_BACKEND is s3")
		}
	case BackendLocal:
		if cfg.LocalStoreDir == "" {
			return nil, errors.New("LOCAL_STORE_DIR is required when STORE_BACKEND is local")
		}
	default:
		return nil, fmt.Errorf("invalid STORE_BACKEND %q: want github, s3 or local", cfg.StoreBackend)
	}
	if cfg.DownloadFolder == "" {
		return nil, errors.New("DOWNLOAD_FOLDER is required")
	}
	if err := cfg.BBox.Validate(); err != nil {
		return nil, fmt.Errorf("invalid BBOX_*: %w", err)
	}
	if !scheduleRE.MatchString(cfg.ProducerSchedule) {
		return nil, fmt.Errorf("invalid PRODUCER_SCHEDULE %q: want HH:MM", cfg.ProducerSchedule)
	}
	for _, param := range cfg.ECMWFParams {
		if param != "tp" && param != "2t" {
			return nil, fmt.Errorf("invalid ECMWF_PARAMS entry %q: want tp or 2t", param)
		}
	}
	if cfg.KafkaEnabled && len(cfg.KafkaBrokers) == 0 {
		return nil, errors.New("KAFKA_BROKERS is required when KAFKA_ENABLED is true")
	}
	if cfg.KafkaEnabled && cfg.KafkaTopic == "" {
		return nil, errors.New("KAFKA_TOPIC is required when KAFKA_ENABLED is true")
	}

	return cfg, nil
}

// ValidateProducer checks settings only the producer needs.
func (c *Config) ValidateProducer() error {
	if c.CDSAPIKey == "" {
		return errors.New("CDSAPI_KEY is required")
	}
	if c.StoreBackend == BackendGitHub && c.GitHubToken == "" {
		return errors.New("GITHUB_TOKEN is required to write to the github store")
	}
	if c.ClipPolygonPath != "" {
		if _, err := os.Stat(c.ClipPolygonPath); err != nil {
			return fmt.Errorf("invalid CLIP_POLYGON_PATH: %w", err)
		}
	}
	return nil
}

// defaultLeadTimes are the GloFAS daily horizons 24h through 720h.
func defaultLeadTimes() []int {
	hours := make([]int, 0, 30)
	for h := 24; h <= 720; h += 24 {
		hours = append(hours, h)
	}
	return hours
}

// parser collects the first parse error so Load can report it after
// building the whole Config.
type parser struct {
	err error
}

func (p *parser) fail(key, value string, cause error) {
	if p.err == nil {
		p.err = fmt.Errorf("invalid %s %q: %w", key, value, cause)
	}
}

func (p *parser) duration(key, def string) time.Duration {
	s := sharedcfg.EnvOrDefault(key, def)
	d, err := time.ParseDuration(s)
	if err == nil && d <= 0 {
		err = errors.New("must be positive")
	}
	if err != nil {
		p.fail(key, s, err)
	}
	return d
}

func (p *parser) nonNegativeDuration(key, def string) time.Duration {
	s := sharedcfg.EnvOrDefault(key, def)
	d, err := time.ParseDuration(s)
	if err == nil && d < 0 {
		err = errors.New("must not be negative")
	}
	if err != nil {
		p.fail(key, s, err)
	}
	return d
}

func (p *parser) positiveInt(key string, def int) int {
	s := os.Getenv(key)
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err == nil && n <= 0 {
		err = errors.New("must be positive")
	}
	if err != nil {
		p.fail(key, s, err)
		return def
	}
	return n
}

func (p *parser) float(key string, def float64) float64 {
	s := os.Getenv(key)
	if s == "" {
		return def
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		p.fail(key, s, err)
		return def
	}
	return f
}

func (p *parser) boolean(key string, def bool) bool {
	s := os.Getenv(key)
	if s == "" {
		return def
	}
	b, err := strconv.ParseBool(s)
	if err != nil {
		p.fail(key, s, err)
		return def
	}
	return b
}

func (p *parser) hours(key string, def []int) []int {
	s := os.Getenv(key)
	if s == "" {
		return def
	}
	var out []int
	for _, part := range splitList(s) {
		n, err := strconv.Atoi(part)
		if err == nil && n < 0 {
			err = errors.New("must not be negative")
		}
		if err != nil {
			p.fail(key, s, err)
			return def
		}
		out = append(out, n)
	}
	if len(out) == 0 {
		p.fail(key, s, errors.New("empty list"))
		return def
	}
	return out
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

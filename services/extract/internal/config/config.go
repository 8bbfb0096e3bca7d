package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"pagetext/pkg/ocr"
	"pagetext/pkg/pdfproc"
	"pagetext/pkg/reconcile"
)

// ConfigPath is read when EXTRACT_CONFIG is unset.
const ConfigPath = "config.yaml"

// FileConfig represents configuration loaded from YAML.
type FileConfig struct {
	Port     string `yaml:"port"`
	LogLevel string `yaml:"logLevel"`

	// DatabaseURL selects the Postgres result store; empty keeps results in memory.
	DatabaseURL string `yaml:"databaseURL"`

	RedisAddr              string `yaml:"redisAddr"`
	RedisPassword          string `yaml:"redisPassword"`
	QueueName              string `yaml:"queueName"`
	QueueGroup             string `yaml:"queueGroup"`
	QueueConcurrency       int    `yaml:"queueConcurrency"`
	QueueMaxRetries        int    `yaml:"queueMaxRetries"`
	QueueRetryDelaySeconds int    `yaml:"queueRetryDelaySeconds"`

	InternalAuthDisabled        bool     `yaml:"internalAuthDisabled"`
	InternalJWTPublicKeyPath    string   `yaml:"internalJwtPublicKeyPath"`
	InternalJWTVerifyPublicKeys string   `yaml:"internalJwtVerifyPublicKeys"`
	InternalJWTKeyID            string   `yaml:"internalJwtKeyId"`
	InternalJWTAllowedIssuers   []string `yaml:"internalJwtAllowedIssuers"`

	RateLimitPerMinute int      `yaml:"rateLimitPerMinute"`
	TrustedProxies     []string `yaml:"trustedProxies"`

	// Page images are uploaded only when MinioEndpoint is set.
	MinioEndpoint   string `yaml:"minioEndpoint"`
	MinioAccessKey  string `yaml:"minioAccessKey"`
	MinioSecretKey  string `yaml:"minioSecretKey"`
	MinioBucket     string `yaml:"minioBucket"`
	MinioRegion     string `yaml:"minioRegion"`
	MinioUseSSL     bool   `yaml:"minioUseSSL"`
	ImageURLTTLMins int    `yaml:"imageUrlTtlMinutes"`

	DPI                 float64 `yaml:"dpi"`
	PageWorkers         int     `yaml:"pageWorkers"`
	OCREnabled          bool    `yaml:"ocrEnabled"`
	OCRLanguages        string  `yaml:"ocrLanguages"`
	OCRPageSegMode      int     `yaml:"ocrPageSegMode"`
	OCREngineMode       int     `yaml:"ocrEngineMode"`
	OCRWhitelist        *string `yaml:"ocrWhitelist"`
	TessdataPrefix      string  `yaml:"tessdataPrefix"`
	OCRConfidence       bool    `yaml:"ocrConfidence"`
	MinExtractedRunes   int     `yaml:"minExtractedRunes"`
	AllowLocalFiles     bool    `yaml:"allowLocalFiles"`
	MaxDocumentMB       int     `yaml:"maxDocumentMB"`
	FetchTimeoutSeconds int     `yaml:"fetchTimeoutSeconds"`
	PdftotextCommand    string  `yaml:"pdftotextCommand"`
}

// Load reads config from path, falling back to EXTRACT_CONFIG and then
// ConfigPath, applies environment overrides and validates the result.
func Load(path string) (FileConfig, error) {
	if path == "" {
		path = os.Getenv("EXTRACT_CONFIG")
	}
	if path == "" {
		path = ConfigPath
	}
	cfg := defaults()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	if err := applyEnv(&cfg); err != nil {
		return cfg, err
	}
	if err := validateConfig(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func defaults() FileConfig {
	return FileConfig{
		Port:                   "8086",
		LogLevel:               "info",
		QueueName:              "pagetext:extract",
		QueueGroup:             "extract",
		QueueConcurrency:       1,
		QueueMaxRetries:        3,
		QueueRetryDelaySeconds: 2,
		InternalJWTAllowedIssuers: []string{
			"gateway",
		},
		MinioBucket:         "pagetext",
		ImageURLTTLMins:     15,
		DPI:                 pdfproc.DefaultDPI,
		PageWorkers:         1,
		OCREnabled:          true,
		OCRLanguages:        ocr.DefaultLanguage,
		OCRPageSegMode:      ocr.DefaultPageSegMode,
		OCREngineMode:       ocr.DefaultEngineMode,
		MinExtractedRunes:   reconcile.DefaultMinExtractedRunes,
		MaxDocumentMB:       pdfproc.DefaultMaxDocumentBytes >> 20,
		FetchTimeoutSeconds: 60,
	}
}

func applyEnv(cfg *FileConfig) error {
	strs := map[string]*string{
		"EXTRACT_PORT":                             &cfg.Port,
		"EXTRACT_LOG_LEVEL":                        &cfg.LogLevel,
		"DATABASE_URL":                             &cfg.DatabaseURL,
		"REDIS_ADDR":                               &cfg.RedisAddr,
		"REDIS_PASSWORD":                           &cfg.RedisPassword,
		"EXTRACT_QUEUE_NAME":                       &cfg.QueueName,
		"EXTRACT_QUEUE_GROUP":                      &cfg.QueueGroup,
		"PAGETEXT_INTERNAL_JWT_PUBLIC_KEY_PATH":    &cfg.InternalJWTPublicKeyPath,
		"PAGETEXT_INTERNAL_JWT_VERIFY_PUBLIC_KEYS": &cfg.InternalJWTVerifyPublicKeys,
		"PAGETEXT_INTERNAL_JWT_KEY_ID":             &cfg.InternalJWTKeyID,
		"MINIO_ENDPOINT":                           &cfg.MinioEndpoint,
		"MINIO_ACCESS_KEY":                         &cfg.MinioAccessKey,
		"MINIO_SECRET_KEY":                         &cfg.MinioSecretKey,
		"MINIO_BUCKET":                             &cfg.MinioBucket,
		"MINIO_REGION":                             &cfg.MinioRegion,
		"EXTRACT_OCR_LANGUAGES":                    &cfg.OCRLanguages,
		"TESSDATA_PREFIX":                          &cfg.TessdataPrefix,
		"EXTRACT_PDFTOTEXT_COMMAND":                &cfg.PdftotextCommand,
	}
	for key, dst := range strs {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			*dst = v
		}
	}

	ints := map[string]*int{
		"EXTRACT_QUEUE_CONCURRENCY":         &cfg.QueueConcurrency,
		"EXTRACT_QUEUE_MAX_RETRIES":         &cfg.QueueMaxRetries,
		"EXTRACT_QUEUE_RETRY_DELAY_SECONDS": &cfg.QueueRetryDelaySeconds,
		"EXTRACT_RATE_LIMIT_PER_MINUTE":     &cfg.RateLimitPerMinute,
		"EXTRACT_PAGE_WORKERS":              &cfg.PageWorkers,
		"EXTRACT_OCR_PSM":                   &cfg.OCRPageSegMode,
		"EXTRACT_OCR_OEM":                   &cfg.OCREngineMode,
		"EXTRACT_MIN_EXTRACTED_RUNES":       &cfg.MinExtractedRunes,
		"EXTRACT_MAX_DOCUMENT_MB":           &cfg.MaxDocumentMB,
		"EXTRACT_FETCH_TIMEOUT_SECONDS":     &cfg.FetchTimeoutSeconds,
	}
	for key, dst := range ints {
		v := strings.TrimSpace(os.Getenv(key))
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("config: %s: %w", key, err)
		}
		*dst = n
	}

	bools := map[string]*bool{
		"EXTRACT_INTERNAL_AUTH_DISABLED": &cfg.InternalAuthDisabled,
		"MINIO_USE_SSL":                  &cfg.MinioUseSSL,
		"EXTRACT_OCR_ENABLED":            &cfg.OCREnabled,
		"EXTRACT_OCR_CONFIDENCE":         &cfg.OCRConfidence,
		"EXTRACT_ALLOW_LOCAL_FILES":      &cfg.AllowLocalFiles,
	}
	for key, dst := range bools {
		v := strings.TrimSpace(os.Getenv(key))
		if v == "" {
			continue
		}
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("config: %s: %w", key, err)
		}
		*dst = b
	}

	if v := strings.TrimSpace(os.Getenv("EXTRACT_DPI")); v != "" {
		dpi, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("config: EXTRACT_DPI: %w", err)
		}
		cfg.DPI = dpi
	}
	if v, ok := os.LookupEnv("EXTRACT_OCR_WHITELIST"); ok {
		cfg.OCRWhitelist = &v
	}
	if v := strings.TrimSpace(os.Getenv("EXTRACT_TRUSTED_PROXIES")); v != "" {
		cfg.TrustedProxies = strings.Split(v, ",")
	}
	return nil
}

func validateConfig(cfg FileConfig) error {
	if strings.TrimSpace(cfg.Port) == "" {
		return errors.New("config: port is required")
	}
	if strings.TrimSpace(cfg.RedisAddr) == "" {
		return errors.New("config: redisAddr is required (set in config.yaml or REDIS_ADDR)")
	}
	if !cfg.InternalAuthDisabled && strings.TrimSpace(cfg.InternalJWTPublicKeyPath) == "" && strings.TrimSpace(cfg.InternalJWTVerifyPublicKeys) == "" {
		return errors.New("config: internal service auth requires PAGETEXT_INTERNAL_JWT_PUBLIC_KEY_PATH or internalAuthDisabled=true")
	}
	if cfg.QueueConcurrency <= 0 {
		return errors.New("config: queueConcurrency must be > 0")
	}
	if cfg.RateLimitPerMinute < 0 {
		return errors.New("config: rateLimitPerMinute must be >= 0")
	}
	if cfg.MinioEndpoint != "" && (cfg.MinioAccessKey == "" || cfg.MinioSecretKey == "" || cfg.MinioBucket == "") {
		return errors.New("config: minioAccessKey, minioSecretKey and minioBucket are required with minioEndpoint")
	}
	if cfg.DPI < 0 {
		return errors.New("config: dpi must be >= 0")
	}
	if cfg.PageWorkers < 0 {
		return errors.New("config: pageWorkers must be >= 0")
	}
	if cfg.MinExtractedRunes < 0 {
		return errors.New("config: minExtractedRunes must be >= 0")
	}
	if cfg.MaxDocumentMB < 0 {
		return errors.New("config: maxDocumentMB must be >= 0")
	}
	if cfg.OCREnabled {
		if err := cfg.OCROptions().Validate(); err != nil {
			return fmt.Errorf("config: %w", err)
		}
	}
	return nil
}

// OCROptions converts the OCR fields to engine options.
func (c FileConfig) OCROptions() ocr.Options {
	opts := ocr.DefaultOptions()
	if langs := ocr.ParseLanguages(c.OCRLanguages); len(langs) > 0 {
		opts.Languages = langs
	}
	opts.PageSegMode = c.OCRPageSegMode
	opts.EngineMode = c.OCREngineMode
	if c.OCRWhitelist != nil {
		opts.Whitelist = *c.OCRWhitelist
	}
	opts.TessdataPrefix = c.TessdataPrefix
	return opts
}

// ProcessingSettings converts the processing fields to processor settings.
func (c FileConfig) ProcessingSettings() pdfproc.Settings {
	return pdfproc.Settings{
		DPI:               c.DPI,
		Workers:           c.PageWorkers,
		OCREnabled:        c.OCREnabled,
		OCR:               c.OCROptions(),
		Confidence:        c.OCRConfidence,
		MinExtractedRunes: c.MinExtractedRunes,
		AllowLocal:        c.AllowLocalFiles,
		MaxDocumentBytes:  int64(c.MaxDocumentMB) << 20,
		FetchTimeout:      time.Duration(c.FetchTimeoutSeconds) * time.Second,
		PdftotextCommand:  c.PdftotextCommand,
	}
}

// ImageURLTTL is the lifetime of presigned page image URLs.
func (c FileConfig) ImageURLTTL() time.Duration {
	if c.ImageURLTTLMins <= 0 {
		return 15 * time.Minute
	}
	return time.Duration(c.ImageURLTTLMins) * time.Minute
}

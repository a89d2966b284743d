// Package config provides configuration management functionality.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds application configuration
type Config struct {
	DataDir   string // Base directory for all databases (always absolute)
	LogLevel  string
	Port      int
	Host      string
	DevMode   bool
	Data      DataConfig
	Portfolio PortfolioConfig
	Trading   TradingConfig
	Short     ShortConfig
	Scoring   ScoringConfig
	Optimizer OptimizerConfig
	Backup    BackupConfig
}

// DataConfig controls the market data facade: provider order, per-provider
// token buckets and cache lifetimes.
type DataConfig struct {
	Providers      []string           // attempted in declared priority order
	RateLimits     map[string]float64 // provider -> tokens per second
	QuoteTTL       int                // seconds a real-time quote stays fresh (default 1h)
	RequestTimeout int                // per-provider request timeout in seconds
	MaxRateWait    int                // seconds to wait on a token bucket before giving up
	CacheSize      int                // LRU capacity for the indicator cache
	Watchlist      []string           // symbols synced by the scheduled bar sync job
	AlphaVantage   AlphaVantageConfig
}

// AlphaVantageConfig holds credentials for the primary provider.
type AlphaVantageConfig struct {
	APIKey  string
	BaseURL string
}

// PortfolioConfig holds portfolio-level limits enforced by the risk validator.
type PortfolioConfig struct {
	InitialCapital       float64
	MaxPositionSize      float64 // fraction of net worth, default 0.15
	MaxSectorAllocation  float64 // fraction of net worth, default 0.30
	CorrelationThreshold float64 // max pairwise correlation with holdings, default 0.70
	MaxLeverage          float64 // default 1.0
	MaxPositions         int     // 0 = unbounded
}

// TradingConfig holds execution cost assumptions.
type TradingConfig struct {
	CommissionRate float64 // default 0.001
	SlippageRate   float64 // default 0.0005
}

// ShortConfig holds short-selling parameters.
type ShortConfig struct {
	MarginRequirement       float64 // collateral multiple posted on entry, default 1.5
	ShortInterestRate       float64 // annual borrow rate, default 0.03
	MaintenanceMarginBuffer float64 // subtracted from the requirement for the maintenance line, default 0.25
	LiquidationPenalty      float64 // surcharge on forced liquidation fills, default 0.01
}

// ScoringConfig holds composite weights and recommendation thresholds.
type ScoringConfig struct {
	WeightFundamental float64 // default 0.40
	WeightTechnical   float64 // default 0.30
	WeightMomentum    float64 // default 0.20
	WeightSentiment   float64 // default 0.10
	BuyThreshold      float64 // default 70
	SellThreshold     float64 // default 40
}

// OptimizerConfig bounds grid-search fan-out and walk-forward windows.
type OptimizerConfig struct {
	Parallelism  int     // worker goroutines for grid search, default NumCPU
	TrainWindow  int     // walk-forward training bars
	TestWindow   int     // walk-forward test bars
	RiskFreeRate float64 // annual risk-free rate fed to Sharpe
}

// BackupConfig holds S3-compatible (Cloudflare R2) backup credentials.
// Backups are disabled when AccountID is empty.
type BackupConfig struct {
	AccountID       string
	AccessKeyID     string
	SecretAccessKey string
	BucketName      string
	RetentionDays   int
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	dataDir := getEnv("HINDSIGHT_DATA_DIR", "")
	if dataDir == "" {
		dataDir = "./data"
	}

	absDataDir, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory path: %w", err)
	}

	if err := os.MkdirAll(absDataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	cfg := &Config{
		DataDir:  absDataDir,
		Port:     getEnvAsInt("PORT", 8010),
		Host:     getEnv("HOST", "0.0.0.0"),
		DevMode:  getEnvAsBool("DEV_MODE", false),
		LogLevel: getEnv("LOG_LEVEL", "info"),
		Data: DataConfig{
			Providers: getEnvAsList("DATA_PROVIDERS", []string{"alphavantage", "stooq"}),
			RateLimits: map[string]float64{
				"alphavantage": getEnvAsFloat("RATE_LIMIT_ALPHAVANTAGE", 0.0833), // 5 requests/minute free tier
				"stooq":        getEnvAsFloat("RATE_LIMIT_STOOQ", 1.0),
			},
			QuoteTTL:       getEnvAsInt("QUOTE_TTL_SECONDS", 3600),
			RequestTimeout: getEnvAsInt("PROVIDER_TIMEOUT_SECONDS", 10),
			MaxRateWait:    getEnvAsInt("RATE_LIMIT_MAX_WAIT_SECONDS", 30),
			CacheSize:      getEnvAsInt("INDICATOR_CACHE_SIZE", 1024),
			Watchlist:      getEnvAsList("WATCHLIST", nil),
			AlphaVantage: AlphaVantageConfig{
				APIKey:  getEnv("ALPHAVANTAGE_API_KEY", ""),
				BaseURL: getEnv("ALPHAVANTAGE_BASE_URL", "https://www.alphavantage.co"),
			},
		},
		Portfolio: PortfolioConfig{
			InitialCapital:       getEnvAsFloat("INITIAL_CAPITAL", 100000),
			MaxPositionSize:      getEnvAsFloat("MAX_POSITION_SIZE", 0.15),
			MaxSectorAllocation:  getEnvAsFloat("MAX_SECTOR_ALLOCATION", 0.30),
			CorrelationThreshold: getEnvAsFloat("CORRELATION_THRESHOLD", 0.70),
			MaxLeverage:          getEnvAsFloat("MAX_LEVERAGE", 1.0),
			MaxPositions:         getEnvAsInt("MAX_POSITIONS", 0),
		},
		Trading: TradingConfig{
			CommissionRate: getEnvAsFloat("COMMISSION_RATE", 0.001),
			SlippageRate:   getEnvAsFloat("SLIPPAGE_RATE", 0.0005),
		},
		Short: ShortConfig{
			MarginRequirement:       getEnvAsFloat("MARGIN_REQUIREMENT", 1.5),
			ShortInterestRate:       getEnvAsFloat("SHORT_INTEREST_RATE", 0.03),
			MaintenanceMarginBuffer: getEnvAsFloat("MAINTENANCE_MARGIN_BUFFER", 0.25),
			LiquidationPenalty:      getEnvAsFloat("LIQUIDATION_PENALTY", 0.01),
		},
		Scoring: ScoringConfig{
			WeightFundamental: getEnvAsFloat("SCORING_WEIGHT_FUNDAMENTAL", 0.40),
			WeightTechnical:   getEnvAsFloat("SCORING_WEIGHT_TECHNICAL", 0.30),
			WeightMomentum:    getEnvAsFloat("SCORING_WEIGHT_MOMENTUM", 0.20),
			WeightSentiment:   getEnvAsFloat("SCORING_WEIGHT_SENTIMENT", 0.10),
			BuyThreshold:      getEnvAsFloat("SCORING_BUY_THRESHOLD", 70),
			SellThreshold:     getEnvAsFloat("SCORING_SELL_THRESHOLD", 40),
		},
		Optimizer: OptimizerConfig{
			Parallelism:  getEnvAsInt("OPTIMIZER_PARALLELISM", runtime.NumCPU()),
			TrainWindow:  getEnvAsInt("WALK_FORWARD_TRAIN_WINDOW", 120),
			TestWindow:   getEnvAsInt("WALK_FORWARD_TEST_WINDOW", 30),
			RiskFreeRate: getEnvAsFloat("RISK_FREE_RATE", 0.02),
		},
		Backup: BackupConfig{
			AccountID:       getEnv("R2_ACCOUNT_ID", ""),
			AccessKeyID:     getEnv("R2_ACCESS_KEY_ID", ""),
			SecretAccessKey: getEnv("R2_SECRET_ACCESS_KEY", ""),
			BucketName:      getEnv("R2_BUCKET_NAME", ""),
			RetentionDays:   getEnvAsInt("R2_RETENTION_DAYS", 30),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks configuration consistency. Weight and threshold mistakes
// here would silently distort every score, so they fail startup instead.
func (c *Config) Validate() error {
	weightSum := c.Scoring.WeightFundamental + c.Scoring.WeightTechnical +
		c.Scoring.WeightMomentum + c.Scoring.WeightSentiment
	if weightSum < 0.999 || weightSum > 1.001 {
		return fmt.Errorf("scoring weights must sum to 1.0, got %.4f", weightSum)
	}
	if c.Scoring.SellThreshold >= c.Scoring.BuyThreshold {
		return fmt.Errorf("sell threshold (%.1f) must be below buy threshold (%.1f)",
			c.Scoring.SellThreshold, c.Scoring.BuyThreshold)
	}
	if c.Trading.CommissionRate < 0 || c.Trading.SlippageRate < 0 {
		return fmt.Errorf("commission and slippage rates must be non-negative")
	}
	if c.Short.MarginRequirement <= 1.0 {
		return fmt.Errorf("margin requirement must exceed 1.0, got %.2f", c.Short.MarginRequirement)
	}
	if c.Short.MaintenanceMarginBuffer <= 0 || c.Short.MaintenanceMarginBuffer >= c.Short.MarginRequirement {
		return fmt.Errorf("maintenance margin buffer must be in (0, %.2f)", c.Short.MarginRequirement)
	}
	if c.Portfolio.MaxPositionSize <= 0 || c.Portfolio.MaxPositionSize > 1 {
		return fmt.Errorf("max position size must be in (0, 1], got %.2f", c.Portfolio.MaxPositionSize)
	}
	if c.Portfolio.MaxSectorAllocation <= 0 || c.Portfolio.MaxSectorAllocation > 1 {
		return fmt.Errorf("max sector allocation must be in (0, 1], got %.2f", c.Portfolio.MaxSectorAllocation)
	}
	if c.Portfolio.MaxLeverage <= 0 {
		return fmt.Errorf("max leverage must be positive, got %.2f", c.Portfolio.MaxLeverage)
	}
	if len(c.Data.Providers) == 0 {
		return fmt.Errorf("at least one data provider must be configured")
	}
	if c.Optimizer.Parallelism < 1 {
		return fmt.Errorf("optimizer parallelism must be at least 1")
	}
	return nil
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvAsList(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				out = append(out, trimmed)
			}
		}
		if len(out) > 0 {
			return out
		}
	}
	return defaultValue
}

package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	DatabaseURL string
	RedisURL    string
	TenantID    int64

	ForecastHorizonDays int
	SeasonalPeriod      int
	TrainWindowDays     int
	SequenceWindowDays  int
	SequenceEpochs      int
	BoostRounds         int
	OutlierScreening    bool

	PricingDays     int
	PricingWorkers  int
	PremiumScale    float64
	DiscountScale   float64
	HighThreshold   float64
	LowThreshold    float64
	ConfigCacheTTL  time.Duration
	WeekendDays     []time.Weekday
}

func Load() *Config {
	cfg := &Config{
		DatabaseURL: os.Getenv("DATABASE_URL"),
		RedisURL:    os.Getenv("REDIS_URL"),
	}

	if cfg.DatabaseURL == "" {
		log.Println("Warning: DATABASE_URL not set")
	}
	if cfg.RedisURL == "" {
		log.Println("Warning: REDIS_URL not set, defaulting to localhost:6379")
		cfg.RedisURL = "localhost:6379"
	}

	cfg.TenantID = 1
	if v := strings.TrimSpace(os.Getenv("TENANT_ID")); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
			cfg.TenantID = n
		}
	}

	cfg.ForecastHorizonDays = 30
	if v := strings.TrimSpace(os.Getenv("FORECAST_HORIZON_DAYS")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.ForecastHorizonDays = n
		}
	}

	cfg.SeasonalPeriod = 7
	if v := strings.TrimSpace(os.Getenv("SEASONAL_PERIOD")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.SeasonalPeriod = n
		}
	}

	cfg.TrainWindowDays = 90
	if v := strings.TrimSpace(os.Getenv("TRAIN_WINDOW_DAYS")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.TrainWindowDays = n
		}
	}

	cfg.SequenceWindowDays = 14
	if v := strings.TrimSpace(os.Getenv("SEQUENCE_WINDOW_DAYS")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.SequenceWindowDays = n
		}
	}

	cfg.SequenceEpochs = 30
	if v := strings.TrimSpace(os.Getenv("SEQUENCE_EPOCHS")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.SequenceEpochs = n
		}
	}

	cfg.BoostRounds = 60
	if v := strings.TrimSpace(os.Getenv("BOOST_ROUNDS")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.BoostRounds = n
		}
	}

	cfg.OutlierScreening = true
	if v := strings.TrimSpace(os.Getenv("OUTLIER_SCREENING")); v != "" {
		cfg.OutlierScreening = strings.EqualFold(v, "true")
	}

	cfg.PricingDays = 30
	if v := strings.TrimSpace(os.Getenv("PRICING_DAYS")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.PricingDays = n
		}
	}

	cfg.PricingWorkers = 4
	if v := strings.TrimSpace(os.Getenv("PRICING_WORKERS")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.PricingWorkers = n
		}
	}

	cfg.PremiumScale = 80
	if v := strings.TrimSpace(os.Getenv("PREMIUM_SCALE")); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f > 0 {
			cfg.PremiumScale = f
		}
	}

	cfg.DiscountScale = 60
	if v := strings.TrimSpace(os.Getenv("DISCOUNT_SCALE")); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f > 0 {
			cfg.DiscountScale = f
		}
	}

	cfg.HighThreshold = 0.7
	if v := strings.TrimSpace(os.Getenv("SIGNAL_HIGH_THRESHOLD")); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f > 0 && f < 1 {
			cfg.HighThreshold = f
		}
	}

	cfg.LowThreshold = 0.3
	if v := strings.TrimSpace(os.Getenv("SIGNAL_LOW_THRESHOLD")); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f > 0 && f < 1 {
			cfg.LowThreshold = f
		}
	}

	cfg.ConfigCacheTTL = 5 * time.Minute
	if v := strings.TrimSpace(os.Getenv("CONFIG_CACHE_TTL")); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			cfg.ConfigCacheTTL = d
		}
	}

	cfg.WeekendDays = []time.Weekday{time.Friday, time.Saturday}
	if v := strings.TrimSpace(os.Getenv("WEEKEND_DAYS")); v != "" {
		if days := parseWeekendDays(v); len(days) > 0 {
			cfg.WeekendDays = days
		}
	}

	return cfg
}

var weekdayNames = map[string]time.Weekday{
	"sun": time.Sunday, "mon": time.Monday, "tue": time.Tuesday,
	"wed": time.Wednesday, "thu": time.Thursday, "fri": time.Friday,
	"sat": time.Saturday,
}

// parseWeekendDays accepts a comma-separated list of three-letter day
// names, e.g. "sat,sun".
func parseWeekendDays(v string) []time.Weekday {
	var out []time.Weekday
	for _, part := range strings.Split(v, ",") {
		name := strings.ToLower(strings.TrimSpace(part))
		if len(name) > 3 {
			name = name[:3]
		}
		wd, ok := weekdayNames[name]
		if !ok {
			log.Printf("Warning: unknown weekend day %q ignored", part)
			continue
		}
		out = append(out, wd)
	}
	return out
}

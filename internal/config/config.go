package config

import (
	"fmt"
	"net/netip"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	AppEnv         string `mapstructure:"APP_ENV"`
	Port           string `mapstructure:"PORT"`
	DatabaseURL    string `mapstructure:"DATABASE_URL"`
	JWTSecret      string `mapstructure:"JWT_SECRET"`
	TokenTTLMins   int    `mapstructure:"TOKEN_TTL_MINUTES"`
	AllowedOrigins string `mapstructure:"ALLOWED_ORIGINS"`
	TrustedProxies string `mapstructure:"TRUSTED_PROXIES"`

	PlaidClientID      string `mapstructure:"PLAID_CLIENT_ID"`
	PlaidSecret        string `mapstructure:"PLAID_SECRET"`
	PlaidBaseURL       string `mapstructure:"PLAID_BASE_URL"`
	PlaidWebhookSecret string `mapstructure:"PLAID_WEBHOOK_SECRET"`
	PlaidWebhookURL    string `mapstructure:"PLAID_WEBHOOK_URL"`

	RedisURL    string `mapstructure:"REDIS_URL"`
	RabbitMQURL string `mapstructure:"RABBITMQ_URL"`

	RateLimitRequests   int    `mapstructure:"RATE_LIMIT_REQUESTS"`
	RateLimitWindowMins int    `mapstructure:"RATE_LIMIT_WINDOW_MINUTES"`
	OTPTTLMins          int    `mapstructure:"OTP_TTL_MINUTES"`
	SyncConcurrency     int    `mapstructure:"SYNC_CONCURRENCY"`
	AnalyticsWindowMode string `mapstructure:"ANALYTICS_WINDOW_MODE"`
	SessionCleanupCron  string `mapstructure:"SESSION_CLEANUP_SCHEDULE"`
	BalanceRefreshCron  string `mapstructure:"BALANCE_REFRESH_SCHEDULE"`

	AdvanceAmount               string `mapstructure:"ADVANCE_AMOUNT"`
	AdvanceInstantFee           string `mapstructure:"ADVANCE_INSTANT_FEE"`
	AdvanceStandardFee          string `mapstructure:"ADVANCE_STANDARD_FEE"`
	AdvanceEarlyRepaymentDays   int    `mapstructure:"ADVANCE_EARLY_REPAYMENT_DAYS"`
	AdvanceEarlyDiscountPercent string `mapstructure:"ADVANCE_EARLY_DISCOUNT_PERCENT"`
	AdvanceMaxTermDays          int    `mapstructure:"ADVANCE_MAX_TERM_DAYS"`
}

var requiredKeys = []string{
	"DATABASE_URL",
	"JWT_SECRET",
	"PLAID_CLIENT_ID",
	"PLAID_SECRET",
	"PLAID_WEBHOOK_SECRET",
}

var optionalKeys = []string{
	"APP_ENV",
	"PORT",
	"TOKEN_TTL_MINUTES",
	"ALLOWED_ORIGINS",
	"TRUSTED_PROXIES",
	"PLAID_BASE_URL",
	"PLAID_WEBHOOK_URL",
	"REDIS_URL",
	"RABBITMQ_URL",
	"RATE_LIMIT_REQUESTS",
	"RATE_LIMIT_WINDOW_MINUTES",
	"OTP_TTL_MINUTES",
	"SYNC_CONCURRENCY",
	"ANALYTICS_WINDOW_MODE",
	"SESSION_CLEANUP_SCHEDULE",
	"BALANCE_REFRESH_SCHEDULE",
	"ADVANCE_AMOUNT",
	"ADVANCE_INSTANT_FEE",
	"ADVANCE_STANDARD_FEE",
	"ADVANCE_EARLY_REPAYMENT_DAYS",
	"ADVANCE_EARLY_DISCOUNT_PERCENT",
	"ADVANCE_MAX_TERM_DAYS",
}

// Load reads configuration from the environment and fails when a required
// credential or endpoint is unset.
func Load() (Config, error) {
	v := viper.New()
	v.SetDefault("APP_ENV", "development")
	v.SetDefault("PORT", "8080")
	v.SetDefault("TOKEN_TTL_MINUTES", 60*24)
	v.SetDefault("ALLOWED_ORIGINS", "*")
	v.SetDefault("PLAID_BASE_URL", "https://sandbox.plaid.com")
	v.SetDefault("RATE_LIMIT_REQUESTS", 100)
	v.SetDefault("RATE_LIMIT_WINDOW_MINUTES", 15)
	v.SetDefault("OTP_TTL_MINUTES", 10)
	v.SetDefault("SYNC_CONCURRENCY", 4)
	v.SetDefault("ANALYTICS_WINDOW_MODE", "to_date")
	v.SetDefault("SESSION_CLEANUP_SCHEDULE", "*/10 * * * *")
	v.SetDefault("BALANCE_REFRESH_SCHEDULE", "0 */6 * * *")
	v.SetDefault("ADVANCE_AMOUNT", "200.00")
	v.SetDefault("ADVANCE_INSTANT_FEE", "25.00")
	v.SetDefault("ADVANCE_STANDARD_FEE", "15.00")
	v.SetDefault("ADVANCE_EARLY_REPAYMENT_DAYS", 7)
	v.SetDefault("ADVANCE_EARLY_DISCOUNT_PERCENT", "10")
	v.SetDefault("ADVANCE_MAX_TERM_DAYS", 31)
	v.AutomaticEnv()

	for _, key := range append(append([]string{}, requiredKeys...), optionalKeys...) {
		_ = v.BindEnv(key)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}

	var missing []string
	for _, key := range requiredKeys {
		if strings.TrimSpace(v.GetString(key)) == "" {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		return Config{}, fmt.Errorf("missing required environment variables: %s", strings.Join(missing, ", "))
	}
	if _, err := cfg.TrustedProxyPrefixes(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadDatabase reads only what schema migrations need.
func LoadDatabase() (string, error) {
	v := viper.New()
	v.AutomaticEnv()
	_ = v.BindEnv("DATABASE_URL")
	databaseURL := strings.TrimSpace(v.GetString("DATABASE_URL"))
	if databaseURL == "" {
		return "", fmt.Errorf("missing required environment variables: DATABASE_URL")
	}
	return databaseURL, nil
}

func (c Config) TokenTTL() time.Duration {
	return time.Duration(c.TokenTTLMins) * time.Minute
}

func (c Config) RateLimitWindow() time.Duration {
	return time.Duration(c.RateLimitWindowMins) * time.Minute
}

func (c Config) OTPTTL() time.Duration {
	return time.Duration(c.OTPTTLMins) * time.Minute
}

func (c Config) IsProduction() bool {
	return strings.EqualFold(c.AppEnv, "production")
}

// TrustedProxyPrefixes parses TRUSTED_PROXIES, a comma-separated list of
// addresses or CIDR ranges. A bare address trusts that single host.
func (c Config) TrustedProxyPrefixes() ([]netip.Prefix, error) {
	var prefixes []netip.Prefix
	for _, raw := range strings.Split(c.TrustedProxies, ",") {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		if strings.Contains(raw, "/") {
			prefix, err := netip.ParsePrefix(raw)
			if err != nil {
				return nil, fmt.Errorf("invalid TRUSTED_PROXIES entry %q: %w", raw, err)
			}
			prefixes = append(prefixes, prefix.Masked())
			continue
		}
		addr, err := netip.ParseAddr(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid TRUSTED_PROXIES entry %q: %w", raw, err)
		}
		addr = addr.Unmap()
		prefixes = append(prefixes, netip.PrefixFrom(addr, addr.BitLen()))
	}
	return prefixes, nil
}

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Plan describe un tier de suscripción y sus límites derivados.
// Montos en centavos.
type Plan struct {
	TransactionCap  int64 `yaml:"transaction_cap"`
	DailyCap        int64 `yaml:"daily_cap"`
	APIQuota        int   `yaml:"api_quota"` // llamadas por ventana de rate limit
	VelocityCap     int   `yaml:"velocity_cap"`
	OverageFeeCents int64 `yaml:"overage_fee_cents"`
}

type Config struct {
	// Bloque app (opcional en YAML). Si no está, queda vacío.
	App struct {
		// dev | staging | prod
		Env string `yaml:"app_env"`
	} `yaml:"app"`

	Server struct {
		Addr string `yaml:"addr"`
	} `yaml:"server"`

	Storage struct {
		Driver   string `yaml:"driver"` // memory | postgres
		DSN      string `yaml:"dsn"`
		Postgres struct {
			MaxOpenConns    int    `yaml:"max_open_conns"`
			MaxIdleConns    int    `yaml:"max_idle_conns"`
			ConnMaxLifetime string `yaml:"conn_max_lifetime"`
		} `yaml:"postgres"`
	} `yaml:"storage"`

	Cache struct {
		Kind  string `yaml:"kind"` // memory | redis
		Redis struct {
			Addr     string `yaml:"addr"`
			Password string `yaml:"password"`
			DB       int    `yaml:"db"`
			Prefix   string `yaml:"prefix"`
		} `yaml:"redis"`
		Memory struct {
			DefaultTTL string `yaml:"default_ttl"`
		} `yaml:"memory"`
	} `yaml:"cache"`

	Token struct {
		Issuer        string `yaml:"issuer"`
		SigningSecret string `yaml:"signing_secret"`
		TTL           string `yaml:"ttl"`          // scoped token TTL (<= authorization TTL)
		MerchantTTL   string `yaml:"merchant_ttl"` // charge token TTL
		ClockSkew     string `yaml:"clock_skew"`
	} `yaml:"token"`

	Authorization struct {
		TTL string `yaml:"ttl"` // ventana de confirmación

		// RecheckLimitsOnConfirm: si true, la confirmación re-valida el
		// límite diario contra el gasto completado actual. Default false
		// (acepta el overspend acotado de autorizaciones concurrentes).
		RecheckLimitsOnConfirm bool `yaml:"recheck_limits_on_confirm"`
	} `yaml:"authorization"`

	Idempotency struct {
		Window        string `yaml:"window"`         // ventana de replay
		TimeBucket    string `yaml:"time_bucket"`    // bucket del fingerprint
		WebhookWindow string `yaml:"webhook_window"` // dedupe de webhooks
		Retention     string `yaml:"retention"`      // limpieza del janitor
	} `yaml:"idempotency"`

	Rate struct {
		Enabled bool   `yaml:"enabled"`
		Window  string `yaml:"window"`
	} `yaml:"rate"`

	// Plans mapea plan id → límites. Los defaults cubren los cuatro tiers.
	Plans map[string]Plan `yaml:"plans"`

	// Defaults de agente nuevo (centavos), aplicados al provisionar.
	AgentDefaults struct {
		DailyLimit          int64 `yaml:"daily_limit"`
		TransactionLimit    int64 `yaml:"transaction_limit"`
		VelocityLimit       int   `yaml:"velocity_limit"`
		AutoApproveUnder    int64 `yaml:"auto_approve_under"`
		RequireApprovalOver int64 `yaml:"require_approval_over"`
	} `yaml:"agent_defaults"`

	Admin struct {
		// APIKeyHash es el hash bcrypt de la API key administrativa.
		// La key en claro nunca vive en la config.
		APIKeyHash string `yaml:"api_key_hash"`
	} `yaml:"admin"`

	SMTP struct {
		Host     string `yaml:"host"`
		Port     int    `yaml:"port"`
		Username string `yaml:"username"`
		Password string `yaml:"password"`
		From     string `yaml:"from"`
		// ApprovalsTo recibe los avisos de autorizaciones que quedaron
		// esperando aprobación manual. Vacío = notificaciones apagadas.
		ApprovalsTo string `yaml:"approvals_to"`
	} `yaml:"smtp"`

	Worker struct {
		QueueSize  int `yaml:"queue_size"`
		MaxRetries int `yaml:"max_retries"`
	} `yaml:"worker"`
}

// Load lee la config desde YAML, aplica defaults y overrides de entorno.
// path puede ser vacío: en ese caso solo defaults + env.
func Load(path string) (*Config, error) {
	var c Config
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(b, &c); err != nil {
			return nil, err
		}
	}

	// sane defaults
	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
	if c.Storage.Driver == "" {
		c.Storage.Driver = "memory"
	}
	if c.Cache.Kind == "" {
		c.Cache.Kind = "memory"
	}
	if c.Cache.Memory.DefaultTTL == "" {
		c.Cache.Memory.DefaultTTL = "10m"
	}
	if c.Token.Issuer == "" {
		c.Token.Issuer = "controltower.local"
	}
	if c.Token.TTL == "" {
		c.Token.TTL = "10m"
	}
	if c.Token.MerchantTTL == "" {
		c.Token.MerchantTTL = "5m"
	}
	if c.Token.ClockSkew == "" {
		c.Token.ClockSkew = "30s"
	}
	if c.Authorization.TTL == "" {
		c.Authorization.TTL = "10m"
	}
	if c.Idempotency.Window == "" {
		c.Idempotency.Window = "10m"
	}
	if c.Idempotency.TimeBucket == "" {
		c.Idempotency.TimeBucket = "5m"
	}
	if c.Idempotency.WebhookWindow == "" {
		c.Idempotency.WebhookWindow = "1h"
	}
	if c.Idempotency.Retention == "" {
		c.Idempotency.Retention = "24h"
	}
	if c.Rate.Window == "" {
		c.Rate.Window = "1m"
	}
	if c.Worker.QueueSize == 0 {
		c.Worker.QueueSize = 1024
	}
	if c.Worker.MaxRetries == 0 {
		c.Worker.MaxRetries = 3
	}
	if c.AgentDefaults.DailyLimit == 0 {
		c.AgentDefaults.DailyLimit = 20000 // $200
	}
	if c.AgentDefaults.TransactionLimit == 0 {
		c.AgentDefaults.TransactionLimit = 10000 // $100
	}
	if c.AgentDefaults.VelocityLimit == 0 {
		c.AgentDefaults.VelocityLimit = 10
	}
	if c.AgentDefaults.AutoApproveUnder == 0 {
		c.AgentDefaults.AutoApproveUnder = 1000 // $10
	}
	if c.AgentDefaults.RequireApprovalOver == 0 {
		c.AgentDefaults.RequireApprovalOver = 20000 // $200
	}
	if c.Plans == nil {
		c.Plans = map[string]Plan{}
	}
	applyPlanDefaults(c.Plans)

	c.applyEnvOverrides()

	if err := c.validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// applyPlanDefaults completa los tiers faltantes con la tabla estándar.
func applyPlanDefaults(plans map[string]Plan) {
	defaults := map[string]Plan{
		"sandbox":    {TransactionCap: 10000, DailyCap: 50000, APIQuota: 60, VelocityCap: 25, OverageFeeCents: 5},
		"starter":    {TransactionCap: 50000, DailyCap: 200000, APIQuota: 300, VelocityCap: 100, OverageFeeCents: 3},
		"builder":    {TransactionCap: 100000, DailyCap: 500000, APIQuota: 1200, VelocityCap: 500, OverageFeeCents: 2},
		"enterprise": {TransactionCap: 1000000, DailyCap: 5000000, APIQuota: 6000, VelocityCap: 5000, OverageFeeCents: 1},
	}
	for id, p := range defaults {
		if _, ok := plans[id]; !ok {
			plans[id] = p
		}
	}
}

func (c *Config) validate() error {
	if c.Token.SigningSecret == "" {
		return fmt.Errorf("config: token.signing_secret es requerido (env TOKEN_SIGNING_SECRET)")
	}
	if c.Storage.Driver == "postgres" && c.Storage.DSN == "" {
		return fmt.Errorf("config: storage.dsn es requerido con driver postgres")
	}
	authTTL, err := time.ParseDuration(c.Authorization.TTL)
	if err != nil {
		return fmt.Errorf("config: authorization.ttl inválido: %w", err)
	}
	tokTTL, err := time.ParseDuration(c.Token.TTL)
	if err != nil {
		return fmt.Errorf("config: token.ttl inválido: %w", err)
	}
	// Un token nunca puede sobrevivir a su autorización.
	if tokTTL > authTTL {
		return fmt.Errorf("config: token.ttl (%s) no puede exceder authorization.ttl (%s)", c.Token.TTL, c.Authorization.TTL)
	}
	return nil
}

// ---- Duration accessors (ya validados en Load) ----

func (c *Config) AuthorizationTTL() time.Duration { return mustDur(c.Authorization.TTL, 10*time.Minute) }
func (c *Config) TokenTTL() time.Duration         { return mustDur(c.Token.TTL, 10*time.Minute) }
func (c *Config) MerchantTokenTTL() time.Duration { return mustDur(c.Token.MerchantTTL, 5*time.Minute) }
func (c *Config) TokenClockSkew() time.Duration   { return mustDur(c.Token.ClockSkew, 30*time.Second) }
func (c *Config) IdempotencyWindow() time.Duration {
	return mustDur(c.Idempotency.Window, 10*time.Minute)
}
func (c *Config) IdempotencyBucket() time.Duration {
	return mustDur(c.Idempotency.TimeBucket, 5*time.Minute)
}
func (c *Config) WebhookWindow() time.Duration { return mustDur(c.Idempotency.WebhookWindow, time.Hour) }
func (c *Config) IdempotencyRetention() time.Duration {
	return mustDur(c.Idempotency.Retention, 24*time.Hour)
}
func (c *Config) RateWindow() time.Duration { return mustDur(c.Rate.Window, time.Minute) }
func (c *Config) CacheDefaultTTL() time.Duration {
	return mustDur(c.Cache.Memory.DefaultTTL, 10*time.Minute)
}

func mustDur(s string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return def
	}
	return d
}

// PlanFor resuelve el plan de un tenant, con fallback a sandbox.
func (c *Config) PlanFor(id string) Plan {
	if p, ok := c.Plans[id]; ok {
		return p
	}
	return c.Plans["sandbox"]
}

// ---- Helpers env ----

func getEnvStr(key string) (string, bool) {
	v := os.Getenv(key)
	return v, v != ""
}

func getEnvInt(key string) (int, bool) {
	if s, ok := getEnvStr(key); ok {
		if i, err := strconv.Atoi(strings.TrimSpace(s)); err == nil {
			return i, true
		}
	}
	return 0, false
}

func getEnvBool(key string) (bool, bool) {
	if s, ok := getEnvStr(key); ok {
		if b, err := strconv.ParseBool(strings.TrimSpace(s)); err == nil {
			return b, true
		}
	}
	return false, false
}

// applyEnvOverrides: pisa config.yaml con variables de entorno.
func (c *Config) applyEnvOverrides() {
	// APP
	if v, ok := getEnvStr("APP_ENV"); ok {
		c.App.Env = strings.ToLower(v)
	}

	// SERVER
	if v, ok := getEnvStr("SERVER_ADDR"); ok {
		c.Server.Addr = v
	}

	// STORAGE
	if v, ok := getEnvStr("STORAGE_DRIVER"); ok {
		c.Storage.Driver = v
	}
	if v, ok := getEnvStr("STORAGE_DSN"); ok {
		c.Storage.DSN = v
	}

	// CACHE
	if v, ok := getEnvStr("CACHE_KIND"); ok {
		c.Cache.Kind = v
	}
	if v, ok := getEnvStr("CACHE_REDIS_ADDR"); ok {
		c.Cache.Redis.Addr = v
	}
	if v, ok := getEnvStr("CACHE_REDIS_PASSWORD"); ok {
		c.Cache.Redis.Password = v
	}
	if v, ok := getEnvInt("CACHE_REDIS_DB"); ok {
		c.Cache.Redis.DB = v
	}

	// TOKEN
	if v, ok := getEnvStr("TOKEN_SIGNING_SECRET"); ok {
		c.Token.SigningSecret = v
	}
	if v, ok := getEnvStr("TOKEN_ISSUER"); ok {
		c.Token.Issuer = v
	}
	if v, ok := getEnvStr("TOKEN_TTL"); ok {
		c.Token.TTL = v
	}

	// AUTHORIZATION
	if v, ok := getEnvStr("AUTHORIZATION_TTL"); ok {
		c.Authorization.TTL = v
	}
	if v, ok := getEnvBool("AUTHORIZATION_RECHECK_ON_CONFIRM"); ok {
		c.Authorization.RecheckLimitsOnConfirm = v
	}

	// RATE
	if v, ok := getEnvBool("RATE_ENABLED"); ok {
		c.Rate.Enabled = v
	}

	// ADMIN
	if v, ok := getEnvStr("ADMIN_API_KEY_HASH"); ok {
		c.Admin.APIKeyHash = v
	}

	// SMTP
	if v, ok := getEnvStr("SMTP_HOST"); ok {
		c.SMTP.Host = v
	}
	if v, ok := getEnvInt("SMTP_PORT"); ok {
		c.SMTP.Port = v
	}
	if v, ok := getEnvStr("SMTP_USERNAME"); ok {
		c.SMTP.Username = v
	}
	if v, ok := getEnvStr("SMTP_PASSWORD"); ok {
		c.SMTP.Password = v
	}
	if v, ok := getEnvStr("SMTP_FROM"); ok {
		c.SMTP.From = v
	}
	if v, ok := getEnvStr("SMTP_APPROVALS_TO"); ok {
		c.SMTP.ApprovalsTo = v
	}
}

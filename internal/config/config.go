package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	AppPort         string
	DBDSN           string
	RedisAddr       string
	JWTSecret       string
	JWTExpiresMin   int
	GoogleClientID  string
	GoogleSecret    string
	GoogleRedirect  string
	FrontendBaseURL string

	UploadDir     string
	UploadTimeout time.Duration

	// AI scoring vendor
	ScoringURL     string
	ScoringAPIKey  string
	ScoringTimeout time.Duration
	ScoringRetries int
	// RescoreThreshold is the admin-triggered second check: score >= threshold
	// out of 5 verifies, below rejects.
	RescoreThreshold float64

	ScoringWorkers int
	QueueSize      int

	// CheckoutBaseURL etc. configure the hosted-checkout vendor used for
	// client deposits.
	CheckoutBaseURL      string
	CheckoutAPIKey       string
	CheckoutPrivateKey   string
	CheckoutMerchantCode string

	ReconcileSpec string // cron spec for the ledger reconciliation job
}

func Load() Config {
	expires, _ := strconv.Atoi(get("JWT_EXPIRES_MIN", "10080"))
	workers, _ := strconv.Atoi(get("SCORING_WORKERS", "4"))
	queueSize, _ := strconv.Atoi(get("SCORING_QUEUE_SIZE", "256"))
	retries, _ := strconv.Atoi(get("SCORING_RETRIES", "2"))
	threshold, _ := strconv.ParseFloat(get("RESCORE_THRESHOLD", "3"), 64)
	scoringTimeout, _ := strconv.Atoi(get("SCORING_TIMEOUT_SEC", "15"))
	uploadTimeout, _ := strconv.Atoi(get("UPLOAD_TIMEOUT_SEC", "10"))

	return Config{
		AppPort:         get("APP_PORT", "8080"),
		DBDSN:           must("DB_DSN"),
		RedisAddr:       get("REDIS_ADDR", "localhost:6379"),
		JWTSecret:       must("JWT_SECRET"),
		JWTExpiresMin:   expires,
		GoogleClientID:  get("GOOGLE_CLIENT_ID", ""),
		GoogleSecret:    get("GOOGLE_CLIENT_SECRET", ""),
		GoogleRedirect:  get("GOOGLE_REDIRECT_URL", ""),
		FrontendBaseURL: get("FRONTEND_BASE_URL", "http://localhost:3000"),

		UploadDir:     get("UPLOAD_DIR", "./uploads"),
		UploadTimeout: time.Duration(uploadTimeout) * time.Second,

		ScoringURL:       must("SCORING_URL"),
		ScoringAPIKey:    get("SCORING_API_KEY", ""),
		ScoringTimeout:   time.Duration(scoringTimeout) * time.Second,
		ScoringRetries:   retries,
		RescoreThreshold: threshold,

		ScoringWorkers: workers,
		QueueSize:      queueSize,

		CheckoutBaseURL:      get("CHECKOUT_BASE_URL", "https://sandbox.checkout.example.com/api"),
		CheckoutAPIKey:       get("CHECKOUT_API_KEY", ""),
		CheckoutPrivateKey:   get("CHECKOUT_PRIVATE_KEY", ""),
		CheckoutMerchantCode: get("CHECKOUT_MERCHANT_CODE", ""),

		ReconcileSpec: get("RECONCILE_CRON", "@hourly"),
	}
}

func get(k, def string) string {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	return v
}
func must(k string) string {
	v := os.Getenv(k)
	if v == "" {
		panic("missing env: " + k)
	}
	return v
}

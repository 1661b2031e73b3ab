package config

import "github.com/caarlos0/env/v6"

type Config struct {
	// Server configuration
	Server struct {
		// Port the HTTP API listens on
		Port int `env:"SERVER_PORT" envDefault:"8080"`

		// Allowed CORS origins, comma separated
		AllowedOrigins []string `env:"SERVER_ALLOWED_ORIGINS" envDefault:"http://localhost:3000" envSeparator:","`
	}

	// Storage configuration
	Storage struct {
		// Path to the SQLite database holding property records
		DatabasePath string `env:"DATABASE_PATH" envDefault:"data/records.db"`

		// Directory where trained model artifacts are persisted
		ModelDir string `env:"MODEL_DIR" envDefault:"data/models"`
	}

	// Training configuration
	Training struct {
		// Deterministic seed for splits, subsampling and the search shuffle
		Seed int64 `env:"TRAINING_SEED" envDefault:"42"`

		// Maximum boosting rounds per model
		MaxRounds int `env:"TRAINING_MAX_ROUNDS" envDefault:"1000"`

		// Rounds without validation improvement before stopping early
		EarlyStoppingRounds int `env:"TRAINING_EARLY_STOPPING_ROUNDS" envDefault:"50"`

		// Minimum labeled rows required to train a property type
		MinRows int `env:"TRAINING_MIN_ROWS" envDefault:"10"`

		// Concurrent workers during hyperparameter search
		SearchWorkers int `env:"TRAINING_SEARCH_WORKERS" envDefault:"4"`

		// Maximum hyperparameter candidates evaluated per search
		MaxCandidates int `env:"TRAINING_MAX_CANDIDATES" envDefault:"24"`

		// Cross-validation folds during hyperparameter search
		CVFolds int `env:"TRAINING_CV_FOLDS" envDefault:"5"`

		// Whether scheduled runs include hyperparameter search
		Tune bool `env:"TRAINING_TUNE" envDefault:"false"`
	}

	// Scheduler configuration
	Scheduler struct {
		// Whether the retraining scheduler runs at all
		Enabled bool `env:"SCHEDULER_ENABLED" envDefault:"true"`

		// Retraining policy: daily, weekly, monthly, quarterly or market_change
		Policy string `env:"SCHEDULER_POLICY" envDefault:"monthly"`

		// Minutes between retraining checks
		CheckIntervalMinutes int `env:"SCHEDULER_CHECK_INTERVAL" envDefault:"60"`
	}

	// Notify configuration
	Notify struct {
		// Webhook URL receiving training-run summaries; empty disables notifications
		WebhookURL string `env:"NOTIFY_WEBHOOK_URL"`
	}

	// BatchProcessing configuration
	BatchProcessing struct {
		// Buffer size of the ingest queue, in batches
		QueueSize int `env:"BATCH_QUEUE_SIZE" envDefault:"100"`

		// Number of concurrent batch processors
		ProcessorCount int `env:"BATCH_PROCESSOR_COUNT" envDefault:"2"`

		// Maximum number of retries for failed batches
		MaxRetries int `env:"BATCH_MAX_RETRIES" envDefault:"3"`

		// Delay between retries in seconds
		RetryDelay int `env:"BATCH_RETRY_DELAY" envDefault:"5"`
	}
}

func LoadConfig() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

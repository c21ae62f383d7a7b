package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Environment string `yaml:"environment"`
	Server      struct {
		Port            int           `yaml:"port"`
		ReadTimeout     time.Duration `yaml:"read_timeout"`
		WriteTimeout    time.Duration `yaml:"write_timeout"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	} `yaml:"server"`
	Logging struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
		Output string `yaml:"output"`
	} `yaml:"logging"`
	Metrics struct {
		Enabled bool   `yaml:"enabled"`
		Path    string `yaml:"path"`
	} `yaml:"metrics"`
	ClickHouse struct {
		Host             string        `yaml:"host"`
		Port             int           `yaml:"port"`
		Database         string        `yaml:"database"`
		User             string        `yaml:"user"`
		Password         string        `yaml:"password"`
		UseHTTP          bool          `yaml:"use_http"`
		AsyncInsert      bool          `yaml:"async_insert"`
		WaitForAsync     bool          `yaml:"wait_for_async_insert"`
		DialTimeout      time.Duration `yaml:"dial_timeout"`
		ReadTimeout      time.Duration `yaml:"read_timeout"`
		WriteTimeout     time.Duration `yaml:"write_timeout"`
		MaxExecutionTime time.Duration `yaml:"max_execution_time"`
	} `yaml:"clickhouse"`
	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
	} `yaml:"redis"`
	Kafka struct {
		Enabled      bool     `yaml:"enabled"`
		Brokers      []string `yaml:"brokers"`
		BarsTopic    string   `yaml:"bars_topic"`
		SignalsTopic string   `yaml:"signals_topic"`
		AuditTopic   string   `yaml:"audit_topic"`
		LogsTopic    string   `yaml:"logs_topic"`
		RequiredAcks int      `yaml:"required_acks"`
		Compression  string   `yaml:"compression"`
		Producer     struct {
			MaxAttempts  int           `yaml:"max_attempts"`
			Linger       time.Duration `yaml:"linger"`
			BatchBytes   int           `yaml:"batch_bytes"`
			BatchSize    int           `yaml:"batch_size"`
			WriteTimeout time.Duration `yaml:"write_timeout"`
			ReadTimeout  time.Duration `yaml:"read_timeout"`
			Async        bool          `yaml:"async"`
		} `yaml:"producer"`
		Consumer struct {
			GroupID     string        `yaml:"group_id"`
			OffsetReset string        `yaml:"offset_reset"`
			Workers     int           `yaml:"workers"`
			BufferSize  int           `yaml:"buffer_size"`
			RetryMax    int           `yaml:"retry_max"`
			BackoffMin  time.Duration `yaml:"backoff_min"`
			BackoffMax  time.Duration `yaml:"backoff_max"`
			DLQTopic    string        `yaml:"dlq_topic"`
			MinBytes    int           `yaml:"min_bytes"`
			MaxBytes    int           `yaml:"max_bytes"`
		} `yaml:"consumer"`
	} `yaml:"kafka"`
	MarketData struct {
		APIKey         string        `yaml:"api_key"`
		RESTBaseURL    string        `yaml:"rest_base_url"`
		WebSocketURL   string        `yaml:"websocket_url"`
		StreamEnabled  bool          `yaml:"stream_enabled"`
		ReconnectDelay time.Duration `yaml:"reconnect_delay"`
		PingInterval   time.Duration `yaml:"ping_interval"`
		RateLimit      int           `yaml:"rate_limit"`
	} `yaml:"market_data"`
	Scanner struct {
		Symbols        []string      `yaml:"symbols"`
		Timeframes     []string      `yaml:"timeframes"`
		Interval       time.Duration `yaml:"interval"`
		Workers        int           `yaml:"workers"`
		WindowBars     int           `yaml:"window_bars"`
		MinQStar       float64       `yaml:"min_qstar"`
		CandidateTTL   time.Duration `yaml:"candidate_ttl"`
		StopATRMult    float64       `yaml:"stop_atr_mult"`
		TargetATRMult  float64       `yaml:"target_atr_mult"`
		BackfillBars   int           `yaml:"backfill_bars"`
		BackfillEvery  time.Duration `yaml:"backfill_every"`
		MaxGapFillBars int           `yaml:"max_gap_fill_bars"`
	} `yaml:"scanner"`
	Inference struct {
		TrainBars      int           `yaml:"train_bars"`
		RefitEvery     time.Duration `yaml:"refit_every"`
		LearningRate   float64       `yaml:"learning_rate"`
		Epochs         int           `yaml:"epochs"`
		BatchSize      int           `yaml:"batch_size"`
		L2Penalty      float64       `yaml:"l2_penalty"`
		BoostRounds    int           `yaml:"boost_rounds"`
		BoostShrinkage float64       `yaml:"boost_shrinkage"`
		LogitWeight    float64       `yaml:"logit_weight"`
		BoostWeight    float64       `yaml:"boost_weight"`
		PriorWeight    float64       `yaml:"prior_weight"`
	} `yaml:"inference"`
	Risk struct {
		StartingEquity float64 `yaml:"starting_equity"`
		RiskPerTrade   float64 `yaml:"risk_per_trade"`
		DailyLossLimit float64 `yaml:"daily_loss_limit"`
		SoftLimitFrac  float64 `yaml:"soft_limit_frac"`
		MaxDrawdown    float64 `yaml:"max_drawdown"`
		ExposureCap    float64 `yaml:"exposure_cap"`
		ESLookback     int     `yaml:"es_lookback"`
		ESHorizonBars  int     `yaml:"es_horizon_bars"`
		MinPosition    float64 `yaml:"min_position"`
		MaxPosition    float64 `yaml:"max_position"`
	} `yaml:"risk"`
	Backtest struct {
		TrainFrac   float64 `yaml:"train_frac"`
		CostPerUnit float64 `yaml:"cost_per_unit"`
		MaxHoldBars int     `yaml:"max_hold_bars"`
		MinTrades   int     `yaml:"min_trades"`
		MinPF       float64 `yaml:"min_pf"`
		MaxDD       float64 `yaml:"max_dd"`
	} `yaml:"backtest"`
	Queue struct {
		Workers      int           `yaml:"workers"`
		MaxRetries   int           `yaml:"max_retries"`
		RetryBackoff time.Duration `yaml:"retry_backoff"`
	} `yaml:"queue"`
}

// Load reads and parses a YAML configuration file.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	c.applyDefaults()

	// Validate required fields
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &c, nil
}

// LoadWithEnv loads config from YAML and overrides with environment variables.
func LoadWithEnv(path string) (*Config, error) {
	c, err := Load(path)
	if err != nil {
		return nil, err
	}

	// Override with environment variables
	if v := os.Getenv("MARKET_DATA_API_KEY"); v != "" {
		c.MarketData.APIKey = v
	}
	if v := os.Getenv("SYMBOLS"); v != "" {
		c.Scanner.Symbols = strings.Split(v, ",")
	}
	if v := os.Getenv("TIMEFRAMES"); v != "" {
		c.Scanner.Timeframes = strings.Split(v, ",")
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("CLICKHOUSE_HOST"); v != "" {
		c.ClickHouse.Host = v
	}
	if v := os.Getenv("CLICKHOUSE_PASSWORD"); v != "" {
		c.ClickHouse.Password = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.Redis.Addr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		c.Redis.Password = v
	}

	return c, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = 15 * time.Second
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}
	if c.Logging.Output == "" {
		c.Logging.Output = "stdout"
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = "/metrics"
	}
	if len(c.Scanner.Timeframes) == 0 {
		c.Scanner.Timeframes = []string{"M5", "H1"}
	}
	if c.Scanner.Interval == 0 {
		c.Scanner.Interval = 30 * time.Second
	}
	if c.Scanner.Workers == 0 {
		c.Scanner.Workers = 4
	}
	if c.Scanner.WindowBars == 0 {
		c.Scanner.WindowBars = 300
	}
	if c.Scanner.MinQStar == 0 {
		c.Scanner.MinQStar = 65
	}
	if c.Scanner.CandidateTTL == 0 {
		c.Scanner.CandidateTTL = 5 * time.Minute
	}
	if c.Scanner.StopATRMult == 0 {
		c.Scanner.StopATRMult = 1.5
	}
	if c.Scanner.TargetATRMult == 0 {
		c.Scanner.TargetATRMult = 2.5
	}
	if c.Scanner.BackfillBars == 0 {
		c.Scanner.BackfillBars = 1000
	}
	if c.Scanner.BackfillEvery == 0 {
		c.Scanner.BackfillEvery = 15 * time.Minute
	}
	if c.Scanner.MaxGapFillBars == 0 {
		c.Scanner.MaxGapFillBars = 50
	}
	if c.Inference.TrainBars == 0 {
		c.Inference.TrainBars = 2000
	}
	if c.Inference.RefitEvery == 0 {
		c.Inference.RefitEvery = 4 * time.Hour
	}
	if c.Inference.LearningRate == 0 {
		c.Inference.LearningRate = 0.05
	}
	if c.Inference.Epochs == 0 {
		c.Inference.Epochs = 30
	}
	if c.Inference.BatchSize == 0 {
		c.Inference.BatchSize = 64
	}
	if c.Inference.L2Penalty == 0 {
		c.Inference.L2Penalty = 1e-4
	}
	if c.Inference.BoostRounds == 0 {
		c.Inference.BoostRounds = 50
	}
	if c.Inference.BoostShrinkage == 0 {
		c.Inference.BoostShrinkage = 0.1
	}
	if c.Inference.LogitWeight == 0 && c.Inference.BoostWeight == 0 && c.Inference.PriorWeight == 0 {
		c.Inference.LogitWeight = 0.45
		c.Inference.BoostWeight = 0.45
		c.Inference.PriorWeight = 0.10
	}
	if c.Risk.RiskPerTrade == 0 {
		c.Risk.RiskPerTrade = 0.01
	}
	if c.Risk.DailyLossLimit == 0 {
		c.Risk.DailyLossLimit = 0.05
	}
	if c.Risk.SoftLimitFrac == 0 {
		c.Risk.SoftLimitFrac = 0.6
	}
	if c.Risk.MaxDrawdown == 0 {
		c.Risk.MaxDrawdown = 0.10
	}
	if c.Risk.ExposureCap == 0 {
		c.Risk.ExposureCap = 3.0
	}
	if c.Risk.ESLookback == 0 {
		c.Risk.ESLookback = 500
	}
	if c.Risk.ESHorizonBars == 0 {
		c.Risk.ESHorizonBars = 12
	}
	if c.Risk.MaxPosition == 0 {
		c.Risk.MaxPosition = 100
	}
	if c.Backtest.TrainFrac == 0 {
		c.Backtest.TrainFrac = 0.7
	}
	if c.Backtest.MaxHoldBars == 0 {
		c.Backtest.MaxHoldBars = 48
	}
	if c.Backtest.MinTrades == 0 {
		c.Backtest.MinTrades = 30
	}
	if c.Backtest.MinPF == 0 {
		c.Backtest.MinPF = 1.2
	}
	if c.Backtest.MaxDD == 0 {
		c.Backtest.MaxDD = 0.25
	}
	if c.Queue.Workers == 0 {
		c.Queue.Workers = 2
	}
	if c.Queue.MaxRetries == 0 {
		c.Queue.MaxRetries = 5
	}
	if c.Queue.RetryBackoff == 0 {
		c.Queue.RetryBackoff = 5 * time.Second
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Environment == "" {
		return fmt.Errorf("environment is required")
	}
	if len(c.Scanner.Symbols) == 0 {
		return fmt.Errorf("scanner.symbols cannot be empty")
	}
	for _, tf := range c.Scanner.Timeframes {
		switch tf {
		case "M1", "M5", "M15", "M30", "H1", "H4", "D1":
		default:
			return fmt.Errorf("scanner.timeframes contains unknown timeframe '%s'", tf)
		}
	}
	if c.ClickHouse.Host == "" {
		return fmt.Errorf("clickhouse.host is required")
	}
	if c.Redis.Addr == "" {
		return fmt.Errorf("redis.addr is required")
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers cannot be empty when kafka is enabled")
	}
	if c.MarketData.StreamEnabled && c.MarketData.APIKey == "" {
		return fmt.Errorf("market_data.api_key is required when the stream is enabled")
	}
	if c.Risk.RiskPerTrade < 0 || c.Risk.RiskPerTrade > 0.1 {
		return fmt.Errorf("risk.risk_per_trade must be in (0, 0.1], got %v", c.Risk.RiskPerTrade)
	}
	if c.Risk.SoftLimitFrac <= 0 || c.Risk.SoftLimitFrac >= 1 {
		return fmt.Errorf("risk.soft_limit_frac must be in (0, 1), got %v", c.Risk.SoftLimitFrac)
	}
	if c.Backtest.TrainFrac <= 0 || c.Backtest.TrainFrac >= 1 {
		return fmt.Errorf("backtest.train_frac must be in (0, 1), got %v", c.Backtest.TrainFrac)
	}
	return nil
}

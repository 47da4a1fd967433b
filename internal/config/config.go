package config

import "time"

// RecorderConfig is the root configuration for a recorder instance.
type RecorderConfig struct {
	Instance InstanceConfig `yaml:"instance"`
	API      APIConfig      `yaml:"api"`
	Stream   StreamConfig   `yaml:"stream"`
	Database DatabaseConfig `yaml:"database"`
	Writer   WriterConfig   `yaml:"writer"`
	Recorder RecorderScope  `yaml:"recorder"`
}

// InstanceConfig identifies this recorder.
type InstanceConfig struct {
	ID string `yaml:"id"`
}

// APIConfig holds LedgerX API settings.
type APIConfig struct {
	RestURL    string        `yaml:"rest_url"`
	TradeURL   string        `yaml:"trade_url"`
	WSURL      string        `yaml:"ws_url"`
	APIKey     string        `yaml:"api_key"` // JWT API key, supports ${VAR} expansion
	Timeout    time.Duration `yaml:"timeout"`
	MaxRetries int           `yaml:"max_retries"`
}

// StreamConfig holds WebSocket connection settings.
type StreamConfig struct {
	HeartbeatTimeout   time.Duration `yaml:"heartbeat_timeout"`
	ReconnectBaseDelay time.Duration `yaml:"reconnect_base_delay"`
	ReconnectMaxDelay  time.Duration `yaml:"reconnect_max_delay"`
	EventBufferSize    int           `yaml:"event_buffer_size"`
}

// DatabaseConfig holds the TimescaleDB connection for book-top history.
type DatabaseConfig struct {
	Timescale DBConfig `yaml:"timescale"`
}

// DBConfig holds a single database connection.
type DBConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"ssl_mode"`
	MaxConns int    `yaml:"max_conns"`
	MinConns int    `yaml:"min_conns"`
}

// WriterConfig holds batch writer settings.
type WriterConfig struct {
	BatchSize     int           `yaml:"batch_size"`
	FlushInterval time.Duration `yaml:"flush_interval"`
	BufferSize    int           `yaml:"buffer_size"`
}

// RecorderScope selects which contracts to record.
type RecorderScope struct {
	Assets          []string `yaml:"assets"`           // e.g., ["CBTC", "ETH"]
	DerivativeTypes []string `yaml:"derivative_types"` // e.g., ["day_ahead_swap"]
	ContractIDs     []int64  `yaml:"contract_ids"`     // Explicit additions
}

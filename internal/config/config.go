package config

import (
	"strconv"
	"time"
)

// LotWatchConfig is the root configuration for a lotwatch instance.
type LotWatchConfig struct {
	Instance InstanceConfig `yaml:"instance"`
	Log      LogConfig      `yaml:"log"`
	API      APIConfig      `yaml:"api"`
	Push     PushConfig     `yaml:"push"`
	Refresh  RefreshConfig  `yaml:"refresh"`
	Query    QueryConfig    `yaml:"query"`
	Bidding  BiddingConfig  `yaml:"bidding"`
	Storage  StorageConfig  `yaml:"storage"`
	Archive  ArchiveConfig  `yaml:"archive"`
	Health   HealthConfig   `yaml:"health"`
}

// InstanceConfig identifies this instance.
type InstanceConfig struct {
	ID string `yaml:"id"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error
}

// APIConfig holds lots API settings.
type APIConfig struct {
	BaseURL      string        `yaml:"base_url"`
	APIKey       string        `yaml:"api_key"`
	Timeout      time.Duration `yaml:"timeout"`
	MaxRetries   int           `yaml:"max_retries"`
	LotsPath     string        `yaml:"lots_path"`
	LotPath      string        `yaml:"lot_path"`
	QuickBidPath string        `yaml:"quick_bid_path"` // {auctionId} is substituted
}

// PushConfig holds push socket settings. An empty URL disables push.
type PushConfig struct {
	URL                  string        `yaml:"url"`
	Channels             []string      `yaml:"channels"`
	HeartbeatTimeout     time.Duration `yaml:"heartbeat_timeout"`
	HeartbeatSkew        time.Duration `yaml:"heartbeat_skew"`
	ReconnectBaseDelay   time.Duration `yaml:"reconnect_base_delay"`
	ReconnectMaxDelay    time.Duration `yaml:"reconnect_max_delay"`
	MaxReconnectAttempts int           `yaml:"max_reconnect_attempts"`
	WriteTimeout         time.Duration `yaml:"write_timeout"`
}

// RefreshConfig holds refresh controller settings.
type RefreshConfig struct {
	Interval     time.Duration `yaml:"interval"`
	FetchTimeout time.Duration `yaml:"fetch_timeout"`
	View         string        `yaml:"view"`      // list or grid
	Brand        string        `yaml:"brand"`     // selects the large catalog window
	LazyLoad     bool          `yaml:"lazy_load"` // keep a full window behind the visible one
}

// QueryConfig is the lots query to watch.
type QueryConfig struct {
	AuctionID int64             `yaml:"auction_id"`
	Page      int               `yaml:"page"`
	Filters   map[string]string `yaml:"filters"`
}

// BiddingConfig holds bulk bid settings.
type BiddingConfig struct {
	GroupBidding            bool          `yaml:"group_bidding"`
	RoundingMessageDuration time.Duration `yaml:"rounding_message_duration"`
	RefetchConcurrency      int           `yaml:"refetch_concurrency"`
	BidsInLotObject         bool          `yaml:"bids_in_lot_object"`
}

// StorageConfig holds local store settings. An empty path keeps state in
// memory.
type StorageConfig struct {
	Path string `yaml:"path"`
}

// ArchiveConfig holds the optional observation archive.
type ArchiveConfig struct {
	Enabled       bool          `yaml:"enabled"`
	Database      DBConfig      `yaml:"database"`
	Migrate       bool          `yaml:"migrate"`
	BatchSize     int           `yaml:"batch_size"`
	FlushInterval time.Duration `yaml:"flush_interval"`
	BufferSize    int           `yaml:"buffer_size"`
}

// DBConfig holds a single database connection.
type DBConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"ssl_mode"`
	AppName  string `yaml:"application_name"`
	MaxConns int    `yaml:"max_conns"`
	MinConns int    `yaml:"min_conns"`
}

// HealthConfig holds the health and debug HTTP server settings.
type HealthConfig struct {
	Port int `yaml:"port"`
}

// IsZero reports whether no query was configured.
func (q QueryConfig) IsZero() bool {
	return q.AuctionID == 0 && q.Page == 0 && len(q.Filters) == 0
}

// Params returns the query as lots API parameters. Page defaults to 1.
func (q QueryConfig) Params() map[string]string {
	params := make(map[string]string, len(q.Filters)+2)
	for k, v := range q.Filters {
		params[k] = v
	}
	if q.AuctionID != 0 {
		params["auction_id"] = strconv.FormatInt(q.AuctionID, 10)
	}
	page := q.Page
	if page < 1 {
		page = 1
	}
	params["page"] = strconv.Itoa(page)
	return params
}

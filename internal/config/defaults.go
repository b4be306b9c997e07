package config

import "time"

// Default values for optional configuration fields.
const (
	DefaultLogLevel                = "info"
	DefaultAPITimeout              = 30 * time.Second
	DefaultMaxRetries              = 3
	DefaultLotsPath                = "/api/lots"
	DefaultLotPath                 = "/api/lot"
	DefaultQuickBidPath            = "/api/auctions/{auctionId}/quick-bid"
	DefaultPushChannel             = "lots"
	DefaultHeartbeatTimeout        = 6 * time.Second
	DefaultHeartbeatSkew           = 10 * time.Second
	DefaultReconnectBaseDelay      = 1 * time.Second
	DefaultReconnectMaxDelay       = 60 * time.Second
	DefaultMaxReconnectAttempts    = 5
	DefaultWriteTimeout            = 5 * time.Second
	DefaultRefreshInterval         = 30 * time.Second
	DefaultFetchTimeout            = 10 * time.Second
	DefaultView                    = "list"
	DefaultRoundingMessageDuration = 5 * time.Second
	DefaultRefetchConcurrency      = 4
	DefaultDBPort                  = 5432
	DefaultDBSSLMode               = "prefer"
	DefaultDBAppName               = "lotwatch"
	DefaultMaxConns                = 10
	DefaultMinConns                = 2
	DefaultBatchSize               = 500
	DefaultFlushInterval           = 1 * time.Second
	DefaultBufferSize              = 10000
	DefaultHealthPort              = 8080
)

func (c *LotWatchConfig) applyDefaults() {
	if c.Log.Level == "" {
		c.Log.Level = DefaultLogLevel
	}

	// API defaults
	if c.API.Timeout == 0 {
		c.API.Timeout = DefaultAPITimeout
	}
	if c.API.MaxRetries == 0 {
		c.API.MaxRetries = DefaultMaxRetries
	}
	if c.API.LotsPath == "" {
		c.API.LotsPath = DefaultLotsPath
	}
	if c.API.LotPath == "" {
		c.API.LotPath = DefaultLotPath
	}
	if c.API.QuickBidPath == "" {
		c.API.QuickBidPath = DefaultQuickBidPath
	}

	// Push defaults
	if len(c.Push.Channels) == 0 {
		c.Push.Channels = []string{DefaultPushChannel}
	}
	if c.Push.HeartbeatTimeout == 0 {
		c.Push.HeartbeatTimeout = DefaultHeartbeatTimeout
	}
	if c.Push.HeartbeatSkew == 0 {
		c.Push.HeartbeatSkew = DefaultHeartbeatSkew
	}
	if c.Push.ReconnectBaseDelay == 0 {
		c.Push.ReconnectBaseDelay = DefaultReconnectBaseDelay
	}
	if c.Push.ReconnectMaxDelay == 0 {
		c.Push.ReconnectMaxDelay = DefaultReconnectMaxDelay
	}
	if c.Push.MaxReconnectAttempts == 0 {
		c.Push.MaxReconnectAttempts = DefaultMaxReconnectAttempts
	}
	if c.Push.WriteTimeout == 0 {
		c.Push.WriteTimeout = DefaultWriteTimeout
	}

	// Refresh defaults
	if c.Refresh.Interval == 0 {
		c.Refresh.Interval = DefaultRefreshInterval
	}
	if c.Refresh.FetchTimeout == 0 {
		c.Refresh.FetchTimeout = DefaultFetchTimeout
	}
	if c.Refresh.View == "" {
		c.Refresh.View = DefaultView
	}

	// Bidding defaults
	if c.Bidding.RoundingMessageDuration == 0 {
		c.Bidding.RoundingMessageDuration = DefaultRoundingMessageDuration
	}
	if c.Bidding.RefetchConcurrency == 0 {
		c.Bidding.RefetchConcurrency = DefaultRefetchConcurrency
	}

	// Archive defaults
	applyDBDefaults(&c.Archive.Database)
	if c.Archive.BatchSize == 0 {
		c.Archive.BatchSize = DefaultBatchSize
	}
	if c.Archive.FlushInterval == 0 {
		c.Archive.FlushInterval = DefaultFlushInterval
	}
	if c.Archive.BufferSize == 0 {
		c.Archive.BufferSize = DefaultBufferSize
	}

	if c.Health.Port == 0 {
		c.Health.Port = DefaultHealthPort
	}
}

func applyDBDefaults(db *DBConfig) {
	if db.Port == 0 {
		db.Port = DefaultDBPort
	}
	if db.SSLMode == "" {
		db.SSLMode = DefaultDBSSLMode
	}
	if db.AppName == "" {
		db.AppName = DefaultDBAppName
	}
	if db.MaxConns == 0 {
		db.MaxConns = DefaultMaxConns
	}
	if db.MinConns == 0 {
		db.MinConns = DefaultMinConns
	}
}

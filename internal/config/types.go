package config

// Config is the main configuration carrier for levelbot.
// It is read once at startup and immutable afterwards.
type Config struct {
	App     AppConfig     `toml:"app"`
	Market  MarketConfig  `toml:"market"`
	Signal  SignalConfig  `toml:"signal"`
	Budget  BudgetConfig  `toml:"budget"`
	Broker  BrokerConfig  `toml:"broker"`
	Trading TradingConfig `toml:"trading"`
	Ledger  LedgerConfig  `toml:"ledger"`
}

type AppConfig struct {
	Env        string `toml:"env"`
	LogLevel   string `toml:"log_level"`
	HTTPAddr   string `toml:"http_addr"`
	LogPath    string `toml:"log_path"`
	LevelsPath string `toml:"levels_path"`
}

// MarketConfig points at the sqlite databases the external collector fills.
type MarketConfig struct {
	Symbol    string            `toml:"symbol"`
	CandleDBs map[string]string `toml:"candle_dbs"` // interval -> sqlite path, e.g. "5m": "/data/nifty_5min.db"
}

type SignalConfig struct {
	Intervals       []string `toml:"intervals"`          // granularities evaluated per tick
	GapThreshold    float64  `toml:"gap_threshold"`      // points beyond the level that count as a gap
	RetestMargin    float64  `toml:"retest_margin"`      // +/- band around the gapped level
	MinConfluence   int      `toml:"min_confluence"`     // signals below this are ignored by the controller
	MaxCandleAgeSec int      `toml:"max_candle_age_sec"` // freshness window after candle close
	ATRLookbackDays int      `toml:"atr_lookback_days"`
	DailyDBInterval string   `toml:"daily_db_interval"`
}

type BudgetConfig struct {
	Ceiling       int `toml:"ceiling"`        // hard per-window call limit of the broker API
	SafetyMargin  int `toml:"safety_margin"`  // admitted count stops this many calls short of the ceiling
	WindowSeconds int `toml:"window_seconds"` // trailing window length
}

type BrokerConfig struct {
	Mode           string `toml:"mode"` // "paper" | "breeze"
	APIURL         string `toml:"api_url"`
	APIKey         string `toml:"api_key"`
	APISecret      string `toml:"api_secret"`
	SessionToken   string `toml:"session_token"`
	StockCode      string `toml:"stock_code"`
	ExchangeCode   string `toml:"exchange_code"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

type TradingConfig struct {
	LotSize          int     `toml:"lot_size"`           // contract quantity per order
	TargetPoints     float64 `toml:"target_points"`      // premium gain per lot that triggers the target exit
	StopLossStreak   int     `toml:"stop_loss_streak"`   // consecutive adverse closes before the level stop fires
	StopLossInterval string  `toml:"stop_loss_interval"` // granularity of the streak candles
	StrikeIncrement  int     `toml:"strike_increment"`   // strikes are rounded to the nearest multiple
	PollSeconds      int     `toml:"poll_seconds"`       // controller tick cadence
	IdleSeconds      int     `toml:"idle_seconds"`       // wait while the market is closed
	HoursOpen        string  `toml:"hours_open"`         // "09:15"
	HoursClose       string  `toml:"hours_close"`        // "15:30"
}

type LedgerConfig struct {
	DBPath string `toml:"db_path"`
}

package config

const (
	defaultAppEnv          = "dev"
	defaultAppLogLevel     = "info"
	defaultAppHTTPAddr     = ":9985"
	defaultAppLevelsPath   = "configs/levels.yaml"
	defaultMarketSymbol    = "NIFTY"
	defaultGapThreshold    = 50
	defaultRetestMargin    = 20
	defaultMinConfluence   = 1
	defaultMaxCandleAge    = 300
	defaultATRLookback     = 14
	defaultDailyInterval   = "1d"
	defaultBudgetCeiling   = 100
	defaultBudgetMargin    = 5
	defaultBudgetWindow    = 60
	defaultBrokerMode      = "paper"
	defaultBrokerStock     = "NIFTY"
	defaultBrokerExchange  = "NFO"
	defaultBrokerTimeout   = 10
	defaultLotSize         = 75
	defaultTargetPoints    = 10
	defaultStopLossStreak  = 2
	defaultStopLossIntv    = "5m"
	defaultStrikeIncrement = 100
	defaultPollSeconds     = 15
	defaultIdleSeconds     = 60
	defaultHoursOpen       = "09:15"
	defaultHoursClose      = "15:30"
	defaultLedgerDB        = "data/trades.db"
)

func (c *Config) applyDefaults() {
	c.App.applyDefaults()
	c.Market.applyDefaults()
	c.Signal.applyDefaults()
	c.Budget.applyDefaults()
	c.Broker.applyDefaults()
	c.Trading.applyDefaults()
	c.Ledger.applyDefaults()
}

func (a *AppConfig) applyDefaults() {
	if a.Env == "" {
		a.Env = defaultAppEnv
	}
	if a.LogLevel == "" {
		a.LogLevel = defaultAppLogLevel
	}
	if a.HTTPAddr == "" {
		a.HTTPAddr = defaultAppHTTPAddr
	}
	if a.LevelsPath == "" {
		a.LevelsPath = defaultAppLevelsPath
	}
}

func (m *MarketConfig) applyDefaults() {
	if m.Symbol == "" {
		m.Symbol = defaultMarketSymbol
	}
}

func (s *SignalConfig) applyDefaults() {
	if len(s.Intervals) == 0 {
		s.Intervals = []string{"5m", "15m"}
	}
	if s.GapThreshold <= 0 {
		s.GapThreshold = defaultGapThreshold
	}
	if s.RetestMargin <= 0 {
		s.RetestMargin = defaultRetestMargin
	}
	if s.MinConfluence <= 0 {
		s.MinConfluence = defaultMinConfluence
	}
	if s.MaxCandleAgeSec <= 0 {
		s.MaxCandleAgeSec = defaultMaxCandleAge
	}
	if s.ATRLookbackDays <= 0 {
		s.ATRLookbackDays = defaultATRLookback
	}
	if s.DailyDBInterval == "" {
		s.DailyDBInterval = defaultDailyInterval
	}
}

func (b *BudgetConfig) applyDefaults() {
	if b.Ceiling <= 0 {
		b.Ceiling = defaultBudgetCeiling
	}
	if b.SafetyMargin <= 0 {
		b.SafetyMargin = defaultBudgetMargin
	}
	if b.WindowSeconds <= 0 {
		b.WindowSeconds = defaultBudgetWindow
	}
}

func (b *BrokerConfig) applyDefaults() {
	if b.Mode == "" {
		b.Mode = defaultBrokerMode
	}
	if b.StockCode == "" {
		b.StockCode = defaultBrokerStock
	}
	if b.ExchangeCode == "" {
		b.ExchangeCode = defaultBrokerExchange
	}
	if b.TimeoutSeconds <= 0 {
		b.TimeoutSeconds = defaultBrokerTimeout
	}
}

func (t *TradingConfig) applyDefaults() {
	if t.LotSize <= 0 {
		t.LotSize = defaultLotSize
	}
	if t.TargetPoints <= 0 {
		t.TargetPoints = defaultTargetPoints
	}
	if t.StopLossStreak <= 0 {
		t.StopLossStreak = defaultStopLossStreak
	}
	if t.StopLossInterval == "" {
		t.StopLossInterval = defaultStopLossIntv
	}
	if t.StrikeIncrement <= 0 {
		t.StrikeIncrement = defaultStrikeIncrement
	}
	if t.PollSeconds <= 0 {
		t.PollSeconds = defaultPollSeconds
	}
	if t.IdleSeconds <= 0 {
		t.IdleSeconds = defaultIdleSeconds
	}
	if t.HoursOpen == "" {
		t.HoursOpen = defaultHoursOpen
	}
	if t.HoursClose == "" {
		t.HoursClose = defaultHoursClose
	}
}

func (l *LedgerConfig) applyDefaults() {
	if l.DBPath == "" {
		l.DBPath = defaultLedgerDB
	}
}

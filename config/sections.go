package config

// CatalogConfig points at the unit and build-list definitions.
type CatalogConfig struct {
	Path string `mapstructure:"path" validate:"required"`
}

type SchedulerConfig struct {
	WaitFrames            int     `mapstructure:"wait_frames" validate:"min=1"`
	MaxPrerequisiteOrders int     `mapstructure:"max_prerequisite_orders" validate:"min=0"`
	GraceFrames           int     `mapstructure:"grace_frames" validate:"min=0"`
	NearZeroHealth        float64 `mapstructure:"near_zero_health" validate:"gte=0,lte=1"`
	DamagedHealth         float64 `mapstructure:"damaged_health" validate:"gte=0,lte=1"`
	RepairRadius          float64 `mapstructure:"repair_radius" validate:"gte=0"`
	ReclaimRadius         float64 `mapstructure:"reclaim_radius" validate:"gte=0"`
	ResurrectRadius       float64 `mapstructure:"resurrect_radius" validate:"gte=0"`
	ResurrectArea         float64 `mapstructure:"resurrect_area" validate:"gte=0"`
	CaptureRadius         float64 `mapstructure:"capture_radius" validate:"gte=0"`
	AssistRadius          float64 `mapstructure:"assist_radius" validate:"gte=0"`
	DemandThreshold       float64 `mapstructure:"demand_threshold"`
	SpotBlockFrames       int     `mapstructure:"spot_block_frames" validate:"min=1"`

	// Frames between economy forecasts and power updates.
	ForecastInterval int `mapstructure:"forecast_interval" validate:"min=1"`
	PowerInterval    int `mapstructure:"power_interval" validate:"min=1"`

	// Seed for every random choice; 0 picks one at startup.
	Seed uint64 `mapstructure:"seed"`
}

type QueueConfig struct {
	Capacity      int                `mapstructure:"capacity" validate:"min=1"`
	KindCaps      map[string]int     `mapstructure:"kind_caps" validate:"dive,keys,oneof=generic energy metal builder energy_storage metal_storage prerequisite,endkeys,min=0"`
	KindFractions map[string]float64 `mapstructure:"kind_fractions" validate:"dive,keys,oneof=generic energy metal builder energy_storage metal_storage prerequisite,endkeys,gte=0,lte=1"`
	ExpiryFrames  int                `mapstructure:"expiry_frames" validate:"min=1"`
	MaxRetries    int                `mapstructure:"max_retries" validate:"min=0"`
}

type EconomyConfig struct {
	HorizonSeconds     float64 `mapstructure:"horizon_seconds" validate:"gt=0"`
	MetalMargin        float64 `mapstructure:"metal_margin" validate:"gte=0"`
	DisableFactor      float64 `mapstructure:"disable_factor" validate:"gte=1"`
	BaselineMultiple   float64 `mapstructure:"baseline_multiple" validate:"gt=0"`
	StrainMin          float64 `mapstructure:"strain_min" validate:"gt=0"`
	StrainMax          float64 `mapstructure:"strain_max" validate:"gtefield=StrainMin"`
	LossCorrection     bool    `mapstructure:"loss_correction"`
	LossHalfLifeFrames int     `mapstructure:"loss_half_life_frames" validate:"min=1"`
	LossWindowSeconds  float64 `mapstructure:"loss_window_seconds" validate:"gte=0"`
	ComfortFill        float64 `mapstructure:"comfort_fill" validate:"gte=0,lte=1"`
	LowFill            float64 `mapstructure:"low_fill" validate:"gte=0,lte=1"`
}

type PowerConfig struct {
	CloakSurplusFactor float64 `mapstructure:"cloak_surplus_factor" validate:"gte=1"`
	FullFill           float64 `mapstructure:"full_fill" validate:"gte=0,lte=1"`
	ResumeFill         float64 `mapstructure:"resume_fill" validate:"gte=0,ltefield=FullFill"`
	ShortHorizon       float64 `mapstructure:"short_horizon" validate:"gt=0"`
	LongHorizon        float64 `mapstructure:"long_horizon" validate:"gtefield=ShortHorizon"`
	LowReserve         float64 `mapstructure:"low_reserve" validate:"gte=0,lte=1"`
	ComfortReserve     float64 `mapstructure:"comfort_reserve" validate:"gte=0,lte=1"`
	ConsumerMargin     float64 `mapstructure:"consumer_margin" validate:"gte=0,lte=1"`
}

type StockpileConfig struct {
	Cap        int `mapstructure:"cap" validate:"min=1"`
	WaitFrames int `mapstructure:"wait_frames" validate:"min=1"`
}

// IPCConfig is the unix socket the game-side mod connects to.
type IPCConfig struct {
	Socket string `mapstructure:"socket" validate:"required"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level" validate:"required,oneof=debug info warn error"`
	Format string `mapstructure:"format" validate:"required,oneof=json text"`
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Host    string `mapstructure:"host"`
	Port    int    `mapstructure:"port" validate:"omitempty,min=1024,max=65535"`
	Path    string `mapstructure:"path"`
}

// JournalConfig controls the post-game order journal and command trace.
type JournalConfig struct {
	Enabled bool `mapstructure:"enabled"`

	// Connection type: "postgres" or "sqlite"
	Type string `mapstructure:"type" validate:"required,oneof=postgres sqlite"`

	// Full postgres connection URL
	URL string `mapstructure:"url" validate:"required_if=Type postgres"`

	// SQLite file path, ":memory:" when empty
	Path string `mapstructure:"path"`

	// Directory for the zstd JSONL command trace; empty disables it.
	TraceDir string `mapstructure:"trace_dir"`

	// Records buffered before the writer starts dropping.
	Buffer int `mapstructure:"buffer" validate:"min=1"`
}

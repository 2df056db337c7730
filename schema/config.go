package schema

// ServiceConfig defines defaults and limits for the core service.
type ServiceConfig struct {
	// BufferMaxLines bounds per-stream scrollback.
	BufferMaxLines int
	// OutputRateCapacity is the token-bucket capacity per box.
	OutputRateCapacity int
	// OutputRatePerSecond is the token refill rate per box.
	OutputRatePerSecond int
	// PtyRows and PtyCols size newly allocated pseudo-terminals.
	PtyRows int
	PtyCols int
}

// Service config defaults. Rate defaults allow short bursts at twice the
// sustained rate, matching a render loop targeting ~60 updates per second.
const (
	DefaultOutputRatePerSecond = 60
	DefaultOutputRateCapacity  = 120
	DefaultPtyRows             = 24
	DefaultPtyCols             = 80
)

// NormalizeServiceConfig applies defaults and validates the config.
func NormalizeServiceConfig(cfg ServiceConfig) (ServiceConfig, error) {
	if cfg.BufferMaxLines <= 0 {
		cfg.BufferMaxLines = DefaultBufferMaxLines
	}
	if cfg.OutputRatePerSecond <= 0 {
		cfg.OutputRatePerSecond = DefaultOutputRatePerSecond
	}
	if cfg.OutputRateCapacity <= 0 {
		cfg.OutputRateCapacity = DefaultOutputRateCapacity
	}
	if cfg.OutputRateCapacity < cfg.OutputRatePerSecond {
		cfg.OutputRateCapacity = cfg.OutputRatePerSecond
	}
	if cfg.PtyRows <= 0 {
		cfg.PtyRows = DefaultPtyRows
	}
	if cfg.PtyCols <= 0 {
		cfg.PtyCols = DefaultPtyCols
	}
	return cfg, nil
}

package flasher

// Config holds per-operation driver configuration, assembled from functional
// Options. The zero value is not directly usable; drivers obtain one via
// NewConfig.
type Config struct {
	// ProgressCallback is called during Working/Verifying to report
	// progress (optional).
	ProgressCallback ProgressCallback

	// StateCallback is called on every State transition (optional).
	StateCallback StateCallback

	// Logger receives log entries from every state (optional).
	Logger Logger

	// SkipKeyCheck continues despite a non-standard BK encryption key
	// instead of raising a hard error. Only meaningful for BK7231
	// families other than T/U.
	SkipKeyCheck bool

	// IgnoreCRCErr continues despite a BK post-read CRC mismatch instead
	// of returning VerificationMismatchError.
	IgnoreCRCErr bool

	// OverwriteBootloader permits BK7231T/U writes below offset 0x11000.
	// Without it, such writes are rejected before any transmission.
	OverwriteBootloader bool

	// ReadTimeoutMultiplier scales every per-command timeout a driver
	// uses. Must be >= 1.0; values below that are clamped by WithReadTimeoutMultiplier.
	ReadTimeoutMultiplier float64

	// SkipUnprotect allows a driver to continue after encountering an
	// unrecognised flash MID instead of aborting with UnknownFlash.
	SkipUnprotect bool
}

// NewConfig returns a Config populated with this package's defaults.
func NewConfig() Config {
	return Config{
		ReadTimeoutMultiplier: 1.0,
	}
}

// Option is a functional option for configuring a driver.
type Option func(*Config)

// WithProgressCallback sets a callback to observe read/write/erase
// progress.
func WithProgressCallback(cb ProgressCallback) Option {
	return func(c *Config) { c.ProgressCallback = cb }
}

// WithStateCallback sets a callback to observe State transitions.
func WithStateCallback(cb StateCallback) Option {
	return func(c *Config) { c.StateCallback = cb }
}

// WithLogger sets the Logger a driver reports to.
func WithLogger(l Logger) Option {
	return func(c *Config) { c.Logger = l }
}

// WithSkipKeyCheck suppresses the hard error a BK7231 driver otherwise
// raises on an unexpected encryption key.
func WithSkipKeyCheck(skip bool) Option {
	return func(c *Config) { c.SkipKeyCheck = skip }
}

// WithIgnoreCRCErr suppresses VerificationMismatchError after a BK7231
// post-read CRC mismatch.
func WithIgnoreCRCErr(ignore bool) Option {
	return func(c *Config) { c.IgnoreCRCErr = ignore }
}

// WithOverwriteBootloader permits BK7231T/U writes and erases below offset
// 0x11000. Without this option such operations are rejected before any
// transmission.
func WithOverwriteBootloader(overwrite bool) Option {
	return func(c *Config) { c.OverwriteBootloader = overwrite }
}

// WithReadTimeoutMultiplier scales every per-command timeout a driver uses.
// Values below 1.0 are clamped to 1.0.
func WithReadTimeoutMultiplier(mult float64) Option {
	return func(c *Config) {
		if mult < 1.0 {
			mult = 1.0
		}
		c.ReadTimeoutMultiplier = mult
	}
}

// WithSkipUnprotect allows a BK7231 driver to continue past an
// unrecognised flash MID instead of aborting with UnknownFlash.
func WithSkipUnprotect(skip bool) Option {
	return func(c *Config) { c.SkipUnprotect = skip }
}

// Apply builds a Config from NewConfig's defaults with every opt applied in
// order.
func Apply(opts ...Option) Config {
	c := NewConfig()
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

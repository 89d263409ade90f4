package audio

// Config holds the capture and analysis tunables used when a toy asks for audio.
type Config struct {
	// Analysis
	FFTSize   int     // Analyser FFT size, power of two
	Smoothing float64 // Analyser smoothing time constant (0-1)

	// Microphone capture constraints
	EchoCancellation bool
	NoiseSuppression bool
	AutoGainControl  bool

	// Demo source
	DemoVolume float64 // Gain of the built-in demo track (0-1)
}

// DefaultConfig is used when Options leave fields unset. Processing is
// disabled so the analyser sees the raw room signal.
var DefaultConfig = Config{
	FFTSize:          256,
	Smoothing:        0.8,
	EchoCancellation: false,
	NoiseSuppression: false,
	AutoGainControl:  false,
	DemoVolume:       0.6,
}

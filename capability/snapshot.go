package capability

// Backend is the rendering path selected for the environment.
type Backend string

const (
	BackendWebGPU Backend = "webgpu"
	BackendWebGL  Backend = "webgl"
	BackendNone   Backend = "none"
)

// PermissionState is the microphone permission as seen by the probe.
type PermissionState string

const (
	PermissionGranted     PermissionState = "granted"
	PermissionDenied      PermissionState = "denied"
	PermissionPrompt      PermissionState = "prompt"
	PermissionUnsupported PermissionState = "unsupported"
	PermissionUnknown     PermissionState = "unknown"
)

// Quality knobs recommended for the performance tier.
const (
	DefaultMaxPixelRatio  = 2.0
	DefaultRenderScale    = 1.0
	LowPowerMaxPixelRatio = 1.25
	LowPowerRenderScale   = 0.9
)

// RendererInfo describes the rendering backend choice.
type RendererInfo struct {
	Backend        Backend `json:"backend"`
	FallbackReason string  `json:"fallbackReason,omitempty"`
	TriedWebGPU    bool    `json:"triedWebGPU"`
	ShouldRetry    bool    `json:"shouldRetryWebGPU"`
}

// IsFallback reports whether a simpler backend is in use because WebGPU could not be.
func (r RendererInfo) IsFallback() bool {
	return r.Backend != BackendWebGPU && r.FallbackReason != ""
}

// MicrophoneInfo describes capture support and permission.
type MicrophoneInfo struct {
	Supported bool            `json:"supported"`
	State     PermissionState `json:"state"`
	Reason    string          `json:"reason,omitempty"`
}

// Environment holds the facts the performance tier is derived from.
type Environment struct {
	SecureContext       bool    `json:"secureContext"`
	ReducedMotion       bool    `json:"reducedMotion"`
	HardwareConcurrency int     `json:"hardwareConcurrency"`
	DeviceMemoryGB      float64 `json:"deviceMemory"`
	Mobile              bool    `json:"mobile"`
}

// Performance is the derived tier and quality recommendation.
type Performance struct {
	LowPower      bool    `json:"lowPower"`
	Reason        string  `json:"reason,omitempty"`
	MaxPixelRatio float64 `json:"maxPixelRatio"`
	RenderScale   float64 `json:"renderScale"`
}

// Snapshot is a point-in-time read of what the environment supports.
type Snapshot struct {
	Renderer       RendererInfo   `json:"renderer"`
	Microphone     MicrophoneInfo `json:"microphone"`
	Environment    Environment    `json:"environment"`
	Performance    Performance    `json:"performance"`
	BlockingIssues []string       `json:"blockingIssues"`
	Warnings       []string       `json:"warnings"`
	CanProceed     bool           `json:"canProceed"`
}

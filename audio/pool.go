// Package audio pools the microphone stream shared by audio-reactive toys and
// builds analyser graphs over microphone, tab capture or demo sources.
package audio

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/simukka/toybox/pool"
)

var (
	// ErrUnsupported is returned when the browser has no capture API.
	ErrUnsupported = errors.New("audio: capture is not supported")
	// ErrPermissionDenied is returned when the user or browser blocks capture.
	ErrPermissionDenied = errors.New("audio: permission denied")
)

// Source selects where audio comes from.
type Source string

const (
	SourceMicrophone Source = "microphone"
	SourceTab        Source = "tab"
	SourceDemo       Source = "demo"
)

// Constraints are passed to the capture API.
type Constraints struct {
	EchoCancellation bool
	NoiseSuppression bool
	AutoGainControl  bool
}

// Stream is a live capture stream.
type Stream interface {
	ID() string
	// Stop ends every track so the browser's recording indicator turns off.
	Stop()
}

// MediaDevices wraps the browser capture APIs.
type MediaDevices interface {
	HasCaptureAPI() bool
	GetUserMedia(ctx context.Context, c Constraints) (Stream, error)
	GetDisplayMedia(ctx context.Context, c Constraints) (Stream, error)
}

// Listener is the scene's audio listener.
type Listener interface{}

// Node is the audio node playing or routing a source.
type Node interface {
	Disconnect()
}

// Analyser exposes frequency data to a toy.
type Analyser interface {
	FrequencyBinCount() int
	ReadFrequencyData(dst []byte)
}

// Graph builds audio graphs on the platform's audio context.
type Graph interface {
	NewListener() Listener
	// AttachStream routes stream through a new analysed node. The node must not play
	// the stream back to the speakers.
	AttachStream(ctx context.Context, l Listener, s Stream, cfg Config) (Node, Analyser, error)
	// AttachDemo starts the built-in demo track through a new analysed node.
	AttachDemo(ctx context.Context, l Listener, cfg Config) (Node, Analyser, error)
}

// Reporter is told when audio starts and stops; the agent surface implements it.
type Reporter interface {
	AudioStarted(source string)
	AudioStopped()
}

// Options configure a single acquisition. Zero fields fall back to DefaultConfig.
type Options struct {
	Source      Source
	FFTSize     int
	Constraints *Constraints
	Listener    Listener
}

// Handle is one toy's use of an audio source.
type Handle struct {
	Analyser Analyser
	Listener Listener
	Audio    Node
	Stream   Stream
	Source   Source

	release func()
	once    sync.Once
}

// Release disconnects the handle's graph and drops its claim on the stream.
func (h *Handle) Release() {
	h.once.Do(h.release)
}

// Pool shares at most one microphone stream between handles.
type Pool struct {
	devices  MediaDevices
	graph    Graph
	reporter Reporter
	config   Config
	logger   zerolog.Logger

	mic *pool.Slot[Stream]

	mu     sync.Mutex
	active int
	epoch  uint64
	// constraints used for the pooled stream's creation
	pending Constraints
}

// PoolOption customizes a Pool.
type PoolOption func(*Pool)

// WithReporter reports audio start/stop to r.
func WithReporter(r Reporter) PoolOption {
	return func(p *Pool) { p.reporter = r }
}

// WithConfig overrides DefaultConfig.
func WithConfig(c Config) PoolOption {
	return func(p *Pool) { p.config = c }
}

// WithLogger installs a structured logger.
func WithLogger(l zerolog.Logger) PoolOption {
	return func(p *Pool) { p.logger = l.With().Str("component", "audio").Logger() }
}

// NewPool creates an audio pool.
func NewPool(devices MediaDevices, graph Graph, opts ...PoolOption) *Pool {
	p := &Pool{
		devices: devices,
		graph:   graph,
		config:  DefaultConfig,
		logger:  zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.mic = pool.NewSlot(pool.ReleaseWhenIdle, p.openMicrophone, p.stopStream)
	return p
}

func (p *Pool) openMicrophone(ctx context.Context) (Stream, error) {
	p.mu.Lock()
	c := p.pending
	p.mu.Unlock()
	s, err := p.devices.GetUserMedia(ctx, c)
	if err != nil {
		return nil, err
	}
	p.logger.Info().Str("stream", s.ID()).Msg("microphone stream opened")
	return s, nil
}

func (p *Pool) stopStream(s Stream) {
	s.Stop()
	p.logger.Info().Str("stream", s.ID()).Msg("microphone stream stopped")
}

// Acquire returns an analysed handle for the requested source. Microphone
// streams are shared; concurrent first acquisitions trigger one capture prompt.
func (p *Pool) Acquire(ctx context.Context, opts Options) (*Handle, error) {
	cfg := p.config
	if opts.FFTSize > 0 {
		cfg.FFTSize = opts.FFTSize
	}
	c := Constraints{
		EchoCancellation: cfg.EchoCancellation,
		NoiseSuppression: cfg.NoiseSuppression,
		AutoGainControl:  cfg.AutoGainControl,
	}
	if opts.Constraints != nil {
		c = *opts.Constraints
	}
	source := opts.Source
	if source == "" {
		source = SourceMicrophone
	}
	listener := opts.Listener
	if listener == nil {
		listener = p.graph.NewListener()
	}

	epoch := p.currentEpoch()
	var (
		stream  Stream
		node    Node
		an      Analyser
		err     error
		release func()
	)
	switch source {
	case SourceMicrophone:
		if !p.devices.HasCaptureAPI() {
			return nil, ErrUnsupported
		}
		p.mu.Lock()
		p.pending = c
		p.mu.Unlock()
		stream, err = p.mic.Acquire(ctx)
		if err != nil {
			return nil, fmt.Errorf("acquire microphone: %w", err)
		}
		node, an, err = p.graph.AttachStream(ctx, listener, stream, cfg)
		if err != nil {
			p.mic.Release()
			return nil, fmt.Errorf("attach microphone: %w", err)
		}
		release = func() {
			// A reset since this handle was issued already dropped the stream.
			if p.currentEpoch() == epoch {
				p.mic.Release()
			}
		}
	case SourceTab:
		if !p.devices.HasCaptureAPI() {
			return nil, ErrUnsupported
		}
		stream, err = p.devices.GetDisplayMedia(ctx, c)
		if err != nil {
			return nil, fmt.Errorf("acquire tab audio: %w", err)
		}
		node, an, err = p.graph.AttachStream(ctx, listener, stream, cfg)
		if err != nil {
			stream.Stop()
			return nil, fmt.Errorf("attach tab audio: %w", err)
		}
		s := stream
		release = func() { s.Stop() }
	case SourceDemo:
		node, an, err = p.graph.AttachDemo(ctx, listener, cfg)
		if err != nil {
			return nil, fmt.Errorf("start demo audio: %w", err)
		}
		release = func() {}
	default:
		return nil, fmt.Errorf("unknown audio source %q", source)
	}

	if !p.started(epoch, source) {
		// Reset ran while the graph was being attached.
		node.Disconnect()
		release()
		return nil, fmt.Errorf("acquire %s audio: %w", source, pool.ErrReset)
	}
	h := &Handle{
		Analyser: an,
		Listener: listener,
		Audio:    node,
		Stream:   stream,
		Source:   source,
	}
	h.release = func() {
		node.Disconnect()
		release()
		if p.currentEpoch() == epoch {
			p.stopped()
		}
	}
	return h, nil
}

// started counts a new handle unless the pool was reset after epoch.
func (p *Pool) started(epoch uint64, source Source) bool {
	p.mu.Lock()
	if p.epoch != epoch {
		p.mu.Unlock()
		return false
	}
	p.active++
	p.mu.Unlock()
	if p.reporter != nil {
		p.reporter.AudioStarted(string(source))
	}
	return true
}

func (p *Pool) currentEpoch() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.epoch
}

func (p *Pool) stopped() {
	p.mu.Lock()
	if p.active > 0 {
		p.active--
	}
	last := p.active == 0
	p.mu.Unlock()
	if last && p.reporter != nil {
		p.reporter.AudioStopped()
	}
}

// Reset forcibly clears the pool. With stopStreams the pooled microphone
// tracks are stopped even if handles still reference them.
func (p *Pool) Reset(stopStreams bool) {
	p.mic.Reset(stopStreams)
	p.mu.Lock()
	wasActive := p.active > 0
	p.active = 0
	p.epoch++
	p.mu.Unlock()
	if wasActive && p.reporter != nil {
		p.reporter.AudioStopped()
	}
}

// MicrophoneLive reports whether a pooled microphone stream exists.
func (p *Pool) MicrophoneLive() bool {
	return p.mic.Live()
}

// MicrophoneRefs returns the number of handles sharing the microphone stream.
func (p *Pool) MicrophoneRefs() int {
	return p.mic.Refs()
}

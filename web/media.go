//go:build js
// +build js

package web

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/gopherjs/gopherjs/js"

	"github.com/simukka/toybox/audio"
)

// MediaDevices implements audio.MediaDevices over navigator.mediaDevices.
type MediaDevices struct{}

var _ audio.MediaDevices = MediaDevices{}

// HasCaptureAPI reports whether getUserMedia exists.
func (MediaDevices) HasCaptureAPI() bool {
	return has(navigator().Get("mediaDevices"), "getUserMedia")
}

// GetUserMedia opens the microphone.
func (MediaDevices) GetUserMedia(ctx context.Context, c audio.Constraints) (audio.Stream, error) {
	p, err := safeCall(func() *js.Object {
		return navigator().Get("mediaDevices").Call("getUserMedia", map[string]interface{}{
			"audio": constraints(c),
		})
	})
	if err != nil {
		return nil, classify(err)
	}
	s, err := await(ctx, p)
	if err != nil {
		return nil, classify(err)
	}
	return &mediaStream{obj: s}, nil
}

// GetDisplayMedia captures tab audio. Browsers only share audio alongside
// video, so the video tracks are stopped right away.
func (MediaDevices) GetDisplayMedia(ctx context.Context, c audio.Constraints) (audio.Stream, error) {
	md := navigator().Get("mediaDevices")
	if !has(md, "getDisplayMedia") {
		return nil, audio.ErrUnsupported
	}
	p, err := safeCall(func() *js.Object {
		return md.Call("getDisplayMedia", map[string]interface{}{
			"audio": constraints(c),
			"video": true,
		})
	})
	if err != nil {
		return nil, classify(err)
	}
	s, err := await(ctx, p)
	if err != nil {
		return nil, classify(err)
	}
	stream := &mediaStream{obj: s}
	stream.stopKind("video")
	if s.Call("getAudioTracks").Length() == 0 {
		stream.Stop()
		return nil, errors.New("the shared tab has no audio")
	}
	return stream, nil
}

func constraints(c audio.Constraints) map[string]interface{} {
	return map[string]interface{}{
		"echoCancellation": c.EchoCancellation,
		"noiseSuppression": c.NoiseSuppression,
		"autoGainControl":  c.AutoGainControl,
	}
}

// classify maps DOM capture errors onto the audio error kinds.
func classify(err error) error {
	var de *DOMError
	if errors.As(err, &de) {
		switch de.Name {
		case "NotAllowedError", "SecurityError", "PermissionDeniedError", "AbortError":
			return fmt.Errorf("%w: %s", audio.ErrPermissionDenied, de.Message)
		case "NotSupportedError", "TypeError":
			return fmt.Errorf("%w: %s", audio.ErrUnsupported, de.Message)
		}
	}
	return err
}

type mediaStream struct {
	obj *js.Object
}

func (s *mediaStream) ID() string { return s.obj.Get("id").String() }

// Stop ends every track.
func (s *mediaStream) Stop() { s.stopKind("") }

func (s *mediaStream) stopKind(kind string) {
	tracks := s.obj.Call("getTracks")
	for i := 0; i < tracks.Length(); i++ {
		t := tracks.Index(i)
		if kind == "" || t.Get("kind").String() == kind {
			t.Call("stop")
		}
	}
}

// AudioGraph implements audio.Graph on one lazily created AudioContext.
type AudioGraph struct {
	mu  sync.Mutex
	ctx *js.Object
}

var _ audio.Graph = (*AudioGraph)(nil)

// Drone pitches of the demo track, a low A with a fifth and octave.
var demoDrone = []float64{55, 82.41, 110}

func (g *AudioGraph) context() (*js.Object, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.ctx != nil {
		return g.ctx, nil
	}
	ctor := js.Global.Get("AudioContext")
	if nullish(ctor) {
		ctor = js.Global.Get("webkitAudioContext")
	}
	if nullish(ctor) {
		return nil, audio.ErrUnsupported
	}
	g.ctx = ctor.New()
	return g.ctx, nil
}

func (g *AudioGraph) resume(ctx context.Context, ac *js.Object) {
	if ac.Get("state").String() != "suspended" {
		return
	}
	if p, err := safeCall(func() *js.Object { return ac.Call("resume") }); err == nil && thenable(p) {
		_, _ = await(ctx, p)
	}
}

// NewListener returns the toy-facing listener; toys that bring their own
// scene listener pass it in audio.Options instead.
func (g *AudioGraph) NewListener() audio.Listener {
	ac, err := g.context()
	if err != nil {
		return nil
	}
	return ac.Get("destination")
}

func (g *AudioGraph) analyser(ac *js.Object, cfg audio.Config) *js.Object {
	an := ac.Call("createAnalyser")
	an.Set("fftSize", cfg.FFTSize)
	an.Set("smoothingTimeConstant", cfg.Smoothing)
	return an
}

// AttachStream analyses s without routing it to the speakers.
func (g *AudioGraph) AttachStream(ctx context.Context, l audio.Listener, s audio.Stream, cfg audio.Config) (audio.Node, audio.Analyser, error) {
	ms, ok := s.(*mediaStream)
	if !ok {
		return nil, nil, fmt.Errorf("stream %T is not a browser media stream", s)
	}
	ac, err := g.context()
	if err != nil {
		return nil, nil, err
	}
	g.resume(ctx, ac)
	src, err := safeCall(func() *js.Object { return ac.Call("createMediaStreamSource", ms.obj) })
	if err != nil {
		return nil, nil, fmt.Errorf("create stream source: %w", err)
	}
	an := g.analyser(ac, cfg)
	src.Call("connect", an)
	return &node{nodes: []*js.Object{src, an}}, &analyser{obj: an}, nil
}

// AttachDemo plays a filtered sawtooth drone with a slow filter sweep.
func (g *AudioGraph) AttachDemo(ctx context.Context, l audio.Listener, cfg audio.Config) (audio.Node, audio.Analyser, error) {
	ac, err := g.context()
	if err != nil {
		return nil, nil, err
	}
	g.resume(ctx, ac)

	master := ac.Call("createGain")
	master.Get("gain").Set("value", cfg.DemoVolume)
	an := g.analyser(ac, cfg)
	master.Call("connect", an)
	an.Call("connect", ac.Get("destination"))

	n := &node{nodes: []*js.Object{master, an}}
	for i, freq := range demoDrone {
		osc := ac.Call("createOscillator")
		osc.Set("type", "sawtooth")
		osc.Get("frequency").Set("value", freq)

		filter := ac.Call("createBiquadFilter")
		filter.Set("type", "lowpass")
		filter.Get("frequency").Set("value", 400+freq*2)
		filter.Get("Q").Set("value", 1)

		lfo := ac.Call("createOscillator")
		lfo.Set("type", "sine")
		lfo.Get("frequency").Set("value", 0.05*float64(i+1))
		lfoGain := ac.Call("createGain")
		lfoGain.Get("gain").Set("value", 300)
		lfo.Call("connect", lfoGain)
		lfoGain.Call("connect", filter.Get("frequency"))

		voice := ac.Call("createGain")
		voice.Get("gain").Set("value", 0.3)
		osc.Call("connect", filter)
		filter.Call("connect", voice)
		voice.Call("connect", master)

		osc.Call("start")
		lfo.Call("start")
		n.oscillators = append(n.oscillators, osc, lfo)
		n.nodes = append(n.nodes, filter, lfoGain, voice)
	}
	return n, &analyser{obj: an}, nil
}

type node struct {
	oscillators []*js.Object
	nodes       []*js.Object
}

// Disconnect stops the oscillators and detaches every node.
func (n *node) Disconnect() {
	for _, o := range n.oscillators {
		_, _ = safeCall(func() *js.Object { o.Call("stop"); return nil })
		o.Call("disconnect")
	}
	for _, o := range n.nodes {
		o.Call("disconnect")
	}
}

type analyser struct {
	obj *js.Object
}

func (a *analyser) FrequencyBinCount() int { return a.obj.Get("frequencyBinCount").Int() }

func (a *analyser) ReadFrequencyData(dst []byte) {
	buf := js.Global.Get("Uint8Array").New(len(dst))
	a.obj.Call("getByteFrequencyData", buf)
	for i := range dst {
		dst[i] = byte(buf.Index(i).Int())
	}
}

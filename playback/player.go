// Package playback feeds the edited waveform to an audio device callback.
// The render path never blocks: waveform swaps happen under a mutex the
// callback only try-locks, and all per-sample state lives in atomics.
package playback

import (
	"math"
	"sync"
	"sync/atomic"

	dspinterp "github.com/cwbudde/algo-dsp/dsp/interp"

	"github.com/cwbudde/algo-vocal/mel"
)

// State is the transport state.
type State int32

const (
	Stopped State = iota
	Playing
	Paused
)

func (s State) String() string {
	switch s {
	case Stopped:
		return "stopped"
	case Playing:
		return "playing"
	case Paused:
		return "paused"
	}
	return "unknown"
}

// Player renders the project waveform at the device rate. Writer methods
// (SetWaveform, transport control) run on the message thread; Render runs
// on the audio thread.
type Player struct {
	mu       sync.Mutex // guards waveform; Render only try-locks
	waveform []float64

	state      atomic.Int32
	posBits    atomic.Uint64 // source-sample cursor, float64 bits
	gainBits   atomic.Uint64 // linear gain, float64 bits
	ratioBits  atomic.Uint64 // sourceRate / deviceRate, float64 bits
	loopOn     atomic.Bool
	loopStart  atomic.Int64 // source samples
	loopEnd    atomic.Int64
	notifyPend atomic.Bool

	interp *dspinterp.LagrangeInterpolator

	// OnPosition receives the cursor in source samples. Notifications
	// coalesce: at most one is pending per rendered block. The handler
	// must call the release function when done.
	OnPosition func(pos float64, release func())
}

// NewPlayer creates a stopped player for the given device rate.
func NewPlayer(deviceRate int) *Player {
	p := &Player{
		interp: dspinterp.NewLagrangeInterpolator(3),
	}
	p.setFloat(&p.gainBits, 1.0)
	p.SetDeviceRate(deviceRate)
	return p
}

func (p *Player) setFloat(bits *atomic.Uint64, v float64) {
	bits.Store(math.Float64bits(v))
}

func (p *Player) getFloat(bits *atomic.Uint64) float64 {
	return math.Float64frombits(bits.Load())
}

// SetDeviceRate recomputes the conversion ratio for a new device rate.
func (p *Player) SetDeviceRate(deviceRate int) {
	if deviceRate <= 0 {
		deviceRate = mel.SampleRate
	}
	p.setFloat(&p.ratioBits, float64(mel.SampleRate)/float64(deviceRate))
}

// SetWaveform swaps the playback buffer. Blocks the caller, never the
// audio thread.
func (p *Player) SetWaveform(w []float64) {
	p.mu.Lock()
	p.waveform = w
	p.mu.Unlock()
}

// WaveformLock exposes the writer lock guarding the playback buffer.
// Writers that mutate the shared backing array in place must hold it;
// Render try-locks it and emits silence while it is held.
func (p *Player) WaveformLock() sync.Locker {
	return &p.mu
}

// SetGain sets the linear output gain.
func (p *Player) SetGain(g float64) {
	if g < 0 {
		g = 0
	}
	p.setFloat(&p.gainBits, g)
}

// SetGainDB sets the gain in decibels.
func (p *Player) SetGainDB(db float64) {
	p.SetGain(math.Pow(10, db/20))
}

// SetLoop configures the loop region in seconds of source time.
func (p *Player) SetLoop(enabled bool, startSec, endSec float64) {
	start := int64(startSec * mel.SampleRate)
	end := int64(endSec * mel.SampleRate)
	if end < start {
		start, end = end, start
	}
	p.loopStart.Store(start)
	p.loopEnd.Store(end)
	p.loopOn.Store(enabled)
}

// State returns the transport state.
func (p *Player) State() State {
	return State(p.state.Load())
}

// Position returns the cursor in source samples.
func (p *Player) Position() float64 {
	return p.getFloat(&p.posBits)
}

// Seek moves the cursor, in source samples.
func (p *Player) Seek(pos float64) {
	if pos < 0 {
		pos = 0
	}
	p.setFloat(&p.posBits, pos)
}

// Play starts or resumes playback.
func (p *Player) Play() {
	p.state.Store(int32(Playing))
}

// Pause holds the current position.
func (p *Player) Pause() {
	if State(p.state.Load()) == Playing {
		p.state.Store(int32(Paused))
	}
}

// Stop halts playback and rewinds to the start.
func (p *Player) Stop() {
	p.state.Store(int32(Stopped))
	p.setFloat(&p.posBits, 0)
}

// Render fills out with device-rate samples. Runs on the audio thread; if
// the waveform lock is contended it emits silence for the block instead of
// waiting.
func (p *Player) Render(out []float64) {
	for i := range out {
		out[i] = 0
	}
	if State(p.state.Load()) != Playing {
		return
	}
	if !p.mu.TryLock() {
		return
	}
	defer p.mu.Unlock()

	w := p.waveform
	if len(w) == 0 {
		return
	}

	pos := p.getFloat(&p.posBits)
	gain := p.getFloat(&p.gainBits)
	ratio := p.getFloat(&p.ratioBits)
	loopOn := p.loopOn.Load()
	loopStart := float64(p.loopStart.Load())
	loopEnd := float64(p.loopEnd.Load())

	// The 4-point kernel is stateless, so seeks and loop jumps need no
	// interpolator reset beyond moving the cursor.
	var window [4]float64
	for i := range out {
		if loopOn && loopEnd > loopStart && pos >= loopEnd {
			pos = loopStart
		}
		idx := int(pos)
		if idx >= len(w) {
			p.state.Store(int32(Stopped))
			pos = 0
			break
		}
		frac := pos - float64(idx)
		for k := -1; k <= 2; k++ {
			j := idx + k
			if j < 0 {
				j = 0
			} else if j >= len(w) {
				j = len(w) - 1
			}
			window[k+1] = w[j]
		}
		out[i] = gain * p.interp.Interpolate(window[:], frac)
		pos += ratio
	}
	p.setFloat(&p.posBits, pos)

	p.notifyPosition(pos)
}

// notifyPosition coalesces cursor callbacks to one pending notification.
func (p *Player) notifyPosition(pos float64) {
	if p.OnPosition == nil {
		return
	}
	if p.notifyPend.Swap(true) {
		return
	}
	p.OnPosition(pos, func() { p.notifyPend.Store(false) })
}

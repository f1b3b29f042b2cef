package vocoder

import (
	"fmt"

	"github.com/cwbudde/algo-vocal/mel"
)

// InferenceSession runs the neural vocoder model. The caller owns the
// session lifecycle; Close releases it.
type InferenceSession interface {
	Run(melSpec [][]float64, f0 []float64) ([]float64, error)
	Close() error
}

// SessionBackend wraps an external inference session (pc_nsf_hifigan).
type SessionBackend struct {
	session InferenceSession
	opts    Options
}

// NewSessionBackend builds a backend around session. A nil session yields
// ErrNoModel on every call.
func NewSessionBackend(session InferenceSession, opts Options) *SessionBackend {
	return &SessionBackend{session: session, opts: opts}
}

func (b *SessionBackend) Synthesize(melSpec [][]float64, f0 []float64) ([]float64, error) {
	if b.session == nil {
		return nil, ErrNoModel
	}
	if len(melSpec) != len(f0) {
		return nil, fmt.Errorf("vocoder: %d mel frames vs %d f0 frames", len(melSpec), len(f0))
	}
	pcm, err := b.session.Run(melSpec, f0)
	if err != nil {
		return nil, fmt.Errorf("vocoder: session: %w", err)
	}
	// Sessions may emit padded output; trim to the frame contract.
	if want := len(f0) * mel.HopSize; len(pcm) > want {
		pcm = pcm[:want]
	}
	return pcm, nil
}

func (b *SessionBackend) Close() error {
	if b.session == nil {
		return nil
	}
	return b.session.Close()
}

package screenshot

import "errors"

// FakeGrabber returns a fixed payload, counting calls. A nil payload
// simulates a platform capture failure.
type FakeGrabber struct {
	Data  []byte
	Calls int
}

func (g *FakeGrabber) Capture() ([]byte, error) {
	g.Calls++
	if g.Data == nil {
		return nil, errors.New("capture permission denied")
	}
	return g.Data, nil
}

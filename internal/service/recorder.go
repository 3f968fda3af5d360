package service

// Recorder receives domain events for metrics. The metrics package provides
// the Prometheus-backed implementation.
type Recorder interface {
	AuthEvent(event, outcome string)
	EntryOp(op string)
}

type nopRecorder struct{}

func (nopRecorder) AuthEvent(string, string) {}
func (nopRecorder) EntryOp(string)           {}

func recorderOrNop(r Recorder) Recorder {
	if r == nil {
		return nopRecorder{}
	}
	return r
}

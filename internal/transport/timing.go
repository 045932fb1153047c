package transport

import "time"

// TimingUnset marks a phase that was never measured.
const TimingUnset = -1

// Timing holds per-phase measurements in milliseconds. Each field is either
// TimingUnset or a non-negative sample; fields are populated only when
// performance timing was requested and the transfer succeeded.
type Timing struct {
	DNS          float64
	TCP          float64
	TLS          float64
	FirstSend    float64
	FirstReceive float64
	TotalFinish  float64
	Redirect     float64
}

// NewTiming returns a Timing with every phase unset.
func NewTiming() *Timing {
	return &Timing{
		DNS:          TimingUnset,
		TCP:          TimingUnset,
		TLS:          TimingUnset,
		FirstSend:    TimingUnset,
		FirstReceive: TimingUnset,
		TotalFinish:  TimingUnset,
		Redirect:     TimingUnset,
	}
}

// timingFields drives report serialization: one (name, accessor) pair per
// optional phase, so the emit-only-if-measured rule lives in data.
var timingFields = []struct {
	name string
	get  func(*Timing) float64
}{
	{"dnsTiming", func(t *Timing) float64 { return t.DNS }},
	{"tcpTiming", func(t *Timing) float64 { return t.TCP }},
	{"tlsTiming", func(t *Timing) float64 { return t.TLS }},
	{"firstSendTiming", func(t *Timing) float64 { return t.FirstSend }},
	{"firstReceiveTiming", func(t *Timing) float64 { return t.FirstReceive }},
	{"totalFinishTiming", func(t *Timing) float64 { return t.TotalFinish }},
	{"redirectTiming", func(t *Timing) float64 { return t.Redirect }},
}

// Report serializes the measured phases as whole milliseconds plus the
// caller-measured total. Unmeasured phases are absent from the map.
func (t *Timing) Report(totalMillis int64) map[string]int64 {
	report := make(map[string]int64, len(timingFields)+1)
	for _, f := range timingFields {
		if v := f.get(t); v >= 0 {
			report[f.name] = int64(v)
		}
	}
	report["totalTiming"] = totalMillis
	return report
}

func millisSince(start, at time.Time) float64 {
	return float64(at.Sub(start)) / float64(time.Millisecond)
}

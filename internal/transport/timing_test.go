package transport

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTimingReportOmitsUnmeasured(t *testing.T) {
	timing := NewTiming()
	timing.DNS = 12.4
	timing.TotalFinish = 140.9

	report := timing.Report(150)

	assert.Equal(t, map[string]int64{
		"dnsTiming":         12,
		"totalFinishTiming": 140,
		"totalTiming":       150,
	}, report)
}

func TestTimingReportAllFields(t *testing.T) {
	timing := &Timing{
		DNS:          1,
		TCP:          2,
		TLS:          3,
		FirstSend:    4,
		FirstReceive: 5,
		TotalFinish:  6,
		Redirect:     7,
	}

	report := timing.Report(9)
	assert.Len(t, report, 8)
	assert.Equal(t, int64(7), report["redirectTiming"])
	assert.Equal(t, int64(9), report["totalTiming"])
}

func TestTimingReportZeroIsMeasured(t *testing.T) {
	timing := NewTiming()
	timing.TCP = 0

	report := timing.Report(1)
	_, ok := report["tcpTiming"]
	assert.True(t, ok, "a zero-millisecond sample is still a measurement")
	_, ok = report["dnsTiming"]
	assert.False(t, ok)
}

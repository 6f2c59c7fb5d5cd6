package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestSetRecording(t *testing.T) {
	SetRecording(true)
	if got := testutil.ToFloat64(recordingActive); got != 1 {
		t.Errorf("active = %v, want 1", got)
	}
	SetRecording(false)
	if got := testutil.ToFloat64(recordingActive); got != 0 {
		t.Errorf("active = %v, want 0", got)
	}
}

func TestSessionEndedByReason(t *testing.T) {
	before := testutil.ToFloat64(sessionsTotal.WithLabelValues("source_failed"))
	SessionEnded("source_failed")
	SessionEnded("source_failed")
	SessionEnded("requested")

	if got := testutil.ToFloat64(sessionsTotal.WithLabelValues("source_failed")) - before; got != 2 {
		t.Errorf("source_failed delta = %v, want 2", got)
	}
}

func TestCounters(t *testing.T) {
	readBefore := testutil.ToFloat64(framesRead)
	writtenBefore := testutil.ToFloat64(framesWritten)
	facesBefore := testutil.ToFloat64(detections)

	FrameRead()
	FrameRead()
	FrameWritten()
	FacesDetected(3)
	FacesDetected(0)
	FacesDetected(-1)

	if got := testutil.ToFloat64(framesRead) - readBefore; got != 2 {
		t.Errorf("frames read delta = %v, want 2", got)
	}
	if got := testutil.ToFloat64(framesWritten) - writtenBefore; got != 1 {
		t.Errorf("frames written delta = %v, want 1", got)
	}
	if got := testutil.ToFloat64(detections) - facesBefore; got != 3 {
		t.Errorf("faces delta = %v, want 3", got)
	}
}

func TestHistogramsCollect(t *testing.T) {
	ObserveStop(0.2)
	ObserveDetect(0.004)

	for name, c := range map[string]prometheus.Collector{
		"stop":   stopDuration,
		"detect": detectSeconds,
	} {
		if n := testutil.CollectAndCount(c); n != 1 {
			t.Errorf("%s histogram collected %d series, want 1", name, n)
		}
		problems, err := testutil.CollectAndLint(c)
		if err != nil {
			t.Fatalf("%s lint: %v", name, err)
		}
		if len(problems) > 0 {
			t.Errorf("%s lint problems: %v", name, problems)
		}
	}
}

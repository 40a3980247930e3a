package clock

import "testing"

func TestScheduledExecutionTimeClampsToMin(t *testing.T) {
	before := NowMs()
	got := ScheduledExecutionTime(0, 0)
	delta := got - before
	if delta < MinScheduleMs {
		t.Fatalf("expected delta >= %d, got %d", MinScheduleMs, delta)
	}
	if delta > MinScheduleMs+50 {
		t.Fatalf("expected delta close to %d, got %d", MinScheduleMs, delta)
	}
}

func TestScheduledExecutionTimeClampsToCap(t *testing.T) {
	before := NowMs()
	got := ScheduledExecutionTime(100000, 0)
	delta := got - before
	if delta > CapScheduleMs+50 {
		t.Fatalf("expected delta <= %d, got %d", CapScheduleMs, delta)
	}
}

func TestScheduledExecutionTimeExtra(t *testing.T) {
	before := NowMs()
	got := ScheduledExecutionTime(0, 1500)
	delta := got - before
	if delta < MinScheduleMs+1500 || delta > MinScheduleMs+1500+50 {
		t.Fatalf("expected delta near %d, got %d", MinScheduleMs+1500, delta)
	}
}

func TestScheduledExecutionTimeMidRange(t *testing.T) {
	before := NowMs()
	got := ScheduledExecutionTime(1000, 0)
	delta := got - before
	want := int64(1.5*1000 + 200)
	if delta < want || delta > want+50 {
		t.Fatalf("expected delta near %d, got %d", want, delta)
	}
}

func TestSmoothRTTFirstSampleReplacesDirectly(t *testing.T) {
	got := SmoothRTT(DefaultRTT, 42)
	if got != 42 {
		t.Fatalf("expected first sample to replace directly, got %d", got)
	}
}

func TestSmoothRTTIsWithinEMABounds(t *testing.T) {
	prev := int64(100)
	sample := int64(200)
	got := SmoothRTT(prev, sample)
	if got < prev || got > sample {
		t.Fatalf("expected %d in [%d,%d]", got, prev, sample)
	}

	prev = 200
	sample = 100
	got = SmoothRTT(prev, sample)
	if got < sample || got > prev {
		t.Fatalf("expected %d in [%d,%d]", got, sample, prev)
	}
}

func TestSmoothRTTExactValue(t *testing.T) {
	got := SmoothRTT(100, 150)
	want := int64(0.2*150 + 0.8*100)
	if got != want {
		t.Fatalf("expected %d, got %d", want, got)
	}
}

func TestRespondNTPCarriesOriginalTimestamps(t *testing.T) {
	reply := RespondNTP(1000, 1005)
	if reply.T0 != 1000 || reply.T1 != 1005 {
		t.Fatalf("expected t0/t1 to be carried through unchanged, got %+v", reply)
	}
	if reply.T2 < reply.T1 {
		t.Fatalf("expected t2 >= t1, got %+v", reply)
	}
}

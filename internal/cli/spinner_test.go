package cli

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"
)

func TestSpinnerSilentOnNonTerminal(t *testing.T) {
	var buf bytes.Buffer
	s := newSpinner(context.Background(), &buf, "Reading nodes...")
	if s.live {
		t.Fatal("a bytes.Buffer is not a terminal")
	}
	s.Start()
	s.SetMessage("Reading regions...")
	time.Sleep(100 * time.Millisecond)
	s.Stop()

	if buf.Len() != 0 {
		t.Errorf("spinner wrote %q to a non-terminal", buf.String())
	}
}

func TestSpinnerDraws(t *testing.T) {
	var buf bytes.Buffer
	s := newSpinner(context.Background(), &buf, "Reading nodes...")
	s.live = true
	s.Start()
	time.Sleep(120 * time.Millisecond)
	s.SetMessage("Reading regions...")
	time.Sleep(120 * time.Millisecond)
	s.Stop()

	out := buf.String()
	for _, want := range []string{"Reading nodes...", "Reading regions...", "\r"} {
		if !strings.Contains(out, want) {
			t.Errorf("output %q missing %q", out, want)
		}
	}
	if !strings.HasSuffix(out, "\r") {
		t.Error("Stop should clear the line")
	}
}

func TestSpinnerStopIsIdempotent(t *testing.T) {
	for _, live := range []bool{false, true} {
		var buf bytes.Buffer
		s := newSpinner(context.Background(), &buf, "Testing idempotent stop...")
		s.live = live
		s.Start()
		s.Stop()
		s.Stop()
		s.Stop()
	}
}

func TestSpinnerStopWithoutStart(t *testing.T) {
	s := newSpinner(context.Background(), &bytes.Buffer{}, "never started")
	s.live = true
	s.Stop()
}

func TestSpinnerCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var buf bytes.Buffer
	s := newSpinner(ctx, &buf, "Testing with context...")
	s.live = true
	s.Start()

	if s.Cancelled() {
		t.Error("spinner should not be cancelled before the context ends")
	}
	cancel()
	time.Sleep(50 * time.Millisecond)
	if !s.Cancelled() {
		t.Error("spinner should be cancelled after context cancellation")
	}
	s.Stop()
}

func TestSpinnerStopDoesNotCancel(t *testing.T) {
	s := newSpinner(context.Background(), &bytes.Buffer{}, "Testing stop...")
	s.Start()
	s.Stop()
	if s.Cancelled() {
		t.Error("Stop should not mark the spinner as cancelled")
	}
}

func TestSpinnerStopWithError(t *testing.T) {
	s := newSpinner(context.Background(), &bytes.Buffer{}, "Testing error...")
	s.Start()
	s.StopWithError("Could not read input")
}

func TestReadLayersSteps(t *testing.T) {
	dir := t.TempDir()
	in := inputConfig{
		Nodes:       writeFile(t, dir, "stations.geojson", stationsJSON),
		NodeID:      defaultNodeID,
		Regions:     writeFile(t, dir, "districts.geojson", districtsJSON),
		RegionID:    defaultRegionID,
		Demand:      writeFile(t, dir, "demand.csv", "region_id,demand\nU,100\n"),
		DemandID:    defaultRegionID,
		DemandValue: defaultDemandValue,
	}

	var steps []string
	l, err := readLayers(in, func(s string) { steps = append(steps, s) })
	if err != nil {
		t.Fatalf("readLayers() error = %v", err)
	}
	if len(l.nodes) != 3 || len(l.regions) != 1 || l.demand["U"] != 100 {
		t.Errorf("layers = %d nodes, %d regions, demand %v", len(l.nodes), len(l.regions), l.demand)
	}
	if strings.Join(steps, "|") != "Reading regions...|Reading demand..." {
		t.Errorf("steps = %v", steps)
	}
}

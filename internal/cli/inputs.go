package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/meazyme/v-allo/pkg/io"
	"github.com/meazyme/v-allo/pkg/spatial"
)

// layers holds everything read from disk for one run.
type layers struct {
	nodes   []spatial.Node
	regions []spatial.Region
	demand  map[string]float64
	weights map[string]float64
}

// readLayers imports the node layer and, if named, the region layer and the
// demand and weight tables.
func (c *CLI) readLayers(ctx context.Context, in inputConfig) (*layers, error) {
	t := newTimer(c.Logger)
	s := newSpinner(ctx, os.Stderr, "Reading nodes...")
	s.Start()

	l, err := readLayers(in, s.SetMessage)
	if err != nil {
		s.StopWithError("Could not read input")
		return nil, err
	}
	s.Stop()

	t.done(fmt.Sprintf("Read %d nodes and %d regions", len(l.nodes), len(l.regions)))
	return l, nil
}

// readLayers reads every named input. step receives a status line before
// each file.
func readLayers(in inputConfig, step func(string)) (*layers, error) {
	l := &layers{}

	nodes, err := io.ImportNodes(in.Nodes, io.NodeOptions{IDField: in.NodeID, CRS: in.NodesCRS})
	if err != nil {
		return nil, fmt.Errorf("read nodes %s: %w", in.Nodes, err)
	}
	l.nodes = nodes

	if in.Regions != "" {
		step("Reading regions...")
		regions, err := io.ImportRegions(in.Regions, io.RegionOptions{
			IDField:     in.RegionID,
			DemandField: in.DemandField,
			CRS:         in.RegionsCRS,
		})
		if err != nil {
			return nil, fmt.Errorf("read regions %s: %w", in.Regions, err)
		}
		l.regions = regions
	}

	if in.Demand != "" {
		step("Reading demand...")
		demand, err := io.ImportValues(in.Demand, in.DemandID, in.DemandValue)
		if err != nil {
			return nil, fmt.Errorf("read demand %s: %w", in.Demand, err)
		}
		l.demand = demand
	}

	if in.Weights != "" {
		step("Reading weights...")
		weights, err := io.ImportValues(in.Weights, in.WeightID, in.WeightValue)
		if err != nil {
			return nil, fmt.Errorf("read weights %s: %w", in.Weights, err)
		}
		l.weights = weights
	}

	return l, nil
}

// Package plausibility checks a proportion table for coverage gaps and
// broken sum invariants.
//
// The checker never changes its inputs and never fails: every problem it
// finds becomes a [Finding] in the returned [Report]. Callers decide whether
// error-severity findings abort a run (see [Report.Err]).
//
// # Findings
//
//	code               severity  subject   meaning
//	COVERAGE           warning   node      node has no proportion record
//	COVERAGE           error     region    region has no record, its demand is dropped
//	COVERAGE           warning   region    region sum below 1-ε (only with ExpectFullCoverage)
//	OVERLAP_INVARIANT  error     region    region sum above 1+ε
//	RENDER_ERROR       warning   view      a diagnostic view failed to render
//
// # Diagnostic rendering
//
// When Options.Renderer is set, Check hands it two views: "cells" (cells
// with their nodes) and "overlay" (regions with the intersection pieces).
// Flagged node and region IDs travel with the views so renderers can
// highlight them.
package plausibility

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"

	verrors "github.com/meazyme/v-allo/pkg/errors"
	"github.com/meazyme/v-allo/pkg/spatial"
)

// DefaultTolerance is the default ε for per-region sum checks.
const DefaultTolerance = 1e-6

// Severity grades a finding.
type Severity string

const (
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// Subject names what a finding is about.
type Subject string

const (
	SubjectNode   Subject = "node"
	SubjectRegion Subject = "region"
	SubjectView   Subject = "view"
)

// Finding is a single plausibility problem.
type Finding struct {
	Code     verrors.Code `json:"code"`
	Severity Severity     `json:"severity"`
	Subject  Subject      `json:"subject"`
	ID       string       `json:"id"`
	Value    float64      `json:"value,omitempty"` // region sum or shortfall, when relevant
	Message  string       `json:"message"`
}

// Input bundles everything the checker looks at.
type Input struct {
	Nodes   []spatial.Node
	Regions []spatial.Region
	Cells   []spatial.Cell
	Records []spatial.Proportion
	Pieces  []spatial.Piece
}

// Options configures Check.
type Options struct {
	// Tolerance is ε for sum checks. Zero means DefaultTolerance.
	Tolerance float64
	// ExpectFullCoverage reports regions whose sum falls short of 1-ε.
	ExpectFullCoverage bool
	// Renderer, if set, receives the diagnostic views.
	Renderer Renderer
}

// Report is the result of Check.
type Report struct {
	Findings   []Finding          `json:"findings"`
	RegionSums map[string]float64 `json:"region_sums"`
	Tolerance  float64            `json:"tolerance"`
	// Rendered lists the views the renderer accepted.
	Rendered []string `json:"rendered,omitempty"`
}

// Check runs all checks over in.
func Check(in Input, opts Options) *Report {
	eps := opts.Tolerance
	if eps == 0 {
		eps = DefaultTolerance
	}

	values := make(map[string][]float64)
	nodesSeen := make(map[string]bool)
	for _, r := range in.Records {
		values[r.RegionID] = append(values[r.RegionID], r.Value)
		nodesSeen[r.NodeID] = true
	}

	rep := &Report{RegionSums: make(map[string]float64, len(in.Regions)), Tolerance: eps}
	flaggedNodes := make(map[string]bool)
	flaggedRegions := make(map[string]bool)

	for _, n := range in.Nodes {
		if nodesSeen[n.ID] {
			continue
		}
		flaggedNodes[n.ID] = true
		rep.add(Finding{
			Code:     verrors.ErrCodeCoverage,
			Severity: SeverityWarning,
			Subject:  SubjectNode,
			ID:       n.ID,
			Message:  fmt.Sprintf("node %q covers no region", n.ID),
		})
	}

	for _, r := range in.Regions {
		vs, ok := values[r.ID]
		if !ok {
			rep.RegionSums[r.ID] = 0
			flaggedRegions[r.ID] = true
			rep.add(Finding{
				Code:     verrors.ErrCodeCoverage,
				Severity: SeverityError,
				Subject:  SubjectRegion,
				ID:       r.ID,
				Message:  fmt.Sprintf("region %q is not covered by any cell; its demand is dropped", r.ID),
			})
			continue
		}

		sum := floats.Sum(vs)
		rep.RegionSums[r.ID] = sum
		switch {
		case sum > 1+eps:
			flaggedRegions[r.ID] = true
			rep.add(Finding{
				Code:     verrors.ErrCodeOverlapInvariant,
				Severity: SeverityError,
				Subject:  SubjectRegion,
				ID:       r.ID,
				Value:    sum,
				Message:  fmt.Sprintf("region %q proportions sum to %.9g, above 1", r.ID, sum),
			})
		case opts.ExpectFullCoverage && sum < 1-eps:
			flaggedRegions[r.ID] = true
			rep.add(Finding{
				Code:     verrors.ErrCodeCoverage,
				Severity: SeverityWarning,
				Subject:  SubjectRegion,
				ID:       r.ID,
				Value:    1 - sum,
				Message:  fmt.Sprintf("region %q is only %.4f%% covered", r.ID, 100*sum),
			})
		}
	}

	if opts.Renderer != nil {
		views := []View{
			{
				Name:         ViewCells,
				Title:        "Polygons and corresponding nodes",
				Cells:        in.Cells,
				Nodes:        in.Nodes,
				FlaggedNodes: flaggedNodes,
			},
			{
				Name:           ViewOverlay,
				Title:          "Regions and cell intersections",
				Regions:        in.Regions,
				Pieces:         in.Pieces,
				Nodes:          in.Nodes,
				FlaggedRegions: flaggedRegions,
			},
		}
		for _, v := range views {
			if err := opts.Renderer.Render(v); err != nil {
				rep.add(Finding{
					Code:     verrors.ErrCodeRender,
					Severity: SeverityWarning,
					Subject:  SubjectView,
					ID:       v.Name,
					Message:  fmt.Sprintf("render %s view: %v", v.Name, err),
				})
				continue
			}
			rep.Rendered = append(rep.Rendered, v.Name)
		}
	}

	return rep
}

func (r *Report) add(f Finding) {
	r.Findings = append(r.Findings, f)
}

// HasErrors reports whether any finding has error severity.
func (r *Report) HasErrors() bool {
	for _, f := range r.Findings {
		if f.Severity == SeverityError {
			return true
		}
	}
	return false
}

// Count returns the number of findings with the given severity.
func (r *Report) Count(s Severity) int {
	n := 0
	for _, f := range r.Findings {
		if f.Severity == s {
			n++
		}
	}
	return n
}

// Err joins all error-severity findings into one error, or returns nil.
// Each member is a *errors.Error carrying the finding's code.
func (r *Report) Err() error {
	var errs []error
	for _, f := range r.Findings {
		if f.Severity == SeverityError {
			errs = append(errs, verrors.New(f.Code, "%s", f.Message))
		}
	}
	return errors.Join(errs...)
}

// Uncovered returns the IDs of regions that received no record, sorted.
func (r *Report) Uncovered() []string {
	var ids []string
	for _, f := range r.Findings {
		if f.Code == verrors.ErrCodeCoverage && f.Subject == SubjectRegion && f.Severity == SeverityError {
			ids = append(ids, f.ID)
		}
	}
	sort.Strings(ids)
	return ids
}

// MaxDeviation returns the largest |sum-1| over covered regions.
func (r *Report) MaxDeviation() float64 {
	m := 0.0
	for _, s := range r.RegionSums {
		if s == 0 {
			continue
		}
		m = math.Max(m, math.Abs(s-1))
	}
	return m
}

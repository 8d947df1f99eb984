// Package allocate distributes regional demand onto nodes using proportion
// records.
//
// In the plain case a node receives, from every region its cell touches,
// proportion × demand. With secondary weights (population, floor space,
// capacity...) the area share of each node is re-weighted inside the region
// and blended with the plain area share:
//
//	share(n, r) = (1-α)·p(n,r) + α·c(r)·p(n,r)·w(n) / Σ_k p(k,r)·w(k)
//	c(r)        = Σ_k p(k,r)
//
// Blending keeps the region total at c(r), so demand is conserved whatever
// α is. A region where Σ p·w is zero falls back to plain area shares.
package allocate

import (
	"sort"

	"gonum.org/v1/gonum/mat"

	"github.com/meazyme/v-allo/pkg/errors"
	"github.com/meazyme/v-allo/pkg/spatial"
)

// MissingDemandPolicy decides what happens to records whose region has no
// demand value.
type MissingDemandPolicy int

const (
	// MissingDemandZero treats missing demand as zero and lists the region
	// in Result.MissingDemand.
	MissingDemandZero MissingDemandPolicy = iota
	// MissingDemandAbort fails with ErrCodeMissingDemand.
	MissingDemandAbort
)

// String returns the policy name used in config files and flags.
func (p MissingDemandPolicy) String() string {
	switch p {
	case MissingDemandAbort:
		return "abort"
	default:
		return "zero"
	}
}

// ParseMissingDemandPolicy parses "zero" or "abort".
func ParseMissingDemandPolicy(s string) (MissingDemandPolicy, error) {
	switch s {
	case "", "zero":
		return MissingDemandZero, nil
	case "abort":
		return MissingDemandAbort, nil
	}
	return 0, errors.New(errors.ErrCodeInvalidInput, "unknown missing-demand policy %q (want zero or abort)", s)
}

// Options configures Allocate.
type Options struct {
	// Weights are optional per-node secondary weights. Nodes absent from the
	// map have weight zero. A nil map disables weighting.
	Weights map[string]float64
	// Blend is α, the weight given to the re-weighted share. It only matters
	// when Weights is set. Nil means 1.
	Blend *float64
	// MissingDemand selects the missing-demand policy.
	MissingDemand MissingDemandPolicy
	// Nodes lists every node of the run. Nodes without records get a zero
	// entry in Result.Values.
	Nodes []string
}

// Contribution is the part of a node's value coming from one region.
type Contribution struct {
	NodeID   string  `json:"node_id"`
	RegionID string  `json:"region_id"`
	Share    float64 `json:"share"`
	Value    float64 `json:"value"`
}

// Result is the output of Allocate.
type Result struct {
	// Values maps node ID to allocated demand.
	Values map[string]float64 `json:"values"`
	// Contributions lists every non-zero (node, region) term, sorted by
	// region then node.
	Contributions []Contribution `json:"contributions"`
	// Total is the sum of Values.
	Total float64 `json:"total"`
	// MissingDemand lists regions referenced by records but absent from
	// demand, sorted. Only populated under MissingDemandZero.
	MissingDemand []string `json:"missing_demand,omitempty"`
}

// Nodes returns the node IDs in Values, sorted.
func (r *Result) Nodes() []string {
	ids := make([]string, 0, len(r.Values))
	for id := range r.Values {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Allocate computes per-node values from proportion records and regional
// demand.
//
// Every node that appears in records or opts.Nodes gets an entry in
// Result.Values, even when its value is zero. Negative demand or weights and α outside [0, 1] are
// ErrCodeInvalidInput errors.
func Allocate(records []spatial.Proportion, demand map[string]float64, opts Options) (*Result, error) {
	alpha := 1.0
	if opts.Blend != nil {
		alpha = *opts.Blend
	}
	if err := errors.ValidateFraction("blend", alpha); err != nil {
		return nil, err
	}
	for id, d := range demand {
		if err := errors.ValidateQuantity("demand", id, d); err != nil {
			return nil, err
		}
	}
	for id, w := range opts.Weights {
		if err := errors.ValidateQuantity("weight", id, w); err != nil {
			return nil, err
		}
	}

	// Index nodes and regions in first-seen order.
	nodeIdx := make(map[string]int)
	regionIdx := make(map[string]int)
	var nodes, regions []string
	for _, r := range records {
		if r.Value < 0 {
			return nil, errors.New(errors.ErrCodeInvalidInput, "negative proportion for (%s, %s)", r.NodeID, r.RegionID)
		}
		if _, ok := nodeIdx[r.NodeID]; !ok {
			nodeIdx[r.NodeID] = len(nodes)
			nodes = append(nodes, r.NodeID)
		}
		if _, ok := regionIdx[r.RegionID]; !ok {
			regionIdx[r.RegionID] = len(regions)
			regions = append(regions, r.RegionID)
		}
	}

	res := &Result{Values: make(map[string]float64, len(nodes)+len(opts.Nodes))}
	for _, id := range opts.Nodes {
		res.Values[id] = 0
	}
	if len(records) == 0 {
		return res, nil
	}

	d := mat.NewVecDense(len(regions), nil)
	for j, id := range regions {
		v, ok := demand[id]
		if !ok {
			if opts.MissingDemand == MissingDemandAbort {
				return nil, errors.New(errors.ErrCodeMissingDemand, "no demand for region %q", id)
			}
			res.MissingDemand = append(res.MissingDemand, id)
			continue
		}
		d.SetVec(j, v)
	}
	sort.Strings(res.MissingDemand)

	shares := shareMatrix(records, nodes, nodeIdx, regionIdx, len(regions), opts.Weights, alpha)

	var values mat.VecDense
	values.MulVec(shares, d)

	for i, id := range nodes {
		v := values.AtVec(i)
		res.Values[id] = v
		res.Total += v
	}

	seen := make(map[[2]int]bool, len(records))
	for _, r := range records {
		i, j := nodeIdx[r.NodeID], regionIdx[r.RegionID]
		if seen[[2]int{i, j}] {
			continue
		}
		seen[[2]int{i, j}] = true
		s := shares.At(i, j)
		v := s * d.AtVec(j)
		if v == 0 {
			continue
		}
		res.Contributions = append(res.Contributions, Contribution{
			NodeID:   r.NodeID,
			RegionID: r.RegionID,
			Share:    s,
			Value:    v,
		})
	}
	sort.Slice(res.Contributions, func(a, b int) bool {
		ca, cb := res.Contributions[a], res.Contributions[b]
		if ca.RegionID != cb.RegionID {
			return ca.RegionID < cb.RegionID
		}
		return ca.NodeID < cb.NodeID
	})

	return res, nil
}

// shareMatrix builds the node × region share matrix. Records with the same
// (node, region) pair are summed.
func shareMatrix(records []spatial.Proportion, nodes []string, nodeIdx, regionIdx map[string]int, m int, weights map[string]float64, alpha float64) *mat.Dense {
	n := len(nodes)
	p := mat.NewDense(n, m, nil)
	for _, r := range records {
		i, j := nodeIdx[r.NodeID], regionIdx[r.RegionID]
		p.Set(i, j, p.At(i, j)+r.Value)
	}
	if weights == nil || alpha == 0 {
		return p
	}

	w := make([]float64, n)
	for i, id := range nodes {
		w[i] = weights[id]
	}

	out := mat.NewDense(n, m, nil)
	for j := 0; j < m; j++ {
		var cover, weighted float64
		for i := 0; i < n; i++ {
			cover += p.At(i, j)
			weighted += p.At(i, j) * w[i]
		}
		for i := 0; i < n; i++ {
			pij := p.At(i, j)
			if weighted == 0 {
				out.Set(i, j, pij)
				continue
			}
			out.Set(i, j, (1-alpha)*pij+alpha*cover*pij*w[i]/weighted)
		}
	}
	return out
}

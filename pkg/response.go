package sigproc

import (
	"fmt"
	"math"
	"slices"
	"sort"

	"golang.org/x/exp/maps"
)

// PathResponse is the current induced on the central wire by a charge
// drifting at PitchPos. Samples are in canonical charge/time units.
type PathResponse struct {
	PitchPos float64
	WirePos  float64
	Current  []float64
}

type PlaneResponse struct {
	PlaneID  int
	Location float64
	Pitch    float64
	Paths    []PathResponse
}

// FieldResponse is one complete simulation result. Construct it with
// NewFieldResponse so the invariants hold; consumers treat it as read-only.
type FieldResponse struct {
	Planes []PlaneResponse
	Axis   [3]float64
	Origin float64
	TStart float64
	Period float64
	Speed  float64
}

// regionEdgeTolerance decides when pitchpos/pitch sits exactly on a half
// integer, i.e. on the boundary between two wire regions.
const regionEdgeTolerance = 1e-9

// RegionOf returns the wire region index of a pitch position. Positions
// exactly half way between two wires belong to the wire nearer zero, so
// the outermost simulated path of a region never opens a new region.
func RegionOf(pitchpos, pitch float64) int {
	r := pitchpos / pitch
	abs := math.Abs(r)
	if math.Abs(abs-math.Floor(abs)-0.5) < regionEdgeTolerance {
		return int(math.Trunc(r))
	}
	return int(math.Round(r))
}

// NewFieldResponse validates and copies the given planes. Planes are sorted
// by plane ID and the paths of each plane by pitch position.
func NewFieldResponse(planes []PlaneResponse, axis [3]float64, origin, tstart, period, speed float64) (*FieldResponse, error) {
	if !(period > 0) {
		return nil, &DataError{Plane: -1, Reason: fmt.Sprintf("period must be positive, got %g", period)}
	}
	if !(speed > 0) {
		return nil, &DataError{Plane: -1, Reason: fmt.Sprintf("speed must be positive, got %g", speed)}
	}
	if len(planes) == 0 {
		return nil, &DataError{Plane: -1, Reason: "no planes"}
	}

	fr := &FieldResponse{
		Planes: make([]PlaneResponse, len(planes)),
		Axis:   axis,
		Origin: origin,
		TStart: tstart,
		Period: period,
		Speed:  speed,
	}

	nsamples := -1
	seen := make(map[int]bool, len(planes))
	for i, pr := range planes {
		if pr.PlaneID < 0 {
			return nil, &DataError{Plane: pr.PlaneID, Region: noRegion, Reason: "negative plane id"}
		}
		if seen[pr.PlaneID] {
			return nil, &DataError{Plane: pr.PlaneID, Region: noRegion, Reason: "duplicate plane id"}
		}
		seen[pr.PlaneID] = true
		if !(pr.Pitch > 0) {
			return nil, &DataError{Plane: pr.PlaneID, Region: noRegion, Reason: fmt.Sprintf("pitch must be positive, got %g", pr.Pitch)}
		}

		paths := make([]PathResponse, len(pr.Paths))
		for j, path := range pr.Paths {
			if len(path.Current) == 0 {
				return nil, &DataError{Plane: pr.PlaneID, Region: RegionOf(path.PitchPos, pr.Pitch), Reason: "path has no samples"}
			}
			if nsamples < 0 {
				nsamples = len(path.Current)
			}
			if len(path.Current) != nsamples {
				return nil, &DataError{Plane: pr.PlaneID, Region: RegionOf(path.PitchPos, pr.Pitch),
					Reason: fmt.Sprintf("path at pitchpos %g has %d samples, expected %d", path.PitchPos, len(path.Current), nsamples)}
			}
			current := make([]float64, len(path.Current))
			copy(current, path.Current)
			paths[j] = PathResponse{PitchPos: path.PitchPos, WirePos: path.WirePos, Current: current}
		}
		sort.SliceStable(paths, func(a, b int) bool { return paths[a].PitchPos < paths[b].PitchPos })

		fr.Planes[i] = PlaneResponse{
			PlaneID:  pr.PlaneID,
			Location: pr.Location,
			Pitch:    pr.Pitch,
			Paths:    paths,
		}
	}
	sort.SliceStable(fr.Planes, func(a, b int) bool { return fr.Planes[a].PlaneID < fr.Planes[b].PlaneID })
	return fr, nil
}

// NSamples is the common number of samples of every path, 0 if the
// response holds no paths.
func (fr *FieldResponse) NSamples() int {
	for _, pr := range fr.Planes {
		if len(pr.Paths) > 0 {
			return len(pr.Paths[0].Current)
		}
	}
	return 0
}

// Plane returns the plane with the given ID.
func (fr *FieldResponse) Plane(planeID int) (PlaneResponse, bool) {
	for _, pr := range fr.Planes {
		if pr.PlaneID == planeID {
			return pr, true
		}
	}
	return PlaneResponse{}, false
}

// Regions returns the distinct wire regions of the plane's paths in
// increasing order.
func (pr PlaneResponse) Regions() []int {
	regions := make(map[int]struct{})
	for _, path := range pr.Paths {
		regions[RegionOf(path.PitchPos, pr.Pitch)] = struct{}{}
	}
	keys := maps.Keys(regions)
	slices.Sort(keys)
	return keys
}

package sigproc

import (
	"fmt"
	"math"
	"sort"
)

// positionKey quantizes a pitch position to a millionth of the pitch so that
// a path and its mirror image can be matched exactly.
func positionKey(pitchpos, pitch float64) int64 {
	return int64(math.Round(pitchpos / pitch * 1e6))
}

// CompleteSymmetry returns a copy of the plane in which every path at +p has
// a partner at -p. Missing partners are synthesized with an identical
// current. When both partners are provided they are kept as is, and a
// ConsistencyWarning is returned for each pair whose relative difference
// exceeds tolerance.
func CompleteSymmetry(pr PlaneResponse, tolerance float64) (PlaneResponse, []ConsistencyWarning) {
	index := make(map[int64]int, len(pr.Paths))
	for i, path := range pr.Paths {
		index[positionKey(path.PitchPos, pr.Pitch)] = i
	}

	paths := make([]PathResponse, 0, 2*len(pr.Paths))
	paths = append(paths, pr.Paths...)

	var warnings []ConsistencyWarning
	for _, path := range pr.Paths {
		key := positionKey(path.PitchPos, pr.Pitch)
		if key == 0 {
			continue
		}
		j, ok := index[-key]
		if !ok {
			paths = append(paths, PathResponse{
				PitchPos: -path.PitchPos,
				WirePos:  -path.WirePos,
				Current:  path.Current,
			})
			continue
		}
		if key < 0 {
			continue
		}
		diff := relativeDifference(path.Current, pr.Paths[j].Current)
		if diff > tolerance {
			w := ConsistencyWarning{
				Plane:     pr.PlaneID,
				PitchPos:  path.PitchPos,
				MaxDiff:   diff,
				Tolerance: tolerance,
			}
			warnings = append(warnings, w)
			logger.Warn(fmt.Sprintf("flip symmetry mismatch: %s", w), "symmetry")
		}
	}

	sort.SliceStable(paths, func(a, b int) bool { return paths[a].PitchPos < paths[b].PitchPos })
	return PlaneResponse{
		PlaneID:  pr.PlaneID,
		Location: pr.Location,
		Pitch:    pr.Pitch,
		Paths:    paths,
	}, warnings
}

// relativeDifference is the largest absolute sample difference divided by
// the largest absolute sample of either trace.
func relativeDifference(a, b []float64) float64 {
	var maxDiff, scale float64
	for i := range a {
		maxDiff = math.Max(maxDiff, math.Abs(a[i]-b[i]))
		scale = math.Max(scale, math.Max(math.Abs(a[i]), math.Abs(b[i])))
	}
	if scale == 0 {
		return 0
	}
	return maxDiff / scale
}

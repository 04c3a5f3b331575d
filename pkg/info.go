package sigproc

import (
	"fmt"
	"strings"
)

// ResponseInfo summarizes a field response: a header line with the time
// and drift parameters, then one indented line per plane.
func ResponseInfo(fr *FieldResponse) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "origin:%.2f cm, period:%.2f us, tstart:%.2f us, speed:%.2f mm/us, axis:(%.2f,%.2f,%.2f)\n",
		fr.Origin/Centimeter, fr.Period/Microsecond, fr.TStart/Microsecond, fr.Speed/(Millimeter/Microsecond),
		fr.Axis[0], fr.Axis[1], fr.Axis[2])
	for _, pr := range fr.Planes {
		fmt.Fprintf(&sb, "\tplane:%d, location:%.4fmm, pitch:%.4fmm\n", pr.PlaneID, pr.Location/Millimeter, pr.Pitch/Millimeter)
	}
	return sb.String()
}

// ZeroWires returns a copy of fr in which the current of every path more
// than keep wires away from the central one is zeroed. The wire of a path
// is its pitch position divided by the pitch, truncated toward zero.
func ZeroWires(fr *FieldResponse, keep int) *FieldResponse {
	out := *fr
	out.Planes = make([]PlaneResponse, len(fr.Planes))
	for i, pr := range fr.Planes {
		paths := make([]PathResponse, len(pr.Paths))
		zeroed := 0
		for j, path := range pr.Paths {
			current := make([]float64, len(path.Current))
			wire := int(path.PitchPos / pr.Pitch)
			if wire <= keep && wire >= -keep {
				copy(current, path.Current)
			} else {
				zeroed++
			}
			paths[j] = PathResponse{PitchPos: path.PitchPos, WirePos: path.WirePos, Current: current}
		}
		if configuration.Verbosity > 1 {
			message := fmt.Sprintf("Plane %d: kept %d paths, zeroed %d", pr.PlaneID, len(paths)-zeroed, zeroed)
			logger.Info(message, "frzero")
		}
		out.Planes[i] = PlaneResponse{PlaneID: pr.PlaneID, Location: pr.Location, Pitch: pr.Pitch, Paths: paths}
	}
	return &out
}

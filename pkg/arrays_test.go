package sigproc

import (
	"errors"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// threeRegionPlane has paths every half millimeter over the non-negative
// half of wire regions -1, 0 and 1 of a 5 mm pitch plane.
func threeRegionPlane(planeID int, value float64) PlaneResponse {
	var pitchposes []float64
	for _, region := range []float64{-1, 0, 1} {
		for offset := 0.0; offset <= 2.5; offset += 0.5 {
			pitchposes = append(pitchposes, region*5+offset)
		}
	}
	return PlaneResponse{
		PlaneID:  planeID,
		Location: float64(planeID) * 3 * Millimeter,
		Pitch:    5 * Millimeter,
		Paths:    constantPaths(pitchposes, 4, value),
	}
}

func TestFieldResponseToArrays(t *testing.T) {
	fr := mustFieldResponse(t, threeRegionPlane(0, 1), threeRegionPlane(1, 1), threeRegionPlane(2, 1))

	ra, err := FieldResponseToArrays(fr, ArrayOptions{SymmetryTolerance: 0.01})
	require.NoError(t, err)
	require.Len(t, ra.Planes, 3)
	assert.False(t, ra.Convolved())
	assert.Nil(t, ra.EResp)
	assert.Nil(t, ra.ESpec)
	assert.Empty(t, ra.Warnings)

	for _, pa := range ra.Planes {
		assert.Equal(t, []int{-1, 0, 1}, pa.Regions)
		require.Len(t, pa.Response, 30)
		for _, row := range pa.Response {
			assert.Equal(t, []float64{1, 1, 1, 1}, row)
		}
		require.Len(t, pa.BinCenters, 30)
		for i := 0; i < 30; i += PixelsPerWire {
			assert.InDelta(t, -2.25, pa.BinCenters[i], 1e-12)
			assert.InDelta(t, 2.25, pa.BinCenters[i+PixelsPerWire-1], 1e-12)
		}
	}

	assert.Equal(t, []float64{5, 5, 5}, ra.Pitches())
	assert.Equal(t, []float64{0, 3, 6}, ra.Locations())
	assert.Equal(t, fr.Origin, ra.Origin)
	assert.Equal(t, fr.Period, ra.Period)
	assert.Equal(t, fr.Speed, ra.Speed)
	assert.Equal(t, fr.TStart, ra.TStart)
}

func TestFieldResponseToArraysBinAverages(t *testing.T) {
	// current equal to the pitch position, so each row is the mean of the
	// two paths bounding it, i.e. the bin center
	var paths []PathResponse
	for i := 0; i <= 5; i++ {
		p := 0.5 * float64(i)
		paths = append(paths, PathResponse{PitchPos: p, Current: []float64{p, 2 * p}})
	}
	fr := mustFieldResponse(t, PlaneResponse{PlaneID: 0, Pitch: 5, Paths: paths})

	ra, err := FieldResponseToArrays(fr, ArrayOptions{})
	require.NoError(t, err)
	pa := ra.Planes[0]
	require.Len(t, pa.Response, 10)
	for b := 5; b < 10; b++ {
		center := pa.BinCenters[b]
		assert.InDelta(t, center, pa.Response[b][0], 1e-12, "bin %d", b)
		assert.InDelta(t, 2*center, pa.Response[b][1], 1e-12, "bin %d", b)
	}
	// mirrored bins carry the currents of their positive partners
	for b := 0; b < 5; b++ {
		assert.Equal(t, pa.Response[9-b], pa.Response[b], "bin %d", b)
	}
}

func TestFieldResponseToArraysSinglePathPerBin(t *testing.T) {
	var paths []PathResponse
	for i := 0; i < 5; i++ {
		p := 0.5 + float64(i)
		paths = append(paths, PathResponse{PitchPos: p, Current: []float64{float64(i), 0, -float64(i)}})
	}
	fr := mustFieldResponse(t, PlaneResponse{PlaneID: 0, Pitch: 10, Paths: paths})

	ra, err := FieldResponseToArrays(fr, ArrayOptions{})
	require.NoError(t, err)
	pa := ra.Planes[0]
	require.Len(t, pa.Response, 10)
	for i := 0; i < 5; i++ {
		assert.Equal(t, []float64{float64(i), 0, -float64(i)}, pa.Response[5+i])
		assert.InDelta(t, 0.5+float64(i), pa.BinCenters[5+i], 1e-12)
	}
}

func TestFieldResponseToArraysEmptyBin(t *testing.T) {
	fr := mustFieldResponse(t, PlaneResponse{PlaneID: 1, Pitch: 5, Paths: constantPaths([]float64{0, 2.5}, 3, 1)})

	_, err := FieldResponseToArrays(fr, ArrayOptions{})
	var derr *DataError
	require.True(t, errors.As(err, &derr), "got %v", err)
	assert.Equal(t, 1, derr.Plane)
	assert.Equal(t, 0, derr.Region)
}

func TestFieldResponseToArraysConvolved(t *testing.T) {
	fr := mustFieldResponse(t, threeRegionPlane(0, 1), threeRegionPlane(1, -0.5))
	opts := ArrayOptions{
		Gain:     14 * Millivolt / Femtocoulomb,
		Shaping:  0.2 * Microsecond,
		ElecType: ColdElectronics,
	}

	plain, err := FieldResponseToArrays(fr, ArrayOptions{})
	require.NoError(t, err)
	ra, err := FieldResponseToArrays(fr, opts)
	require.NoError(t, err)

	require.True(t, ra.Convolved())
	assert.Len(t, ra.EResp, fr.NSamples())
	assert.Len(t, ra.ESpec, fr.NSamples())
	assert.Equal(t, opts.Gain, ra.Gain)
	assert.Equal(t, opts.Shaping, ra.Shaping)

	eresp, err := Impulse(opts.Gain, opts.Shaping, opts.ElecType, fr.Period, fr.NSamples())
	require.NoError(t, err)
	assert.Equal(t, eresp, ra.EResp)

	convolver := NewConvolver(eresp, fr.Period)
	for p := range ra.Planes {
		require.Len(t, ra.Planes[p].Response, len(plain.Planes[p].Response))
		for i, row := range plain.Planes[p].Response {
			want, err := convolver.Convolve(row)
			require.NoError(t, err)
			for j := range want {
				assert.InDelta(t, want[j], ra.Planes[p].Response[i][j], 1e-9*abs(opts.Gain))
			}
		}
	}
}

func TestFieldResponseToArraysNeedsGainAndShaping(t *testing.T) {
	fr := mustFieldResponse(t, threeRegionPlane(0, 1))

	for _, opts := range []ArrayOptions{
		{Gain: 14 * Millivolt / Femtocoulomb},
		{Shaping: 2 * Microsecond},
	} {
		ra, err := FieldResponseToArrays(fr, opts)
		require.NoError(t, err)
		assert.False(t, ra.Convolved())
		assert.Equal(t, []float64{1, 1, 1, 1}, ra.Planes[0].Response[0])
	}

	_, err := FieldResponseToArrays(fr, ArrayOptions{Gain: 1, Shaping: -1})
	var derr *DomainError
	assert.ErrorAs(t, err, &derr)
}

func TestFieldResponseToArraysDeterministic(t *testing.T) {
	fr := mustFieldResponse(t, threeRegionPlane(0, 1), threeRegionPlane(1, 2))
	opts := ArrayOptions{Gain: 1, Shaping: 1 * Microsecond, ElecType: WarmElectronics}

	a, err := FieldResponseToArrays(fr, opts)
	require.NoError(t, err)
	b, err := FieldResponseToArrays(fr, opts)
	require.NoError(t, err)
	if diff := cmp.Diff(a, b); diff != "" {
		t.Errorf("arrays differ between runs (-first +second):\n%s", diff)
	}
}

func TestFieldResponseToArraysDoesNotAlias(t *testing.T) {
	fr := mustFieldResponse(t, threeRegionPlane(0, 1))

	ra, err := FieldResponseToArrays(fr, ArrayOptions{})
	require.NoError(t, err)
	ra.Planes[0].Response[0][0] = 42
	ra.Planes[0].Response[15][0] = 42
	for _, path := range fr.Planes[0].Paths {
		assert.Equal(t, 1.0, path.Current[0])
	}
}

func TestFieldResponseToArraysSymmetryWarning(t *testing.T) {
	paths := constantPaths([]float64{-2.5, -2, -1.5, -1, -0.5, 0, 0.5, 1, 1.5, 2, 2.5}, 2, 1)
	paths[9].Current = []float64{1, 2}
	fr := mustFieldResponse(t, PlaneResponse{PlaneID: 0, Pitch: 5, Paths: paths})

	ra, err := FieldResponseToArrays(fr, ArrayOptions{SymmetryTolerance: 0.01})
	require.NoError(t, err)
	require.Len(t, ra.Warnings, 1)
	assert.Equal(t, 2.0, ra.Warnings[0].PitchPos)
}

// positiveHalfPlane has paths every half millimeter over the non-negative
// offsets of wire regions 0, 1 and 2 of a 5 mm pitch plane.
func positiveHalfPlane(planeID int) PlaneResponse {
	var pitchposes []float64
	for _, region := range []float64{0, 1, 2} {
		for offset := 0.0; offset <= 2.5; offset += 0.5 {
			pitchposes = append(pitchposes, region*5+offset)
		}
	}
	return PlaneResponse{PlaneID: planeID, Pitch: 5 * Millimeter, Paths: constantPaths(pitchposes, 4, 1)}
}

func TestFieldResponseToArraysPositiveHalfRegions(t *testing.T) {
	// Mirroring regions 1 and 2 only fills the negative offsets of -1 and
	// -2, so the negative halves of +-1 and +-2 stay empty.
	fr := mustFieldResponse(t, positiveHalfPlane(0), positiveHalfPlane(1))

	_, err := FieldResponseToArrays(fr, ArrayOptions{SymmetryTolerance: 0.01})
	var derr *DataError
	require.True(t, errors.As(err, &derr), "got %v", err)
	assert.Equal(t, 0, derr.Plane)
	assert.Equal(t, -2, derr.Region)
	assert.Contains(t, derr.Reason, "no paths in impact bin 6")
}

func TestFieldResponseToArraysFlipCompletion(t *testing.T) {
	var paths []PathResponse
	for i := 0; i <= 25; i++ {
		p := 0.5 * float64(i)
		paths = append(paths, PathResponse{PitchPos: p, Current: []float64{p, -p * p, 1 / (1 + p), 0.25}})
	}
	fr := mustFieldResponse(t, PlaneResponse{PlaneID: 2, Pitch: 5, Paths: paths})

	ra, err := FieldResponseToArrays(fr, ArrayOptions{SymmetryTolerance: 0.01})
	require.NoError(t, err)
	assert.Empty(t, ra.Warnings)

	pa := ra.Planes[0]
	require.Equal(t, []int{-2, -1, 0, 1, 2}, pa.Regions)
	require.Len(t, pa.Response, 50)
	require.Len(t, pa.BinCenters, 50)

	row := func(region, bin int) int { return (region+2)*PixelsPerWire + bin }
	for _, region := range []int{1, 2} {
		for bin := 0; bin < PixelsPerWire; bin++ {
			mirror := PixelsPerWire - 1 - bin
			assert.Equal(t, pa.Response[row(region, mirror)], pa.Response[row(-region, bin)], "region %d bin %d", -region, bin)
			assert.InDelta(t, -pa.BinCenters[row(region, mirror)], pa.BinCenters[row(-region, bin)], 1e-12)
		}
	}
	for bin := 0; bin < PixelsPerWire/2; bin++ {
		assert.Equal(t, pa.Response[row(0, PixelsPerWire-1-bin)], pa.Response[row(0, bin)], "region 0 bin %d", bin)
	}
}

func TestFieldResponseToArraysNonFiniteAfterConvolution(t *testing.T) {
	pr := threeRegionPlane(1, 1)
	for i := range pr.Paths {
		if pr.Paths[i].PitchPos == 6 {
			pr.Paths[i].Current[2] = math.Inf(1)
		}
	}
	fr := mustFieldResponse(t, threeRegionPlane(0, 1), pr)
	opts := ArrayOptions{Gain: 14 * Millivolt / Femtocoulomb, Shaping: 2 * Microsecond, ElecType: ColdElectronics}

	_, err := FieldResponseToArrays(fr, opts)
	var nerr *NumericError
	require.True(t, errors.As(err, &nerr), "got %v", err)
	assert.Equal(t, 1, nerr.Plane)
	// the mirror of pitch position 6 lands in bins 2 and 3 of region -1
	assert.Equal(t, 2, nerr.Row)
	assert.Contains(t, nerr.Reason, "non-finite")
}

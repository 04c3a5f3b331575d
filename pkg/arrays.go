package sigproc

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
)

// PixelsPerWire is the number of impact bins per wire region. Consumers
// index the response arrays with it (resp[3::10] is impact bin 3 of every
// wire), so it is part of the output format.
const PixelsPerWire = 10

// pixelEdgeTolerance, relative to the pitch, lets paths lying on a pixel
// edge count for both neighbouring pixels.
const pixelEdgeTolerance = 1e-6

type ArrayOptions struct {
	// Gain and Shaping in canonical units. The electronics convolution
	// is applied only when both are non-zero.
	Gain     float64
	Shaping  float64
	ElecType ElecType
	// SymmetryTolerance is the relative difference above which two
	// provided mirror paths raise a ConsistencyWarning.
	SymmetryTolerance float64
	Verbosity         int
}

// PlaneArray holds the pixelated response of one plane. Row
// PixelsPerWire*i+b is impact bin b of wire region Regions[i].
type PlaneArray struct {
	PlaneID    int
	Location   float64
	Pitch      float64
	Regions    []int
	Response   [][]float64
	BinCenters []float64
}

// ResponseArrays is the result of FieldResponseToArrays. It shares no
// memory with the FieldResponse it was built from.
type ResponseArrays struct {
	Planes   []PlaneArray
	Origin   float64
	TStart   float64
	Period   float64
	Speed    float64
	Gain     float64
	Shaping  float64
	ElecType ElecType
	// EResp and ESpec are nil unless the electronics convolution was
	// applied.
	EResp    []float64
	ESpec    []complex128
	Warnings []ConsistencyWarning
}

func (ra *ResponseArrays) Convolved() bool {
	return ra.EResp != nil
}

func (ra *ResponseArrays) Pitches() []float64 {
	pitches := make([]float64, len(ra.Planes))
	for i, pa := range ra.Planes {
		pitches[i] = pa.Pitch
	}
	return pitches
}

func (ra *ResponseArrays) Locations() []float64 {
	locations := make([]float64, len(ra.Planes))
	for i, pa := range ra.Planes {
		locations[i] = pa.Location
	}
	return locations
}

// FieldResponseToArrays pixelates every plane of fr into PixelsPerWire rows
// per wire region, completing the flip symmetry first, and optionally
// convolves each row with the electronics response.
func FieldResponseToArrays(fr *FieldResponse, opts ArrayOptions) (*ResponseArrays, error) {
	nsamples := fr.NSamples()
	result := &ResponseArrays{
		Planes:   make([]PlaneArray, 0, len(fr.Planes)),
		Origin:   fr.Origin,
		TStart:   fr.TStart,
		Period:   fr.Period,
		Speed:    fr.Speed,
		Gain:     opts.Gain,
		Shaping:  opts.Shaping,
		ElecType: opts.ElecType,
	}

	var convolver *Convolver
	if opts.Gain != 0 && opts.Shaping != 0 {
		eresp, err := Impulse(opts.Gain, opts.Shaping, opts.ElecType, fr.Period, nsamples)
		if err != nil {
			return nil, err
		}
		result.EResp = eresp
		result.ESpec = Spectrum(eresp)
		convolver = NewConvolver(eresp, fr.Period)
		if opts.Verbosity > 0 {
			message := fmt.Sprintf("Convolving with %v electronics: gain %g mV/fC, shaping %g us",
				opts.ElecType, opts.Gain/(Millivolt/Femtocoulomb), opts.Shaping/Microsecond)
			logger.Info(message, "arrays")
		}
	}

	for _, pr := range fr.Planes {
		if err := validatePlane(pr, nsamples); err != nil {
			return nil, err
		}
		full, warnings := CompleteSymmetry(pr, opts.SymmetryTolerance)
		result.Warnings = append(result.Warnings, warnings...)

		pa, err := pixelizePlane(full)
		if err != nil {
			return nil, err
		}
		if convolver != nil {
			if err := convolvePlane(&pa, convolver); err != nil {
				return nil, err
			}
		}
		if opts.Verbosity > 1 {
			message := fmt.Sprintf("Plane %d: %d paths (%d after symmetry), regions %d..%d, %d rows",
				pr.PlaneID, len(pr.Paths), len(full.Paths), pa.Regions[0], pa.Regions[len(pa.Regions)-1], len(pa.Response))
			logger.Info(message, "arrays")
		}
		result.Planes = append(result.Planes, pa)
	}
	return result, nil
}

func validatePlane(pr PlaneResponse, nsamples int) error {
	if len(pr.Paths) == 0 {
		return &DataError{Plane: pr.PlaneID, Region: noRegion, Reason: "plane has no paths, need at least one wire region"}
	}
	if !(pr.Pitch > 0) {
		return &DataError{Plane: pr.PlaneID, Region: noRegion, Reason: fmt.Sprintf("pitch must be positive, got %g", pr.Pitch)}
	}
	for _, path := range pr.Paths {
		if len(path.Current) != nsamples {
			return &DataError{Plane: pr.PlaneID, Region: RegionOf(path.PitchPos, pr.Pitch),
				Reason: fmt.Sprintf("path at pitchpos %g has %d samples, expected %d", path.PitchPos, len(path.Current), nsamples)}
		}
	}
	return nil
}

// pixelizePlane averages, for each pixel, every path whose pitch position
// lies within the pixel, edges included. Paths must be sorted by pitch
// position.
func pixelizePlane(pr PlaneResponse) (PlaneArray, error) {
	regions := pr.Regions()
	width := pr.Pitch / PixelsPerWire
	eps := pr.Pitch * pixelEdgeTolerance
	nsamples := len(pr.Paths[0].Current)

	pa := PlaneArray{
		PlaneID:    pr.PlaneID,
		Location:   pr.Location,
		Pitch:      pr.Pitch,
		Regions:    regions,
		Response:   make([][]float64, 0, PixelsPerWire*len(regions)),
		BinCenters: make([]float64, 0, PixelsPerWire*len(regions)),
	}

	for _, region := range regions {
		wire := float64(region) * pr.Pitch
		for bin := 0; bin < PixelsPerWire; bin++ {
			lo := -pr.Pitch/2 + float64(bin)*width
			hi := lo + width

			first := sort.Search(len(pr.Paths), func(i int) bool {
				return pr.Paths[i].PitchPos >= wire+lo-eps
			})
			row := make([]float64, nsamples)
			count := 0
			for i := first; i < len(pr.Paths) && pr.Paths[i].PitchPos <= wire+hi+eps; i++ {
				floats.Add(row, pr.Paths[i].Current)
				count++
			}
			if count == 0 {
				return PlaneArray{}, &DataError{Plane: pr.PlaneID, Region: region,
					Reason: fmt.Sprintf("no paths in impact bin %d [%g, %g), impact positions too coarse to pixelize", bin, lo, hi)}
			}
			if count > 1 {
				floats.Scale(1/float64(count), row)
			}
			pa.Response = append(pa.Response, row)
			pa.BinCenters = append(pa.BinCenters, lo+width/2)
		}
	}
	return pa, nil
}

func convolvePlane(pa *PlaneArray, convolver *Convolver) error {
	for i, row := range pa.Response {
		convolved, err := convolver.Convolve(row)
		if err != nil {
			return &NumericError{Plane: pa.PlaneID, Row: i, Reason: err.Error()}
		}
		for _, v := range convolved {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return &NumericError{Plane: pa.PlaneID, Row: i, Reason: "non-finite sample after convolution"}
			}
		}
		pa.Response[i] = convolved
	}
	return nil
}

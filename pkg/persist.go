package sigproc

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/dsnet/compress/bzip2"
	"github.com/klauspost/compress/gzip"
)

// On-disk schema. Every object is wrapped in a single-key object naming
// its type, as written by the Wire-Cell toolkit.

type frDocument struct {
	FieldResponse *frJSON `json:"FieldResponse"`
}

type frJSON struct {
	Planes []planeDocument `json:"planes"`
	Axis   []float64       `json:"axis"`
	Origin *float64        `json:"origin"`
	TStart *float64        `json:"tstart"`
	Period *float64        `json:"period"`
	Speed  *float64        `json:"speed"`
}

type planeDocument struct {
	PlaneResponse *planeJSON `json:"PlaneResponse"`
}

type planeJSON struct {
	Paths    []pathDocument `json:"paths"`
	PlaneID  *int           `json:"planeid"`
	Location float64        `json:"location"`
	Pitch    *float64       `json:"pitch"`
}

type pathDocument struct {
	PathResponse *pathJSON `json:"PathResponse"`
}

type pathJSON struct {
	Current  arrayDocument `json:"current"`
	PitchPos *float64      `json:"pitchpos"`
	WirePos  float64       `json:"wirepos"`
}

type arrayDocument struct {
	Array *arrayJSON `json:"array"`
}

type arrayJSON struct {
	Shape    []int         `json:"shape"`
	Elements []sampleValue `json:"elements"`
}

// SamplePrecision is the number of significant digits kept for current
// samples on save. It bounds file size; scalars are saved exactly.
const SamplePrecision = 6

type sampleValue float64

func (v sampleValue) MarshalJSON() ([]byte, error) {
	f := float64(v)
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil, fmt.Errorf("cannot save non-finite sample %v", f)
	}
	return strconv.AppendFloat(nil, f, 'g', SamplePrecision, 64), nil
}

// TruncateSample rounds v to SamplePrecision significant digits, the value
// Load returns after Dump.
func TruncateSample(v float64) float64 {
	t, _ := strconv.ParseFloat(strconv.FormatFloat(v, 'g', SamplePrecision, 64), 64)
	return t
}

// Load reads a field response document. Files ending in .bz2 or .gz are
// decompressed.
func Load(filename string) (*FieldResponse, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, &ErrOpenFile{Filename: filename, Err: err}
	}
	defer file.Close()

	reader, closeReader, err := decompressor(filename, file)
	if err != nil {
		return nil, &FormatError{Filename: filename, Err: err}
	}
	defer closeReader()

	fr, err := Decode(reader)
	if err != nil {
		return nil, &FormatError{Filename: filename, Err: err}
	}
	return fr, nil
}

// Decode parses and validates one field response document.
func Decode(r io.Reader) (*FieldResponse, error) {
	var doc frDocument
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("error decoding JSON: %w", err)
	}
	return doc.toFieldResponse()
}

func (doc frDocument) toFieldResponse() (*FieldResponse, error) {
	f := doc.FieldResponse
	if f == nil {
		return nil, errors.New("missing FieldResponse object")
	}
	if f.Origin == nil || f.TStart == nil || f.Period == nil || f.Speed == nil {
		return nil, errors.New("FieldResponse needs origin, tstart, period and speed")
	}
	if len(f.Axis) != 3 {
		return nil, fmt.Errorf("axis must have 3 components, got %d", len(f.Axis))
	}

	planes := make([]PlaneResponse, len(f.Planes))
	for i, pd := range f.Planes {
		p := pd.PlaneResponse
		if p == nil {
			return nil, fmt.Errorf("plane %d: missing PlaneResponse object", i)
		}
		if p.PlaneID == nil || p.Pitch == nil {
			return nil, fmt.Errorf("plane %d: PlaneResponse needs planeid and pitch", i)
		}
		paths := make([]PathResponse, len(p.Paths))
		for j, path := range p.Paths {
			current, err := path.decode()
			if err != nil {
				return nil, fmt.Errorf("plane %d path %d: %w", *p.PlaneID, j, err)
			}
			paths[j] = current
		}
		planes[i] = PlaneResponse{
			PlaneID:  *p.PlaneID,
			Location: p.Location,
			Pitch:    *p.Pitch,
			Paths:    paths,
		}
	}

	axis := [3]float64{f.Axis[0], f.Axis[1], f.Axis[2]}
	return NewFieldResponse(planes, axis, *f.Origin, *f.TStart, *f.Period, *f.Speed)
}

func (pd pathDocument) decode() (PathResponse, error) {
	p := pd.PathResponse
	if p == nil {
		return PathResponse{}, errors.New("missing PathResponse object")
	}
	if p.PitchPos == nil {
		return PathResponse{}, errors.New("PathResponse needs pitchpos")
	}
	arr := p.Current.Array
	if arr == nil {
		return PathResponse{}, errors.New("current needs an array object")
	}
	if len(arr.Shape) != 1 || arr.Shape[0] != len(arr.Elements) {
		return PathResponse{}, fmt.Errorf("current shape %v does not match %d elements", arr.Shape, len(arr.Elements))
	}
	current := make([]float64, len(arr.Elements))
	for i, v := range arr.Elements {
		current[i] = float64(v)
	}
	return PathResponse{PitchPos: *p.PitchPos, WirePos: p.WirePos, Current: current}, nil
}

func newDocument(fr *FieldResponse) frDocument {
	origin, tstart, period, speed := fr.Origin, fr.TStart, fr.Period, fr.Speed
	doc := frDocument{FieldResponse: &frJSON{
		Planes: make([]planeDocument, len(fr.Planes)),
		Axis:   []float64{fr.Axis[0], fr.Axis[1], fr.Axis[2]},
		Origin: &origin,
		TStart: &tstart,
		Period: &period,
		Speed:  &speed,
	}}
	for i, pr := range fr.Planes {
		planeID, pitch := pr.PlaneID, pr.Pitch
		plane := &planeJSON{
			Paths:    make([]pathDocument, len(pr.Paths)),
			PlaneID:  &planeID,
			Location: pr.Location,
			Pitch:    &pitch,
		}
		for j, path := range pr.Paths {
			pitchpos := path.PitchPos
			elements := make([]sampleValue, len(path.Current))
			for k, v := range path.Current {
				elements[k] = sampleValue(v)
			}
			plane.Paths[j] = pathDocument{PathResponse: &pathJSON{
				Current:  arrayDocument{Array: &arrayJSON{Shape: []int{len(elements)}, Elements: elements}},
				PitchPos: &pitchpos,
				WirePos:  path.WirePos,
			}}
		}
		doc.FieldResponse.Planes[i] = planeDocument{PlaneResponse: plane}
	}
	return doc
}

// Encode writes fr as a field response document with samples truncated to
// SamplePrecision significant digits.
func Encode(w io.Writer, fr *FieldResponse) error {
	return json.NewEncoder(w).Encode(newDocument(fr))
}

// Dump writes fr to filename, compressing when the name ends in .bz2 or
// .gz. The file is closed on every path.
func Dump(filename string, fr *FieldResponse) (err error) {
	file, err := os.Create(filename)
	if err != nil {
		return &ErrOpenFile{Filename: filename, Err: err}
	}
	defer func() {
		if cerr := file.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("error closing %s: %w", filename, cerr)
		}
	}()

	writer, closeWriter, err := compressor(filename, file)
	if err != nil {
		return err
	}
	if err := Encode(writer, fr); err != nil {
		closeWriter()
		return fmt.Errorf("error writing %s: %w", filename, err)
	}
	if err := closeWriter(); err != nil {
		return fmt.Errorf("error finishing %s: %w", filename, err)
	}
	return nil
}

func decompressor(filename string, r io.Reader) (io.Reader, func() error, error) {
	switch {
	case strings.HasSuffix(filename, ".bz2"):
		zr, err := bzip2.NewReader(r, nil)
		if err != nil {
			return nil, nil, err
		}
		return zr, zr.Close, nil
	case strings.HasSuffix(filename, ".gz"):
		zr, err := gzip.NewReader(r)
		if err != nil {
			return nil, nil, err
		}
		return zr, zr.Close, nil
	}
	return r, func() error { return nil }, nil
}

func compressor(filename string, w io.Writer) (io.Writer, func() error, error) {
	switch {
	case strings.HasSuffix(filename, ".bz2"):
		zw, err := bzip2.NewWriter(w, &bzip2.WriterConfig{Level: bzip2.BestCompression})
		if err != nil {
			return nil, nil, err
		}
		return zw, zw.Close, nil
	case strings.HasSuffix(filename, ".gz"):
		zw, err := gzip.NewWriterLevel(w, gzip.BestCompression)
		if err != nil {
			return nil, nil, err
		}
		return zw, zw.Close, nil
	}
	return w, func() error { return nil }, nil
}

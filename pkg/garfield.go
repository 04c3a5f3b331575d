package sigproc

import (
	"archive/tar"
	"archive/zip"
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"math"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/klauspost/compress/gzip"
	"golang.org/x/exp/maps"
)

// GarfieldRecord is one direct-signal current trace read from a Garfield
// fileset, already converted to canonical units.
type GarfieldRecord struct {
	PlaneLabel string
	Plane      int
	Impact     float64
	WireX      float64
	WireY      float64
	Region     int
	PitchPos   float64
	Times      []float64
	Current    []float64
}

var garfieldPlanes = map[string]int{
	"U": 0,
	"V": 1,
	"W": 2,
	"Y": 2,
}

var (
	garfieldFileName = regexp.MustCompile(`([-+]?[0-9.]+)_([A-Za-z])\.dat$`)
	garfieldWire     = regexp.MustCompile(`Wire\s+(\d+)\s+with label\s+(\S+)\s+at\s+\(x,y\)=\(\s*([-+0-9.Ee]+)\s*,\s*([-+0-9.Ee]+)\s*\)`)
	garfieldUnits    = regexp.MustCompile(`Units used:\s*time in (\w+) second,\s*current in (\w+) Ampere`)
	garfieldSample   = regexp.MustCompile(`^\s*\+\s*\(?\s*([-+0-9.Ee]+)\s+([-+0-9.Ee]+)\s*\)?\s*$`)
)

var garfieldPrefixes = map[string]float64{
	"":      1,
	"milli": 1e-3,
	"micro": 1e-6,
	"nano":  1e-9,
	"pico":  1e-12,
}

type garfieldBlock struct {
	direct      bool
	label       string
	wireX       float64
	wireY       float64
	timeUnit    float64
	currentUnit float64
	times       []float64
	current     []float64
}

// ParseGarfieldText reads the direct-signal blocks of one Garfield output
// file. Times and currents are converted to canonical units and wire
// coordinates from centimeters.
func ParseGarfieldText(name string, r io.Reader) ([]GarfieldRecord, error) {
	m := garfieldFileName.FindStringSubmatch(name)
	if m == nil {
		return nil, &DataError{Plane: -1, Reason: fmt.Sprintf("cannot get impact and plane from file name %q", name)}
	}
	impact, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return nil, &DataError{Plane: -1, Reason: fmt.Sprintf("bad impact position in %q: %v", name, err)}
	}
	label := strings.ToUpper(m[2])
	plane, ok := garfieldPlanes[label]
	if !ok {
		return nil, &DataError{Plane: -1, Reason: fmt.Sprintf("unknown plane label %q in %q", label, name)}
	}

	var blocks []*garfieldBlock
	var current *garfieldBlock
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Text()
		switch {
		case strings.Contains(line, "% Created"):
			current = &garfieldBlock{
				direct:      strings.Contains(line, "Direct signal"),
				timeUnit:    Microsecond,
				currentUnit: Microampere,
			}
			blocks = append(blocks, current)
		case current == nil:
			continue
		case garfieldWire.MatchString(line):
			w := garfieldWire.FindStringSubmatch(line)
			current.label = w[2]
			current.wireX, _ = strconv.ParseFloat(w[3], 64)
			current.wireY, _ = strconv.ParseFloat(w[4], 64)
		case garfieldUnits.MatchString(line):
			u := garfieldUnits.FindStringSubmatch(line)
			tu, ok1 := garfieldPrefixes[u[1]]
			cu, ok2 := garfieldPrefixes[u[2]]
			if !ok1 || !ok2 {
				return nil, &DataError{Plane: plane, Region: noRegion, Reason: fmt.Sprintf("%s:%d: unsupported units %q", name, lineNo, line)}
			}
			current.timeUnit = tu * Second
			current.currentUnit = cu * Ampere
		case garfieldSample.MatchString(line):
			s := garfieldSample.FindStringSubmatch(line)
			t, err1 := strconv.ParseFloat(s[1], 64)
			c, err2 := strconv.ParseFloat(s[2], 64)
			if err1 != nil || err2 != nil {
				return nil, &DataError{Plane: plane, Region: noRegion, Reason: fmt.Sprintf("%s:%d: bad sample %q", name, lineNo, line)}
			}
			current.times = append(current.times, t*current.timeUnit)
			current.current = append(current.current, c*current.currentUnit)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading %s: %w", name, err)
	}

	var records []GarfieldRecord
	for _, b := range blocks {
		if !b.direct || len(b.times) == 0 {
			continue
		}
		records = append(records, GarfieldRecord{
			PlaneLabel: label,
			Plane:      plane,
			Impact:     impact * Millimeter,
			WireX:      b.wireX * Centimeter,
			WireY:      b.wireY * Centimeter,
			Times:      b.times,
			Current:    b.current,
		})
	}
	return records, nil
}

// GarfieldOptions control how a fileset is turned into records.
type GarfieldOptions struct {
	// Normalization: 0 leaves currents as read, > 0 multiplies them,
	// < 0 scales them so the central collection wire integrates to
	// |Normalization| electrons.
	Normalization float64
	// ZeroWireLocs is the x position of wire 0 of each plane.
	ZeroWireLocs []float64
	// Delay prepends this many zero samples to every trace.
	Delay     int
	Verbosity int
}

// LoadGarfield reads every .dat file of a Garfield fileset, which may be a
// directory or a .zip, .tar, .tgz or .tar.gz archive.
func LoadGarfield(fileset string, opts GarfieldOptions) ([]GarfieldRecord, error) {
	contents, err := readFileset(fileset)
	if err != nil {
		return nil, err
	}
	names := maps.Keys(contents)
	sort.Strings(names)

	var records []GarfieldRecord
	for _, name := range names {
		recs, err := ParseGarfieldText(name, bytes.NewReader(contents[name]))
		if err != nil {
			return nil, err
		}
		if opts.Verbosity > 2 {
			logger.Info(fmt.Sprintf("%s: %d direct signals", name, len(recs)), "garfield")
		}
		records = append(records, recs...)
	}
	if len(records) == 0 {
		return nil, &DataError{Plane: -1, Reason: fmt.Sprintf("no direct signals found in %s", fileset)}
	}
	if opts.Verbosity > 0 {
		logger.Info(fmt.Sprintf("Read %d records from %d files in %s", len(records), len(names), fileset), "garfield")
	}
	return AssignRegions(records, opts)
}

// AssignRegions sets Region and PitchPos of every record, checks the sample
// grid is shared, then applies delay and normalization.
func AssignRegions(records []GarfieldRecord, opts GarfieldOptions) ([]GarfieldRecord, error) {
	pitches, err := garfieldPitches(records)
	if err != nil {
		return nil, err
	}

	nsamples := len(records[0].Times)
	out := make([]GarfieldRecord, len(records))
	for i, rec := range records {
		if len(rec.Times) != nsamples || len(rec.Current) != nsamples {
			return nil, &DataError{Plane: rec.Plane, Region: noRegion,
				Reason: fmt.Sprintf("record for impact %g has %d samples, expected %d", rec.Impact, len(rec.Times), nsamples)}
		}
		var zero float64
		if rec.Plane < len(opts.ZeroWireLocs) {
			zero = opts.ZeroWireLocs[rec.Plane]
		}
		pitch := pitches[rec.Plane]
		rec.Region = int(math.Round((rec.WireX - zero) / pitch))
		rec.PitchPos = rec.Impact - float64(rec.Region)*pitch
		rec.Current = delayed(rec.Current, opts.Delay)
		rec.Times = extendTimes(rec.Times, opts.Delay)
		out[i] = rec
	}

	scale, err := normalizationScale(out, opts.Normalization)
	if err != nil {
		return nil, err
	}
	if scale != 1 {
		for i := range out {
			for j := range out[i].Current {
				out[i].Current[j] *= scale
			}
		}
	}
	return out, nil
}

// garfieldPitches takes, for each plane, the smallest spacing between the
// distinct wire positions found in its records.
func garfieldPitches(records []GarfieldRecord) (map[int]float64, error) {
	if len(records) == 0 {
		return nil, &DataError{Plane: -1, Reason: "no records"}
	}
	wires := make(map[int]map[float64]struct{})
	for _, rec := range records {
		if wires[rec.Plane] == nil {
			wires[rec.Plane] = make(map[float64]struct{})
		}
		wires[rec.Plane][rec.WireX] = struct{}{}
	}
	pitches := make(map[int]float64, len(wires))
	for plane, set := range wires {
		xs := maps.Keys(set)
		sort.Float64s(xs)
		pitch := math.Inf(1)
		for i := 1; i < len(xs); i++ {
			pitch = math.Min(pitch, xs[i]-xs[i-1])
		}
		if math.IsInf(pitch, 1) || pitch <= 0 {
			return nil, &DataError{Plane: plane, Region: noRegion, Reason: "need signals on at least two wires to find the pitch"}
		}
		pitches[plane] = pitch
	}
	return pitches, nil
}

// delayed prepends delay zero samples to a trace.
func delayed(current []float64, delay int) []float64 {
	if delay < 0 {
		delay = 0
	}
	out := make([]float64, delay+len(current))
	copy(out[delay:], current)
	return out
}

// extendTimes appends delay samples to a regular time grid.
func extendTimes(times []float64, delay int) []float64 {
	out := make([]float64, len(times), len(times)+delay)
	copy(out, times)
	if delay <= 0 || len(times) < 2 {
		return out
	}
	dt := times[1] - times[0]
	last := times[len(times)-1]
	for i := 1; i <= delay; i++ {
		out = append(out, last+float64(i)*dt)
	}
	return out
}

func normalizationScale(records []GarfieldRecord, normalization float64) (float64, error) {
	switch {
	case normalization == 0:
		return 1, nil
	case normalization > 0:
		return normalization, nil
	}

	collection := -1
	for _, rec := range records {
		if rec.Plane > collection {
			collection = rec.Plane
		}
	}
	var total float64
	count := 0
	for _, rec := range records {
		if rec.Plane != collection || rec.Region != 0 {
			continue
		}
		total += integratedCharge(rec)
		count++
	}
	if count == 0 || total == 0 {
		return 0, &DataError{Plane: collection, Region: 0, Reason: "no collection charge to normalize to"}
	}
	mean := total / float64(count)
	return math.Abs(normalization) * Eplus / math.Abs(mean), nil
}

func integratedCharge(rec GarfieldRecord) float64 {
	if len(rec.Times) < 2 {
		return 0
	}
	dt := rec.Times[1] - rec.Times[0]
	var q float64
	for _, c := range rec.Current {
		q += c * dt
	}
	return q
}

// RecordsToFieldResponse assembles records into a FieldResponse. The plane
// location is the y position of its wires, the drift axis is x and time
// starts at 0.
func RecordsToFieldResponse(records []GarfieldRecord, origin, speed float64) (*FieldResponse, error) {
	if len(records) == 0 {
		return nil, &DataError{Plane: -1, Reason: "no records"}
	}
	pitches, err := garfieldPitches(records)
	if err != nil {
		return nil, err
	}
	times := records[0].Times
	if len(times) < 2 {
		return nil, &DataError{Plane: -1, Reason: "need at least two samples to find the period"}
	}
	period := times[1] - times[0]

	byPlane := make(map[int]*PlaneResponse)
	for _, rec := range records {
		pr, ok := byPlane[rec.Plane]
		if !ok {
			pr = &PlaneResponse{PlaneID: rec.Plane, Pitch: pitches[rec.Plane], Location: rec.WireY}
			byPlane[rec.Plane] = pr
		}
		if rec.Region == 0 {
			pr.Location = rec.WireY
		}
		pr.Paths = append(pr.Paths, PathResponse{
			PitchPos: rec.PitchPos,
			WirePos:  float64(rec.Region) * pr.Pitch,
			Current:  rec.Current,
		})
	}

	planeIDs := maps.Keys(byPlane)
	sort.Ints(planeIDs)
	planes := make([]PlaneResponse, 0, len(planeIDs))
	for _, id := range planeIDs {
		planes = append(planes, *byPlane[id])
	}
	return NewFieldResponse(planes, [3]float64{1, 0, 0}, origin, 0, period, speed)
}

// readFileset returns the .dat members of a fileset keyed by their path
// inside it.
func readFileset(fileset string) (map[string][]byte, error) {
	info, err := os.Stat(fileset)
	if err != nil {
		return nil, &ErrOpenFile{Filename: fileset, Err: err}
	}
	if info.IsDir() {
		return readDirectory(fileset)
	}

	switch {
	case strings.HasSuffix(fileset, ".zip"):
		return readZip(fileset)
	case strings.HasSuffix(fileset, ".tar"):
		return readTar(fileset, false)
	case strings.HasSuffix(fileset, ".tgz"), strings.HasSuffix(fileset, ".tar.gz"):
		return readTar(fileset, true)
	}
	return nil, &DataError{Plane: -1, Reason: fmt.Sprintf("unknown fileset type %q", filepath.Ext(fileset))}
}

func readDirectory(dir string) (map[string][]byte, error) {
	contents := make(map[string][]byte)
	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(p, ".dat") {
			return nil
		}
		data, err := os.ReadFile(p)
		if err != nil {
			return err
		}
		rel, _ := filepath.Rel(dir, p)
		contents[filepath.ToSlash(rel)] = data
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("error reading %s: %w", dir, err)
	}
	return contents, nil
}

func readZip(filename string) (map[string][]byte, error) {
	zr, err := zip.OpenReader(filename)
	if err != nil {
		return nil, &ErrOpenFile{Filename: filename, Err: err}
	}
	defer zr.Close()

	contents := make(map[string][]byte)
	for _, f := range zr.File {
		if f.FileInfo().IsDir() || path.Ext(f.Name) != ".dat" {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("error opening %s in %s: %w", f.Name, filename, err)
		}
		data, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return nil, fmt.Errorf("error reading %s in %s: %w", f.Name, filename, err)
		}
		contents[f.Name] = data
	}
	return contents, nil
}

func readTar(filename string, compressed bool) (map[string][]byte, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, &ErrOpenFile{Filename: filename, Err: err}
	}
	defer file.Close()

	var r io.Reader = file
	if compressed {
		zr, err := gzip.NewReader(file)
		if err != nil {
			return nil, fmt.Errorf("error decompressing %s: %w", filename, err)
		}
		defer zr.Close()
		r = zr
	}

	contents := make(map[string][]byte)
	tr := tar.NewReader(r)
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("error reading %s: %w", filename, err)
		}
		if hdr.Typeflag != tar.TypeReg || path.Ext(hdr.Name) != ".dat" {
			continue
		}
		data, err := io.ReadAll(tr)
		if err != nil {
			return nil, fmt.Errorf("error reading %s in %s: %w", hdr.Name, filename, err)
		}
		contents[hdr.Name] = data
	}
	return contents, nil
}

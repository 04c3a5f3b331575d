package sigproc

import (
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/dustin/go-humanize"
	hdf5 "github.com/jmbenlloch/go-hdf5"
)

// Group names of the array archive. Per-plane datasets are suffixed with
// the plane ID: Response/resp2, Response/bincenters2, Response/regions2.
const (
	responseGroupName    = "Response"
	planesGroupName      = "Planes"
	metadataGroupName    = "Metadata"
	electronicsGroupName = "Electronics"
)

// hdf5Mu serializes whole-file access: stock libhdf5 builds are not
// thread-safe.
var hdf5Mu sync.Mutex

// ArrayWriter stores ResponseArrays in an HDF5 file.
type ArrayWriter struct {
	File             *hdf5.File
	Filename         string
	CompressionLevel int
	ResponseGroup    *hdf5.Group
	PlanesGroup      *hdf5.Group
	MetadataGroup    *hdf5.Group
	ElectronicsGroup *hdf5.Group
}

func NewArrayWriter(filename string, compressionLevel int) (*ArrayWriter, error) {
	if configuration.Verbosity > 0 {
		logger.Info(fmt.Sprintf("Creating file: %s", filename), "writer")
	}
	file, err := openFile(filename)
	if err != nil {
		return nil, err
	}
	writer := &ArrayWriter{
		File:             file,
		Filename:         filename,
		CompressionLevel: compressionLevel,
	}

	groups := []struct {
		name  string
		group **hdf5.Group
	}{
		{responseGroupName, &writer.ResponseGroup},
		{planesGroupName, &writer.PlanesGroup},
		{metadataGroupName, &writer.MetadataGroup},
		{electronicsGroupName, &writer.ElectronicsGroup},
	}
	for _, g := range groups {
		*g.group, err = createGroup(file, g.name)
		if err != nil {
			writer.Close()
			return nil, err
		}
	}
	return writer, nil
}

// WriteArrays writes every dataset of ra. The electronics response and
// spectrum are only present when ra was convolved; espec is stored as
// N rows of (real, imaginary).
func (w *ArrayWriter) WriteArrays(ra *ResponseArrays) error {
	planeIDs := make([]int32, len(ra.Planes))
	for i, pa := range ra.Planes {
		planeIDs[i] = int32(pa.PlaneID)
		if err := writeMatrix(w.ResponseGroup, fmt.Sprintf("resp%d", pa.PlaneID), pa.Response, w.CompressionLevel); err != nil {
			return err
		}
		if err := writeFloats(w.ResponseGroup, fmt.Sprintf("bincenters%d", pa.PlaneID), pa.BinCenters, w.CompressionLevel); err != nil {
			return err
		}
		regions := make([]int32, len(pa.Regions))
		for j, r := range pa.Regions {
			regions[j] = int32(r)
		}
		if err := writeArray(w.ResponseGroup, fmt.Sprintf("regions%d", pa.PlaneID), hdf5.T_NATIVE_INT32, &regions, []uint{uint(len(regions))}, 0); err != nil {
			return err
		}
	}

	if err := writeArray(w.PlanesGroup, "planeids", hdf5.T_NATIVE_INT32, &planeIDs, []uint{uint(len(planeIDs))}, 0); err != nil {
		return err
	}
	if err := writeFloats(w.PlanesGroup, "pitches", ra.Pitches(), 0); err != nil {
		return err
	}
	if err := writeFloats(w.PlanesGroup, "locations", ra.Locations(), 0); err != nil {
		return err
	}

	scalars := []struct {
		group *hdf5.Group
		name  string
		value float64
	}{
		{w.MetadataGroup, "origin", ra.Origin},
		{w.MetadataGroup, "tstart", ra.TStart},
		{w.MetadataGroup, "period", ra.Period},
		{w.MetadataGroup, "speed", ra.Speed},
		{w.ElectronicsGroup, "gain", ra.Gain},
		{w.ElectronicsGroup, "shaping", ra.Shaping},
	}
	for _, s := range scalars {
		if err := writeScalar(s.group, s.name, s.value); err != nil {
			return err
		}
	}
	elecType := []int32{int32(ra.ElecType)}
	if err := writeArray(w.ElectronicsGroup, "elec_type", hdf5.T_NATIVE_INT32, &elecType, []uint{1}, 0); err != nil {
		return err
	}

	if !ra.Convolved() {
		return nil
	}
	if err := writeFloats(w.ElectronicsGroup, "eresp", ra.EResp, w.CompressionLevel); err != nil {
		return err
	}
	espec := make([][]float64, len(ra.ESpec))
	for i, c := range ra.ESpec {
		espec[i] = []float64{real(c), imag(c)}
	}
	return writeMatrix(w.ElectronicsGroup, "espec", espec, w.CompressionLevel)
}

func (w *ArrayWriter) Close() error {
	if configuration.Verbosity > 0 {
		logger.Info(fmt.Sprintf("Closing file: %s", w.Filename), "writer")
	}
	var errs []error

	groups := []struct {
		name  string
		group *hdf5.Group
	}{
		{"response", w.ResponseGroup},
		{"planes", w.PlanesGroup},
		{"metadata", w.MetadataGroup},
		{"electronics", w.ElectronicsGroup},
	}
	for _, g := range groups {
		if g.group == nil {
			continue
		}
		if err := g.group.Close(); err != nil {
			errs = append(errs, fmt.Errorf("error closing %s group: %w", g.name, err))
		}
	}
	if err := w.File.Close(); err != nil {
		errs = append(errs, fmt.Errorf("error closing file: %w", err))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	if configuration.Verbosity > 0 {
		if info, err := os.Stat(w.Filename); err == nil {
			message := fmt.Sprintf("Wrote %s (%s)", w.Filename, humanize.Bytes(uint64(info.Size())))
			logger.Info(message, "writer")
		}
	}
	return nil
}

// WriteArraysFile writes ra to a new HDF5 file. It is safe to call from
// several goroutines.
func WriteArraysFile(filename string, ra *ResponseArrays, compressionLevel int) (err error) {
	hdf5Mu.Lock()
	defer hdf5Mu.Unlock()

	writer, err := NewArrayWriter(filename, compressionLevel)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := writer.Close(); cerr != nil {
			err = errors.Join(err, cerr)
		}
	}()
	return writer.WriteArrays(ra)
}

// ReadArrays loads an archive written by ArrayWriter. Consistency
// warnings are not stored and come back empty.
func ReadArrays(filename string) (*ResponseArrays, error) {
	hdf5Mu.Lock()
	defer hdf5Mu.Unlock()

	file, err := hdf5.OpenFile(filename, hdf5.F_ACC_RDONLY)
	if err != nil {
		return nil, &ErrOpenFile{Filename: filename, Err: err}
	}
	defer file.Close()

	groups := make(map[string]*hdf5.Group)
	for _, name := range []string{responseGroupName, planesGroupName, metadataGroupName, electronicsGroupName} {
		g, err := file.OpenGroup(name)
		if err != nil {
			return nil, &FormatError{Filename: filename, Err: fmt.Errorf("error opening group %q: %w", name, err)}
		}
		defer g.Close()
		groups[name] = g
	}

	ra, err := readArrays(groups)
	if err != nil {
		return nil, &FormatError{Filename: filename, Err: err}
	}
	return ra, nil
}

func readArrays(groups map[string]*hdf5.Group) (*ResponseArrays, error) {
	planesGroup := groups[planesGroupName]
	planeIDs, _, err := readArray[int32](planesGroup, "planeids")
	if err != nil {
		return nil, err
	}
	pitches, _, err := readArray[float64](planesGroup, "pitches")
	if err != nil {
		return nil, err
	}
	locations, _, err := readArray[float64](planesGroup, "locations")
	if err != nil {
		return nil, err
	}
	if len(pitches) != len(planeIDs) || len(locations) != len(planeIDs) {
		return nil, fmt.Errorf("%d plane ids, %d pitches and %d locations", len(planeIDs), len(pitches), len(locations))
	}

	ra := &ResponseArrays{Planes: make([]PlaneArray, len(planeIDs))}
	for i, id := range planeIDs {
		resp, err := readMatrix(groups[responseGroupName], fmt.Sprintf("resp%d", id))
		if err != nil {
			return nil, err
		}
		bincenters, _, err := readArray[float64](groups[responseGroupName], fmt.Sprintf("bincenters%d", id))
		if err != nil {
			return nil, err
		}
		regions, _, err := readArray[int32](groups[responseGroupName], fmt.Sprintf("regions%d", id))
		if err != nil {
			return nil, err
		}
		pa := PlaneArray{
			PlaneID:    int(id),
			Location:   locations[i],
			Pitch:      pitches[i],
			Regions:    make([]int, len(regions)),
			Response:   resp,
			BinCenters: bincenters,
		}
		for j, r := range regions {
			pa.Regions[j] = int(r)
		}
		ra.Planes[i] = pa
	}

	scalars := []struct {
		group string
		name  string
		value *float64
	}{
		{metadataGroupName, "origin", &ra.Origin},
		{metadataGroupName, "tstart", &ra.TStart},
		{metadataGroupName, "period", &ra.Period},
		{metadataGroupName, "speed", &ra.Speed},
		{electronicsGroupName, "gain", &ra.Gain},
		{electronicsGroupName, "shaping", &ra.Shaping},
	}
	for _, s := range scalars {
		if *s.value, err = readScalar(groups[s.group], s.name); err != nil {
			return nil, err
		}
	}
	elecType, _, err := readArray[int32](groups[electronicsGroupName], "elec_type")
	if err != nil {
		return nil, err
	}
	if len(elecType) == 1 {
		ra.ElecType = ElecType(elecType[0])
	}

	if ra.Gain == 0 || ra.Shaping == 0 {
		return ra, nil
	}
	if ra.EResp, _, err = readArray[float64](groups[electronicsGroupName], "eresp"); err != nil {
		return nil, err
	}
	espec, err := readMatrix(groups[electronicsGroupName], "espec")
	if err != nil {
		return nil, err
	}
	ra.ESpec = make([]complex128, len(espec))
	for i, row := range espec {
		ra.ESpec[i] = complex(row[0], row[1])
	}
	return ra, nil
}

package sigproc

import (
	"fmt"

	hdf5 "github.com/jmbenlloch/go-hdf5"
)

// maxChunkRows bounds the first dimension of a dataset chunk.
const maxChunkRows = 100

func openFile(fname string) (*hdf5.File, error) {
	f, err := hdf5.CreateFile(fname, hdf5.F_ACC_TRUNC)
	if err != nil {
		return nil, &ErrOpenFile{Filename: fname, Err: err}
	}
	return f, nil
}

func createGroup(file *hdf5.File, groupName string) (*hdf5.Group, error) {
	g, err := file.CreateGroup(groupName)
	if err != nil {
		return nil, &ErrCreateGroup{GroupName: groupName, Err: err}
	}
	return g, nil
}

// createArray creates a fixed size dataset. Datasets are chunked and
// deflated unless compression is 0 or the array is empty.
func createArray(group *hdf5.Group, name string, dtype *hdf5.Datatype, dims []uint, compression int) (*hdf5.Dataset, error) {
	fileSpace, err := hdf5.CreateSimpleDataspace(dims, nil)
	if err != nil {
		return nil, &ErrCreateDataset{DatasetName: name, Err: err}
	}
	defer fileSpace.Close()

	// create property list
	plist, err := hdf5.NewPropList(hdf5.P_DATASET_CREATE)
	if err != nil {
		return nil, &ErrCreateDataset{DatasetName: name, Err: err}
	}
	defer plist.Close()

	if compression > 0 && nonEmpty(dims) {
		chunks := make([]uint, len(dims))
		copy(chunks, dims)
		if chunks[0] > maxChunkRows {
			chunks[0] = maxChunkRows
		}
		if err := plist.SetChunk(chunks); err != nil {
			return nil, &ErrCreateDataset{DatasetName: name, Err: err}
		}
		if err := plist.SetDeflate(compression); err != nil {
			return nil, &ErrCreateDataset{DatasetName: name, Err: err}
		}
	}

	dset, err := group.CreateDatasetWith(name, dtype, fileSpace, plist)
	if err != nil {
		return nil, &ErrCreateDataset{DatasetName: name, Err: err}
	}
	return dset, nil
}

func nonEmpty(dims []uint) bool {
	for _, d := range dims {
		if d == 0 {
			return false
		}
	}
	return true
}

// writeArray creates and fills a dataset in one go. data must be a pointer
// to a slice holding the row-major elements of dims.
func writeArray[T any](group *hdf5.Group, name string, dtype *hdf5.Datatype, data *[]T, dims []uint, compression int) error {
	dset, err := createArray(group, name, dtype, dims, compression)
	if err != nil {
		return err
	}
	defer dset.Close()

	if err := dset.Write(data); err != nil {
		return &ErrCreateDataset{DatasetName: name, Err: err}
	}
	return nil
}

func writeFloats(group *hdf5.Group, name string, data []float64, compression int) error {
	return writeArray(group, name, hdf5.T_NATIVE_DOUBLE, &data, []uint{uint(len(data))}, compression)
}

func writeScalar(group *hdf5.Group, name string, value float64) error {
	data := []float64{value}
	return writeArray(group, name, hdf5.T_NATIVE_DOUBLE, &data, []uint{1}, 0)
}

// writeMatrix flattens rows, which must all have the same length.
func writeMatrix(group *hdf5.Group, name string, rows [][]float64, compression int) error {
	ncols := 0
	if len(rows) > 0 {
		ncols = len(rows[0])
	}
	flat := make([]float64, 0, len(rows)*ncols)
	for i, row := range rows {
		if len(row) != ncols {
			return &ErrCreateDataset{DatasetName: name, Err: fmt.Errorf("row %d has %d columns, expected %d", i, len(row), ncols)}
		}
		flat = append(flat, row...)
	}
	return writeArray(group, name, hdf5.T_NATIVE_DOUBLE, &flat, []uint{uint(len(rows)), uint(ncols)}, compression)
}

// readArray reads a whole dataset and returns its elements and shape.
func readArray[T any](group *hdf5.Group, name string) ([]T, []uint, error) {
	dset, err := group.OpenDataset(name)
	if err != nil {
		return nil, nil, fmt.Errorf("error opening dataset %q: %w", name, err)
	}
	defer dset.Close()

	space := dset.Space()
	defer space.Close()
	dims, _, err := space.SimpleExtentDims()
	if err != nil {
		return nil, nil, fmt.Errorf("error reading shape of %q: %w", name, err)
	}

	data := make([]T, space.SimpleExtentNPoints())
	if len(data) == 0 {
		return data, dims, nil
	}
	if err := dset.Read(&data); err != nil {
		return nil, nil, fmt.Errorf("error reading dataset %q: %w", name, err)
	}
	return data, dims, nil
}

func readScalar(group *hdf5.Group, name string) (float64, error) {
	data, _, err := readArray[float64](group, name)
	if err != nil {
		return 0, err
	}
	if len(data) != 1 {
		return 0, fmt.Errorf("dataset %q holds %d values, expected 1", name, len(data))
	}
	return data[0], nil
}

func readMatrix(group *hdf5.Group, name string) ([][]float64, error) {
	flat, dims, err := readArray[float64](group, name)
	if err != nil {
		return nil, err
	}
	if len(dims) != 2 {
		return nil, fmt.Errorf("dataset %q has rank %d, expected 2", name, len(dims))
	}
	rows := make([][]float64, dims[0])
	for i := range rows {
		rows[i] = flat[uint(i)*dims[1] : uint(i+1)*dims[1]]
	}
	return rows, nil
}

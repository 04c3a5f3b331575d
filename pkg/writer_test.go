package sigproc

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteReadArrays(t *testing.T) {
	fr := mustFieldResponse(t, threeRegionPlane(0, 1), threeRegionPlane(2, -1))

	tests := []struct {
		name        string
		opts        ArrayOptions
		compression int
	}{
		{"plain", ArrayOptions{}, 0},
		{"convolved", ArrayOptions{Gain: 14 * Millivolt / Femtocoulomb, Shaping: 0.2 * Microsecond, ElecType: WarmElectronics}, 4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ra, err := FieldResponseToArrays(fr, tt.opts)
			require.NoError(t, err)

			filename := filepath.Join(t.TempDir(), "arrays.h5")
			require.NoError(t, WriteArraysFile(filename, ra, tt.compression))

			got, err := ReadArrays(filename)
			require.NoError(t, err)
			if diff := cmp.Diff(ra, got); diff != "" {
				t.Errorf("archive round trip mismatch (-want +got):\n%s", diff)
			}
			assert.Equal(t, ra.Convolved(), got.Convolved())
		})
	}
}

func TestReadArraysErrors(t *testing.T) {
	_, err := ReadArrays(filepath.Join(t.TempDir(), "missing.h5"))
	var oerr *ErrOpenFile
	assert.ErrorAs(t, err, &oerr)

	filename := filepath.Join(t.TempDir(), "empty.h5")
	file, err := openFile(filename)
	require.NoError(t, err)
	require.NoError(t, file.Close())
	_, err = ReadArrays(filename)
	var ferr *FormatError
	assert.True(t, errors.As(err, &ferr), "got %v", err)
}

func TestNewArrayWriterBadPath(t *testing.T) {
	_, err := NewArrayWriter(filepath.Join(t.TempDir(), "no", "such", "dir.h5"), 4)
	var oerr *ErrOpenFile
	assert.ErrorAs(t, err, &oerr)
}

func TestWriteMatrixRaggedRows(t *testing.T) {
	filename := filepath.Join(t.TempDir(), "ragged.h5")
	writer, err := NewArrayWriter(filename, 0)
	require.NoError(t, err)
	defer writer.Close()

	err = writeMatrix(writer.ResponseGroup, "ragged", [][]float64{{1, 2}, {3}}, 0)
	var derr *ErrCreateDataset
	assert.ErrorAs(t, err, &derr)
}

package sigproc

import (
	"archive/tar"
	"archive/zip"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// garfieldBlockText renders one signal block as written by Garfield.
func garfieldBlockText(kind string, wire int, xcm, ycm float64, current []float64) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%% Created 21/03/16 At 10.33.59 < none > SIGNAL   \"%s, group   1     \"\n", kind)
	sb.WriteString("  Group 1 consists of:\n")
	fmt.Fprintf(&sb, "     Wire %d with label X at (x,y)=(%g,%g) and at -110 V\n", wire, xcm, ycm)
	fmt.Fprintf(&sb, " Number of signal records:  %d\n", len(current))
	sb.WriteString(" Units used: time in micro second, current in micro Ampere.\n")
	for i, c := range current {
		open, closing := "", ""
		if i == 0 {
			open = "("
		}
		if i == len(current)-1 {
			closing = " )"
		}
		fmt.Fprintf(&sb, " + %s  %.8E  %.8E%s\n", open, 0.1*float64(i), c, closing)
	}
	return sb.String()
}

// garfieldFiles simulates three U wires 3 mm apart at y = 0.6 cm and two
// impact positions.
func garfieldFiles() map[string]string {
	files := make(map[string]string)
	for _, impact := range []string{"0.0", "1.5"} {
		var sb strings.Builder
		for i, x := range []float64{-0.3, 0, 0.3} {
			sb.WriteString(garfieldBlockText("Direct signal", 240+i, x, 0.6, []float64{0, 1, 0.5, 0}))
			sb.WriteString(garfieldBlockText("Cross-talk signal", 240+i, x, 0.6, []float64{9, 9, 9, 9}))
		}
		files[impact+"_U.dat"] = sb.String()
	}
	return files
}

func writeGarfieldDir(t *testing.T, files map[string]string) string {
	dir := t.TempDir()
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
	}
	return dir
}

func writeGarfieldZip(t *testing.T, files map[string]string) string {
	filename := filepath.Join(t.TempDir(), "garfield.zip")
	f, err := os.Create(filename)
	require.NoError(t, err)
	zw := zip.NewWriter(f)
	for name, content := range files {
		w, err := zw.Create("garfield/" + name)
		require.NoError(t, err)
		_, err = w.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())
	return filename
}

func writeGarfieldTgz(t *testing.T, files map[string]string) string {
	filename := filepath.Join(t.TempDir(), "garfield.tgz")
	f, err := os.Create(filename)
	require.NoError(t, err)
	gw := gzip.NewWriter(f)
	tw := tar.NewWriter(gw)
	for name, content := range files {
		require.NoError(t, tw.WriteHeader(&tar.Header{
			Name:     "garfield/" + name,
			Mode:     0o644,
			Size:     int64(len(content)),
			Typeflag: tar.TypeReg,
		}))
		_, err := tw.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, tw.Close())
	require.NoError(t, gw.Close())
	require.NoError(t, f.Close())
	return filename
}

func TestParseGarfieldText(t *testing.T) {
	text := garfieldBlockText("Direct signal", 241, -0.3, 0.6, []float64{0, 2, 1}) +
		garfieldBlockText("Cross-talk signal", 241, -0.3, 0.6, []float64{5, 5, 5})

	records, err := ParseGarfieldText("fileset/2.5_V.dat", strings.NewReader(text))
	require.NoError(t, err)
	require.Len(t, records, 1)

	rec := records[0]
	assert.Equal(t, "V", rec.PlaneLabel)
	assert.Equal(t, 1, rec.Plane)
	assert.Equal(t, 2.5*Millimeter, rec.Impact)
	assert.InDelta(t, -3*Millimeter, rec.WireX, 1e-12)
	assert.InDelta(t, 6*Millimeter, rec.WireY, 1e-12)
	require.Len(t, rec.Times, 3)
	assert.InDelta(t, 100*Nanosecond, rec.Times[1], 1e-9)
	assert.InDelta(t, 2*Microampere, rec.Current[1], 1e-12*Microampere)
}

func TestParseGarfieldTextPlaneLabels(t *testing.T) {
	text := garfieldBlockText("Direct signal", 1, 0, 0, []float64{1})
	for name, plane := range map[string]int{"0_u.dat": 0, "0_V.dat": 1, "0_W.dat": 2, "0_Y.dat": 2} {
		records, err := ParseGarfieldText(name, strings.NewReader(text))
		require.NoError(t, err, name)
		require.Len(t, records, 1)
		assert.Equal(t, plane, records[0].Plane, name)
	}

	for _, name := range []string{"signal.dat", "0_Q.dat"} {
		_, err := ParseGarfieldText(name, strings.NewReader(text))
		var derr *DataError
		assert.ErrorAs(t, err, &derr, name)
	}
}

func TestParseGarfieldTextUnsupportedUnits(t *testing.T) {
	text := strings.Replace(garfieldBlockText("Direct signal", 1, 0, 0, []float64{1}), "micro Ampere", "kilo Ampere", 1)
	_, err := ParseGarfieldText("0_U.dat", strings.NewReader(text))
	assert.Error(t, err)
}

func TestLoadGarfieldFilesets(t *testing.T) {
	files := garfieldFiles()
	opts := GarfieldOptions{ZeroWireLocs: []float64{0, 0, 0}}

	fromDir, err := LoadGarfield(writeGarfieldDir(t, files), opts)
	require.NoError(t, err)
	require.Len(t, fromDir, 6)

	for name, fileset := range map[string]string{
		"zip": writeGarfieldZip(t, files),
		"tgz": writeGarfieldTgz(t, files),
	} {
		t.Run(name, func(t *testing.T) {
			records, err := LoadGarfield(fileset, opts)
			require.NoError(t, err)
			if diff := cmp.Diff(fromDir, records); diff != "" {
				t.Errorf("records differ from directory fileset (-dir +%s):\n%s", name, diff)
			}
		})
	}

	_, err = LoadGarfield(filepath.Join(t.TempDir(), "garfield.rar"), opts)
	assert.Error(t, err)
}

func TestAssignRegions(t *testing.T) {
	records, err := LoadGarfield(writeGarfieldDir(t, garfieldFiles()), GarfieldOptions{})
	require.NoError(t, err)

	type placement struct {
		Impact, WireX, PitchPos float64
		Region                  int
	}
	var got []placement
	for _, rec := range records {
		got = append(got, placement{rec.Impact, rec.WireX, rec.PitchPos, rec.Region})
	}
	want := []placement{
		{0, -3, 3, -1},
		{0, 0, 0, 0},
		{0, 3, -3, 1},
		{1.5, -3, 4.5, -1},
		{1.5, 0, 1.5, 0},
		{1.5, 3, -1.5, 1},
	}
	opt := cmp.Comparer(func(a, b float64) bool { return abs(a-b) < 1e-9 })
	if diff := cmp.Diff(want, got, opt); diff != "" {
		t.Errorf("placements mismatch (-want +got):\n%s", diff)
	}
}

func TestAssignRegionsZeroWireLocation(t *testing.T) {
	records, err := LoadGarfield(writeGarfieldDir(t, garfieldFiles()), GarfieldOptions{ZeroWireLocs: []float64{3}})
	require.NoError(t, err)
	found := 0
	for _, rec := range records {
		if abs(rec.WireX-3) < 1e-9 {
			assert.Equal(t, 0, rec.Region)
			assert.InDelta(t, rec.Impact, rec.PitchPos, 1e-9)
			found++
		}
	}
	assert.Equal(t, 2, found)
}

func TestAssignRegionsNormalization(t *testing.T) {
	dir := writeGarfieldDir(t, garfieldFiles())
	plain, err := LoadGarfield(dir, GarfieldOptions{})
	require.NoError(t, err)

	scaled, err := LoadGarfield(dir, GarfieldOptions{Normalization: 2})
	require.NoError(t, err)
	for i := range plain {
		for j := range plain[i].Current {
			assert.InDelta(t, 2*plain[i].Current[j], scaled[i].Current[j], 1e-15)
		}
	}

	electrons, err := LoadGarfield(dir, GarfieldOptions{Normalization: -1})
	require.NoError(t, err)
	var total float64
	count := 0
	for _, rec := range electrons {
		if rec.Region == 0 {
			total += integratedCharge(rec)
			count++
		}
	}
	require.Equal(t, 2, count)
	assert.InEpsilon(t, Eplus, total/float64(count), 1e-12)
}

func TestAssignRegionsDelay(t *testing.T) {
	records, err := LoadGarfield(writeGarfieldDir(t, garfieldFiles()), GarfieldOptions{Delay: 2})
	require.NoError(t, err)
	for _, rec := range records {
		require.Len(t, rec.Current, 6)
		require.Len(t, rec.Times, 6)
		assert.Equal(t, []float64{0, 0, 0}, rec.Current[:3])
		assert.InDelta(t, 1*Microampere, rec.Current[3], 1e-12*Microampere)
		assert.InDelta(t, 500*Nanosecond, rec.Times[5], 1e-9)
	}
}

func TestAssignRegionsErrors(t *testing.T) {
	_, err := AssignRegions(nil, GarfieldOptions{})
	var derr *DataError
	assert.ErrorAs(t, err, &derr)

	oneWire := []GarfieldRecord{{Plane: 0, WireX: 0, Times: []float64{0, 1}, Current: []float64{0, 1}}}
	_, err = AssignRegions(oneWire, GarfieldOptions{})
	assert.ErrorAs(t, err, &derr)

	ragged := []GarfieldRecord{
		{Plane: 0, WireX: 0, Times: []float64{0, 1}, Current: []float64{0, 1}},
		{Plane: 0, WireX: 3, Times: []float64{0, 1, 2}, Current: []float64{0, 1, 2}},
	}
	_, err = AssignRegions(ragged, GarfieldOptions{})
	assert.ErrorAs(t, err, &derr)

	noCharge := []GarfieldRecord{
		{Plane: 0, WireX: 0, Times: []float64{0, 1}, Current: []float64{0, 0}},
		{Plane: 0, WireX: 3, Times: []float64{0, 1}, Current: []float64{0, 1}},
	}
	_, err = AssignRegions(noCharge, GarfieldOptions{Normalization: -1})
	require.True(t, errors.As(err, &derr), "got %v", err)
	assert.Equal(t, 0, derr.Region)
}

func TestRecordsToFieldResponse(t *testing.T) {
	records, err := LoadGarfield(writeGarfieldDir(t, garfieldFiles()), GarfieldOptions{})
	require.NoError(t, err)

	fr, err := RecordsToFieldResponse(records, 10*Centimeter, 1.114*Millimeter/Microsecond)
	require.NoError(t, err)
	assert.Equal(t, 100.0, fr.Origin)
	assert.Equal(t, 0.0, fr.TStart)
	assert.InDelta(t, 100*Nanosecond, fr.Period, 1e-9)
	assert.Equal(t, [3]float64{1, 0, 0}, fr.Axis)

	require.Len(t, fr.Planes, 1)
	pr := fr.Planes[0]
	assert.Equal(t, 0, pr.PlaneID)
	assert.InDelta(t, 3*Millimeter, pr.Pitch, 1e-12)
	assert.InDelta(t, 6*Millimeter, pr.Location, 1e-12)
	require.Len(t, pr.Paths, 6)
	assert.InDelta(t, -3, pr.Paths[0].PitchPos, 1e-9)
	assert.InDelta(t, 4.5, pr.Paths[5].PitchPos, 1e-9)

	// two impacts per wire are too coarse to pixelize
	_, err = FieldResponseToArrays(fr, ArrayOptions{})
	var derr *DataError
	assert.ErrorAs(t, err, &derr)
}

package sigproc

import "fmt"

// ErrOpenFile represents an error when opening a file.
type ErrOpenFile struct {
	Filename string
	Err      error
}

func (e *ErrOpenFile) Error() string {
	return fmt.Sprintf("error opening file %q: %v", e.Filename, e.Err)
}

func (e *ErrOpenFile) Unwrap() error { return e.Err }

// ErrCreateGroup represents an error when creating an HDF5 group.
type ErrCreateGroup struct {
	GroupName string
	Err       error
}

func (e *ErrCreateGroup) Error() string {
	return fmt.Sprintf("error creating group %q: %v", e.GroupName, e.Err)
}

func (e *ErrCreateGroup) Unwrap() error { return e.Err }

// ErrCreateDataset represents an error when creating or writing an HDF5 dataset.
type ErrCreateDataset struct {
	DatasetName string
	Err         error
}

func (e *ErrCreateDataset) Error() string {
	return fmt.Sprintf("error creating dataset %q: %v", e.DatasetName, e.Err)
}

func (e *ErrCreateDataset) Unwrap() error { return e.Err }

// ConfigError reports a configuration value that cannot be used, most often
// a unit expression referencing an unknown symbol.
type ConfigError struct {
	Expr string
	Err  error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("configuration error in %q: %v", e.Expr, e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// DataError reports malformed or under-resolved field response input.
// Plane is -1 for errors about the whole response and Region is noRegion
// for errors about a whole plane.
type DataError struct {
	Plane  int
	Region int
	Reason string
}

func (e *DataError) Error() string {
	switch {
	case e.Plane < 0:
		return fmt.Sprintf("data error: %s", e.Reason)
	case e.Region == noRegion:
		return fmt.Sprintf("data error in plane %d: %s", e.Plane, e.Reason)
	default:
		return fmt.Sprintf("data error in plane %d region %d: %s", e.Plane, e.Region, e.Reason)
	}
}

// noRegion marks a DataError that is not tied to a wire region. Regions are
// signed so -1 is a legal value.
const noRegion = int(^uint(0) >> 1)

// NumericError reports non-finite values produced by the electronics
// convolution.
type NumericError struct {
	Plane  int
	Row    int
	Reason string
}

func (e *NumericError) Error() string {
	return fmt.Sprintf("numeric error in plane %d row %d: %s", e.Plane, e.Row, e.Reason)
}

// FormatError reports a field response document that does not follow the
// expected schema. The whole document is rejected.
type FormatError struct {
	Filename string
	Err      error
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("format error in %q: %v", e.Filename, e.Err)
}

func (e *FormatError) Unwrap() error { return e.Err }

// ConsistencyWarning is raised when both halves of a flip-symmetric pair are
// present but disagree by more than the configured tolerance. It is logged
// and processing continues with the provided data.
type ConsistencyWarning struct {
	Plane     int
	PitchPos  float64
	MaxDiff   float64
	Tolerance float64
}

func (w ConsistencyWarning) String() string {
	return fmt.Sprintf("plane %d: paths at pitchpos %+g and %+g differ by %g (relative), tolerance %g",
		w.Plane, w.PitchPos, -w.PitchPos, w.MaxDiff, w.Tolerance)
}

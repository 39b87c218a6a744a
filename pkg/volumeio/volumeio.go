// Package volumeio reads and writes volumes as a YAML header next to a raw
// little-endian voxel array. The array is stored with the coronal index
// varying fastest, matching models.Grid.
package volumeio

import (
	"bytes"
	"encoding/binary"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zstd"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gopkg.in/yaml.v3"

	"postmortemmri/internal/models"
)

// Supported element types
const (
	Uint8   = "uint8"
	Int16   = "int16"
	Uint16  = "uint16"
	Int32   = "int32"
	Float32 = "float32"
	Float64 = "float64"
)

// Zstd is the only supported compression
const Zstd = "zstd"

var (
	ErrUnsupportedDType       = errors.New("unsupported dtype")
	ErrUnsupportedCompression = errors.New("unsupported compression")
	ErrSizeMismatch           = errors.New("voxel data does not match header shape")
)

// Header is the YAML sidecar describing a volume
type Header struct {
	Shape   [3]int      `yaml:"shape"`
	Spacing []float64   `yaml:"spacing,omitempty"`
	Affine  [][]float64 `yaml:"affine,omitempty"`
	DType   string      `yaml:"dtype"`

	// Data is the path of the voxel array, relative to the header
	Data        string `yaml:"data"`
	Compression string `yaml:"compression,omitempty"`
}

// Volume is a grid together with the affine it was acquired with. The
// affine is carried through processing untouched.
type Volume struct {
	Grid   *models.Grid
	Affine *mat.Dense
}

// Read loads the volume described by the header at path. Floating point
// voxels are truncated to integers. When the header has no spacing it is
// derived from the affine.
func Read(path string) (*Volume, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read volume header")
	}
	var h Header
	if err := yaml.Unmarshal(raw, &h); err != nil {
		return nil, errors.Wrapf(err, "failed to parse volume header %s", path)
	}

	if h.Shape[0] <= 0 || h.Shape[1] <= 0 || h.Shape[2] <= 0 {
		return nil, errors.Errorf("header %s: shape must be positive, got %v", path, h.Shape)
	}

	affine, err := affineFromRows(h.Affine)
	if err != nil {
		return nil, errors.Wrapf(err, "header %s", path)
	}

	var spacing models.Spacing
	switch len(h.Spacing) {
	case 0:
		spacing = SpacingFromAffine(affine)
	case 3:
		copy(spacing[:], h.Spacing)
	default:
		return nil, errors.Errorf("header %s: spacing needs 3 values, got %d", path, len(h.Spacing))
	}

	dataPath := h.Data
	if !filepath.IsAbs(dataPath) {
		dataPath = filepath.Join(filepath.Dir(path), dataPath)
	}
	payload, err := os.ReadFile(dataPath)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read voxel data")
	}
	if payload, err = decompress(payload, h.Compression); err != nil {
		return nil, errors.Wrapf(err, "voxel data %s", dataPath)
	}

	g := models.NewGrid(h.Shape[0], h.Shape[1], h.Shape[2], spacing)
	if err := decode(payload, h.DType, g.Data); err != nil {
		return nil, errors.Wrapf(err, "voxel data %s", dataPath)
	}
	if err := g.Validate(); err != nil {
		return nil, errors.Wrapf(err, "volume %s", path)
	}

	return &Volume{Grid: g, Affine: affine}, nil
}

// Write stores v as a header at path and an int32 array beside it. An empty
// compression writes the array uncompressed.
func Write(path string, v *Volume, compression string) error {
	if err := v.Grid.Validate(); err != nil {
		return errors.Wrap(err, "refusing to write invalid grid")
	}
	if compression != "" && compression != Zstd {
		return errors.Wrapf(ErrUnsupportedCompression, "%q", compression)
	}

	dataName := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)) + ".raw"
	if compression == Zstd {
		dataName += ".zst"
	}

	affine := v.Affine
	if affine == nil {
		affine = identityAffine(v.Grid.Spacing)
	}
	g := v.Grid
	h := Header{
		Shape:       [3]int{g.Nx, g.Ny, g.Nz},
		Spacing:     []float64{g.Spacing[0], g.Spacing[1], g.Spacing[2]},
		Affine:      affineRows(affine),
		DType:       Int32,
		Data:        dataName,
		Compression: compression,
	}

	payload := encodeInt32(g.Data)
	payload, err := compress(payload, compression)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return errors.Wrap(err, "failed to create output directory")
	}
	if err := os.WriteFile(filepath.Join(filepath.Dir(path), dataName), payload, 0644); err != nil {
		return errors.Wrap(err, "failed to write voxel data")
	}

	out, err := yaml.Marshal(&h)
	if err != nil {
		return errors.Wrap(err, "failed to encode volume header")
	}
	if err := os.WriteFile(path, out, 0644); err != nil {
		return errors.Wrap(err, "failed to write volume header")
	}
	return nil
}

// WriteMask stores the interior mask the way it was historically inspected:
// protected voxels hold maskSet, all others their raw intensity. The affine
// of ref is reused.
func WriteMask(path string, m *models.Mask, maskSet int, ref *Volume, compression string) error {
	return Write(path, &Volume{
		Grid:   m.Export(maskSet, ref.Grid.Spacing),
		Affine: ref.Affine,
	}, compression)
}

// SpacingFromAffine returns the voxel size encoded in an affine: the length
// of each of the first three columns of its linear part.
func SpacingFromAffine(a mat.Matrix) models.Spacing {
	var s models.Spacing
	col := make([]float64, 4)
	for j := 0; j < 3; j++ {
		mat.Col(col, j, a)
		s[j] = floats.Norm(col[:3], 2)
	}
	return s
}

func identityAffine(s models.Spacing) *mat.Dense {
	return mat.NewDense(4, 4, []float64{
		s[0], 0, 0, 0,
		0, s[1], 0, 0,
		0, 0, s[2], 0,
		0, 0, 0, 1,
	})
}

func affineFromRows(rows [][]float64) (*mat.Dense, error) {
	if len(rows) == 0 {
		return identityAffine(models.Spacing{1, 1, 1}), nil
	}
	if len(rows) != 4 {
		return nil, errors.Errorf("affine needs 4 rows, got %d", len(rows))
	}
	flat := make([]float64, 0, 16)
	for i, r := range rows {
		if len(r) != 4 {
			return nil, errors.Errorf("affine row %d needs 4 values, got %d", i, len(r))
		}
		flat = append(flat, r...)
	}
	return mat.NewDense(4, 4, flat), nil
}

func affineRows(a *mat.Dense) [][]float64 {
	rows := make([][]float64, 4)
	for i := range rows {
		rows[i] = mat.Row(nil, i, a)
	}
	return rows
}

func dtypeSize(dtype string) (int, error) {
	switch dtype {
	case Uint8:
		return 1, nil
	case Int16, Uint16:
		return 2, nil
	case Int32, Float32:
		return 4, nil
	case Float64:
		return 8, nil
	}
	return 0, errors.Wrapf(ErrUnsupportedDType, "%q", dtype)
}

func decode(payload []byte, dtype string, dst []int) error {
	size, err := dtypeSize(dtype)
	if err != nil {
		return err
	}
	if len(payload) != size*len(dst) {
		return errors.Wrapf(ErrSizeMismatch, "%d bytes for %d %s voxels", len(payload), len(dst), dtype)
	}

	le := binary.LittleEndian
	for i := range dst {
		b := payload[i*size:]
		switch dtype {
		case Uint8:
			dst[i] = int(b[0])
		case Int16:
			dst[i] = int(int16(le.Uint16(b)))
		case Uint16:
			dst[i] = int(le.Uint16(b))
		case Int32:
			dst[i] = int(int32(le.Uint32(b)))
		case Float32:
			dst[i] = int(math.Float32frombits(le.Uint32(b)))
		case Float64:
			dst[i] = int(math.Float64frombits(le.Uint64(b)))
		}
	}
	return nil
}

func encodeInt32(data []int) []byte {
	out := make([]byte, 4*len(data))
	for i, v := range data {
		binary.LittleEndian.PutUint32(out[i*4:], uint32(int32(v)))
	}
	return out
}

func compress(data []byte, compression string) ([]byte, error) {
	if compression == "" {
		return data, nil
	}
	var buf bytes.Buffer
	enc, err := zstd.NewWriter(&buf)
	if err != nil {
		return nil, errors.Wrap(err, "zstd encoder")
	}
	if _, err := enc.Write(data); err != nil {
		_ = enc.Close()
		return nil, errors.Wrap(err, "zstd encode")
	}
	if err := enc.Close(); err != nil {
		return nil, errors.Wrap(err, "zstd encode")
	}
	return buf.Bytes(), nil
}

func decompress(data []byte, compression string) ([]byte, error) {
	switch compression {
	case "":
		return data, nil
	case Zstd:
	default:
		return nil, errors.Wrapf(ErrUnsupportedCompression, "%q", compression)
	}

	dec, err := zstd.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, errors.Wrap(err, "zstd decoder")
	}
	defer dec.Close()

	var out bytes.Buffer
	if _, err := out.ReadFrom(dec); err != nil {
		return nil, errors.Wrap(err, "zstd decode")
	}
	return out.Bytes(), nil
}

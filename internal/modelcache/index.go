package modelcache

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gopkg.in/yaml.v3"

	"github.com/omniface/omniface-go/internal/errors"
)

const (
	// IndexFileName holds the embedding matrix of a tenant
	IndexFileName = "index.bin"
	// LabelsFileName holds one label per index row
	LabelsFileName = "labels.yaml"

	indexMagic   = "OFIX"
	indexVersion = 1

	// maxIndexDim guards against reading garbage headers
	maxIndexDim = 4096
)

// indexHeader is the fixed little-endian prefix of index.bin
type indexHeader struct {
	Magic   [4]byte
	Version uint32
	Rows    uint32
	Dim     uint32
}

// VectorIndex is an immutable set of L2-normalised embeddings with their labels.
// It is replaced wholesale when the tenant's artifacts change.
type VectorIndex struct {
	dim     int
	labels  []string
	vectors *mat.Dense // nil when the index has no rows
	mtime   time.Time
}

// NewVectorIndex builds an index from raw vectors, normalising each row.
// All vectors must share dim and len(labels) must equal len(vectors).
func NewVectorIndex(dim int, labels []string, vectors [][]float32) (*VectorIndex, error) {
	if dim <= 0 || dim > maxIndexDim {
		return nil, errors.Newf("invalid embedding dimension %d", dim).
			Component("modelcache").
			Category(errors.CategoryValidation).
			Context("dim", dim).
			Build()
	}
	if len(labels) != len(vectors) {
		return nil, errors.Newf("%d labels for %d vectors", len(labels), len(vectors)).
			Component("modelcache").
			Category(errors.CategoryValidation).
			Context("labels", len(labels)).
			Context("rows", len(vectors)).
			Build()
	}

	idx := &VectorIndex{dim: dim, labels: append([]string(nil), labels...)}
	if len(vectors) == 0 {
		return idx, nil
	}

	data := make([]float64, 0, len(vectors)*dim)
	for i, v := range vectors {
		if len(v) != dim {
			return nil, errors.Newf("vector %d has dimension %d, want %d", i, len(v), dim).
				Component("modelcache").
				Category(errors.CategoryValidation).
				Build()
		}
		for _, x := range v {
			data = append(data, float64(x))
		}
	}
	idx.vectors = mat.NewDense(len(vectors), dim, data)
	idx.normalize()
	return idx, nil
}

func (v *VectorIndex) normalize() {
	rows, _ := v.vectors.Dims()
	for i := range rows {
		row := v.vectors.RawRowView(i)
		if n := floats.Norm(row, 2); n > 0 {
			floats.Scale(1/n, row)
		}
	}
}

// Dim returns the embedding dimension
func (v *VectorIndex) Dim() int { return v.dim }

// Len returns the number of enrolled vectors
func (v *VectorIndex) Len() int { return len(v.labels) }

// Label returns the label of row i, or "" when out of range
func (v *VectorIndex) Label(i int) string {
	if i < 0 || i >= len(v.labels) {
		return ""
	}
	return v.labels[i]
}

// Labels returns a copy of the row labels
func (v *VectorIndex) Labels() []string {
	return append([]string(nil), v.labels...)
}

// ModTime is the artifact time the index was loaded from
func (v *VectorIndex) ModTime() time.Time { return v.mtime }

// Search returns the row with the highest inner product against query and
// that score. query is expected to be L2-normalised. An empty index or a
// dimension mismatch returns row -1.
func (v *VectorIndex) Search(query []float32) (int, float32) {
	if v == nil || v.vectors == nil || len(query) != v.dim {
		return -1, 0
	}

	q := make([]float64, len(query))
	for i, x := range query {
		q[i] = float64(x)
	}

	best, bestScore := -1, math.Inf(-1)
	rows, _ := v.vectors.Dims()
	for i := range rows {
		if s := floats.Dot(v.vectors.RawRowView(i), q); s > bestScore {
			best, bestScore = i, s
		}
	}
	return best, float32(bestScore)
}

// Normalize scales x to unit length in place. A zero vector is left as is.
func Normalize(x []float32) {
	var sum float64
	for _, v := range x {
		sum += float64(v) * float64(v)
	}
	if sum == 0 {
		return
	}
	inv := float32(1 / math.Sqrt(sum))
	for i := range x {
		x[i] *= inv
	}
}

// readIndex parses index.bin and labels.yaml from dir
func readIndex(dir string) (*VectorIndex, error) {
	indexPath := filepath.Join(dir, IndexFileName)
	f, err := os.Open(indexPath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := bufio.NewReader(f)
	var hdr indexHeader
	if err := binary.Read(r, binary.LittleEndian, &hdr); err != nil {
		return nil, corruptIndex(indexPath, fmt.Errorf("reading header: %w", err))
	}
	if string(hdr.Magic[:]) != indexMagic {
		return nil, corruptIndex(indexPath, fmt.Errorf("bad magic %q", hdr.Magic[:]))
	}
	if hdr.Version != indexVersion {
		return nil, corruptIndex(indexPath, fmt.Errorf("unsupported version %d", hdr.Version))
	}
	if hdr.Dim == 0 || hdr.Dim > maxIndexDim {
		return nil, corruptIndex(indexPath, fmt.Errorf("invalid dimension %d", hdr.Dim))
	}

	rows, dim := int(hdr.Rows), int(hdr.Dim)
	if info, err := f.Stat(); err == nil {
		want := int64(binary.Size(hdr)) + int64(rows)*int64(dim)*4
		if info.Size() != want {
			return nil, corruptIndex(indexPath, fmt.Errorf("file is %d bytes, header implies %d", info.Size(), want))
		}
	}

	flat := make([]float32, rows*dim)
	if err := binary.Read(r, binary.LittleEndian, flat); err != nil {
		return nil, corruptIndex(indexPath, fmt.Errorf("reading vectors: %w", err))
	}

	labels, err := readLabels(filepath.Join(dir, LabelsFileName))
	if err != nil {
		return nil, err
	}
	if len(labels) != rows {
		return nil, errors.Newf("labels file has %d entries for %d index rows", len(labels), rows).
			Component("modelcache").
			Category(errors.CategoryValidation).
			Context("dir", dir).
			Build()
	}

	vectors := make([][]float32, rows)
	for i := range rows {
		vectors[i] = flat[i*dim : (i+1)*dim]
	}
	return NewVectorIndex(dim, labels, vectors)
}

// readLabels accepts a YAML sequence of strings, which also covers a JSON array
func readLabels(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var labels []string
	if err := yaml.Unmarshal(data, &labels); err != nil {
		return nil, errors.New(err).
			Component("modelcache").
			Category(errors.CategoryValidation).
			Context("file", path).
			Build()
	}
	return labels, nil
}

func corruptIndex(path string, err error) error {
	return errors.New(err).
		Component("modelcache").
		Category(errors.CategoryIndex).
		Context("file", path).
		Build()
}

// WriteIndex stores labels and vectors as index.bin and labels.yaml in dir.
// Both files are written to temporary names first and renamed into place, so
// a concurrent Load never sees a half-written index.
func WriteIndex(dir string, labels []string, vectors [][]float32) error {
	if len(vectors) == 0 {
		return errors.Newf("no vectors to write").
			Component("modelcache").
			Category(errors.CategoryValidation).
			Build()
	}
	// validates shape
	if _, err := NewVectorIndex(len(vectors[0]), labels, vectors); err != nil {
		return err
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.New(err).
			Component("modelcache").
			Category(errors.CategoryFileIO).
			Context("dir", dir).
			Build()
	}

	labelData, err := yaml.Marshal(labels)
	if err != nil {
		return err
	}
	if err := writeAtomic(filepath.Join(dir, LabelsFileName), func(w io.Writer) error {
		_, err := w.Write(labelData)
		return err
	}); err != nil {
		return err
	}

	hdr := indexHeader{Version: indexVersion, Rows: uint32(len(vectors)), Dim: uint32(len(vectors[0]))} //nolint:gosec // G115: bounded by maxIndexDim and slice length
	copy(hdr.Magic[:], indexMagic)
	return writeAtomic(filepath.Join(dir, IndexFileName), func(w io.Writer) error {
		if err := binary.Write(w, binary.LittleEndian, hdr); err != nil {
			return err
		}
		for _, v := range vectors {
			if err := binary.Write(w, binary.LittleEndian, v); err != nil {
				return err
			}
		}
		return nil
	})
}

func writeAtomic(path string, fill func(io.Writer) error) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return errors.New(err).Component("modelcache").Category(errors.CategoryFileIO).Context("file", path).Build()
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck // gone after a successful rename

	w := bufio.NewWriter(tmp)
	if err := fill(w); err != nil {
		_ = tmp.Close()
		return errors.New(err).Component("modelcache").Category(errors.CategoryFileIO).Context("file", path).Build()
	}
	if err := w.Flush(); err != nil {
		_ = tmp.Close()
		return errors.New(err).Component("modelcache").Category(errors.CategoryFileIO).Context("file", path).Build()
	}
	if err := tmp.Close(); err != nil {
		return errors.New(err).Component("modelcache").Category(errors.CategoryFileIO).Context("file", path).Build()
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return errors.New(err).Component("modelcache").Category(errors.CategoryFileIO).Context("file", path).Build()
	}
	return nil
}

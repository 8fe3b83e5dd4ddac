package modelcache

import (
	"io"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/omniface/omniface-go/internal/errors"
)

// Enrollment is one labelled embedding in an import file. A person may have
// several rows.
type Enrollment struct {
	Label     string    `yaml:"label"`
	Embedding []float32 `yaml:"embedding"`
}

// ReadEnrollments parses a YAML sequence of enrollments and returns them as
// parallel label and vector slices ready for WriteIndex
func ReadEnrollments(r io.Reader) ([]string, [][]float32, error) {
	var rows []Enrollment
	if err := yaml.NewDecoder(r).Decode(&rows); err != nil {
		return nil, nil, errors.New(err).
			Component("modelcache").
			Category(errors.CategoryValidation).
			Context("operation", "decode_enrollments").
			Build()
	}

	labels := make([]string, 0, len(rows))
	vectors := make([][]float32, 0, len(rows))
	for i, row := range rows {
		label := strings.TrimSpace(row.Label)
		if label == "" {
			return nil, nil, errors.Newf("enrollment %d has no label", i).
				Component("modelcache").
				Category(errors.CategoryValidation).
				Context("row", i).
				Build()
		}
		labels = append(labels, label)
		vectors = append(vectors, row.Embedding)
	}
	return labels, vectors, nil
}

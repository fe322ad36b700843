// Package io defines sources of tabular data for scoring.
package io

import "github.com/hed1ad/fieldtrust/pkg/dataset"

// Reader loads a complete dataset from a source.
type Reader interface {
	// Read returns the dataset. It may be called once.
	Read() (*dataset.Dataset, error)

	// Close releases resources.
	Close() error
}

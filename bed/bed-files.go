// plinkQC: a tool for validating and repairing PLINK binary datasets.
// Copyright (c) 2021-2023 imec vzw.

// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, either version 3 of the
// License, or (at your option) any later version, and Additional Terms
// (see below).

// This program is distributed in the hope that it will be useful, but
// WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the GNU
// Affero General Public License for more details.

// You should have received a copy of the GNU Affero General Public
// License and Additional Terms along with this program. If not, see
// <https://github.com/exascience/plinkqc/blob/master/LICENSE.txt>.

// Package bed validates PLINK binary genotype matrices (.bed files)
// and re-synchronizes them with a filtered variant table by invoking
// an external PLINK binary.
//
// The genotype data itself is never decoded here; statistics and
// subsetting are PLINK's job. This package only checks that a .bed
// file has the expected header and the size implied by the paired
// sample and variant tables.
package bed

import (
	"fmt"
	"io"
	"os"
)

// The fixed 3-byte .bed header. The first two bytes are the magic
// number, the third selects SNP-major layout (one block of packed
// genotypes per variant), which is the only layout PLINK 1.9 writes.
const (
	magic1   = 0x6c
	magic2   = 0x1b
	snpMajor = 0x01

	headerSize = 3
)

// BlockSize returns the number of bytes one variant occupies in a
// SNP-major .bed file: 2 bits per sample, packed 4 samples per byte.
func BlockSize(samples int) int {
	return (samples + 3) / 4
}

// ExpectedSize returns the exact file size of a SNP-major .bed file
// holding the given numbers of samples and variants.
func ExpectedSize(samples, variants int) int64 {
	return headerSize + int64(BlockSize(samples))*int64(variants)
}

// CheckHeader verifies the magic number and the SNP-major layout byte
// of a .bed file.
func CheckHeader(name string) (err error) {
	f, err := os.Open(name)
	if err != nil {
		return err
	}
	defer func() {
		nerr := f.Close()
		if err == nil {
			err = nerr
		}
	}()
	var header [headerSize]byte
	if _, err := io.ReadFull(f, header[:]); err != nil {
		return fmt.Errorf("%v, while reading the header of %v", err, name)
	}
	if header[0] != magic1 || header[1] != magic2 {
		return fmt.Errorf("%v is not a PLINK binary genotype file", name)
	}
	if header[2] != snpMajor {
		return fmt.Errorf("%v is in individual-major layout; recode it to SNP-major layout first", name)
	}
	return nil
}

// Validate verifies the header of a .bed file and checks its size
// against the row counts of the paired sample and variant tables. A
// size mismatch means the dataset triple is inconsistent and must not
// be processed further.
func Validate(name string, samples, variants int) error {
	if err := CheckHeader(name); err != nil {
		return err
	}
	info, err := os.Stat(name)
	if err != nil {
		return err
	}
	if expected := ExpectedSize(samples, variants); info.Size() != expected {
		return fmt.Errorf(
			"%v has %v bytes, but %v samples and %v variants imply %v bytes; truncated or mismatched dataset",
			name, info.Size(), samples, variants, expected)
	}
	return nil
}

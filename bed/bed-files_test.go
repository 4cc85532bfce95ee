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

package bed

import (
	"io/ioutil"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeBed writes a syntactically valid SNP-major .bed file with
// zeroed genotype blocks.
func writeBed(t *testing.T, samples, variants int) string {
	t.Helper()
	name := filepath.Join(t.TempDir(), "test.bed")
	data := make([]byte, ExpectedSize(samples, variants))
	data[0] = magic1
	data[1] = magic2
	data[2] = snpMajor
	require.NoError(t, ioutil.WriteFile(name, data, 0600))
	return name
}

func TestBlockSize(t *testing.T) {
	assert.Equal(t, 0, BlockSize(0))
	assert.Equal(t, 1, BlockSize(1))
	assert.Equal(t, 1, BlockSize(4))
	assert.Equal(t, 2, BlockSize(5))
	assert.Equal(t, 250, BlockSize(1000))
}

func TestExpectedSize(t *testing.T) {
	assert.Equal(t, int64(3), ExpectedSize(0, 0))
	assert.Equal(t, int64(3+2*10), ExpectedSize(5, 10))
	assert.Equal(t, int64(3+250*500000), ExpectedSize(1000, 500000))
}

func TestCheckHeader(t *testing.T) {
	name := writeBed(t, 4, 2)
	assert.NoError(t, CheckHeader(name))
}

func TestCheckHeaderBadMagic(t *testing.T) {
	name := filepath.Join(t.TempDir(), "test.bed")
	require.NoError(t, ioutil.WriteFile(name, []byte{0x00, 0x1b, 0x01}, 0600))
	err := CheckHeader(name)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not a PLINK binary genotype file")
}

func TestCheckHeaderIndividualMajor(t *testing.T) {
	name := filepath.Join(t.TempDir(), "test.bed")
	require.NoError(t, ioutil.WriteFile(name, []byte{magic1, magic2, 0x00}, 0600))
	err := CheckHeader(name)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "individual-major")
}

func TestCheckHeaderTruncated(t *testing.T) {
	name := filepath.Join(t.TempDir(), "test.bed")
	require.NoError(t, ioutil.WriteFile(name, []byte{magic1}, 0600))
	assert.Error(t, CheckHeader(name))
}

func TestValidate(t *testing.T) {
	name := writeBed(t, 5, 10)
	assert.NoError(t, Validate(name, 5, 10))

	err := Validate(name, 5, 11)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "truncated or mismatched dataset")
	// 9 samples need 3-byte blocks instead of 2
	assert.Error(t, Validate(name, 9, 10))
	// 6 samples pack into the same 2-byte blocks as 5, so the size
	// check cannot tell them apart
	assert.NoError(t, Validate(name, 6, 10))
}

func TestPrefixed(t *testing.T) {
	data := Prefixed("/data/cohort")
	assert.Equal(t, "/data/cohort.bed", data.Bed)
	assert.Equal(t, "/data/cohort.bim", data.Bim)
	assert.Equal(t, "/data/cohort.fam", data.Fam)
}

func TestFindPlinkMissing(t *testing.T) {
	_, err := FindPlink("plink-executable-that-does-not-exist")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no usable PLINK executable")
}

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

package tables

import (
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readLines(t *testing.T, name string) (lines []string) {
	t.Helper()
	in, err := Open(name)
	require.NoError(t, err)
	defer func() { require.NoError(t, in.Close()) }()
	require.NoError(t, in.ForEachLine(func(line []byte) error {
		lines = append(lines, string(line))
		return nil
	}))
	return lines
}

func TestRoundTrip(t *testing.T) {
	for _, ext := range []string{"", GzExt} {
		name := filepath.Join(t.TempDir(), "table.txt"+ext)
		out, err := Create(name)
		require.NoError(t, err)
		defer out.Discard()
		_, err = out.Write([]byte("fam1 sam1 0 0 1 -9\n"))
		require.NoError(t, err)
		_, err = out.Write([]byte("fam2 sam2 0 0 2 -9\n"))
		require.NoError(t, err)
		require.NoError(t, out.Commit())

		assert.Equal(t, []string{"fam1 sam1 0 0 1 -9", "fam2 sam2 0 0 2 -9"}, readLines(t, name))
	}
}

func TestReadLineEdgeCases(t *testing.T) {
	name := filepath.Join(t.TempDir(), "table.txt")
	// empty lines, a carriage return, and a missing final newline
	require.NoError(t, ioutil.WriteFile(name, []byte("one\n\ntwo\r\n\nthree"), 0600))

	assert.Equal(t, []string{"one", "two", "three"}, readLines(t, name))
}

func TestCommitIsAtomic(t *testing.T) {
	name := filepath.Join(t.TempDir(), "table.txt")
	out, err := Create(name)
	require.NoError(t, err)
	defer out.Discard()
	_, err = out.Write([]byte("one\n"))
	require.NoError(t, err)

	_, err = os.Stat(name)
	assert.True(t, os.IsNotExist(err), "destination must not exist before Commit")

	require.NoError(t, out.Commit())
	_, err = os.Stat(name)
	assert.NoError(t, err)
}

func TestDiscardRemovesTemporary(t *testing.T) {
	dir := t.TempDir()
	name := filepath.Join(dir, "table.txt")
	out, err := Create(name)
	require.NoError(t, err)
	_, err = out.Write([]byte("one\n"))
	require.NoError(t, err)
	out.Discard()

	entries, err := ioutil.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries, "Discard must leave no temporary file behind")
}

func TestDiscardAfterCommit(t *testing.T) {
	name := filepath.Join(t.TempDir(), "table.txt")
	out, err := Create(name)
	require.NoError(t, err)
	_, err = out.Write([]byte("one\n"))
	require.NoError(t, err)
	require.NoError(t, out.Commit())
	out.Discard()

	assert.Equal(t, []string{"one"}, readLines(t, name))
}

func TestFetch(t *testing.T) {
	name := filepath.Join(t.TempDir(), "table.txt")
	require.NoError(t, ioutil.WriteFile(name, []byte("one\ntwo\nthree\n"), 0600))

	in, err := Open(name)
	require.NoError(t, err)
	defer func() { require.NoError(t, in.Close()) }()

	require.Equal(t, 2, in.Fetch(2))
	assert.Equal(t, [][]byte{[]byte("one"), []byte("two")}, in.Data().([][]byte))
	require.Equal(t, 1, in.Fetch(2))
	assert.Equal(t, [][]byte{[]byte("three")}, in.Data().([][]byte))
	require.Equal(t, 0, in.Fetch(2))
	assert.NoError(t, in.Err())
}

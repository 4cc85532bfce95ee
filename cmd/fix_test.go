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

package cmd

import (
	"io/ioutil"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/exascience/plinkqc/bed"
	"github.com/exascience/plinkqc/changes"
	"github.com/exascience/plinkqc/fam"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeDataset writes a consistent .bed/.bim/.fam triple and returns
// its prefix. The genotype blocks are zeroed; only the header and the
// file size matter to the repair pipeline.
func writeDataset(t *testing.T, dir string, famLines, bimLines []string) string {
	t.Helper()
	prefix := filepath.Join(dir, "cohort")
	require.NoError(t, ioutil.WriteFile(prefix+".fam",
		[]byte(strings.Join(famLines, "\n")+"\n"), 0600))
	require.NoError(t, ioutil.WriteFile(prefix+".bim",
		[]byte(strings.Join(bimLines, "\n")+"\n"), 0600))
	data := make([]byte, bed.ExpectedSize(len(famLines), len(bimLines)))
	data[0] = 0x6c
	data[1] = 0x1b
	data[2] = 0x01
	require.NoError(t, ioutil.WriteFile(prefix+".bed", data, 0600))
	return prefix
}

func defaultFixRun(inPrefix, outPrefix string) fixRun {
	return fixRun{
		inPrefix:  inPrefix,
		outPrefix: outPrefix,
		fam: fam.Options{
			FixInvalidChars: true,
			FixDuplicates:   true,
		},
		fixDuplicateIDs:       true,
		fixDuplicatePositions: true,
	}
}

func TestRunFixCopyThrough(t *testing.T) {
	inDir, outDir := t.TempDir(), t.TempDir()
	prefix := writeDataset(t, inDir,
		[]string{
			"fam1 sample1 0 0 1 -9",
			"fam2 sample1 0 0 2 -9",
		},
		[]string{
			"1\trs1\t0\t100\tA\tG",
			"1\trs2\t0\t200\tA\tG",
			"2\trs1\t0\t300\tA\tG",
		})
	outPrefix := filepath.Join(outDir, "fixed")

	require.NoError(t, runFix(defaultFixRun(prefix, outPrefix)))

	// no variants were removed, so the genotype matrix is copied
	// through byte for byte
	inBed, err := ioutil.ReadFile(prefix + ".bed")
	require.NoError(t, err)
	outBed, err := ioutil.ReadFile(outPrefix + ".bed")
	require.NoError(t, err)
	assert.Equal(t, inBed, outBed)

	outFam, err := ioutil.ReadFile(outPrefix + ".fam")
	require.NoError(t, err)
	assert.Equal(t,
		"fam1\tsample1\t0\t0\t1\t-9\n"+
			"fam2\tsample1_dup1\t0\t0\t2\t-9\n",
		string(outFam))

	outBim, err := ioutil.ReadFile(outPrefix + ".bim")
	require.NoError(t, err)
	assert.Equal(t,
		"1\trs1\t0\t100\tA\tG\n"+
			"1\trs2\t0\t200\tA\tG\n"+
			"2\t.\t0\t300\tA\tG\n",
		string(outBim))

	report, err := ioutil.ReadFile(outPrefix + ".changes.tsv")
	require.NoError(t, err)
	assert.Contains(t, string(report), string(changes.Duplicate))
	assert.Contains(t, string(report), string(changes.DuplicateRsID))

	// the working directory is removed after the run
	entries, err := ioutil.ReadDir(outDir)
	require.NoError(t, err)
	for _, entry := range entries {
		assert.False(t, strings.HasPrefix(entry.Name(), "plinkqc-work-"))
	}
}

func TestRunFixArchivesOriginals(t *testing.T) {
	inDir, outDir := t.TempDir(), t.TempDir()
	prefix := writeDataset(t, inDir,
		[]string{"fam1 sample1 0 0 1 -9"},
		[]string{"1\trs1\t0\t100\tA\tG"})
	run := defaultFixRun(prefix, filepath.Join(outDir, "fixed"))
	run.archive = true
	require.NoError(t, runFix(run))

	entries, err := ioutil.ReadDir(outDir)
	require.NoError(t, err)
	var archiveDir string
	for _, entry := range entries {
		if strings.HasPrefix(entry.Name(), "plinkqc-archive-") {
			archiveDir = filepath.Join(outDir, entry.Name())
		}
	}
	require.NotEmpty(t, archiveDir, "archive directory missing")

	for _, ext := range []string{".bed", ".bim", ".fam"} {
		original, err := ioutil.ReadFile(prefix + ext)
		require.NoError(t, err)
		archived, err := ioutil.ReadFile(filepath.Join(archiveDir, "cohort"+ext))
		require.NoError(t, err)
		assert.Equal(t, original, archived)
	}
}

func TestRunFixSyncsGenotypes(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("shell script stub")
	}
	inDir, outDir := t.TempDir(), t.TempDir()
	prefix := writeDataset(t, inDir,
		[]string{"fam1 sample1 0 0 1 -9"},
		[]string{
			"1\trs1\t0\t100\tA\tG",
			"1\trs2\t0\t100\tA\tG",
			"1\trs3\t0\t200\tA\tG",
		})
	outPrefix := filepath.Join(outDir, "fixed")

	stubDir := t.TempDir()
	plink := filepath.Join(stubDir, "plink")
	argsFile := filepath.Join(stubDir, "args.txt")
	require.NoError(t, ioutil.WriteFile(plink,
		[]byte("#!/bin/sh\necho \"$@\" >> "+argsFile+"\nexit 0\n"), 0755))

	run := defaultFixRun(prefix, outPrefix)
	run.sync.Plink = plink
	require.NoError(t, runFix(run))

	data, err := ioutil.ReadFile(argsFile)
	require.NoError(t, err)
	args := strings.TrimRight(string(data), "\n")
	assert.Contains(t, args, "--bed "+prefix+".bed")
	assert.Contains(t, args, "--extract ")
	assert.Contains(t, args, "retain.txt")
	assert.Contains(t, args, "--make-bed")
	assert.Contains(t, args, "--out "+outPrefix)
}

func TestRunFixAmbiguousRetain(t *testing.T) {
	inDir, outDir := t.TempDir(), t.TempDir()
	prefix := writeDataset(t, inDir,
		[]string{"fam1 sample1 0 0 1 -9"},
		[]string{
			"1\trs1\t0\t100\tA\tG",
			"1\trs2\t0\t100\tA\tG",
			"2\trs1\t0\t200\tA\tG",
		})
	run := defaultFixRun(prefix, filepath.Join(outDir, "fixed"))
	// without the ID pass, the removed rs1 aliases the retained rs1
	run.fixDuplicateIDs = false
	err := runFix(run)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "assign unique variant IDs")
}

func TestRunFixMissingInput(t *testing.T) {
	err := runFix(defaultFixRun(
		filepath.Join(t.TempDir(), "absent"),
		filepath.Join(t.TempDir(), "fixed")))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid input dataset")
}

func TestRunFixInconsistentDataset(t *testing.T) {
	inDir, outDir := t.TempDir(), t.TempDir()
	prefix := writeDataset(t, inDir,
		[]string{"fam1 sample1 0 0 1 -9"},
		[]string{"1\trs1\t0\t100\tA\tG"})
	// truncate the genotype matrix to the bare header
	require.NoError(t, ioutil.WriteFile(prefix+".bed", []byte{0x6c, 0x1b, 0x01}, 0600))

	err := runFix(defaultFixRun(prefix, filepath.Join(outDir, "fixed")))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "truncated or mismatched dataset")
}

func TestCheckDataset(t *testing.T) {
	prefix := writeDataset(t, t.TempDir(),
		[]string{
			"fam1 sam#ple1 0 0 1 -9",
			"fam1 sample2 0 0 2 -9",
		},
		[]string{
			"1\trs1\t0\t100\tA\tG",
			"1\trs1\t0\t200\tA\tG",
		})
	findings, err := checkDataset(prefix, fam.DefaultExtraAllowed)
	require.NoError(t, err)

	_, counts := findings.CountByType()
	assert.Equal(t, 1, counts[changes.InvalidChars])
	assert.Equal(t, 1, counts[changes.DuplicateFamilyID])
	assert.Equal(t, 1, counts[changes.DuplicateRsID])
}

func TestCheckDatasetClean(t *testing.T) {
	prefix := writeDataset(t, t.TempDir(),
		[]string{"fam1 sample1 0 0 1 -9"},
		[]string{"1\trs1\t0\t100\tA\tG"})
	findings, err := checkDataset(prefix, fam.DefaultExtraAllowed)
	require.NoError(t, err)
	assert.Equal(t, 0, findings.Len())
}

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
	"runtime"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubPlink installs a shell script that stands in for the PLINK
// executable and appends its arguments to an args file, one invocation
// per line.
func stubPlink(t *testing.T, body string) (plink, argsFile string) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell script stub")
	}
	dir := t.TempDir()
	plink = filepath.Join(dir, "plink")
	argsFile = filepath.Join(dir, "args.txt")
	script := "#!/bin/sh\necho \"$@\" >> " + argsFile + "\n" + body + "\n"
	require.NoError(t, ioutil.WriteFile(plink, []byte(script), 0755))
	return plink, argsFile
}

func recordedArgs(t *testing.T, argsFile string) []string {
	t.Helper()
	data, err := ioutil.ReadFile(argsFile)
	require.NoError(t, err)
	return strings.Split(strings.TrimRight(string(data), "\n"), "\n")
}

func TestSyncGenotypes(t *testing.T) {
	plink, argsFile := stubPlink(t, "exit 0")
	data := Dataset{Bed: "in.bed", Bim: "work/idfix.bim", Fam: "work/fixed.fam"}
	err := SyncGenotypes(data, "work/retain.txt", "out", SyncOptions{Plink: plink})
	require.NoError(t, err)

	calls := recordedArgs(t, argsFile)
	require.Equal(t, 1, len(calls))
	assert.Equal(t,
		"--bed in.bed --bim work/idfix.bim --fam work/fixed.fam "+
			"--extract work/retain.txt --make-bed --out out --memory 4000",
		calls[0])
}

func TestSyncGenotypesRetriesWithReducedMemory(t *testing.T) {
	// fail the first invocation only
	plink, argsFile := stubPlink(t,
		`if [ -f "$(dirname "$0")/marker" ]; then exit 0; fi`+"\n"+
			`touch "$(dirname "$0")/marker"`+"\n"+
			"exit 1")
	data := Dataset{Bed: "in.bed", Bim: "in.bim", Fam: "in.fam"}
	err := SyncGenotypes(data, "retain.txt", "out", SyncOptions{Plink: plink, MemoryMB: 6000})
	require.NoError(t, err)

	calls := recordedArgs(t, argsFile)
	require.Equal(t, 2, len(calls))
	assert.Contains(t, calls[0], "--memory 6000")
	assert.Contains(t, calls[1], "--memory 3000")
}

func TestSyncGenotypesFailure(t *testing.T) {
	plink, argsFile := stubPlink(t, "exit 1")
	data := Dataset{Bed: "in.bed", Bim: "in.bim", Fam: "in.fam"}
	err := SyncGenotypes(data, "retain.txt", "out", SyncOptions{Plink: plink})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "after retry")

	// the failed invocation is retried once with half the memory
	calls := recordedArgs(t, argsFile)
	require.Equal(t, 2, len(calls))
	assert.Contains(t, calls[0], "--memory 4000")
	assert.Contains(t, calls[1], "--memory 2000")
}

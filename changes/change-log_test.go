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

package changes

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogAddAndMerge(t *testing.T) {
	l := NewLog()
	assert.Equal(t, 0, l.Len())

	l.Add(InvalidChars, "fam 1 sam!1", "fam_1 sam_1", "invalid characters replaced by '_'")
	l.Add(Duplicate, "sam_1", "sam_1_dup1", "occurrence 2 of duplicate sample ID renamed")
	require.Equal(t, 2, l.Len())

	other := NewLog()
	other.Add(DuplicateRsID, "rs1", ".", "duplicate variant ID at 1:100 cleared")
	l.Merge(other)
	l.Merge(nil)
	require.Equal(t, 3, l.Len())
	assert.Equal(t, DuplicateRsID, l.Entries[2].Type)
}

func TestLogCountByType(t *testing.T) {
	l := NewLog()
	l.Add(DuplicateChrPosRemoved, "1:100 rs1", "", "record at duplicated position removed")
	l.Add(DuplicateRsID, "rs2", ".", "duplicate variant ID at 1:200 cleared")
	l.Add(DuplicateChrPosRemoved, "1:100 rs3", "", "record at duplicated position removed")

	types, counts := l.CountByType()
	require.Equal(t, []Type{DuplicateChrPosRemoved, DuplicateRsID}, types)
	assert.Equal(t, 2, counts[DuplicateChrPosRemoved])
	assert.Equal(t, 1, counts[DuplicateRsID])
}

func TestLogWriteTSV(t *testing.T) {
	l := NewLog()
	l.Add(DuplicateFamilyID, "fam1", "fam1", "family ID shared by 2 samples")

	var buf bytes.Buffer
	require.NoError(t, l.WriteTSV(&buf))
	assert.Equal(t,
		Header+"\n"+
			"DUPLICATE_FID\tfam1\tfam1\tfamily ID shared by 2 samples\n",
		buf.String())
}

func TestLogWriteTSVEmpty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewLog().WriteTSV(&buf))
	assert.Equal(t, Header+"\n", buf.String())
}

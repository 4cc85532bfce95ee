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

// Package fam implements reading, writing, and repairing PLINK sample
// tables (.fam files).
package fam

import (
	"bytes"
)

// A SampleRecord is one line of a PLINK .fam file.
//
// PLINK .fam fields:
// FAMILYID SAMPLEID FATHERID MOTHERID SEX PHENOTYPE
// F1       S1       0        0        1   -9
//
// The sample table is positionally paired with the .bed genotype
// matrix: row i of the table describes row i of the genotypes. All
// operations on sample records therefore preserve row count and row
// order.
type SampleRecord struct {
	FamilyID   string
	SampleID   string
	PaternalID string
	MaternalID string
	Sex        string
	Phenotype  string

	// raw holds the verbatim line for records that do not have exactly
	// 6 fields. Such records are passed through unchanged.
	raw []byte
}

// Malformed tells whether the record did not have exactly 6 fields
// when it was parsed. Malformed records are never modified.
func (r *SampleRecord) Malformed() bool {
	return r.raw != nil
}

// ParseSampleRecord parses one line of a .fam file. Lines without
// exactly 6 whitespace-delimited fields are retained verbatim and
// flagged as malformed rather than rejected, so that the row pairing
// with the genotype matrix stays intact.
func ParseSampleRecord(line []byte) *SampleRecord {
	fields := bytes.Fields(line)
	if len(fields) != 6 {
		return &SampleRecord{raw: append([]byte(nil), line...)}
	}
	return &SampleRecord{
		FamilyID:   string(fields[0]),
		SampleID:   string(fields[1]),
		PaternalID: string(fields[2]),
		MaternalID: string(fields[3]),
		Sex:        string(fields[4]),
		Phenotype:  string(fields[5]),
	}
}

// Format appends the tab-delimited representation of the record,
// including the trailing newline, to out.
func (r *SampleRecord) Format(out []byte) []byte {
	if r.raw != nil {
		out = append(out, r.raw...)
		return append(out, '\n')
	}
	out = append(out, r.FamilyID...)
	out = append(out, '\t')
	out = append(out, r.SampleID...)
	out = append(out, '\t')
	out = append(out, r.PaternalID...)
	out = append(out, '\t')
	out = append(out, r.MaternalID...)
	out = append(out, '\t')
	out = append(out, r.Sex...)
	out = append(out, '\t')
	out = append(out, r.Phenotype...)
	return append(out, '\n')
}

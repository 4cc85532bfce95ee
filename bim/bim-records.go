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

// Package bim implements reading, writing, and repairing PLINK variant
// tables (.bim files).
package bim

import (
	"bytes"
	"fmt"
	"strconv"
)

// MissingID is the sentinel variant identifier that downstream genomic
// tools interpret as "no ID". Duplicate variant identifiers are
// suppressed by rewriting them to this sentinel.
const MissingID = "."

// A VariantRecord is one line of a PLINK .bim file.
//
// PLINK .bim fields:
// CHR ID        MAP(cm) POS    ALLELE1 ALLELE2
// 1   rs3094315 0.02013 752566 G       A
//
// The genetic distance is kept verbatim as a string; it is never
// interpreted by the fixers.
type VariantRecord struct {
	Chromosome string
	VariantID  string
	Distance   string
	Position   int
	Allele1    string
	Allele2    string
}

// A Locus is the chromosome/base-pair position pair that identifies a
// genomic location.
type Locus struct {
	Chromosome string
	Position   int
}

// Locus returns the locus key of the record.
func (r *VariantRecord) Locus() Locus {
	return Locus{Chromosome: r.Chromosome, Position: r.Position}
}

// String formats a locus as chromosome:position.
func (l Locus) String() string {
	return l.Chromosome + ":" + strconv.Itoa(l.Position)
}

// ParseVariantRecord parses one line of a .bim file. Unlike sample
// tables, variant tables are rejected outright when malformed: a
// record whose position cannot be parsed has no usable locus key, and
// the paired genotype matrix cannot be reconciled against a table of
// unknown shape.
func ParseVariantRecord(line []byte) (*VariantRecord, error) {
	fields := bytes.Fields(line)
	if len(fields) != 6 {
		return nil, fmt.Errorf("invalid number of fields in BIM line %v", string(line))
	}
	pos, err := strconv.Atoi(string(fields[3]))
	if err != nil {
		return nil, fmt.Errorf("invalid base-pair position in BIM line %v", string(line))
	}
	return &VariantRecord{
		Chromosome: string(fields[0]),
		VariantID:  string(fields[1]),
		Distance:   string(fields[2]),
		Position:   pos,
		Allele1:    string(fields[4]),
		Allele2:    string(fields[5]),
	}, nil
}

// Format appends the tab-delimited representation of the record,
// including the trailing newline, to out.
func (r *VariantRecord) Format(out []byte) []byte {
	out = append(out, r.Chromosome...)
	out = append(out, '\t')
	out = append(out, r.VariantID...)
	out = append(out, '\t')
	out = append(out, r.Distance...)
	out = append(out, '\t')
	out = strconv.AppendInt(out, int64(r.Position), 10)
	out = append(out, '\t')
	out = append(out, r.Allele1...)
	out = append(out, '\t')
	out = append(out, r.Allele2...)
	return append(out, '\n')
}

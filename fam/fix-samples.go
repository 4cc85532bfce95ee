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

package fam

import (
	"fmt"
	"strconv"

	"github.com/exascience/pargo/pipeline"

	"github.com/exascience/plinkqc/changes"
	"github.com/exascience/plinkqc/tables"
)

// Options control which repairs the sample fixer performs.
type Options struct {
	// FixInvalidChars replaces characters outside the allowed set in
	// family and sample identifiers by underscores.
	FixInvalidChars bool

	// FixDuplicates renames repeated sample identifiers by appending
	// DupSuffix plus an occurrence counter.
	FixDuplicates bool

	// ExtraAllowed lists the non-alphanumeric characters that are
	// allowed in identifiers. Defaults to "_-".
	ExtraAllowed string

	// DupSuffix is the suffix inserted before the occurrence counter
	// when renaming duplicate sample identifiers. Defaults to "_dup".
	DupSuffix string
}

// DefaultExtraAllowed is the default set of non-alphanumeric
// characters accepted in family and sample identifiers.
const DefaultExtraAllowed = "_-"

// DefaultDupSuffix is the default rename suffix for duplicate sample
// identifiers.
const DefaultDupSuffix = "_dup"

// A FamilyCount reports a family identifier that is shared by more
// than one sample, in order of first occurrence.
type FamilyCount struct {
	ID    string
	Count int
}

// Result describes one sample fixer run.
type Result struct {
	// Records is the number of records read, which is always also the
	// number of records written.
	Records int

	// Malformed is the number of lines without exactly 6 fields that
	// were passed through unchanged.
	Malformed int

	// SharedFamilies lists family identifiers used by more than one
	// sample. This is informational only; shared family identifiers
	// are legitimate and never rewritten.
	SharedFamilies []FamilyCount

	// Log holds one entry per modified record.
	Log *changes.Log
}

const (
	minBatchSize = 4096
	maxBatchSize = 262144
)

type fixer struct {
	opts      Options
	seen      map[string]int
	families  map[string]int
	famOrder  []string
	records   int
	malformed int
	log       *changes.Log
}

func (opts Options) normalize() Options {
	if opts.ExtraAllowed == "" {
		opts.ExtraAllowed = DefaultExtraAllowed
	}
	if opts.DupSuffix == "" {
		opts.DupSuffix = DefaultDupSuffix
	}
	return opts
}

// allowedByte tells whether c may appear in a family or sample
// identifier.
func allowedByte(c byte, extra string) bool {
	switch {
	case c >= 'a' && c <= 'z':
		return true
	case c >= 'A' && c <= 'Z':
		return true
	case c >= '0' && c <= '9':
		return true
	}
	for i := 0; i < len(extra); i++ {
		if extra[i] == c {
			return true
		}
	}
	return false
}

// sanitizeID replaces every disallowed byte by an underscore.
func sanitizeID(id, extra string) (string, bool) {
	for i := 0; i < len(id); i++ {
		if !allowedByte(id[i], extra) {
			out := []byte(id)
			for j := i; j < len(out); j++ {
				if !allowedByte(out[j], extra) {
					out[j] = '_'
				}
			}
			return string(out), true
		}
	}
	return id, false
}

func (fx *fixer) fix(r *SampleRecord) {
	fx.records++
	if r.Malformed() {
		fx.malformed++
		return
	}
	if fx.opts.FixInvalidChars {
		newFamily, famChanged := sanitizeID(r.FamilyID, fx.opts.ExtraAllowed)
		newSample, samChanged := sanitizeID(r.SampleID, fx.opts.ExtraAllowed)
		if famChanged || samChanged {
			fx.log.Add(changes.InvalidChars,
				r.FamilyID+" "+r.SampleID,
				newFamily+" "+newSample,
				"invalid characters replaced by '_'")
			r.FamilyID = newFamily
			r.SampleID = newSample
		}
	}
	if fx.families[r.FamilyID] == 0 {
		fx.famOrder = append(fx.famOrder, r.FamilyID)
	}
	fx.families[r.FamilyID]++
	if fx.opts.FixDuplicates {
		fx.seen[r.SampleID]++
		if k := fx.seen[r.SampleID]; k > 1 {
			// k-1 is the rename counter for the k-th occurrence. The
			// counter is advanced past renames that would collide with
			// an identifier assigned earlier in this run.
			newID := r.SampleID + fx.opts.DupSuffix + strconv.Itoa(k-1)
			for fx.seen[newID] > 0 {
				k++
				newID = r.SampleID + fx.opts.DupSuffix + strconv.Itoa(k-1)
			}
			fx.seen[newID]++
			fx.log.Add(changes.Duplicate, r.SampleID, newID,
				fmt.Sprintf("occurrence %v of duplicate sample ID renamed", fx.seen[r.SampleID]))
			r.SampleID = newID
		}
	}
}

func (fx *fixer) receive(_ int, data interface{}) interface{} {
	records := data.([]*SampleRecord)
	for _, r := range records {
		fx.fix(r)
	}
	return records
}

// BytesToRecord returns a pargo pipeline.Filter that parses slices of
// .fam lines into slices of freshly allocated SampleRecord values.
func BytesToRecord() pipeline.Filter {
	return func(_ *pipeline.Pipeline, _ pipeline.NodeKind, _ *int) (receiver pipeline.Receiver, _ pipeline.Finalizer) {
		receiver = func(_ int, data interface{}) interface{} {
			lines := data.([][]byte)
			records := make([]*SampleRecord, 0, len(lines))
			for _, line := range lines {
				records = append(records, ParseSampleRecord(line))
			}
			return records
		}
		return
	}
}

// RecordToBytes returns a pargo pipeline.Filter that formats slices of
// SampleRecord pointers into slices of bytes representing .fam lines.
func RecordToBytes() pipeline.Filter {
	return func(_ *pipeline.Pipeline, _ pipeline.NodeKind, _ *int) (receiver pipeline.Receiver, _ pipeline.Finalizer) {
		receiver = func(_ int, data interface{}) interface{} {
			records := data.([]*SampleRecord)
			lines := make([][]byte, 0, len(records))
			var buf []byte
			for _, r := range records {
				buf = r.Format(buf)
				lines = append(lines, append([]byte(nil), buf...))
				buf = buf[:0]
			}
			return lines
		}
		return
	}
}

func addWriteNodes(p *pipeline.Pipeline, out *tables.OutputFile) {
	p.Add(
		pipeline.LimitedPar(0, RecordToBytes()),
		pipeline.StrictOrd(pipeline.Receive(func(_ int, data interface{}) interface{} {
			var err error
			for _, line := range data.([][]byte) {
				_, err = out.Write(line)
			}
			if err != nil {
				p.SetErr(fmt.Errorf("%v, while writing sample records to %v", err, out.Name()))
			}
			return data
		})),
	)
}

// Fix streams the sample table at input, repairs identifiers according
// to opts, and writes the repaired table to output. Row count and row
// order are always preserved, because the table is positionally paired
// with the genotype matrix.
//
// If output is empty, the repaired records are discarded; only the
// change log and counters are produced. This serves the report-only
// check mode.
//
// Fix is idempotent: running it on its own output produces an empty
// change log.
func Fix(input, output string, opts Options) (result *Result, err error) {
	in, err := tables.Open(input)
	if err != nil {
		return nil, err
	}
	defer func() {
		nerr := in.Close()
		if err == nil {
			err = nerr
		}
	}()
	var out *tables.OutputFile
	if output != "" {
		if out, err = tables.Create(output); err != nil {
			return nil, err
		}
		defer out.Discard()
	}
	fx := &fixer{
		opts:     opts.normalize(),
		seen:     make(map[string]int),
		families: make(map[string]int),
		log:      changes.NewLog(),
	}
	var p pipeline.Pipeline
	p.Source(in)
	p.SetVariableBatchSize(minBatchSize, maxBatchSize)
	p.Add(
		pipeline.LimitedPar(0, BytesToRecord()),
		pipeline.StrictOrd(pipeline.Receive(fx.receive)),
	)
	if out != nil {
		addWriteNodes(&p, out)
	}
	p.Run()
	if err = p.Err(); err != nil {
		return nil, err
	}
	if out != nil {
		if err = out.Commit(); err != nil {
			return nil, err
		}
	}
	result = &Result{
		Records:   fx.records,
		Malformed: fx.malformed,
		Log:       fx.log,
	}
	for _, id := range fx.famOrder {
		if n := fx.families[id]; n > 1 {
			result.SharedFamilies = append(result.SharedFamilies, FamilyCount{ID: id, Count: n})
		}
	}
	return result, nil
}

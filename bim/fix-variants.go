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

package bim

import (
	"fmt"

	"github.com/exascience/pargo/pipeline"
	"github.com/willf/bitset"

	"github.com/exascience/plinkqc/changes"
	"github.com/exascience/plinkqc/tables"
)

// Options control which repairs the variant fixer performs.
type Options struct {
	// FixDuplicateIDs clears every occurrence after the first of a
	// repeated variant identifier to the missing-ID sentinel. This
	// never changes the row count.
	FixDuplicateIDs bool

	// FixDuplicateLoci removes records that share a chromosome and
	// base-pair position with another record. This can shrink the row
	// count, in which case the paired genotype matrix must be
	// re-synchronized.
	FixDuplicateLoci bool

	// KeepFirst selects the removal policy for duplicated loci: when
	// true, the first record of each duplicated locus is retained;
	// when false, every record on a duplicated locus is removed.
	KeepFirst bool

	// RetainListPath, when non-empty, names a file that receives the
	// variant identifiers of the retained records, one per line, in
	// table order. This is the inclusion filter handed to the external
	// genotype synchronization tool.
	RetainListPath string
}

// Result describes one variant fixer run.
type Result struct {
	// In and Out are the record counts before and after the locus
	// pass. Out < In if and only if records were removed.
	In, Out int

	// Removed flags the zero-based input row indices that were removed
	// by the locus pass. Row i of the input genotype matrix
	// corresponds to bit i.
	Removed *bitset.BitSet

	// AmbiguousRetain reports that the retain list cannot uniquely
	// select the retained records by identifier, because a removed
	// record shares its identifier with a retained one. Extraction by
	// ID would then keep too many or too few genotype columns.
	AmbiguousRetain bool

	// Log holds one entry per rewritten or removed record.
	Log *changes.Log
}

// RowsRemoved reports whether the locus pass shrank the table.
func (r *Result) RowsRemoved() bool {
	return r.Out < r.In
}

const (
	minBatchSize = 4096
	maxBatchSize = 262144
)

// detection is the outcome of the first linear scan: the set of
// duplicated detection keys, kept deliberately small so that the
// rewrite pass only carries state for keys that actually repeat.
type detection struct {
	rows    int
	dupIDs  map[string]struct{}
	dupLoci map[Locus]struct{}
}

// detect runs the first pass over the variant table and collects the
// variant identifiers (excluding the missing-ID sentinel) and locus
// keys that occur more than once.
func detect(input string) (d *detection, err error) {
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
	idCount := make(map[string]int)
	locusCount := make(map[Locus]int)
	d = &detection{
		dupIDs:  make(map[string]struct{}),
		dupLoci: make(map[Locus]struct{}),
	}
	lineno := 0
	err = in.ForEachLine(func(line []byte) error {
		lineno++
		r, err := ParseVariantRecord(line)
		if err != nil {
			return fmt.Errorf("%v at line %v of %v", err, lineno, input)
		}
		d.rows++
		if r.VariantID != MissingID {
			idCount[r.VariantID]++
		}
		locusCount[r.Locus()]++
		return nil
	})
	if err != nil {
		return nil, err
	}
	for id, n := range idCount {
		if n > 1 {
			d.dupIDs[id] = struct{}{}
		}
	}
	for locus, n := range locusCount {
		if n > 1 {
			d.dupLoci[locus] = struct{}{}
		}
	}
	return d, nil
}

type fixer struct {
	opts     Options
	p        *pipeline.Pipeline
	d        *detection
	seenIDs  map[string]struct{}
	seenLoci map[Locus]struct{}
	index    uint
	in, out  int
	removed  *bitset.BitSet
	retain   *tables.OutputFile

	removedMissing  bool
	retainedMissing bool
	removedSharedID bool

	log *changes.Log
}

// fix applies both rewrite steps to one record, in table order. It
// reports whether the record is retained.
func (fx *fixer) fix(r *VariantRecord) bool {
	index := fx.index
	fx.index++
	fx.in++
	if fx.opts.FixDuplicateIDs {
		if _, dup := fx.d.dupIDs[r.VariantID]; dup {
			if _, seen := fx.seenIDs[r.VariantID]; seen {
				fx.log.Add(changes.DuplicateRsID, r.VariantID, MissingID,
					fmt.Sprintf("duplicate variant ID at %v cleared", r.Locus()))
				r.VariantID = MissingID
			} else {
				fx.seenIDs[r.VariantID] = struct{}{}
			}
		}
	}
	if fx.opts.FixDuplicateLoci {
		locus := r.Locus()
		if _, dup := fx.d.dupLoci[locus]; dup {
			if fx.opts.KeepFirst {
				if _, seen := fx.seenLoci[locus]; seen {
					fx.remove(index, r, locus)
					return false
				}
				fx.seenLoci[locus] = struct{}{}
				fx.log.Add(changes.DuplicateChrPosKept, locus.String(), r.VariantID,
					"first record at duplicated position kept")
			} else {
				fx.remove(index, r, locus)
				return false
			}
		}
	}
	fx.keep(r)
	return true
}

func (fx *fixer) remove(index uint, r *VariantRecord, locus Locus) {
	fx.removed.Set(index)
	fx.log.Add(changes.DuplicateChrPosRemoved, locus.String()+" "+r.VariantID, "",
		"record at duplicated position removed")
	if r.VariantID == MissingID {
		fx.removedMissing = true
	} else if !fx.opts.FixDuplicateIDs {
		// Without the ID pass, a removed record can share its ID with
		// a retained one, which makes extraction by ID unsound.
		if _, dup := fx.d.dupIDs[r.VariantID]; dup {
			fx.removedSharedID = true
		}
	}
}

func (fx *fixer) keep(r *VariantRecord) {
	fx.out++
	if r.VariantID == MissingID {
		fx.retainedMissing = true
	}
	if fx.retain != nil {
		if _, err := fx.retain.Write(append([]byte(r.VariantID), '\n')); err != nil {
			fx.p.SetErr(fmt.Errorf("%v, while writing the retain list to %v", err, fx.retain.Name()))
		}
	}
}

func (fx *fixer) receive(_ int, data interface{}) interface{} {
	records := data.([]*VariantRecord)
	retained := records[:0]
	for _, r := range records {
		if fx.fix(r) {
			retained = append(retained, r)
		}
	}
	return retained
}

// BytesToRecord returns a pargo pipeline.Filter that parses slices of
// .bim lines into slices of freshly allocated VariantRecord values.
func BytesToRecord() pipeline.Filter {
	return func(p *pipeline.Pipeline, _ pipeline.NodeKind, _ *int) (receiver pipeline.Receiver, _ pipeline.Finalizer) {
		receiver = func(_ int, data interface{}) interface{} {
			lines := data.([][]byte)
			records := make([]*VariantRecord, 0, len(lines))
			for _, line := range lines {
				r, err := ParseVariantRecord(line)
				if err != nil {
					p.SetErr(err)
					return records
				}
				records = append(records, r)
			}
			return records
		}
		return
	}
}

// RecordToBytes returns a pargo pipeline.Filter that formats slices of
// VariantRecord pointers into slices of bytes representing .bim lines.
func RecordToBytes() pipeline.Filter {
	return func(_ *pipeline.Pipeline, _ pipeline.NodeKind, _ *int) (receiver pipeline.Receiver, _ pipeline.Finalizer) {
		receiver = func(_ int, data interface{}) interface{} {
			records := data.([]*VariantRecord)
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
				p.SetErr(fmt.Errorf("%v, while writing variant records to %v", err, out.Name()))
			}
			return data
		})),
	)
}

// Fix repairs the variant table at input according to opts and writes
// the repaired table to output. It performs two linear scans: a
// detection pass that collects the duplicated identifier and locus
// keys, and a rewrite pass that streams the table through the repairs.
// The output file is only finalized after the rewrite pass completes.
//
// The relative order of retained records always matches their order in
// the input. If output is empty, the repaired records are discarded;
// only the change log, counters, and removal mask are produced.
func Fix(input, output string, opts Options) (result *Result, err error) {
	var d *detection
	if opts.FixDuplicateIDs || opts.FixDuplicateLoci {
		if d, err = detect(input); err != nil {
			return nil, err
		}
	} else {
		d = &detection{
			dupIDs:  make(map[string]struct{}),
			dupLoci: make(map[Locus]struct{}),
		}
	}
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
		opts:     opts,
		d:        d,
		seenIDs:  make(map[string]struct{}),
		seenLoci: make(map[Locus]struct{}),
		removed:  bitset.New(uint(d.rows)),
		log:      changes.NewLog(),
	}
	if opts.RetainListPath != "" {
		if fx.retain, err = tables.Create(opts.RetainListPath); err != nil {
			return nil, err
		}
		defer fx.retain.Discard()
	}
	var p pipeline.Pipeline
	fx.p = &p
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
	if fx.retain != nil {
		if err = fx.retain.Commit(); err != nil {
			return nil, err
		}
	}
	result = &Result{
		In:      fx.in,
		Out:     fx.out,
		Removed: fx.removed,
		Log:     fx.log,
	}
	if result.RowsRemoved() {
		result.AmbiguousRetain = (fx.removedMissing && fx.retainedMissing) || fx.removedSharedID
	}
	return result, nil
}

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

// Package changes records the identifier mutations and record removals
// performed on PLINK sample and variant tables, and renders them as a
// tab-delimited audit report.
package changes

import (
	"bufio"
	"fmt"
	"io"
)

// A Type identifies the kind of modification recorded in a log entry.
type Type string

// The change types emitted by the sample and variant fixers.
const (
	// InvalidChars records the replacement of disallowed characters in
	// a family or sample identifier.
	InvalidChars Type = "INVALID_CHARS"

	// Duplicate records the renaming of a repeated sample identifier.
	Duplicate Type = "DUPLICATE"

	// DuplicateRsID records a repeated variant identifier that was
	// cleared to the missing-ID sentinel.
	DuplicateRsID Type = "DUPLICATE_RSID"

	// DuplicateChrPosKept records the retained first record of a
	// duplicated chromosome/position pair.
	DuplicateChrPosKept Type = "DUPLICATE_CHRPOS_KEPT"

	// DuplicateChrPosRemoved records a removed record of a duplicated
	// chromosome/position pair.
	DuplicateChrPosRemoved Type = "DUPLICATE_CHRPOS_REMOVED"

	// DuplicateFamilyID records a family identifier shared by multiple
	// samples. This is informational only and never triggers a rewrite.
	DuplicateFamilyID Type = "DUPLICATE_FID"
)

// An Entry describes one mutation or removal. Entries are never
// modified after they have been added to a log.
type Entry struct {
	Type        Type
	Original    string
	New         string
	Description string
}

// A Log collects entries in the order the offending records occur in
// the source table. A log belongs to a single normalization run and is
// only ever appended to.
type Log struct {
	Entries []Entry
}

// NewLog returns an empty change log.
func NewLog() *Log {
	return &Log{}
}

// Add appends an entry to the log.
func (l *Log) Add(typ Type, original, new, description string) {
	l.Entries = append(l.Entries, Entry{
		Type:        typ,
		Original:    original,
		New:         new,
		Description: description,
	})
}

// Merge appends all entries of other to l, preserving their order.
func (l *Log) Merge(other *Log) {
	if other != nil {
		l.Entries = append(l.Entries, other.Entries...)
	}
}

// Len returns the number of entries in the log.
func (l *Log) Len() int {
	return len(l.Entries)
}

// CountByType returns how many entries the log holds per change type,
// and the types in order of first occurrence.
func (l *Log) CountByType() (types []Type, counts map[Type]int) {
	counts = make(map[Type]int)
	for _, entry := range l.Entries {
		if counts[entry.Type] == 0 {
			types = append(types, entry.Type)
		}
		counts[entry.Type]++
	}
	return types, counts
}

// Header is the column header of the tab-delimited change report.
const Header = "Change_Type\tOriginal\tNew\tDescription"

// Format renders a log entry as one line of the tab-delimited change
// report.
func (e *Entry) Format() string {
	return fmt.Sprintf("%v\t%v\t%v\t%v", e.Type, e.Original, e.New, e.Description)
}

// WriteTSV writes the full change report, including the column header,
// to the given writer.
func (l *Log) WriteTSV(w io.Writer) (err error) {
	buf := bufio.NewWriter(w)
	defer func() {
		nerr := buf.Flush()
		if err == nil {
			err = nerr
		}
	}()
	if _, err = fmt.Fprintln(buf, Header); err != nil {
		return err
	}
	for i := range l.Entries {
		if _, err = fmt.Fprintln(buf, l.Entries[i].Format()); err != nil {
			return err
		}
	}
	return nil
}

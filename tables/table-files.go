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

// Package tables implements line-oriented input and output for the
// whitespace-delimited tables that accompany PLINK binary datasets
// (.fam and .bim files), with transparent gzip support.
//
// An InputFile is a pargo pipeline.Source that produces batches of
// lines. An OutputFile writes to a temporary path in the destination
// directory and only moves the file into place on Commit, so that a
// failed run never leaves a partial table behind.
package tables

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/klauspost/compress/gzip"
)

// GzExt is the filename extension that triggers transparent gzip
// compression on input and output files.
const GzExt = ".gz"

// InputFile represents a sample or variant table for input.
type InputFile struct {
	name   string
	rc     io.ReadCloser
	gz     *gzip.Reader
	reader *bufio.Reader
	data   [][]byte
	err    error
}

// Open opens a table file for input. If the filename ends in .gz, the
// contents are decompressed on the fly. If the name is "/dev/stdin",
// the input is read from os.Stdin.
func Open(name string) (*InputFile, error) {
	var rc io.ReadCloser
	if name == "/dev/stdin" {
		rc = os.Stdin
	} else {
		file, err := os.Open(name)
		if err != nil {
			return nil, err
		}
		rc = file
	}
	f := &InputFile{name: name, rc: rc}
	if strings.HasSuffix(name, GzExt) {
		gz, err := gzip.NewReader(rc)
		if err != nil {
			_ = rc.Close()
			return nil, fmt.Errorf("%v, while opening %v", err, name)
		}
		f.gz = gz
		f.reader = bufio.NewReader(gz)
	} else {
		f.reader = bufio.NewReader(rc)
	}
	return f, nil
}

// Name returns the file name this InputFile was opened with.
func (f *InputFile) Name() string {
	return f.name
}

// Close closes the table input file.
func (f *InputFile) Close() error {
	if f.gz != nil {
		if err := f.gz.Close(); err != nil {
			_ = f.rc.Close()
			return err
		}
	}
	if f.rc == os.Stdin {
		return nil
	}
	return f.rc.Close()
}

// readLine reads the next non-empty line, without its line ending.
// It returns nil at the end of the input.
func (f *InputFile) readLine() []byte {
	for {
		line, err := f.reader.ReadBytes('\n')
		line = bytes.TrimRight(line, "\r\n")
		if err != nil {
			if err != io.EOF {
				f.err = err
			}
			if len(line) == 0 {
				return nil
			}
			return line
		}
		if len(line) > 0 {
			return line
		}
	}
}

// ForEachLine calls fn for every non-empty line of the input, in file
// order. It is used for the sequential detection passes.
func (f *InputFile) ForEachLine(fn func(line []byte) error) error {
	for {
		line := f.readLine()
		if line == nil {
			return f.err
		}
		if err := fn(line); err != nil {
			return err
		}
	}
}

// Err implements the method of the pipeline.Source interface.
func (f *InputFile) Err() error {
	return f.err
}

// Prepare implements the method of the pipeline.Source interface.
func (f *InputFile) Prepare(_ context.Context) int {
	return -1
}

// Fetch implements the method of the pipeline.Source interface.
func (f *InputFile) Fetch(size int) int {
	data := make([][]byte, 0, size)
	for len(data) < size {
		line := f.readLine()
		if line == nil {
			break
		}
		data = append(data, line)
	}
	f.data = data
	return len(data)
}

// Data implements the method of the pipeline.Source interface.
func (f *InputFile) Data() interface{} {
	return f.data
}

// OutputFile represents a sample or variant table for output.
type OutputFile struct {
	name      string
	temp      string
	file      *os.File
	gz        *gzip.Writer
	writer    *bufio.Writer
	committed bool
}

// Create opens a table file for output. The data is written to a
// temporary path next to name and only renamed into place by Commit.
// If the filename ends in .gz, the contents are compressed. If the
// name is "/dev/stdout", the output is written to os.Stdout.
func Create(name string) (*OutputFile, error) {
	f := &OutputFile{name: name}
	if name == "/dev/stdout" {
		f.file = os.Stdout
	} else {
		f.temp = fmt.Sprintf("%s.partial-%s", name, uuid.New().String())
		file, err := os.Create(f.temp)
		if err != nil {
			return nil, err
		}
		f.file = file
	}
	if strings.HasSuffix(name, GzExt) {
		f.gz = gzip.NewWriter(f.file)
		f.writer = bufio.NewWriter(f.gz)
	} else {
		f.writer = bufio.NewWriter(f.file)
	}
	return f, nil
}

// Name returns the final file name this OutputFile will be renamed to
// by Commit.
func (f *OutputFile) Name() string {
	return f.name
}

// Write writes bytes to the table output file.
func (f *OutputFile) Write(p []byte) (int, error) {
	return f.writer.Write(p)
}

func (f *OutputFile) flushClose() error {
	if err := f.writer.Flush(); err != nil {
		return err
	}
	if f.gz != nil {
		if err := f.gz.Close(); err != nil {
			return err
		}
	}
	if f.file == os.Stdout {
		return nil
	}
	return f.file.Close()
}

// Commit finalizes the output file and moves it into place. The
// destination only ever sees a fully written table.
func (f *OutputFile) Commit() error {
	if err := f.flushClose(); err != nil {
		return err
	}
	f.committed = true
	if f.temp == "" {
		return nil
	}
	return os.Rename(f.temp, f.name)
}

// Discard drops the temporary file. It is a no-op after a successful
// Commit, so it can be deferred unconditionally.
func (f *OutputFile) Discard() {
	if f.committed {
		return
	}
	_ = f.flushClose()
	if f.temp != "" {
		_ = os.Remove(f.temp)
	}
}

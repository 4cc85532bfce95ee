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
	"context"
	"log"
	"os"
	"os/exec"
	"strconv"
	"time"

	"github.com/pkg/errors"
)

// SyncOptions configure the external PLINK invocation that
// re-synchronizes a genotype matrix with a filtered variant table.
type SyncOptions struct {
	// Plink is the PLINK executable to run. Defaults to "plink",
	// resolved on the PATH.
	Plink string

	// Timeout bounds a single PLINK invocation. On timeout the
	// invocation is retried once with reduced memory before giving up.
	// Defaults to 30 minutes.
	Timeout time.Duration

	// MemoryMB is the memory budget passed to PLINK via --memory. The
	// retry after a failed invocation runs with half this budget.
	// Defaults to 4000.
	MemoryMB int
}

// Defaults for SyncOptions.
const (
	DefaultPlink    = "plink"
	DefaultTimeout  = 30 * time.Minute
	DefaultMemoryMB = 4000
)

func (opts SyncOptions) normalize() SyncOptions {
	if opts.Plink == "" {
		opts.Plink = DefaultPlink
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.MemoryMB <= 0 {
		opts.MemoryMB = DefaultMemoryMB
	}
	return opts
}

// FindPlink resolves the PLINK executable. It returns an error when no
// such tool is available, in which case a dataset whose variant table
// shrank cannot be reconciled.
func FindPlink(plink string) (string, error) {
	if plink == "" {
		plink = DefaultPlink
	}
	path, err := exec.LookPath(plink)
	if err != nil {
		return "", errors.Wrapf(err, "no usable PLINK executable %v", plink)
	}
	return path, nil
}

// A Dataset names the three files of a PLINK binary dataset
// individually, so that a repaired .fam or .bim can be paired with the
// original .bed without copying the genotype matrix.
type Dataset struct {
	Bed, Bim, Fam string
}

// Prefixed returns the dataset triple for a common file name prefix.
func Prefixed(prefix string) Dataset {
	return Dataset{
		Bed: prefix + ".bed",
		Bim: prefix + ".bim",
		Fam: prefix + ".fam",
	}
}

func runPlink(plink string, data Dataset, retainList, outPrefix string, memoryMB int, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	cmd := exec.CommandContext(ctx, plink,
		"--bed", data.Bed,
		"--bim", data.Bim,
		"--fam", data.Fam,
		"--extract", retainList,
		"--make-bed",
		"--out", outPrefix,
		"--memory", strconv.Itoa(memoryMB),
	)
	cmd.Stdout = os.Stderr
	cmd.Stderr = os.Stderr
	err := cmd.Run()
	if ctx.Err() == context.DeadlineExceeded {
		return errors.Wrapf(ctx.Err(), "PLINK timed out after %v", timeout)
	}
	return err
}

// SyncGenotypes invokes PLINK to extract the variants named in the
// retain list from the given dataset, writing a new .bed/.bim/.fam
// triple at outPrefix. PLINK preserves the input order of the
// extracted variants, so the resulting matrix stays positionally
// paired with the filtered variant table.
//
// A timed-out or failed invocation is retried once with half the
// memory budget; a second failure is returned to the caller, which
// must treat it as an unreconcilable dataset.
func SyncGenotypes(data Dataset, retainList, outPrefix string, opts SyncOptions) error {
	opts = opts.normalize()
	plink, err := FindPlink(opts.Plink)
	if err != nil {
		return err
	}
	err = runPlink(plink, data, retainList, outPrefix, opts.MemoryMB, opts.Timeout)
	if err == nil {
		return nil
	}
	log.Printf("PLINK extraction failed (%v); retrying once with --memory %v", err, opts.MemoryMB/2)
	if err = runPlink(plink, data, retainList, outPrefix, opts.MemoryMB/2, opts.Timeout); err != nil {
		return errors.Wrap(err, "PLINK extraction failed after retry")
	}
	return nil
}

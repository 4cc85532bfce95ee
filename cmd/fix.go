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
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/exascience/plinkqc/bed"
	"github.com/exascience/plinkqc/bim"
	"github.com/exascience/plinkqc/changes"
	"github.com/exascience/plinkqc/fam"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// FixHelp is the help string for this command.
const FixHelp = "\nfix parameters:\n" +
	"plinkqc fix dataset-prefix output-prefix\n" +
	"[--fix-invalid-chars]\n" +
	"[--fix-duplicates]\n" +
	"[--fix-duplicate-ids]\n" +
	"[--fix-duplicate-positions]\n" +
	"[--keep-first]\n" +
	"[--allowed-chars characters]\n" +
	"[--dup-suffix suffix]\n" +
	"[--plink executable]\n" +
	"[--plink-timeout minutes]\n" +
	"[--plink-memory mb]\n" +
	"[--no-archive]\n" +
	"[--report file]\n" +
	"[--keep-workdir]\n" +
	"[--nr-of-threads n]\n" +
	"[--timed]\n" +
	"[--log-path path]\n"

// A fixRun holds the resolved parameters of one full dataset repair.
type fixRun struct {
	inPrefix, outPrefix string

	fam fam.Options

	fixDuplicateIDs       bool
	fixDuplicatePositions bool
	keepFirst             bool

	sync bed.SyncOptions

	archive     bool
	report      string
	keepWorkdir bool
}

// copyFile copies src to dst through a temporary file in dst's
// directory, so that dst appears atomically and never half-written.
func copyFile(src, dst string) (err error) {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := in.Close(); err == nil {
			err = cerr
		}
	}()
	tmp := dst + ".partial-" + uuid.New().String()
	out, err := os.Create(tmp)
	if err != nil {
		return err
	}
	if _, err = io.Copy(out, in); err != nil {
		_ = out.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err = out.Close(); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, dst)
}

// runFix repairs a full PLINK binary dataset: it validates the input
// triple, archives the originals, fixes the sample and variant
// tables, and either copies the genotype matrix through unchanged or
// re-synchronizes it with an external PLINK run when variant records
// were removed.
func runFix(run fixRun) error {
	in := bed.Prefixed(run.inPrefix)
	out := bed.Prefixed(run.outPrefix)

	// validate the input triple before touching anything

	for _, name := range []string{in.Bed, in.Bim, in.Fam} {
		info, err := os.Stat(name)
		if err != nil {
			return errors.Wrapf(err, "invalid input dataset %v", run.inPrefix)
		}
		if info.IsDir() {
			return errors.Errorf("invalid input dataset %v: %v is a directory", run.inPrefix, name)
		}
	}
	if err := bed.CheckHeader(in.Bed); err != nil {
		return err
	}

	if run.archive {
		archiveDir := filepath.Join(filepath.Dir(run.outPrefix), "plinkqc-archive-"+uuid.New().String())
		if err := os.MkdirAll(archiveDir, 0700); err != nil {
			return err
		}
		for _, name := range []string{in.Bed, in.Bim, in.Fam} {
			if err := copyFile(name, filepath.Join(archiveDir, filepath.Base(name))); err != nil {
				return err
			}
		}
		log.Printf("Archived the original dataset in %v.\n", archiveDir)
	}

	workDir := filepath.Join(filepath.Dir(run.outPrefix), "plinkqc-work-"+uuid.New().String())
	if err := os.MkdirAll(workDir, 0700); err != nil {
		return err
	}
	if run.keepWorkdir {
		log.Printf("Keeping working directory %v.\n", workDir)
	} else {
		defer func() {
			if err := os.RemoveAll(workDir); err != nil {
				log.Printf("Warning: could not remove working directory %v: %v.\n", workDir, err)
			}
		}()
	}

	fixedFam := filepath.Join(workDir, "fixed.fam")
	idFixBim := filepath.Join(workDir, "idfix.bim")
	fixedBim := filepath.Join(workDir, "fixed.bim")
	retainList := filepath.Join(workDir, "retain.txt")

	famResult, err := fam.Fix(in.Fam, fixedFam, run.fam)
	if err != nil {
		return err
	}
	log.Printf("Processed %v sample records.\n", famResult.Records)
	if famResult.Malformed > 0 {
		log.Printf("Warning: %v lines in %v do not have 6 fields and were passed through unchanged.\n", famResult.Malformed, in.Fam)
	}

	// the identifier pass preserves the row count, so its output can
	// still be paired with the original genotype matrix

	bimIDResult, err := bim.Fix(in.Bim, idFixBim, bim.Options{
		FixDuplicateIDs: run.fixDuplicateIDs,
	})
	if err != nil {
		return err
	}
	bimLocusResult, err := bim.Fix(idFixBim, fixedBim, bim.Options{
		FixDuplicateLoci: run.fixDuplicatePositions,
		KeepFirst:        run.keepFirst,
		RetainListPath:   retainList,
	})
	if err != nil {
		return err
	}
	log.Printf("Processed %v variant records, retained %v.\n", bimIDResult.In, bimLocusResult.Out)

	if err := bed.Validate(in.Bed, famResult.Records, bimIDResult.In); err != nil {
		return err
	}

	merged := changes.NewLog()
	merged.Merge(famResult.Log)
	merged.Merge(bimIDResult.Log)
	merged.Merge(bimLocusResult.Log)

	report := run.report
	if report == "" {
		report = run.outPrefix + ".changes.tsv"
	}
	if err := writeReport(report, merged); err != nil {
		return err
	}

	if bimLocusResult.RowsRemoved() {
		if bimLocusResult.AmbiguousRetain {
			return errors.New("removed variants share an identifier with retained ones, so the genotype matrix cannot be filtered by identifier; assign unique variant IDs before running fix")
		}
		if _, err := bed.FindPlink(run.sync.Plink); err != nil {
			return err
		}
		log.Printf("Re-synchronizing genotypes: %v of %v variants removed.\n",
			bimLocusResult.In-bimLocusResult.Out, bimLocusResult.In)
		data := bed.Dataset{Bed: in.Bed, Bim: idFixBim, Fam: fixedFam}
		if err := bed.SyncGenotypes(data, retainList, run.outPrefix, run.sync); err != nil {
			return err
		}
	} else {
		// nothing to extract: PLINK is not needed, the repaired tables
		// pair with the original genotype matrix as they are
		if err := copyFile(fixedFam, out.Fam); err != nil {
			return err
		}
		if err := copyFile(fixedBim, out.Bim); err != nil {
			return err
		}
		if err := copyFile(in.Bed, out.Bed); err != nil {
			return err
		}
	}

	logSummary(merged)
	return nil
}

// Fix implements the plinkqc fix command.
func Fix() error {
	var (
		fixInvalidChars       bool
		fixDuplicates         bool
		fixDuplicateIDs       bool
		fixDuplicatePositions bool
		keepFirst             bool
		allowedChars          string
		dupSuffix             string
		plink                 string
		plinkTimeout          int
		plinkMemory           int
		noArchive             bool
		report                string
		keepWorkdir           bool
		nrOfThreads           int
		timed                 bool
		profile               string
		logPath               string
	)

	var flags flag.FlagSet

	flags.BoolVar(&fixInvalidChars, "fix-invalid-chars", true, "replace invalid characters in sample identifiers by underscores")
	flags.BoolVar(&fixDuplicates, "fix-duplicates", true, "rename repeated sample identifiers")
	flags.BoolVar(&fixDuplicateIDs, "fix-duplicate-ids", true, "clear repeated variant IDs to the missing-ID sentinel")
	flags.BoolVar(&fixDuplicatePositions, "fix-duplicate-positions", true, "remove records sharing a chromosome and position")
	flags.BoolVar(&keepFirst, "keep-first", false, "keep the first record of a duplicated position instead of removing all of them")
	flags.StringVar(&allowedChars, "allowed-chars", fam.DefaultExtraAllowed, "non-alphanumeric characters allowed in sample identifiers")
	flags.StringVar(&dupSuffix, "dup-suffix", fam.DefaultDupSuffix, "rename suffix for duplicate sample identifiers")
	flags.StringVar(&plink, "plink", bed.DefaultPlink, "PLINK executable for re-synchronizing genotypes")
	flags.IntVar(&plinkTimeout, "plink-timeout", int(bed.DefaultTimeout/time.Minute), "timeout in minutes for a single PLINK invocation")
	flags.IntVar(&plinkMemory, "plink-memory", bed.DefaultMemoryMB, "memory budget in MB passed to PLINK")
	flags.BoolVar(&noArchive, "no-archive", false, "do not archive the original dataset before repairing")
	flags.StringVar(&report, "report", "", "write the change report to the given file (default output-prefix.changes.tsv)")
	flags.BoolVar(&keepWorkdir, "keep-workdir", false, "keep the working directory with intermediate tables")
	flags.IntVar(&nrOfThreads, "nr-of-threads", 0, "number of worker threads used")
	flags.BoolVar(&timed, "timed", false, "measure the runtime")
	flags.StringVar(&profile, "profile", "", "write a runtime profile to the specified file(s)")
	flags.StringVar(&logPath, "log-path", "", "write log files to the specified directory")

	parseFlags(flags, 4, FixHelp)

	inPrefix := getFilename(os.Args[2], FixHelp)
	outPrefix := getFilename(os.Args[3], FixHelp)

	setLogOutput(logPath)

	// sanity checks

	var sanityChecksFailed bool

	for _, name := range []string{inPrefix + ".bed", inPrefix + ".bim", inPrefix + ".fam"} {
		if !checkExist("", name) {
			sanityChecksFailed = true
		}
	}
	for _, name := range []string{outPrefix + ".bed", outPrefix + ".bim", outPrefix + ".fam"} {
		if !checkCreate("", name) {
			sanityChecksFailed = true
		}
	}
	if report != "" && !checkCreate("--report", report) {
		sanityChecksFailed = true
	}
	if nrOfThreads < 0 {
		sanityChecksFailed = true
		log.Printf("Error: invalid nr-of-threads: %v.\n", nrOfThreads)
	}

	if sanityChecksFailed {
		fmt.Fprint(os.Stderr, FixHelp)
		os.Exit(1)
	}

	if nrOfThreads > 0 {
		runtime.GOMAXPROCS(nrOfThreads)
	}

	run := fixRun{
		inPrefix:  inPrefix,
		outPrefix: outPrefix,
		fam: fam.Options{
			FixInvalidChars: fixInvalidChars,
			FixDuplicates:   fixDuplicates,
			ExtraAllowed:    allowedChars,
			DupSuffix:       dupSuffix,
		},
		fixDuplicateIDs:       fixDuplicateIDs,
		fixDuplicatePositions: fixDuplicatePositions,
		keepFirst:             keepFirst,
		sync: bed.SyncOptions{
			Plink:    plink,
			Timeout:  time.Duration(plinkTimeout) * time.Minute,
			MemoryMB: plinkMemory,
		},
		archive:     !noArchive,
		report:      report,
		keepWorkdir: keepWorkdir,
	}

	var err error
	timedRun(timed, profile, "Fixing PLINK dataset.", 1, func() {
		err = runFix(run)
	})
	return err
}

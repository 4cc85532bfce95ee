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
	"log"
	"os"

	"github.com/exascience/plinkqc/fam"
)

// FixSamplesHelp is the help string for this command.
const FixSamplesHelp = "\nfix-samples parameters:\n" +
	"plinkqc fix-samples fam-file fam-output-file\n" +
	"[--fix-invalid-chars]\n" +
	"[--fix-duplicates]\n" +
	"[--allowed-chars chars]\n" +
	"[--dup-suffix suffix]\n" +
	"[--report file]\n" +
	"[--timed]\n" +
	"[--log-path path]\n"

// FixSamples implements the plinkqc fix-samples command.
func FixSamples() error {
	var (
		fixInvalidChars, fixDuplicates bool
		allowedChars, dupSuffix        string
		report                         string
		timed                          bool
		profile                        string
		logPath                        string
	)

	var flags flag.FlagSet

	flags.BoolVar(&fixInvalidChars, "fix-invalid-chars", true, "replace invalid characters in family and sample IDs by underscores")
	flags.BoolVar(&fixDuplicates, "fix-duplicates", true, "rename duplicate sample IDs")
	flags.StringVar(&allowedChars, "allowed-chars", fam.DefaultExtraAllowed, "non-alphanumeric characters allowed in IDs")
	flags.StringVar(&dupSuffix, "dup-suffix", fam.DefaultDupSuffix, "suffix inserted when renaming duplicate sample IDs")
	flags.StringVar(&report, "report", "", "write the change report to the given file (default fam-output-file.changes.tsv)")
	flags.BoolVar(&timed, "timed", false, "measure the runtime")
	flags.StringVar(&profile, "profile", "", "write a runtime profile to the specified file(s)")
	flags.StringVar(&logPath, "log-path", "", "write log files to the specified directory")

	parseFlags(flags, 4, FixSamplesHelp)

	input := getFilename(os.Args[2], FixSamplesHelp)
	output := getFilename(os.Args[3], FixSamplesHelp)

	setLogOutput(logPath)

	// sanity checks

	var sanityChecksFailed bool

	if !checkExist("", input) {
		sanityChecksFailed = true
	}
	if !checkCreate("", output) {
		sanityChecksFailed = true
	}
	if report == "" {
		report = output + ".changes.tsv"
	} else if !checkCreate("--report", report) {
		sanityChecksFailed = true
	}

	if sanityChecksFailed {
		fmt.Fprint(os.Stderr, FixSamplesHelp)
		os.Exit(1)
	}

	opts := fam.Options{
		FixInvalidChars: fixInvalidChars,
		FixDuplicates:   fixDuplicates,
		ExtraAllowed:    allowedChars,
		DupSuffix:       dupSuffix,
	}

	var result *fam.Result
	var err error
	timedRun(timed, profile, "Fixing sample IDs.", 1, func() {
		result, err = fam.Fix(input, output, opts)
	})
	if err != nil {
		return err
	}
	log.Printf("Processed %v sample records.\n", result.Records)
	if result.Malformed > 0 {
		log.Printf("Warning: %v lines without 6 fields were passed through unchanged.\n", result.Malformed)
	}
	if n := len(result.SharedFamilies); n > 0 {
		log.Printf("%v family IDs are shared by multiple samples (informational, not changed).\n", n)
	}
	logSummary(result.Log)
	return writeReport(report, result.Log)
}

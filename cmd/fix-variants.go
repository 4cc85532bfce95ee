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

	"github.com/exascience/plinkqc/bim"
)

// FixVariantsHelp is the help string for this command.
const FixVariantsHelp = "\nfix-variants parameters:\n" +
	"plinkqc fix-variants bim-file bim-output-file\n" +
	"[--fix-duplicate-ids]\n" +
	"[--fix-duplicate-positions]\n" +
	"[--keep-first]\n" +
	"[--retain-list file]\n" +
	"[--report file]\n" +
	"[--timed]\n" +
	"[--log-path path]\n"

// FixVariants implements the plinkqc fix-variants command.
func FixVariants() error {
	var (
		fixDuplicateIDs       bool
		fixDuplicatePositions bool
		keepFirst             bool
		retainList            string
		report                string
		timed                 bool
		profile               string
		logPath               string
	)

	var flags flag.FlagSet

	flags.BoolVar(&fixDuplicateIDs, "fix-duplicate-ids", true, "clear repeated variant IDs to the missing-ID sentinel")
	flags.BoolVar(&fixDuplicatePositions, "fix-duplicate-positions", true, "remove records sharing a chromosome and position")
	flags.BoolVar(&keepFirst, "keep-first", false, "keep the first record of a duplicated position instead of removing all of them")
	flags.StringVar(&retainList, "retain-list", "", "write the IDs of retained records, in order, to the given file")
	flags.StringVar(&report, "report", "", "write the change report to the given file (default bim-output-file.changes.tsv)")
	flags.BoolVar(&timed, "timed", false, "measure the runtime")
	flags.StringVar(&profile, "profile", "", "write a runtime profile to the specified file(s)")
	flags.StringVar(&logPath, "log-path", "", "write log files to the specified directory")

	parseFlags(flags, 4, FixVariantsHelp)

	input := getFilename(os.Args[2], FixVariantsHelp)
	output := getFilename(os.Args[3], FixVariantsHelp)

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
	if retainList != "" && !checkCreate("--retain-list", retainList) {
		sanityChecksFailed = true
	}

	if sanityChecksFailed {
		fmt.Fprint(os.Stderr, FixVariantsHelp)
		os.Exit(1)
	}

	opts := bim.Options{
		FixDuplicateIDs:  fixDuplicateIDs,
		FixDuplicateLoci: fixDuplicatePositions,
		KeepFirst:        keepFirst,
		RetainListPath:   retainList,
	}

	var result *bim.Result
	var err error
	timedRun(timed, profile, "Fixing variant IDs and positions.", 1, func() {
		result, err = bim.Fix(input, output, opts)
	})
	if err != nil {
		return err
	}
	log.Printf("Processed %v variant records, retained %v.\n", result.In, result.Out)
	if result.RowsRemoved() {
		log.Printf("Warning: %v variants were removed; a .bed file paired with %v must be re-synchronized (see plinkqc fix).\n",
			result.In-result.Out, input)
	}
	logSummary(result.Log)
	return writeReport(report, result.Log)
}

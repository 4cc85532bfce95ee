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
	"os"
	"strconv"

	"github.com/exascience/plinkqc/bed"
	"github.com/exascience/plinkqc/bim"
	"github.com/exascience/plinkqc/changes"
	"github.com/exascience/plinkqc/fam"
)

// CheckHelp is the help string for this command.
const CheckHelp = "\ncheck parameters:\n" +
	"plinkqc check dataset-prefix\n" +
	"[--allowed-chars characters]\n" +
	"[--report file]\n" +
	"[--timed]\n" +
	"[--log-path path]\n"

// checkDataset inspects a dataset without writing repaired tables and
// returns everything the repair commands would change.
func checkDataset(prefix, allowedChars string) (*changes.Log, error) {
	in := bed.Prefixed(prefix)

	famResult, err := fam.Fix(in.Fam, "", fam.Options{
		FixInvalidChars: true,
		FixDuplicates:   true,
		ExtraAllowed:    allowedChars,
	})
	if err != nil {
		return nil, err
	}
	bimResult, err := bim.Fix(in.Bim, "", bim.Options{
		FixDuplicateIDs:  true,
		FixDuplicateLoci: true,
		KeepFirst:        true,
	})
	if err != nil {
		return nil, err
	}
	if err := bed.Validate(in.Bed, famResult.Records, bimResult.In); err != nil {
		return nil, err
	}

	findings := changes.NewLog()
	findings.Merge(famResult.Log)
	for _, fc := range famResult.SharedFamilies {
		findings.Add(changes.DuplicateFamilyID, fc.ID, fc.ID,
			"family ID shared by "+strconv.Itoa(fc.Count)+" samples")
	}
	findings.Merge(bimResult.Log)
	return findings, nil
}

// Check implements the plinkqc check command. It exits with status 3
// when the dataset needs repair.
func Check() error {
	var (
		allowedChars string
		report       string
		timed        bool
		profile      string
		logPath      string
	)

	var flags flag.FlagSet

	flags.StringVar(&allowedChars, "allowed-chars", fam.DefaultExtraAllowed, "non-alphanumeric characters allowed in sample identifiers")
	flags.StringVar(&report, "report", "", "write the findings to the given file instead of standard output")
	flags.BoolVar(&timed, "timed", false, "measure the runtime")
	flags.StringVar(&profile, "profile", "", "write a runtime profile to the specified file(s)")
	flags.StringVar(&logPath, "log-path", "", "write log files to the specified directory")

	parseFlags(flags, 3, CheckHelp)

	prefix := getFilename(os.Args[2], CheckHelp)

	setLogOutput(logPath)

	// sanity checks

	var sanityChecksFailed bool

	for _, name := range []string{prefix + ".bed", prefix + ".bim", prefix + ".fam"} {
		if !checkExist("", name) {
			sanityChecksFailed = true
		}
	}
	if report != "" && !checkCreate("--report", report) {
		sanityChecksFailed = true
	}

	if sanityChecksFailed {
		fmt.Fprint(os.Stderr, CheckHelp)
		os.Exit(1)
	}

	var findings *changes.Log
	var err error
	timedRun(timed, profile, "Checking PLINK dataset.", 1, func() {
		findings, err = checkDataset(prefix, allowedChars)
	})
	if err != nil {
		return err
	}

	if report == "" {
		report = "/dev/stdout"
	}
	if err := writeReport(report, findings); err != nil {
		return err
	}
	logSummary(findings)
	if findings.Len() > 0 {
		os.Exit(3)
	}
	return nil
}

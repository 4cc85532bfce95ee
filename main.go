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

// plinkQC is a tool for validating and repairing PLINK binary
// datasets: it normalizes sample and variant identifiers, removes
// records on duplicated positions, and re-synchronizes the genotype
// matrix when the variant table shrank.
//
// Please see https://github.com/exascience/plinkqc for a documentation
// of the tool, and below for the API documentation.
package main

import (
	"fmt"
	"log"
	"os"

	"github.com/exascience/plinkqc/cmd"
)

func printHelp() {
	fmt.Fprintln(os.Stderr, "Available commands: fix, fix-samples, fix-variants, check")
	fmt.Fprint(os.Stderr, "\n", cmd.FixHelp)
	fmt.Fprint(os.Stderr, "\n", cmd.FixSamplesHelp)
	fmt.Fprint(os.Stderr, "\n", cmd.FixVariantsHelp)
	fmt.Fprint(os.Stderr, "\n", cmd.CheckHelp)
}

func main() {
	fmt.Fprintln(os.Stderr, cmd.ProgramMessage)
	if len(os.Args) < 2 {
		log.Println("Incorrect number of parameters.")
		fmt.Fprint(os.Stderr, cmd.HelpMessage, "\n")
		printHelp()
		os.Exit(1)
	}

	var err error
	switch os.Args[1] {
	case "fix":
		err = cmd.Fix()
	case "fix-samples":
		err = cmd.FixSamples()
	case "fix-variants":
		err = cmd.FixVariants()
	case "check":
		err = cmd.Check()
	case "help", "-help", "--help", "-h", "--h":
		printHelp()
	default:
		log.Printf("Unknown command: %v.\n", os.Args[1])
		printHelp()
		os.Exit(1)
	}
	if err != nil {
		log.Fatal(err)
	}
}

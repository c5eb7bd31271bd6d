// Command buderus-wps talks to a Buderus WPS heat pump over a USBtin
// adapter speaking the SLCAN protocol, reading and writing named
// parameters and monitoring the bus's passive broadcast traffic (spec §4.I).
package main

import (
	"fmt"
	"os"
)

var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	if len(args) == 0 {
		printUsage()
		return 1
	}

	sub, rest := args[0], args[1:]
	var err error
	switch sub {
	case "read":
		err = cmdRead(rest)
	case "write":
		err = cmdWrite(rest)
	case "list":
		err = cmdList(rest)
	case "dump":
		err = cmdDump(rest)
	case "monitor":
		err = cmdMonitor(rest)
	case "-version", "--version", "version":
		fmt.Printf("buderus-wps %s (commit %s, built %s)\n", version, commit, date)
		return 0
	case "-h", "--help", "help":
		printUsage()
		return 0
	default:
		fmt.Fprintf(os.Stderr, "ERROR: unknown command %q\n", sub)
		printUsage()
		return 1
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: %v\n", err)
		return 1
	}
	return 0
}

func printUsage() {
	fmt.Fprintln(os.Stderr, `usage: buderus-wps <command> [flags]

commands:
  read <name-or-idx>          read a parameter via RTR (falls back to broadcast capture)
  write <name-or-idx> <value> write a parameter
  list                        list all known parameter names
  dump                        dump the whole parameter table with last-known values
  monitor                     passively capture and print broadcast traffic
  version                     print version information`)
}

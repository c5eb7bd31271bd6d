package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"sort"
	"strings"

	"github.com/kstaniek/buderus-wps/internal/param"
)

// cmdList implements the "list [--filter <substr>]" subcommand (spec
// §4.I): print every known parameter name, optionally restricted to those
// whose name contains a case-insensitive substring.
func cmdList(args []string) error {
	fs := flag.NewFlagSet("list", flag.ContinueOnError)
	common := addCommonFlags(fs)
	filter := fs.String("filter", "", "Only list parameters whose name contains this substring")
	writableOnly := fs.Bool("writable", false, "Only list writable (read==0) parameters")
	readOnlyOnly := fs.Bool("read-only", false, "Only list read-only parameters")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := finishFlags(fs, common); err != nil {
		return err
	}

	ctx := context.Background()
	table := loadTable(ctx, common, nil)

	needle := strings.ToUpper(*filter)
	params := make([]param.Parameter, 0, len(table.Parameters))
	for _, p := range table.Parameters {
		if needle != "" && !strings.Contains(strings.ToUpper(p.Name), needle) {
			continue
		}
		if *writableOnly && !p.Writable() {
			continue
		}
		if *readOnlyOnly && p.Writable() {
			continue
		}
		params = append(params, p)
	}
	sort.Slice(params, func(i, j int) bool { return params[i].Index < params[j].Index })

	if common.jsonOut {
		return printListJSON(params)
	}
	for _, p := range params {
		rw := "rw"
		if !p.Writable() {
			rw = "ro"
		}
		fmt.Printf("%5d  %-40s  %-4s  %s\n", p.Index, p.Name, p.Format, rw)
	}
	return nil
}

func printListJSON(params []param.Parameter) error {
	type row struct {
		Index    int    `json:"idx"`
		Name     string `json:"name"`
		Format   string `json:"format"`
		Writable bool   `json:"writable"`
		Min      int    `json:"min"`
		Max      int    `json:"max"`
	}
	rows := make([]row, len(params))
	for i, p := range params {
		rows[i] = row{Index: p.Index, Name: p.Name, Format: string(p.Format), Writable: p.Writable(), Min: p.Min, Max: p.Max}
	}
	b, err := json.Marshal(rows)
	if err != nil {
		return err
	}
	fmt.Println(string(b))
	return nil
}

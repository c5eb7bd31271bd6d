package main

import (
	"context"
	"errors"
	"flag"
	"fmt"

	"github.com/kstaniek/buderus-wps/internal/codec"
	"github.com/kstaniek/buderus-wps/internal/engine"
)

// cmdWrite implements the "write <name-or-idx> <value>" subcommand (spec
// §4.I). For rp1/rp2/dp1/dp2 parameters the codec resolves a selector
// option name or "<n>:Name" to its number before the value reaches the
// wire. No other named values (such as "winter" or "summer") are
// translated; any other input must be a number.
func cmdWrite(args []string) error {
	fs := flag.NewFlagSet("write", flag.ContinueOnError)
	common := addCommonFlags(fs)
	dryRun := fs.Bool("dry-run", false, "Resolve and validate the value but do not transmit")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 2 {
		return errors.New("write requires exactly two arguments: <name-or-idx> <value>")
	}
	query, value := fs.Arg(0), fs.Arg(1)
	if err := finishFlags(fs, common); err != nil {
		return err
	}

	link, err := openLink(common, *dryRun)
	if err != nil {
		return err
	}
	defer link.Close()

	ctx := context.Background()
	table := loadTable(ctx, common, link)
	p, err := table.Resolve(query)
	if err != nil {
		return err
	}

	if *dryRun {
		if !p.Writable() {
			return fmt.Errorf("%s is read-only", p.Name)
		}
		raw, err := codec.ResolveInt(p.Format, value)
		if err != nil {
			return err
		}
		if err := p.Validate(int(raw)); err != nil {
			return err
		}
	} else {
		e := engine.New(link)
		e.SetTimeout(common.timeout)
		if err := e.Write(p, value); err != nil {
			return err
		}
	}

	if common.jsonOut {
		fmt.Printf(`{"name":%q,"idx":%d,"value":%q}`+"\n", p.Name, p.Index, value)
	} else {
		fmt.Printf("%s (idx=%d) <- %s\n", p.Name, p.Index, value)
	}
	return nil
}

package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"time"

	"github.com/kstaniek/buderus-wps/internal/broadcast"
	"github.com/kstaniek/buderus-wps/internal/can"
	"github.com/kstaniek/buderus-wps/internal/codec"
	"github.com/kstaniek/buderus-wps/internal/engine"
	"github.com/kstaniek/buderus-wps/internal/metrics"
)

// monitorEvent is one printed line of "monitor" output: a decoded
// broadcast observation, named where KnownBroadcasts recognizes its
// (base, idx) slot.
type monitorEvent struct {
	CANID    string  `json:"can_id"`
	Base     uint16  `json:"base"`
	Idx      uint16  `json:"idx"`
	Name     string  `json:"name,omitempty"`
	RawValue int32   `json:"raw_value"`
	IsTemp   bool    `json:"is_temperature"`
	TempC    float64 `json:"temp_c,omitempty"`
}

// cmdMonitor implements the "monitor [--duration <s>] [--json]
// [--temps-only]" subcommand (spec §4.I): passively captures broadcast
// traffic and prints every observed reading as it arrives, optionally
// exposing the ambient-stack metrics/mDNS additions for a long-running
// invocation (SPEC_FULL "cmd/buderus-wps" notes).
func cmdMonitor(args []string) error {
	fs := flag.NewFlagSet("monitor", flag.ContinueOnError)
	common := addCommonFlags(fs)
	duration := fs.Duration("duration", 30*time.Second, "How long to listen for broadcast traffic")
	tempsOnly := fs.Bool("temps-only", false, "Only print readings that look like temperature samples")
	metricsAddr := fs.String("metrics-addr", "", "If set, serve Prometheus /metrics and /ready on this address for the duration of the capture")
	mdnsEnable := fs.Bool("mdns-enable", false, "Advertise --metrics-addr over mDNS while monitoring")
	mdnsName := fs.String("mdns-name", "", "mDNS instance name override")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := finishFlags(fs, common); err != nil {
		return err
	}

	link, err := openLink(common, true)
	if err != nil {
		return err
	}
	defer link.Close()

	ctx, cancel := context.WithTimeout(context.Background(), *duration+5*time.Second)
	defer cancel()

	if *metricsAddr != "" {
		metrics.InitBuildInfo(version, commit, date)
		srv := metrics.StartHTTP(*metricsAddr)
		defer func() { _ = srv.Close() }()

		stopMDNS, err := startMDNS(ctx, *mdnsEnable, *mdnsName, *metricsAddr)
		if err != nil {
			fmt.Printf("WARNING: mdns registration failed: %v\n", err)
		} else {
			defer stopMDNS()
		}
	}

	mon := broadcast.NewMonitor()
	e := engine.New(link)
	return e.Capture(*duration, func(fr can.Frame) {
		r := broadcast.ToReading(fr, time.Now())
		mon.Observe(r)
		if *tempsOnly && !r.IsTemperature() {
			return
		}
		printMonitorEvent(r, common.jsonOut)
	})
}

func printMonitorEvent(r broadcast.Reading, asJSON bool) {
	ev := monitorEvent{
		CANID:    fmt.Sprintf("%08X", r.CANID),
		Base:     r.Base,
		Idx:      r.Idx,
		Name:     broadcast.KnownName(r),
		RawValue: r.RawValue,
		IsTemp:   r.IsTemperature(),
	}
	if ev.IsTemp {
		ev.TempC = r.Temperature()
	}
	if asJSON {
		b, _ := json.Marshal(ev)
		fmt.Println(string(b))
		return
	}
	if ev.Name != "" {
		fmt.Printf("base=0x%04X idx=%-4d %-24s raw=%-6d", ev.Base, ev.Idx, ev.Name, ev.RawValue)
	} else {
		fmt.Printf("base=0x%04X idx=%-4d %-24s raw=%-6d", ev.Base, ev.Idx, "(unknown)", ev.RawValue)
	}
	if ev.IsTemp {
		fmt.Printf("  %.1f°C\n", ev.TempC)
	} else {
		fmt.Println()
	}
}

package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/grandcat/zeroconf"
)

// mdnsServiceType advertises the optional Prometheus metrics endpoint a
// long-running "monitor" invocation may expose, not the heat pump link
// itself (there is nothing on the LAN for other hosts to discover about
// a point-to-point serial connection).
const mdnsServiceType = "_buderus-wps-metrics._tcp"

// startMDNS registers the metrics endpoint via mDNS and returns a cleanup
// function; it is a no-op when disabled or when metricsAddr is empty, and
// returns an error when metricsAddr has no parsable port.
func startMDNS(ctx context.Context, enable bool, name, metricsAddr string) (func(), error) {
	if !enable || metricsAddr == "" {
		return func() {}, nil
	}
	_, portStr, ok := strings.Cut(metricsAddr, ":")
	if !ok {
		return func() {}, fmt.Errorf("mdns: cannot parse port from %q", metricsAddr)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return func() {}, fmt.Errorf("mdns: invalid port in %q: %w", metricsAddr, err)
	}

	instance := name
	if instance == "" {
		host, _ := os.Hostname()
		instance = fmt.Sprintf("buderus-wps-%s", host)
	}
	svc, err := zeroconf.Register(instance, mdnsServiceType, "local.", port, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("mdns register: %w", err)
	}
	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
		case <-done:
		}
		svc.Shutdown()
	}()
	return func() { close(done); svc.Shutdown(); time.Sleep(50 * time.Millisecond) }, nil
}

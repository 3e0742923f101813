// beacond is a thin example host binary demonstrating the full responder
// side of the Beacon mDNS library: it registers one service, advertises it
// over both IPv4 and IPv6 multicast, and runs until interrupted.
//
// Usage:
//
//	go run ./cmd/beacond -name "My Service" -type _http._tcp.local -port 8080
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joshuafuller/beacon/responder"
)

func main() {
	var (
		instanceName = flag.String("name", "Beacon Service", "service instance name")
		serviceType  = flag.String("type", "_http._tcp.local", "service type (_service._proto.local)")
		port         = flag.Int("port", 8080, "service port")
		txt          = flag.String("txt", "", "comma-separated key=value TXT record pairs")
	)
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	r, err := responder.New(ctx, responder.WithConflictHandler(func(serviceID string) {
		log.Printf("mdns: gave up renaming %s after repeated conflicts", serviceID)
	}))
	if err != nil {
		log.Fatalf("mdns: failed to start responder: %v", err)
	}
	defer r.Close()

	svc := &responder.Service{
		InstanceName: *instanceName,
		ServiceType:  *serviceType,
		Port:         *port,
		TXTRecords:   parseTXT(*txt),
	}

	if err := r.Register(svc); err != nil {
		log.Fatalf("mdns: failed to register %s: %v", svc.InstanceName, err)
	}
	log.Printf("mdns: advertising %q as %s on port %d", svc.InstanceName, svc.ServiceType, svc.Port)

	<-ctx.Done()
	log.Println("mdns: shutting down, sending goodbye packets")
}

// parseTXT turns "key=value,key2=value2" into a TXT record map, discarding
// malformed entries rather than failing the whole registration.
func parseTXT(s string) map[string]string {
	if s == "" {
		return nil
	}
	out := make(map[string]string)
	for _, pair := range strings.Split(s, ",") {
		key, value, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			continue
		}
		out[key] = value
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

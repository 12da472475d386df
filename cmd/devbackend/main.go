// Command devbackend runs the demo origin server standalone, for manual
// testing of the proxy against cacheable, slow, validated, and CRUD
// endpoints.
package main

import (
	"flag"
	"log"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/arashi-labs/reverseproxy/internal/devbackend"
)

func main() {
	addr := flag.String("listen", ":9000", "address to listen on")
	flag.Parse()

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/", devbackend.NewHandler())

	log.Printf("devbackend listening on %s", *addr)
	if err := http.ListenAndServe(*addr, mux); err != nil {
		log.Fatal(err)
	}
}

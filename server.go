package main

import (
	"fmt"
	"net/http"

	"github.com/ridesync-data/ridesync/internal/httputil"
	"github.com/ridesync-data/ridesync/internal/version"
)

func homeHandler(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		httputil.NotFound(w, "no such route")
		return
	}
	fmt.Fprintf(w, "RideSync telemetry server %s. API under /api/.\n", version.Version)
}

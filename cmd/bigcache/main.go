// Command bigcache launches the disk-resident key/value cache service: it
// opens the store, wires up the HTTP surface, and serves until signaled to
// shut down.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gisman/bigcache/internal/httpapi"
	"github.com/gisman/bigcache/internal/lifecycle"
)

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func main() {
	dbPath := getenv("DB_PATH", "./data")

	port := flag.Int("port", 36379, "listen port")
	flag.Parse()

	ctrl, err := lifecycle.Open(dbPath)
	if err != nil {
		log.Fatalf("open store at %s: %v", dbPath, err)
	}

	handler := httpapi.NewHandler(ctrl, httpapi.DefaultConfig())
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", *port),
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Printf("bigcache listening on %s (store: %s)", srv.Addr, dbPath)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("server shutdown error: %v", err)
	}

	if err := ctrl.Shutdown(); err != nil {
		log.Printf("store shutdown error: %v", err)
	}
	log.Println("bigcache stopped")
}

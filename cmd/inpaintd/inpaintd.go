// Copyright 2016 Michael Stapelberg and contributors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Program inpaintd serves the inpainting pipeline and the batch command
// engine over HTTP, and processes queued inpainting jobs in the background.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/stapelberg/inpaint"
	"github.com/stapelberg/inpaint/internal/httpinpaint"
	"github.com/stapelberg/inpaint/internal/jobqueue"
	"github.com/stapelberg/inpaint/internal/mayqtt"
	"github.com/stapelberg/inpaint/internal/patch"
	"github.com/stapelberg/inpaint/internal/script"
	"golang.org/x/crypto/acme/autocert"
	"golang.org/x/net/trace"
	"golang.org/x/sync/errgroup"

	_ "net/http/pprof"
)

func logic() error {
	stateDir := flag.String("state_dir",
		"/perm/inpaint-state",
		"Directory containing state such as TLS certificates")

	jobsDir := flag.String("jobs_dir",
		"/perm/inpaint-jobs",
		"Directory in which queued inpainting jobs and their results are stored")

	httpListenAddr := flag.String("http_listen_address",
		"localhost:7130",
		"[host]:port to listen on for HTTP requests")

	httpsListenAddr := flag.String("https_listen_address",
		":https",
		"[host]:port to listen on for HTTPS requests. This is a no-op unless -tls_autocert_hosts is non-empty.")

	autocertHostList := flag.String("tls_autocert_hosts",
		"",
		"If non-empty, a comma-separated list of hostnames to obtain TLS certificates for. If non-empty, a TLS listener will be enabled on -https_listen_address")

	mqttBroker := flag.String("mqtt_broker",
		"",
		"If non-empty, an MQTT broker address (e.g. tcp://localhost:1883) to publish the service status to")

	maxRequestBytes := flag.Int64("max_request_bytes",
		httpinpaint.DefaultMaxRequestBytes,
		"Maximum size of HTTP request bodies")

	dilationRadius := flag.Int("dilation_radius",
		inpaint.DefaultDilationRadius,
		"Radius by which the red mask is grown before inpainting")

	defaults := patch.DefaultOptions()
	patchSize := flag.Int("patch_size", defaults.PatchSize, "Side length of the compared patches")
	lookupSize := flag.Int("lookup_size", defaults.LookupSize, "Half-width of the window searched for source patches")
	lookupIncrement := flag.Int("lookup_increment", defaults.LookupIncrement, "Step between candidate source patches")

	flag.Parse()

	log.Printf("inpaintd starting")

	status := mayqtt.Start(*mqttBroker, "inpaintd")

	patchOpts := patch.Options{
		PatchSize:       *patchSize,
		LookupSize:      *lookupSize,
		LookupIncrement: *lookupIncrement,
	}
	pipeline := inpaint.NewPipeline(inpaint.Options{
		DilationRadius: *dilationRadius,
		Inpainter:      patch.NewInpainter(patchOpts),
	})
	queue := &jobqueue.Queue{Dir: *jobsDir}
	if err := os.MkdirAll(queue.Dir, 0755); err != nil {
		return err
	}

	// A single sequential worker: inpainting is CPU-bound and jobs are
	// processed in the order in which they were submitted.
	workJobs := make(chan *jobqueue.Job, 100)
	eg, ctx := errgroup.WithContext(context.Background())
	eg.Go(func() error {
		for {
			select {
			case <-ctx.Done():
				return nil
			case job := <-workJobs:
				status.Publishf("inpainting job %s", job.Id())
				if err := jobqueue.Process(ctx, pipeline, job); err != nil {
					log.Printf("job %v failed: %v", job.Id(), err)
				}
				if len(workJobs) == 0 {
					status.Publishf("idle")
				}
			}
		}
	})

	enqueue := func(job *jobqueue.Job) {
		select {
		case workJobs <- job:
			log.Printf("job %v enqueued", job.Id())
		default:
			// Stays Pending on disk and is picked up on the next start.
			log.Printf("work queue full, not enqueuing job %v", job.Id())
		}
	}

	go func() {
		// Resume jobs which were submitted, but not processed before the last
		// shutdown.
		jobs, err := queue.Jobs()
		if err != nil {
			log.Print(err)
			return
		}
		for _, job := range jobs {
			if job.State() != jobqueue.Pending {
				continue
			}
			log.Printf("enqueuing unfinished job %s", job.Id())
			select {
			case workJobs <- job:
			case <-ctx.Done():
				return
			}
		}
	}()

	type serveFunc struct {
		serve    func() error
		shutdown func() error
	}
	var serveFuncs []serveFunc

	if *autocertHostList != "" {
		// Start HTTPS listener with autocert
		var hosts []string
		for _, host := range strings.Split(*autocertHostList, ",") {
			host = strings.TrimSpace(host)
			if host == "" {
				continue
			}
			hosts = append(hosts, host)
		}

		m := &autocert.Manager{
			Cache:      autocert.DirCache(filepath.Join(*stateDir, "autocert")),
			Prompt:     autocert.AcceptTOS,
			HostPolicy: autocert.HostWhitelist(hosts...),
		}
		s := &http.Server{
			Addr:      *httpsListenAddr,
			TLSConfig: m.TLSConfig(),
		}
		for _, host := range hosts {
			log.Printf("listening on https://%s", host)
		}

		ln, err := net.Listen("tcp", s.Addr)
		if err != nil {
			return err
		}
		serveFuncs = append(serveFuncs, serveFunc{
			serve: func() error {
				defer ln.Close()
				return s.ServeTLS(ln, "", "")
			},
			shutdown: func() error {
				timeout, canc := context.WithTimeout(context.Background(), 250*time.Millisecond)
				defer canc()
				return s.Shutdown(timeout)
			},
		})
	}

	// HTTP listener (local network)
	ln, err := net.Listen("tcp", *httpListenAddr)
	if err != nil {
		return err
	}
	log.Printf("listening on http://%s", ln.Addr())
	httpServer := &http.Server{}
	serveFuncs = append(serveFuncs, serveFunc{
		serve: func() error {
			return httpServer.Serve(ln)
		},
		shutdown: func() error {
			timeout, canc := context.WithTimeout(context.Background(), 250*time.Millisecond)
			defer canc()
			return httpServer.Shutdown(timeout)
		},
	})

	serveMux := httpinpaint.ServeMux(httpinpaint.Config{
		Pipeline:        pipeline,
		Engine:          script.New(patchOpts),
		Queue:           queue,
		Enqueue:         enqueue,
		MaxRequestBytes: *maxRequestBytes,
	})
	http.Handle("/api/", http.StripPrefix("/api", serveMux))
	http.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		fmt.Fprintf(w, "inpaintd: %s\n", status.LastStatus())
	})

	// for /debug/requests:
	trace.AuthRequest = func(req *http.Request) (bool, bool) {
		// RemoteAddr is commonly in the form "IP" or "IP:port".
		// If it is in the form "IP:port", split off the port.
		host, _, err := net.SplitHostPort(req.RemoteAddr)
		if err != nil {
			host = req.RemoteAddr
		}
		ip := net.ParseIP(host)
		if ip == nil {
			return false, false
		}
		if ip.IsLoopback() || ip.IsPrivate() {
			return true, true
		}
		return false, false
	}

	status.Publishf("idle")

	for _, sf := range serveFuncs {
		sf := sf // copy
		eg.Go(func() error {
			errC := make(chan error)
			go func() {
				errC <- sf.serve()
			}()
			select {
			case err := <-errC:
				return err
			case <-ctx.Done():
				if err := sf.shutdown(); err != nil {
					log.Printf("shutting down listener: %v", err)
				}
				return ctx.Err()
			}
		})
	}

	return eg.Wait()
}

func main() {
	if err := logic(); err != nil {
		log.Fatal(err)
	}
}

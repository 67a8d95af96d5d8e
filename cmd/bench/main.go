package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"strings"
	"sync/atomic"
	"time"

	"github.com/go-resty/resty/v2"
	"golang.org/x/sync/errgroup"
)

func main() {
	addr := flag.String("addr", "http://localhost:8080", "server address")
	n := flag.Int("n", 5000, "instances to register")
	conc := flag.Int("c", 32, "concurrency")
	services := flag.Int("services", 16, "distinct service names")
	valSize := flag.Int("val", 128, "payload size bytes")
	flag.Parse()

	client := resty.New().
		SetBaseURL(strings.TrimSuffix(*addr, "/")).
		SetTimeout(5 * time.Second).
		SetHeader("Content-Type", "application/json")

	var failed atomic.Int64
	g, ctx := errgroup.WithContext(context.Background())
	g.SetLimit(*conc)
	start := time.Now()

	for i := 0; i < *n; i++ {
		g.Go(func() error {
			service := fmt.Sprintf("svc%d", rand.Intn(*services))
			instance := fmt.Sprintf("i%d", i)
			body := fmt.Sprintf(`{"addr":"10.0.%d.%d","pad":%q}`, i/256%256, i%256, strings.Repeat("x", *valSize))

			resp, err := client.R().SetContext(ctx).SetBody(body).
				SetPathParams(map[string]string{"service": service, "instance": instance}).
				Put("/{service}/{instance}")
			if err != nil || resp.IsError() {
				failed.Add(1)
			}
			resp, err = client.R().SetContext(ctx).
				SetPathParam("service", service).
				Get("/{service}")
			if err != nil || resp.IsError() {
				failed.Add(1)
			}
			return nil
		})
	}
	_ = g.Wait()
	dur := time.Since(start)
	fmt.Printf("Completed %d ops in %s (%.2f ops/s, %d failed)\n", *n*2, dur, float64(*n*2)/dur.Seconds(), failed.Load())
}

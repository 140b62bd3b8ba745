// Command smoke probes a running API instance and reports per-endpoint
// health. Used after deploys to confirm the public surface responds.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"time"
)

type target struct {
	Method     string `json:"method"`
	Path       string `json:"path"`
	WantStatus int    `json:"want_status"`
	Critical   bool   `json:"critical"`
}

type config struct {
	Targets []target `json:"targets"`
}

type probe struct {
	Target   target
	Status   int
	OK       bool
	Err      error
	Duration time.Duration
}

func main() {
	var (
		baseURL     string
		targetsPath string
		timeout     time.Duration
	)

	flag.StringVar(&baseURL, "base", "http://localhost:8080", "API base URL")
	flag.StringVar(&targetsPath, "targets", filepath.Join("scripts", "smoke", "targets.json"), "Path to JSON targets file")
	flag.DurationVar(&timeout, "timeout", 5*time.Second, "HTTP client timeout")
	flag.Parse()

	targets, err := loadTargets(targetsPath)
	if err != nil {
		log.Fatalf("failed to load targets: %v", err)
	}

	client := &http.Client{Timeout: timeout}

	var criticalFailures int
	for _, t := range targets {
		p := run(client, baseURL, t)
		report(p)
		if !p.OK && t.Critical {
			criticalFailures++
		}
	}

	if criticalFailures > 0 {
		fmt.Fprintf(os.Stderr, "%d critical endpoint(s) failing\n", criticalFailures)
		os.Exit(1)
	}
}

func loadTargets(path string) ([]target, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	if len(cfg.Targets) == 0 {
		return nil, fmt.Errorf("no targets defined in %s", path)
	}

	return cfg.Targets, nil
}

func run(client *http.Client, baseURL string, t target) probe {
	p := probe{Target: t}

	want := t.WantStatus
	if want == 0 {
		want = http.StatusOK
	}

	req, err := http.NewRequest(t.Method, baseURL+t.Path, nil)
	if err != nil {
		p.Err = err
		return p
	}

	start := time.Now()
	resp, err := client.Do(req)
	p.Duration = time.Since(start)
	if err != nil {
		p.Err = err
		return p
	}
	defer resp.Body.Close() //nolint:errcheck

	p.Status = resp.StatusCode
	p.OK = resp.StatusCode == want
	return p
}

func report(p probe) {
	label := "ok"
	if !p.OK {
		label = "FAIL"
	}
	if p.Err != nil {
		fmt.Printf("%-4s %-6s %-40s error: %v\n", label, p.Target.Method, p.Target.Path, p.Err)
		return
	}
	fmt.Printf("%-4s %-6s %-40s status=%d in %s\n", label, p.Target.Method, p.Target.Path, p.Status, p.Duration.Round(time.Millisecond))
}

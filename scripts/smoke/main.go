// Command smoke probes a running API instance and reports per-endpoint
// status and latency. Intended for post-deploy verification; exits non-zero
// when any critical probe fails.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"
)

type probe struct {
	Name     string `json:"name"`
	Method   string `json:"method"`
	Path     string `json:"path"`
	Expect   int    `json:"expect"`
	Critical bool   `json:"critical"`
}

type probeFile struct {
	Probes []probe `json:"probes"`
}

type result struct {
	Probe    probe
	Status   int
	Duration time.Duration
	Err      error
}

func main() {
	var (
		base       string
		probesPath string
		timeout    time.Duration
	)

	flag.StringVar(&base, "base", "http://localhost:8080", "API base URL")
	flag.StringVar(&probesPath, "probes", filepath.Join("scripts", "smoke", "probes.json"), "Path to JSON probes file")
	flag.DurationVar(&timeout, "timeout", 5*time.Second, "HTTP client timeout")
	flag.Parse()

	probes, err := loadProbes(probesPath)
	if err != nil {
		log.Fatalf("failed to load probes: %v", err)
	}

	client := &http.Client{Timeout: timeout}
	var (
		results []result
		failed  int
	)

	for _, p := range probes {
		res := runProbe(client, base, p)
		if res.Err != nil || res.Status != p.Expect {
			if p.Critical {
				failed++
			}
		}
		results = append(results, res)
	}

	printReport(results)

	if failed > 0 {
		fmt.Printf("critical failures: %d\n", failed)
		os.Exit(1)
	}
	fmt.Println("all critical probes passed")
}

func loadProbes(path string) ([]probe, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var file probeFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, err
	}
	if len(file.Probes) == 0 {
		return nil, fmt.Errorf("no probes defined in %s", path)
	}
	return file.Probes, nil
}

func runProbe(client *http.Client, base string, p probe) result {
	res := result{Probe: p}

	method := strings.ToUpper(strings.TrimSpace(p.Method))
	if method == "" {
		method = http.MethodGet
	}
	path := p.Path
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	url := strings.TrimRight(base, "/") + path

	req, err := http.NewRequest(method, url, nil)
	if err != nil {
		res.Err = err
		return res
	}

	start := time.Now()
	resp, err := client.Do(req)
	res.Duration = time.Since(start)
	if err != nil {
		res.Err = err
		return res
	}
	defer resp.Body.Close()

	res.Status = resp.StatusCode
	return res
}

func printReport(results []result) {
	fmt.Printf("%-30s %-8s %-8s %-10s %s\n", "PROBE", "STATUS", "EXPECT", "LATENCY", "RESULT")
	for _, r := range results {
		verdict := "ok"
		switch {
		case r.Err != nil:
			verdict = fmt.Sprintf("error: %v", r.Err)
		case r.Status != r.Probe.Expect:
			verdict = "status mismatch"
		}
		fmt.Printf("%-30s %-8d %-8d %-10s %s\n", r.Probe.Name, r.Status, r.Probe.Expect, r.Duration.Round(time.Millisecond), verdict)
	}
}

// Flaptest drives a running health engine through a down/up cycle of one
// dependency and checks that the report and metrics follow.
//
// Start the engine with a pingservice in its roster, then:
//
//	go run ./scripts/flaptest -engine http://localhost:8080 -dependency http://localhost:8081 -name billing
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"slices"
	"time"
)

const (
	colorReset = "\033[0m"
	colorRed   = "\033[31m"
	colorGreen = "\033[32m"
	colorBlue  = "\033[34m"
	colorCyan  = "\033[36m"
)

type report struct {
	ActiveCount      int      `json:"activeCount"`
	InactiveCount    int      `json:"inactiveCount"`
	ActiveServices   []string `json:"activeServices"`
	InactiveServices []string `json:"inactiveServices"`
}

type metricsSnapshot struct {
	Cycles           int64             `json:"cycles"`
	TotalTransitions int64             `json:"total_transitions"`
	Breakers         map[string]string `json:"breakers"`
}

func main() {
	var (
		engineURL     = flag.String("engine", "http://localhost:8080", "Health engine URL")
		dependencyURL = flag.String("dependency", "http://localhost:8081", "Pingservice URL")
		name          = flag.String("name", "billing", "Roster name of the pingservice")
	)
	flag.Parse()

	client := &http.Client{Timeout: 30 * time.Second}
	failed := false

	check := func(ok bool, format string, args ...any) {
		if ok {
			fmt.Printf(colorGreen+"  ✓ "+format+"\n"+colorReset, args...)
			return
		}
		failed = true
		fmt.Printf(colorRed+"  ✗ "+format+"\n"+colorReset, args...)
	}

	fmt.Println(colorCyan + "━━━ FLAP TEST ━━━" + colorReset)

	fmt.Println(colorBlue + "Phase 1: baseline" + colorReset)
	setFailing(client, *dependencyURL, false)
	before := getMetrics(client, *engineURL)
	r := getReport(client, *engineURL)
	check(slices.Contains(r.ActiveServices, *name), "%s is active", *name)

	fmt.Println(colorBlue + "Phase 2: dependency goes down" + colorReset)
	setFailing(client, *dependencyURL, true)
	r = getReport(client, *engineURL)
	check(slices.Contains(r.InactiveServices, *name), "%s is inactive", *name)
	r = getReport(client, *engineURL)
	check(slices.Contains(r.InactiveServices, *name), "%s stays inactive", *name)

	fmt.Println(colorBlue + "Phase 3: dependency recovers" + colorReset)
	setFailing(client, *dependencyURL, false)
	r = getReport(client, *engineURL)
	check(slices.Contains(r.ActiveServices, *name), "%s is active again", *name)

	fmt.Println(colorBlue + "Phase 4: metrics" + colorReset)
	after := getMetrics(client, *engineURL)
	transitions := after.TotalTransitions - before.TotalTransitions
	check(transitions >= 2, "at least two transitions recorded (got %d)", transitions)
	check(after.Cycles > before.Cycles, "cycles advanced from %d to %d", before.Cycles, after.Cycles)
	for breaker, state := range after.Breakers {
		fmt.Printf("    breaker %s → %s\n", breaker, state)
	}

	if failed {
		os.Exit(1)
	}
	fmt.Println(colorGreen + "All checks passed" + colorReset)
}

func setFailing(client *http.Client, dependencyURL string, on bool) {
	resp, err := client.Post(fmt.Sprintf("%s/fail?on=%t", dependencyURL, on), "", nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to toggle dependency: %v\n", err)
		os.Exit(1)
	}
	resp.Body.Close()
}

func getReport(client *http.Client, engineURL string) report {
	var r report
	getJSON(client, engineURL+"/healthcheck", &r)
	return r
}

func getMetrics(client *http.Client, engineURL string) metricsSnapshot {
	var m metricsSnapshot
	getJSON(client, engineURL+"/metrics", &m)
	return m
}

func getJSON(client *http.Client, url string, into any) {
	resp, err := client.Get(url)
	if err != nil {
		fmt.Fprintf(os.Stderr, "GET %s: %v\n", url, err)
		os.Exit(1)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		fmt.Fprintf(os.Stderr, "GET %s: status %d\n", url, resp.StatusCode)
		os.Exit(1)
	}

	if err := json.NewDecoder(resp.Body).Decode(into); err != nil {
		fmt.Fprintf(os.Stderr, "GET %s: %v\n", url, err)
		os.Exit(1)
	}
}

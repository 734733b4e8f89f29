// Package main - test-runner
// Executable to run the headless descent scenario suite.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"github.com/MRamiBalles/CaidaLibre/internal/platform/logger"
	"github.com/MRamiBalles/CaidaLibre/test"
)

func main() {
	verbose := flag.Bool("v", false, "print engine logs")
	flag.Parse()

	fmt.Println("DESCENT - SCENARIO SUITE")
	fmt.Println("================================================")

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	log := logger.Discard()
	if *verbose {
		log = logger.NewLogger()
	}

	suite := test.NewDescentSuite(log)
	suite.RunTest(ctx)

	// Summary
	results := suite.GetResults()
	passed := 0
	failed := 0

	for _, r := range results {
		if r.Passed {
			passed++
		} else {
			failed++
		}
	}

	fmt.Println("\n" + strings.Repeat("=", 60))
	fmt.Println("SUMMARY")
	fmt.Println(strings.Repeat("=", 60))
	for _, r := range results {
		mark := "PASS"
		if !r.Passed {
			mark = "FAIL"
		}
		fmt.Printf("   [%s] %-28s expected: %s\n", mark, r.ScenarioName, r.Expected)
	}
	fmt.Printf("\n   Passed: %d\n", passed)
	fmt.Printf("   Failed: %d\n", failed)

	if failed > 0 || len(results) == 0 {
		fmt.Println("\nThe descent model needs recalibration")
		os.Exit(1)
	}
	fmt.Println("\nAll scenarios behave as designed")
}

// Command weightctl inspects and edits persisted ensemble weight files.
//
// Usage:
//
//	weightctl -state weights.json                 # print weights
//	weightctl -state weights.json -normalize      # print normalized weights
//	weightctl -state weights.json -reset worker-a # reset one worker to prior
//	weightctl -state weights.json -reset-all      # reset every worker
package main

import (
	"flag"
	"fmt"
	"log"
	"sort"

	"go.uber.org/zap"

	"github.com/ahrav/go-ensemble/infrastructure/learning"
)

func main() {
	var (
		statePath = flag.String("state", "", "Path to the persisted weight file (required)")
		reset     = flag.String("reset", "", "Worker ID to reset to the prior weight")
		resetAll  = flag.Bool("reset-all", false, "Reset every worker to the prior weight")
		normalize = flag.Bool("normalize", false, "Print weights normalized to sum to 1")
	)
	flag.Parse()

	if *statePath == "" {
		flag.Usage()
		log.Fatal("-state is required")
	}

	learner, err := learning.NewBayesianLearner(learning.DefaultBayesianConfig(), zap.NewNop())
	if err != nil {
		log.Fatalf("Failed to create learner: %v", err)
	}
	if err := learner.LoadFile(*statePath); err != nil {
		log.Fatalf("Failed to load %s: %v", *statePath, err)
	}

	modified := false
	switch {
	case *resetAll:
		learner.Reset()
		modified = true
	case *reset != "":
		learner.ResetWorker(*reset)
		modified = true
	}

	if modified {
		if err := learner.SaveFile(*statePath); err != nil {
			log.Fatalf("Failed to save %s: %v", *statePath, err)
		}
		fmt.Printf("Updated %s\n", *statePath)
	}

	weights := learner.AllWeights()
	ids := make([]string, 0, len(weights))
	for id := range weights {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	if *normalize {
		weights = learner.NormalizedWeights(ids)
	}

	fmt.Printf("Weights in %s (%d workers):\n", *statePath, len(ids))
	for _, id := range ids {
		fmt.Printf("- %-30s %.6f\n", id, weights[id])
	}
}

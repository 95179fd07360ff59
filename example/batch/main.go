package main

import (
	"context"
	"fmt"
	"log"

	"github.com/siherrmann/pseudonymizer"
	"github.com/siherrmann/pseudonymizer/helper"
	"github.com/siherrmann/pseudonymizer/model"
)

var documents = []string{
	"Marie Dubois a signé le contrat avec Acme.",
	"Le bureau de Lyon est dirigé par Olivier Durand.",
	"Marie Dubois et Olivier Durand se rencontrent à Lyon.",
}

func main() {
	dbConfig := &helper.DatabaseConfiguration{
		Driver: helper.DriverSQLite,
		Path:   "./data/pseudonymizer.db",
	}

	p, err := pseudonymizer.NewPseudonymizer(dbConfig, "correct horse battery staple")
	if err != nil {
		log.Fatalf("Failed to create pseudonymizer: %v", err)
	}
	defer p.Close()

	if err := p.UseDefaultDetector(); err != nil {
		log.Fatalf("Failed to set up detector: %v", err)
	}

	// Resolution runs on 4 workers; all mapping writes stay serialized
	plans, summary, err := p.ProcessBatch(context.Background(), documents, 4)
	if err != nil {
		log.Fatalf("Batch failed: %v (committed %d, failed %d)", err, summary.Committed, summary.Failed)
	}

	fmt.Printf("Batch finished: %d committed, %d failed\n\n", summary.Committed, summary.Failed)
	for i, plan := range plans {
		if plan == nil {
			fmt.Printf("document %d skipped: %s\n", i, summary.Documents[i].Error)
			continue
		}
		output, err := plan.Apply(documents[i])
		if err != nil {
			log.Fatalf("Failed to apply plan %d: %v", i, err)
		}
		fmt.Printf("document %d: %s\n", i, output)
	}

	// The same identities resolve to the same pseudonyms across
	// documents; list what was recorded.
	persons, err := p.Identities.SelectIdentitiesByCategory(model.CategoryPerson, 10)
	if err != nil {
		log.Fatalf("Failed to list identities: %v", err)
	}
	fmt.Println("\nPerson identities:")
	for _, identity := range persons {
		fmt.Printf("  %s -> %s\n", identity.FullText, identity.Pseudonym())
	}
}

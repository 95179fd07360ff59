package main

import (
	"context"
	"fmt"
	"log"

	"github.com/siherrmann/pseudonymizer"
	"github.com/siherrmann/pseudonymizer/helper"
)

const sampleDocument = `Compte rendu de réunion.

Mme Marie Dubois a présenté le rapport annuel. M. Olivier Durand,
représentant de la société Acme, a confirmé l'ouverture d'un bureau
à Lyon. Dubois a proposé une visite du site en septembre.`

func main() {
	// Local sqlite store, encrypted with a passphrase
	dbConfig := &helper.DatabaseConfiguration{
		Driver: helper.DriverSQLite,
		Path:   "./data/pseudonymizer.db",
	}

	p, err := pseudonymizer.NewPseudonymizer(dbConfig, "correct horse battery staple")
	if err != nil {
		log.Fatalf("Failed to create pseudonymizer: %v", err)
	}
	defer p.Close()

	// Set up the default NER detector (downloads the model on first use)
	if err := p.UseDefaultDetector(); err != nil {
		log.Fatalf("Failed to set up detector: %v", err)
	}

	output, plan, err := p.ProcessDocument(context.Background(), sampleDocument)
	if err != nil {
		log.Fatalf("Failed to process document: %v", err)
	}

	fmt.Println("Pseudonymized document:")
	fmt.Println(output)
	fmt.Printf("\nReplaced %d mention(s):\n", len(plan.Replacements))
	for _, r := range plan.Replacements {
		fmt.Printf("  [%d:%d] -> %q\n", r.StartOffset, r.EndOffset, r.ReplacementText)
	}

	// Reprocessing the same document is idempotent: same output,
	// no new mappings.
	again, _, err := p.ProcessDocument(context.Background(), sampleDocument)
	if err != nil {
		log.Fatalf("Failed to reprocess document: %v", err)
	}
	fmt.Printf("\nReprocessing identical: %v\n", output == again)
}

// gen_nodes writes a synthetic enriched-node input file for load
// testing the pipeline. Terms are generated from small word pools so
// the related/consequence references always resolve within the file,
// which keeps generated builds consistency-clean.
package main

import (
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/dgtm-project/dgtm/pkg/semgraph"
)

var (
	categories = []string{"emocional", "social", "abstrato"}
	classes    = []string{"substantivo", "verbo", "adjetivo"}
	intentions = []string{"expressar", "alertar", "descrever"}
	emotions   = []string{"amor", "raiva", "medo", "tristeza"}
	tones      = []string{"positivo", "negativo", "neutro"}
	contexts   = []string{"familia", "trabalho", "conflito", "luto", "celebracao"}
)

func main() {
	count := flag.Int("n", 1000, "number of nodes to generate")
	seed := flag.Int64("seed", 42, "rng seed, fixed for reproducible fixtures")
	out := flag.String("o", "nodes.yaml", "output file")
	flag.Parse()

	rng := rand.New(rand.NewSource(*seed))

	terms := make([]string, *count)
	for i := range terms {
		terms[i] = fmt.Sprintf("termo-%05d", i+1)
	}

	nodes := make([]semgraph.EntityNode, *count)
	for i := range nodes {
		n := semgraph.EntityNode{
			Term:         terms[i],
			Category:     pick(rng, categories),
			Class:        pick(rng, classes),
			Intention:    pick(rng, intentions),
			Emotion:      pick(rng, emotions),
			Tone:         pick(rng, tones),
			Intensity:    rng.Intn(101),
			Plausibility: rng.Intn(101),
		}
		for j := rng.Intn(3); j > 0; j-- {
			n.Contexts = append(n.Contexts, pick(rng, contexts))
		}
		for j := rng.Intn(4); j > 0; j-- {
			n.Related = append(n.Related, pick(rng, terms))
		}
		if rng.Intn(5) == 0 {
			n.Consequence = pick(rng, terms)
		}
		nodes[i] = n
	}

	data, err := yaml.Marshal(map[string]any{"nodes": nodes})
	if err != nil {
		log.Fatalf("marshal: %v", err)
	}
	if err := os.WriteFile(*out, data, 0o644); err != nil {
		log.Fatalf("write %s: %v", *out, err)
	}
	fmt.Printf("wrote %d nodes to %s (%d bytes)\n", *count, *out, len(data))
}

func pick(rng *rand.Rand, pool []string) string {
	return pool[rng.Intn(len(pool))]
}

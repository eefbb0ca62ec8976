package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/hyperifyio/webresearch/internal/app"
)

// debugsearch runs one query against the configured provider and prints the
// raw results plus the instant answer, if any.
func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	n := flag.Int("n", 5, "Number of results")
	flag.Parse()

	q := "What is love?"
	if flag.NArg() > 0 {
		q = flag.Arg(0)
	}
	if err := app.LoadEnvFiles(".env"); err != nil {
		log.Warn().Err(err).Msg("dotenv")
	}
	cfg := app.DefaultConfig()
	app.ApplyEnvOverrides(&cfg)
	if cfg.SearxURL == "" && cfg.SearchProvider == app.ProviderSearxNG {
		cfg.SearxURL = "http://localhost:8888"
	}

	prov, answerer, err := app.NewProvider(cfg, app.NewHTTPClient(cfg.SSLVerify))
	if err != nil {
		log.Fatal().Err(err).Msg("provider")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 25*time.Second)
	defer cancel()

	res, err := prov.Search(ctx, q, *n)
	fmt.Println("provider:", prov.Name(), "err:", err)
	for i, r := range res {
		fmt.Printf("%d. %s - %s\n", i+1, r.Title, r.URL)
	}
	if answerer != nil {
		ans, err := answerer.Answer(ctx, q)
		fmt.Printf("answer: %q err: %v\n", ans, err)
	}
}

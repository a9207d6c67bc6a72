package main

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"

	"aqua-launchpad/internal/price"
)

func newPriceCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "price <mint>",
		Short: "Resolve a mint's USD price through the source cascade",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			resolver := price.NewResolver(price.DefaultSources(price.Endpoints{
				JupiterQuote: a.cfg.Price.JupiterQuoteURL,
				JupiterPrice: a.cfg.Price.JupiterPriceURL,
				LegacyPrice:  a.cfg.Price.LegacyPriceURL,
				DexScreener:  a.cfg.Price.DexScreenerURL,
				Timeout:      a.cfg.Price.Timeout,
			}, nil), price.WithLogger(a.logger))

			q, err := resolver.Resolve(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(map[string]interface{}{
				"mint":       q.Mint,
				"price_usd":  q.PriceUSD,
				"price_sol":  q.PriceSOL,
				"source":     q.Source,
				"fetched_at": q.FetchedAt,
			})
		},
	}
}

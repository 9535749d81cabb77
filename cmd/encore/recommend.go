package main

import (
	"fmt"
	"os"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/ewilliams-labs/encore/internal/core/domain"
	"github.com/ewilliams-labs/encore/internal/core/services"
)

// observationFile is one entry of the offline observations file.
type observationFile struct {
	TrackName string   `json:"track_name"`
	Artists   []string `json:"artists"`
}

type recommendationOutput struct {
	Source string       `json:"source"`
	Track  string       `json:"matched_track"`
	Artist string       `json:"matched_artist"`
	Items  []scoredItem `json:"recommendations"`
}

type scoredItem struct {
	Track  string  `json:"track_name"`
	Artist string  `json:"artist_name"`
	Score  float64 `json:"score"`
}

func newRecommendCmd(opts *rootOptions) *cobra.Command {
	var (
		topN        int
		excludeSelf bool
	)

	cmd := &cobra.Command{
		Use:   "recommend [observations.json]",
		Short: "Match an observations file against the catalog and print recommendations",
		Long: `Match a JSON array of {"track_name", "artists"} objects against the
configured catalog and print the recommendations. Nothing is written to Spotify.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := opts.cfg
			ctx := cmd.Context()

			observations, err := readObservations(args[0])
			if err != nil {
				return err
			}

			store, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			source, closeSource, err := buildCatalog(ctx, cfg, store)
			if err != nil {
				return err
			}
			if closeSource != nil {
				defer closeSource()
			}

			catalog, err := source.LoadCatalog(ctx)
			if err != nil {
				return err
			}

			recOpts := services.RecommendOptions{TopN: cfg.Recommend.TopN, ExcludeSelf: cfg.Recommend.ExcludeSelf}
			if cmd.Flags().Changed("top") {
				recOpts.TopN = topN
			}
			if cmd.Flags().Changed("exclude-self") {
				recOpts.ExcludeSelf = excludeSelf
			}

			matches := services.Match(observations, catalog)
			recs := services.RecommendAll(matches, catalog, recOpts)

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(toOutput(recs))
		},
	}

	cmd.Flags().IntVarP(&topN, "top", "n", services.DefaultTopN, "recommendations per matched track")
	cmd.Flags().BoolVar(&excludeSelf, "exclude-self", false, "drop the matched track from its own list")
	return cmd
}

func readObservations(path string) ([]domain.Observation, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read observations: %w", err)
	}
	var entries []observationFile
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("failed to decode observations: %w", err)
	}

	out := make([]domain.Observation, 0, len(entries))
	for _, e := range entries {
		out = append(out, domain.Observation{TrackName: e.TrackName, Artists: e.Artists})
	}
	return out, nil
}

func toOutput(recs []domain.Recommendation) []recommendationOutput {
	out := make([]recommendationOutput, 0, len(recs))
	for _, rec := range recs {
		o := recommendationOutput{
			Source: rec.Source.ObservedName,
			Track:  rec.Source.Row.TrackName,
			Artist: rec.Source.Row.ArtistName,
			Items:  make([]scoredItem, 0, len(rec.Items)),
		}
		for _, item := range rec.Items {
			o.Items = append(o.Items, scoredItem{Track: item.Row.TrackName, Artist: item.Row.ArtistName, Score: item.Score})
		}
		out = append(out, o)
	}
	return out
}

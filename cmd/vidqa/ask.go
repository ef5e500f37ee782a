package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mohammad-safakhou/vidqa/internal/pipeline"
)

func askCMD() *cobra.Command {
	var cfgPath string
	var videoID string
	var sessionToken string
	var mode string
	var topK int
	var asJSON bool

	var ask = &cobra.Command{
		Use:   "ask [question]",
		Short: "Ask one question from the command line",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := buildApp(ctx, cfgPath)
			if err != nil {
				return err
			}
			defer a.Close()

			if topK <= 0 {
				topK = a.cfg.Retrieval.TopK
			}
			res := a.pipe.Query(ctx, pipeline.Request{
				Question:     strings.Join(args, " "),
				VideoID:      videoID,
				SessionToken: sessionToken,
				TopK:         topK,
				Mode:         pipeline.Mode(mode),
			})

			if asJSON {
				out, err := json.MarshalIndent(res, "", "  ")
				if err != nil {
					return err
				}
				fmt.Println(string(out))
				return nil
			}
			fmt.Println(res.Answer)
			if res.Metadata.SessionID != "" {
				fmt.Printf("\nsession: %s\n", res.Metadata.SessionID)
			}
			return nil
		},
	}
	ask.Flags().StringVar(&videoID, "video", "", "restrict retrieval to one video id")
	ask.Flags().StringVar(&sessionToken, "session", "", "session token for conversational context")
	ask.Flags().StringVar(&mode, "mode", "balanced", "model selection mode (speed, quality, balanced)")
	ask.Flags().IntVar(&topK, "top-k", 0, "semantic chunks per query (default from config)")
	ask.Flags().BoolVar(&asJSON, "json", false, "print the full result as JSON")
	ask.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "config file (default is .)")

	return ask
}

package main

import (
	"context"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/rushteam/recserve/recommend"
)

// recommendCmd 在本地跑一次推荐并以 JSON 输出，便于调试算法版本与业务规则。
func recommendCmd(configPath *string) *cobra.Command {
	var (
		limit    int
		version  string
		category string
		scene    string
		timeout  time.Duration
	)
	cmd := &cobra.Command{
		Use:   "recommend <user_id>",
		Short: "Print recommendations for a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			a, err := newApp(ctx, cfg)
			if err != nil {
				return err
			}
			defer a.close()

			if limit <= 0 {
				limit = a.svc.DefaultLimit()
			}
			items, err := a.svc.GetRecommendations(ctx, recommend.Request{
				UserID:           args[0],
				Limit:            limit,
				AlgorithmVersion: version,
				Category:         category,
				Context:          scene,
			})
			if err != nil {
				return fmt.Errorf("recommend %s: %w", args[0], err)
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(items)
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "number of recommendations (default recommend.default_limit)")
	cmd.Flags().StringVar(&version, "algorithm-version", "", "algorithm version (default algorithm.version)")
	cmd.Flags().StringVar(&category, "category", "", "restrict candidates to a category")
	cmd.Flags().StringVar(&scene, "context", "", "scene label, e.g. homepage")
	cmd.Flags().DurationVar(&timeout, "timeout", 30*time.Second, "overall timeout")
	return cmd
}

package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/rushteam/recserve/core"
	"github.com/rushteam/recserve/pkg/logging"
	"github.com/rushteam/recserve/provider"
)

// fixtures 是 seed 命令读取的 YAML 数据文件格式。
//
//	users:
//	  - id: u1
//	    tier: premium
//	    categories: [books]
//	products:
//	  - id: p1
//	    category: books
//	    price: 12.5
//	    in_stock: true
//	interactions:
//	  - user_id: u1
//	    product_id: p1
//	    type: purchase
type fixtures struct {
	Users        []userFixture        `yaml:"users"`
	Products     []productFixture     `yaml:"products"`
	Interactions []interactionFixture `yaml:"interactions"`
}

type userFixture struct {
	ID         string   `yaml:"id"`
	Name       string   `yaml:"name"`
	Email      string   `yaml:"email"`
	Tier       string   `yaml:"tier"`
	Segments   []string `yaml:"segments"`
	Categories []string `yaml:"categories"`
}

type productFixture struct {
	ID         string         `yaml:"id"`
	Name       string         `yaml:"name"`
	Category   string         `yaml:"category"`
	Price      float64        `yaml:"price"`
	InStock    bool           `yaml:"in_stock"`
	Popularity float64        `yaml:"popularity"`
	Rating     float64        `yaml:"rating"`
	Attributes map[string]any `yaml:"attributes"`
}

type interactionFixture struct {
	UserID    string    `yaml:"user_id"`
	ProductID string    `yaml:"product_id"`
	Type      string    `yaml:"type"`
	Timestamp time.Time `yaml:"timestamp"`
}

func parseFixtures(data []byte) (*fixtures, error) {
	var f fixtures
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse fixtures: %w", err)
	}
	for i, u := range f.Users {
		if u.ID == "" {
			return nil, fmt.Errorf("users[%d]: id is required", i)
		}
	}
	for i, p := range f.Products {
		if p.ID == "" || p.Category == "" {
			return nil, fmt.Errorf("products[%d]: id and category are required", i)
		}
	}
	for i, in := range f.Interactions {
		if in.UserID == "" || in.ProductID == "" {
			return nil, fmt.Errorf("interactions[%d]: user_id and product_id are required", i)
		}
		if !core.InteractionKind(in.Type).Valid() {
			return nil, fmt.Errorf("interactions[%d]: unknown type %q", i, in.Type)
		}
	}
	return &f, nil
}

// userSaver 与 productSaver 是 seed 需要的写接口。
type userSaver interface {
	SaveUser(ctx context.Context, u *core.UserProfile) error
	RecordInteraction(ctx context.Context, in core.Interaction) error
}

type productSaver interface {
	SaveProduct(ctx context.Context, p *core.Product) error
}

// apply 写入全部数据，遇到第一个错误即停止。缺省时间戳使用 now，按出现顺序递增一毫秒。
func (f *fixtures) apply(ctx context.Context, users userSaver, products productSaver, now time.Time) error {
	for _, u := range f.Users {
		err := users.SaveUser(ctx, &core.UserProfile{
			ID:          u.ID,
			Name:        u.Name,
			Email:       u.Email,
			Tier:        core.ParseTier(u.Tier),
			Segments:    u.Segments,
			Preferences: core.Preferences{Categories: u.Categories},
		})
		if err != nil {
			return fmt.Errorf("save user %s: %w", u.ID, err)
		}
	}
	for _, p := range f.Products {
		err := products.SaveProduct(ctx, &core.Product{
			ID:         p.ID,
			Name:       p.Name,
			Category:   p.Category,
			Price:      p.Price,
			InStock:    p.InStock,
			Popularity: p.Popularity,
			Rating:     p.Rating,
			Attributes: p.Attributes,
		})
		if err != nil {
			return fmt.Errorf("save product %s: %w", p.ID, err)
		}
	}
	for i, in := range f.Interactions {
		ts := in.Timestamp
		if ts.IsZero() {
			ts = now.Add(time.Duration(i) * time.Millisecond)
		}
		err := users.RecordInteraction(ctx, core.Interaction{
			UserID:    in.UserID,
			ProductID: in.ProductID,
			Kind:      core.InteractionKind(in.Type),
			Timestamp: ts,
		})
		if err != nil {
			return fmt.Errorf("record interaction %d: %w", i, err)
		}
	}
	return nil
}

func seedCmd(configPath *string) *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Load users, products and interactions from a YAML file",
		RunE: func(cmd *cobra.Command, _ []string) error {
			data, err := os.ReadFile(file)
			if err != nil {
				return err
			}
			f, err := parseFixtures(data)
			if err != nil {
				return err
			}
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			docs, err := openDocStore(ctx, cfg)
			if err != nil {
				return err
			}
			defer docs.Close(context.Background())
			if err := provider.EnsureIndexes(ctx, docs); err != nil {
				return err
			}

			users := provider.NewUserProvider(docs, nil, logging.Component("seed"))
			products := provider.NewProductProvider(docs, nil, provider.ProductOptions{Logger: logging.Component("seed")})
			if err := f.apply(ctx, users, products, time.Now()); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "seeded %d users, %d products, %d interactions\n",
				len(f.Users), len(f.Products), len(f.Interactions))
			return nil
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "fixtures YAML file")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

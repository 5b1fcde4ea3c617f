package command

import (
	"github.com/urfave/cli/v2"
)

// InspectCommand lists stored items with their envelope.
func InspectCommand() *cli.Command {
	return &cli.Command{
		Name:      "inspect",
		Aliases:   []string{"ls"},
		Usage:     "List items with header and frame information",
		ArgsUsage: "[CATEGORY...]",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "categories",
				Usage: "List categories with item counts only",
			},
		},
		Action: withSession(inspect),
	}
}

// CategoryInfo summarizes one category.
type CategoryInfo struct {
	Category string `json:"category" yaml:"category"`
	Items    int    `json:"items" yaml:"items"`
	Bytes    int64  `json:"bytes" yaml:"bytes"`
}

func inspect(c *cli.Context, s *session) error {
	r, err := s.reader()
	if err != nil {
		return err
	}
	defer r.Close()

	var items []ItemInfo
	err = walk(r, c.Args().Slice(), func(cat, key string) error {
		items = append(items, describe(r, s.policy, cat, key))
		return nil
	})
	if err != nil {
		return err
	}

	if !c.Bool("categories") {
		if items == nil {
			items = []ItemInfo{}
		}
		return s.emit(items)
	}

	cats := []CategoryInfo{}
	for _, it := range items {
		if n := len(cats); n == 0 || cats[n-1].Category != it.Category {
			cats = append(cats, CategoryInfo{Category: it.Category})
		}
		last := &cats[len(cats)-1]
		last.Items++
		last.Bytes += it.Size
	}
	return s.emit(cats)
}

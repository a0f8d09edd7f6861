package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/schollz/progressbar/v3"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"facechanger/internal/headmask"
	"facechanger/internal/service"
)

var (
	maskOutDir  string
	maskWorkers int
)

var maskCmd = &cobra.Command{
	Use:   "mask <image|dir>...",
	Short: "Run the head-locator cascade on local images and write PNG masks",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		inputs, err := collectImages(args)
		if err != nil {
			return err
		}
		if len(inputs) == 0 {
			return fmt.Errorf("no png or jpeg images found")
		}
		if err := os.MkdirAll(maskOutDir, 0o755); err != nil {
			return err
		}

		// 本地文件没有可供远端读取的地址，分割步骤无法使用
		local := cfg
		local.SegmentMode = headmask.SegmentOff
		locator, err := service.BuildLocator(local, nil)
		if err != nil {
			return err
		}

		bar := progressbar.NewOptions(len(inputs),
			progressbar.OptionSetDescription("Masking"),
			progressbar.OptionSetWriter(os.Stderr),
			progressbar.OptionShowCount(),
		)

		var (
			mu       sync.Mutex
			counts   = map[string]int{}
			failures []string
		)
		g, ctx := errgroup.WithContext(cmd.Context())
		g.SetLimit(max(maskWorkers, 1))
		for _, input := range inputs {
			g.Go(func() error {
				defer bar.Add(1)
				strategy, err := maskFile(ctx, locator, input, maskOutDir)
				mu.Lock()
				defer mu.Unlock()
				if err != nil {
					failures = append(failures, fmt.Sprintf("%s: %v", input, err))
					return nil
				}
				counts[strategy]++
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}
		_ = bar.Finish()

		out := cmd.OutOrStdout()
		fmt.Fprintln(out)
		for _, name := range locator.Strategies() {
			if counts[name] > 0 {
				fmt.Fprintf(out, "%-18s %d\n", name, counts[name])
			}
		}
		for _, f := range failures {
			fmt.Fprintln(out, "failed", f)
		}
		if len(failures) > 0 {
			return fmt.Errorf("%d of %d images failed", len(failures), len(inputs))
		}
		return nil
	},
}

func init() {
	maskCmd.Flags().StringVarP(&maskOutDir, "out", "o", "masks", "Directory for the rendered masks")
	maskCmd.Flags().IntVarP(&maskWorkers, "workers", "w", 4, "Images processed in parallel")
}

// maskFile writes <out>/<name>_mask.png and returns the winning strategy.
func maskFile(ctx context.Context, locator *headmask.Locator, input, outDir string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	data, err := os.ReadFile(input)
	if err != nil {
		return "", err
	}
	src, err := headmask.NewSource(data, "")
	if err != nil {
		return "", err
	}
	result := locator.Locate(ctx, src)
	png, err := headmask.RenderMask(src.Width, src.Height, result.Box)
	if err != nil {
		return "", err
	}

	base := strings.TrimSuffix(filepath.Base(input), filepath.Ext(input))
	target := filepath.Join(outDir, base+"_mask.png")
	if err := os.WriteFile(target, png, 0o644); err != nil {
		return "", err
	}
	logrus.WithFields(logrus.Fields{
		"input":    input,
		"output":   target,
		"strategy": result.Strategy,
		"box":      result.Box,
	}).Debug("mask_written")
	return result.Strategy, nil
}

// collectImages expands directories one level deep and keeps png/jpeg files.
func collectImages(args []string) ([]string, error) {
	var out []string
	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			out = append(out, arg)
			continue
		}
		entries, err := os.ReadDir(arg)
		if err != nil {
			return nil, err
		}
		for _, entry := range entries {
			if entry.IsDir() || !isImageName(entry.Name()) {
				continue
			}
			out = append(out, filepath.Join(arg, entry.Name()))
		}
	}
	sort.Strings(out)
	return out, nil
}

func isImageName(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".png", ".jpg", ".jpeg":
		return true
	default:
		return false
	}
}

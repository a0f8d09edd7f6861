package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"facechanger/internal/model"
	"facechanger/internal/service"
	"facechanger/internal/worker"
)

var (
	enqueueFrames    []int64
	enqueueSkus      []int64
	enqueueOverwrite bool
	enqueueRedisURL  string
)

var enqueueCmd = &cobra.Command{
	Use:   "enqueue",
	Short: "Push frame or SKU jobs onto the Redis job queue",
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(enqueueFrames) == 0 && len(enqueueSkus) == 0 {
			return errors.New("nothing to enqueue: pass --frame or --sku")
		}
		if strings.EqualFold(strings.TrimSpace(cfg.DBType), model.DBTypeMemory) {
			return errors.New("enqueue needs the shared record store; DB_TYPE=memory is process-local")
		}

		repo, err := model.InitRepository(&cfg)
		if err != nil {
			return fmt.Errorf("open record store: %w", err)
		}
		redisURL := enqueueRedisURL
		if redisURL == "" {
			redisURL = cfg.RedisURL
		}
		queue, err := worker.NewRedisQueueFromURL(redisURL, cfg.QueueName)
		if err != nil {
			return err
		}
		defer queue.Close()

		ctx := cmd.Context()
		dispatcher := worker.NewDispatcher(repo, queue, nil)
		opts := service.ProcessOptions{OverwriteMask: enqueueOverwrite}
		out := cmd.OutOrStdout()

		queued := 0
		for _, frameID := range enqueueFrames {
			if err := dispatcher.EnqueueFrame(ctx, frameID, opts); err != nil {
				logrus.WithError(err).WithField("frame_id", frameID).Warn("enqueue_frame_failed")
				fmt.Fprintf(out, "frame %d: %v\n", frameID, err)
				continue
			}
			queued++
		}
		for _, skuID := range enqueueSkus {
			n, err := dispatcher.EnqueueSku(ctx, skuID, opts)
			if err != nil {
				logrus.WithError(err).WithField("sku_id", skuID).Warn("enqueue_sku_failed")
				fmt.Fprintf(out, "sku %d: %v\n", skuID, err)
				continue
			}
			queued += n
		}

		depth, err := queue.Len(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "queued %d job(s), queue depth %d\n", queued, depth)
		return nil
	},
}

func init() {
	enqueueCmd.Flags().Int64SliceVarP(&enqueueFrames, "frame", "f", nil, "Frame id(s) to process")
	enqueueCmd.Flags().Int64SliceVarP(&enqueueSkus, "sku", "s", nil, "SKU id(s) whose frames to process")
	enqueueCmd.Flags().BoolVar(&enqueueOverwrite, "overwrite-mask", false, "Recompute masks even when one exists")
	enqueueCmd.Flags().StringVar(&enqueueRedisURL, "redis", "", "Redis URL (default REDIS_URL)")
}

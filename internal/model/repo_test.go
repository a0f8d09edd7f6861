package model_test

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"facechanger/internal/config"
	"facechanger/internal/entity"
	"facechanger/internal/model"
)

func backends(t *testing.T) map[string]func(t *testing.T) model.Repository {
	return map[string]func(t *testing.T) model.Repository{
		"memory": func(t *testing.T) model.Repository {
			repo, err := model.InitRepository(&config.Config{DBType: model.DBTypeMemory})
			require.NoError(t, err)
			return repo
		},
		"sqlite": func(t *testing.T) model.Repository {
			cfg := &config.Config{DBType: model.DBTypeSQLite, DBPath: filepath.Join(t.TempDir(), "test.db")}
			repo, err := model.InitRepository(cfg)
			require.NoError(t, err)
			return repo
		},
	}
}

func eachBackend(t *testing.T, fn func(t *testing.T, repo model.Repository)) {
	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			fn(t, open(t))
		})
	}
}

func newFrame(t *testing.T, ctx context.Context, repo model.Repository, code string) (*entity.DbSku, *entity.DbFrame) {
	t.Helper()
	sku := &entity.DbSku{Code: code, Brand: "acme"}
	require.NoError(t, repo.CreateSku(ctx, sku))
	frame := &entity.DbFrame{SkuID: sku.ID, OriginalKey: "uploads/" + code + "/a.jpg"}
	require.NoError(t, repo.CreateFrame(ctx, frame))
	return sku, frame
}

func TestFrameLifecycle(t *testing.T) {
	eachBackend(t, func(t *testing.T, repo model.Repository) {
		ctx := context.Background()
		_, frame := newFrame(t, ctx, repo, "sku-1")
		assert.Equal(t, entity.FrameStatusNew, frame.Status)

		require.NoError(t, repo.SetFrameMask(ctx, frame.ID, entity.MaskResult{Key: "masks/sku-1/1.png", Strategy: "face", Box: []int{1, 2, 3, 4}}))
		require.NoError(t, repo.SetFrameStatus(ctx, frame.ID, entity.FrameStatusMasked))

		err := repo.SetFrameStatus(ctx, frame.ID, entity.FrameStatusDone)
		assert.ErrorIs(t, err, model.ErrInvalidTransition)

		gen := &entity.DbGeneration{FrameID: frame.ID, Params: entity.JSONMap{"prompt": "p"}}
		require.NoError(t, repo.RegisterGeneration(ctx, gen))
		assert.Equal(t, entity.GenerationStatusPending, gen.Status)

		require.NoError(t, repo.SaveGenerationExternalID(ctx, gen.ID, "pred-1"))
		require.NoError(t, repo.SetGenerationStatus(ctx, gen.ID, entity.GenerationStatusRunning, "", ""))
		require.NoError(t, repo.SetFrameStatus(ctx, frame.ID, entity.FrameStatusQueued))

		ok, err := repo.SetFrameStatusForGeneration(ctx, frame.ID, gen.ID, entity.FrameStatusRunning)
		require.NoError(t, err)
		assert.True(t, ok)

		require.NoError(t, repo.SetGenerationOutputs(ctx, gen.ID, []string{"out1.png"}))
		require.NoError(t, repo.SetGenerationStatus(ctx, gen.ID, entity.GenerationStatusCompleted, "", ""))

		err = repo.SetGenerationStatus(ctx, gen.ID, entity.GenerationStatusFailed, entity.ErrorKindRemote, "late")
		assert.ErrorIs(t, err, model.ErrTerminalGeneration)
		assert.ErrorIs(t, repo.SetGenerationOutputs(ctx, gen.ID, []string{"x"}), model.ErrTerminalGeneration)

		ok, err = repo.SetFrameStatusForGeneration(ctx, frame.ID, gen.ID, entity.FrameStatusDone)
		require.NoError(t, err)
		assert.True(t, ok)

		got, err := repo.GetFrame(ctx, frame.ID)
		require.NoError(t, err)
		assert.Equal(t, entity.FrameStatusDone, got.Status)
		assert.Equal(t, "masks/sku-1/1.png", got.MaskKey)
		assert.Equal(t, "face", got.MaskStrategy)
		assert.Equal(t, entity.IntArray{1, 2, 3, 4}, got.MaskBox)
		require.NotNil(t, got.ActiveGenerationID)
		assert.Equal(t, gen.ID, *got.ActiveGenerationID)

		stored, err := repo.GetGeneration(ctx, gen.ID)
		require.NoError(t, err)
		assert.Equal(t, entity.GenerationStatusCompleted, stored.Status)
		assert.Equal(t, "pred-1", stored.ExternalID)
		assert.Equal(t, entity.StringArray{"out1.png"}, stored.OutputKeys)
		assert.NotNil(t, stored.CompletedAt)
	})
}

func TestStaleGenerationDoesNotWriteFrameStatus(t *testing.T) {
	eachBackend(t, func(t *testing.T, repo model.Repository) {
		ctx := context.Background()
		_, frame := newFrame(t, ctx, repo, "sku-stale")
		require.NoError(t, repo.SetFrameMask(ctx, frame.ID, entity.MaskResult{Key: "m.png", Strategy: "center"}))
		require.NoError(t, repo.SetFrameStatus(ctx, frame.ID, entity.FrameStatusMasked))

		first := &entity.DbGeneration{FrameID: frame.ID}
		require.NoError(t, repo.RegisterGeneration(ctx, first))
		second := &entity.DbGeneration{FrameID: frame.ID}
		require.NoError(t, repo.RegisterGeneration(ctx, second))

		ok, err := repo.SetFrameStatusForGeneration(ctx, frame.ID, first.ID, entity.FrameStatusQueued)
		require.NoError(t, err)
		assert.False(t, ok)

		got, err := repo.GetFrame(ctx, frame.ID)
		require.NoError(t, err)
		assert.Equal(t, entity.FrameStatusMasked, got.Status)

		gens, err := repo.ListGenerations(ctx, frame.ID)
		require.NoError(t, err)
		require.Len(t, gens, 2)
		assert.Equal(t, first.ID, gens[0].ID)
	})
}

func TestAppendOutputVersion(t *testing.T) {
	eachBackend(t, func(t *testing.T, repo model.Repository) {
		ctx := context.Background()
		_, frame := newFrame(t, ctx, repo, "sku-ledger")

		v1, err := repo.AppendOutputVersion(ctx, frame.ID, []string{"a.png", "b.png"})
		require.NoError(t, err)
		assert.Equal(t, 1, v1.VersionIndex)

		v2, err := repo.AppendOutputVersion(ctx, frame.ID, []string{"c.png"})
		require.NoError(t, err)
		assert.Equal(t, 2, v2.VersionIndex)

		versions, err := repo.ListOutputVersions(ctx, frame.ID)
		require.NoError(t, err)
		require.Len(t, versions, 2)
		assert.Equal(t, entity.StringArray{"a.png", "b.png"}, versions[0].Keys)
		assert.Equal(t, entity.StringArray{"c.png"}, versions[1].Keys)

		got, err := repo.GetFrame(ctx, frame.ID)
		require.NoError(t, err)
		assert.Equal(t, entity.StringArray{"a.png", "b.png", "c.png"}, got.Outputs)
	})
}

func TestAppendOutputVersionSeedsLegacyOutputs(t *testing.T) {
	eachBackend(t, func(t *testing.T, repo model.Repository) {
		ctx := context.Background()
		sku := &entity.DbSku{Code: "legacy"}
		require.NoError(t, repo.CreateSku(ctx, sku))
		frame := &entity.DbFrame{SkuID: sku.ID, OriginalKey: "a.jpg", Outputs: entity.StringArray{"old.png"}}
		require.NoError(t, repo.CreateFrame(ctx, frame))

		v, err := repo.AppendOutputVersion(ctx, frame.ID, []string{"new.png"})
		require.NoError(t, err)
		assert.Equal(t, 2, v.VersionIndex)

		versions, err := repo.ListOutputVersions(ctx, frame.ID)
		require.NoError(t, err)
		require.Len(t, versions, 2)
		assert.Equal(t, entity.StringArray{"old.png"}, versions[0].Keys)

		got, err := repo.GetFrame(ctx, frame.ID)
		require.NoError(t, err)
		assert.Equal(t, entity.StringArray{"old.png", "new.png"}, got.Outputs)
	})
}

func TestConcurrentAppendsKeepIndicesContiguous(t *testing.T) {
	eachBackend(t, func(t *testing.T, repo model.Repository) {
		ctx := context.Background()
		_, frame := newFrame(t, ctx, repo, "sku-concurrent")

		const n = 8
		var wg sync.WaitGroup
		errs := make(chan error, n)
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := repo.AppendOutputVersion(ctx, frame.ID, []string{"k.png"})
				errs <- err
			}()
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			require.NoError(t, err)
		}

		versions, err := repo.ListOutputVersions(ctx, frame.ID)
		require.NoError(t, err)
		require.Len(t, versions, n)
		for i, v := range versions {
			assert.Equal(t, i+1, v.VersionIndex)
		}
	})
}

func TestPendingParamsMerge(t *testing.T) {
	eachBackend(t, func(t *testing.T, repo model.Repository) {
		ctx := context.Background()
		_, frame := newFrame(t, ctx, repo, "sku-params")

		merged, err := repo.SetPendingParams(ctx, frame.ID, entity.JSONMap{"num_outputs": 1, "seed": 7})
		require.NoError(t, err)
		assert.Len(t, merged, 2)

		merged, err = repo.SetPendingParams(ctx, frame.ID, entity.JSONMap{"prompt_strength": 0.6, "seed": nil})
		require.NoError(t, err)
		assert.Contains(t, merged, "num_outputs")
		assert.Contains(t, merged, "prompt_strength")
		assert.NotContains(t, merged, "seed")

		got, err := repo.GetFrame(ctx, frame.ID)
		require.NoError(t, err)
		assert.Len(t, got.PendingParams, 2)
	})
}

func TestFavoritesAndCascadeDelete(t *testing.T) {
	eachBackend(t, func(t *testing.T, repo model.Repository) {
		ctx := context.Background()
		sku, frame := newFrame(t, ctx, repo, "sku-fav")
		_, err := repo.AppendOutputVersion(ctx, frame.ID, []string{"a.png", "b.png"})
		require.NoError(t, err)

		require.NoError(t, repo.SetFavorites(ctx, frame.ID, []string{"b.png", "a.png", "b.png"}))
		favs, err := repo.GetFavorites(ctx, frame.ID)
		require.NoError(t, err)
		assert.Equal(t, []string{"b.png", "a.png"}, favs)

		assert.ErrorIs(t, repo.SetFavorites(ctx, frame.ID, []string{"zzz.png"}), model.ErrNotFound)

		gen := &entity.DbGeneration{FrameID: frame.ID}
		require.NoError(t, repo.RegisterGeneration(ctx, gen))

		require.NoError(t, repo.DeleteSku(ctx, sku.ID))
		_, err = repo.GetFrame(ctx, frame.ID)
		assert.ErrorIs(t, err, model.ErrNotFound)
		_, err = repo.GetGeneration(ctx, gen.ID)
		assert.ErrorIs(t, err, model.ErrNotFound)
		versions, err := repo.ListOutputVersions(ctx, frame.ID)
		require.NoError(t, err)
		assert.Empty(t, versions)
		_, err = repo.GetSku(ctx, sku.ID)
		assert.ErrorIs(t, err, model.ErrNotFound)
	})
}

func TestSkuQueriesAndDashboard(t *testing.T) {
	eachBackend(t, func(t *testing.T, repo model.Repository) {
		ctx := context.Background()
		day1 := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
		day2 := time.Date(2024, 5, 2, 10, 0, 0, 0, time.UTC)

		mk := func(code, brand string, created time.Time, statuses ...entity.FrameStatus) {
			sku := &entity.DbSku{Code: code, Brand: brand, CreatedAt: created}
			require.NoError(t, repo.CreateSku(ctx, sku))
			for _, st := range statuses {
				require.NoError(t, repo.CreateFrame(ctx, &entity.DbFrame{SkuID: sku.ID, OriginalKey: "k", Status: st}))
			}
		}
		mk("a", "zeta", day1, entity.FrameStatusDone, entity.FrameStatusDone)
		mk("b", "acme", day1, entity.FrameStatusFailed)
		mk("c", "acme", day2, entity.FrameStatusDone, entity.FrameStatusRunning)
		mk("d", "", day2)

		assert.ErrorIs(t, repo.CreateSku(ctx, &entity.DbSku{Code: "a"}), model.ErrDuplicate)

		batches, err := repo.ListBatches(ctx, 0)
		require.NoError(t, err)
		require.Len(t, batches, 2)
		assert.Equal(t, entity.BatchSummary{Date: "2024-05-02", Total: 2, InProgress: 2}, batches[0])
		assert.Equal(t, entity.BatchSummary{Date: "2024-05-01", Total: 2, Done: 1, Failed: 1}, batches[1])

		brands, err := repo.ListBrands(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"acme", "zeta"}, brands)

		progress, err := repo.ListSkuProgress(ctx, &entity.SkuQuery{Date: "2024-05-01", Brand: "acme"})
		require.NoError(t, err)
		require.Len(t, progress, 1)
		assert.Equal(t, "b", progress[0].Code)
		assert.Equal(t, entity.SkuProgressFailed, progress[0].Status)

		skus, meta, err := repo.ListSkus(ctx, &entity.SkuQuery{Page: 1, PageSize: 3})
		require.NoError(t, err)
		assert.Len(t, skus, 3)
		assert.EqualValues(t, 4, meta.Total)
		assert.Equal(t, "d", skus[0].Code)

		done := true
		require.NoError(t, repo.UpdateSku(ctx, skus[0].ID, entity.SkuUpdates{IsDone: &done}))
		got, err := repo.GetSkuByCode(ctx, "d")
		require.NoError(t, err)
		assert.True(t, got.IsDone)
	})
}

func TestSeedDefaultHeadProfile(t *testing.T) {
	eachBackend(t, func(t *testing.T, repo model.Repository) {
		ctx := context.Background()
		cfg := config.Config{DefaultTriggerToken: "tnkfwm1", DefaultPromptTemplate: "a photo of {token} female model"}

		profile, err := model.SeedDefaultHeadProfile(ctx, repo, cfg)
		require.NoError(t, err)
		assert.Equal(t, model.DefaultHeadProfileName, profile.Name)
		assert.Equal(t, "tnkfwm1", profile.TriggerToken)
		assert.EqualValues(t, 3, profile.Params["num_outputs"])

		again, err := model.SeedDefaultHeadProfile(ctx, repo, cfg)
		require.NoError(t, err)
		assert.Equal(t, profile.ID, again.ID)

		profiles, err := repo.ListHeadProfiles(ctx)
		require.NoError(t, err)
		assert.Len(t, profiles, 1)

		version := "owner/model:v2"
		require.NoError(t, repo.UpdateHeadProfile(ctx, profile.ID, entity.HeadProfileUpdates{
			ModelVersion: &version,
			Params:       &entity.JSONMap{"guidance_scale": 3.0},
		}))
		updated, err := repo.GetHeadProfile(ctx, profile.ID)
		require.NoError(t, err)
		assert.Equal(t, version, updated.ModelVersion)
		assert.EqualValues(t, 3.0, updated.Params["guidance_scale"])
		assert.Contains(t, updated.Params, "output_format")
	})
}

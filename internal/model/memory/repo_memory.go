// Package memory keeps every record in process memory. It backs DB_TYPE=memory
// and the orchestrator tests; all data is lost on restart.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"facechanger/internal/entity"
	"facechanger/internal/ledger"
)

// Repository guards all tables with one lock. Critical sections never span a
// network call, so a coarse lock is enough here.
type Repository struct {
	mu sync.RWMutex

	now func() time.Time

	nextID map[string]int64

	profiles    map[int64]*entity.DbHeadProfile
	skus        map[int64]*entity.DbSku
	frames      map[int64]*entity.DbFrame
	generations map[int64]*entity.DbGeneration
	versions    map[int64][]entity.DbOutputVersion
	favorites   map[int64][]string
}

func NewRepository() *Repository {
	return &Repository{
		now:         time.Now,
		nextID:      make(map[string]int64),
		profiles:    make(map[int64]*entity.DbHeadProfile),
		skus:        make(map[int64]*entity.DbSku),
		frames:      make(map[int64]*entity.DbFrame),
		generations: make(map[int64]*entity.DbGeneration),
		versions:    make(map[int64][]entity.DbOutputVersion),
		favorites:   make(map[int64][]string),
	}
}

func (r *Repository) id(table string) int64 {
	r.nextID[table]++
	return r.nextID[table]
}

func (r *Repository) stamp(created *time.Time, updated *time.Time) {
	now := r.now().UTC()
	if created != nil && created.IsZero() {
		*created = now
	}
	if updated != nil {
		*updated = now
	}
}

func notFound(kind string, id int64) error {
	return fmt.Errorf("%s %d: %w", kind, id, entity.ErrNotFound)
}

// ---- head profiles ----

func (r *Repository) CreateHeadProfile(ctx context.Context, profile *entity.DbHeadProfile) error {
	if profile == nil {
		return fmt.Errorf("head profile is nil")
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.profiles {
		if existing.Name == profile.Name {
			return fmt.Errorf("head profile %q: %w", profile.Name, entity.ErrDuplicate)
		}
	}
	profile.ID = r.id("head_profiles")
	r.stamp(&profile.CreatedAt, &profile.UpdatedAt)
	stored := cloneProfile(*profile)
	r.profiles[profile.ID] = &stored
	return nil
}

func (r *Repository) GetHeadProfile(ctx context.Context, id int64) (*entity.DbHeadProfile, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.profiles[id]
	if !ok {
		return nil, notFound("head profile", id)
	}
	out := cloneProfile(*p)
	return &out, nil
}

func (r *Repository) GetHeadProfileByName(ctx context.Context, name string) (*entity.DbHeadProfile, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, p := range r.profiles {
		if p.Name == name {
			out := cloneProfile(*p)
			return &out, nil
		}
	}
	return nil, fmt.Errorf("head profile %q: %w", name, entity.ErrNotFound)
}

func (r *Repository) ListHeadProfiles(ctx context.Context) ([]entity.DbHeadProfile, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]entity.DbHeadProfile, 0, len(r.profiles))
	for _, p := range r.profiles {
		out = append(out, cloneProfile(*p))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *Repository) UpdateHeadProfile(ctx context.Context, id int64, updates entity.HeadProfileUpdates) error {
	if updates.IsEmpty() {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.profiles[id]
	if !ok {
		return notFound("head profile", id)
	}
	if updates.ModelVersion != nil {
		p.ModelVersion = *updates.ModelVersion
	}
	if updates.Params != nil {
		p.Params = p.Params.Merge(*updates.Params)
	}
	r.stamp(nil, &p.UpdatedAt)
	return nil
}

// ---- skus ----

func (r *Repository) CreateSku(ctx context.Context, sku *entity.DbSku) error {
	if sku == nil {
		return fmt.Errorf("sku is nil")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.skus {
		if existing.Code == sku.Code {
			return fmt.Errorf("sku %q: %w", sku.Code, entity.ErrDuplicate)
		}
	}
	sku.ID = r.id("skus")
	r.stamp(&sku.CreatedAt, &sku.UpdatedAt)
	stored := cloneSku(*sku)
	r.skus[sku.ID] = &stored
	return nil
}

func (r *Repository) GetSku(ctx context.Context, id int64) (*entity.DbSku, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.skus[id]
	if !ok {
		return nil, notFound("sku", id)
	}
	out := cloneSku(*s)
	return &out, nil
}

func (r *Repository) GetSkuByCode(ctx context.Context, code string) (*entity.DbSku, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, s := range r.skus {
		if s.Code == code {
			out := cloneSku(*s)
			return &out, nil
		}
	}
	return nil, fmt.Errorf("sku %q: %w", code, entity.ErrNotFound)
}

func (r *Repository) filterSkus(params *entity.SkuQuery) []entity.DbSku {
	out := make([]entity.DbSku, 0, len(r.skus))
	for _, s := range r.skus {
		if params != nil {
			if params.Brand != "" && s.Brand != params.Brand {
				continue
			}
			if params.Date != "" && s.CreatedAt.UTC().Format(entity.BatchDateLayout) != params.Date {
				continue
			}
		}
		out = append(out, cloneSku(*s))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out
}

func (r *Repository) ListSkus(ctx context.Context, params *entity.SkuQuery) ([]entity.DbSku, *entity.Meta, error) {
	query := entity.SkuQuery{}
	if params != nil {
		query = *params
	}
	query.Normalize()

	r.mu.RLock()
	all := r.filterSkus(&query)
	r.mu.RUnlock()

	meta := &entity.Meta{Page: int64(query.Page), PageSize: int64(query.PageSize), Total: int64(len(all))}
	start := (query.Page - 1) * query.PageSize
	if start >= len(all) {
		return []entity.DbSku{}, meta, nil
	}
	end := start + query.PageSize
	if end > len(all) {
		end = len(all)
	}
	return all[start:end], meta, nil
}

func (r *Repository) UpdateSku(ctx context.Context, id int64, updates entity.SkuUpdates) error {
	if updates.IsEmpty() {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.skus[id]
	if !ok {
		return notFound("sku", id)
	}
	updates.Apply(s)
	r.stamp(nil, &s.UpdatedAt)
	return nil
}

func (r *Repository) DeleteSku(ctx context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.skus[id]; !ok {
		return notFound("sku", id)
	}
	for frameID, f := range r.frames {
		if f.SkuID == id {
			r.deleteFrameLocked(frameID)
		}
	}
	delete(r.skus, id)
	return nil
}

// ---- dashboard ----

func (r *Repository) countsLocked() map[int64]entity.SkuFrameCounts {
	counts := make(map[int64]entity.SkuFrameCounts, len(r.skus))
	for _, f := range r.frames {
		c := counts[f.SkuID]
		c.SkuID = f.SkuID
		c.Add(f.Status)
		counts[f.SkuID] = c
	}
	return counts
}

func (r *Repository) ListBatches(ctx context.Context, limit int) ([]entity.BatchSummary, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	skus := r.filterSkus(nil)
	return entity.SummarizeBatches(skus, r.countsLocked(), limit), nil
}

func (r *Repository) ListSkuProgress(ctx context.Context, params *entity.SkuQuery) ([]entity.SkuProgress, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	counts := r.countsLocked()
	skus := r.filterSkus(params)
	out := make([]entity.SkuProgress, 0, len(skus))
	for _, s := range skus {
		out = append(out, entity.NewSkuProgress(s, counts[s.ID]))
	}
	return out, nil
}

func (r *Repository) ListBrands(ctx context.Context) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	seen := make(map[string]struct{})
	for _, s := range r.skus {
		if b := strings.TrimSpace(s.Brand); b != "" {
			seen[b] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for b := range seen {
		out = append(out, b)
	}
	sort.Strings(out)
	return out, nil
}

// ---- frames ----

func (r *Repository) CreateFrame(ctx context.Context, frame *entity.DbFrame) error {
	if frame == nil {
		return fmt.Errorf("frame is nil")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.skus[frame.SkuID]; !ok {
		return notFound("sku", frame.SkuID)
	}
	if frame.Status == "" {
		frame.Status = entity.FrameStatusNew
	}
	frame.ID = r.id("frames")
	r.stamp(&frame.CreatedAt, &frame.UpdatedAt)
	stored := cloneFrame(*frame)
	r.frames[frame.ID] = &stored
	return nil
}

func (r *Repository) GetFrame(ctx context.Context, id int64) (*entity.DbFrame, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.frames[id]
	if !ok {
		return nil, notFound("frame", id)
	}
	out := cloneFrame(*f)
	return &out, nil
}

func (r *Repository) ListFramesForSku(ctx context.Context, skuID int64) ([]entity.DbFrame, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]entity.DbFrame, 0)
	for _, f := range r.frames {
		if f.SkuID == skuID {
			out = append(out, cloneFrame(*f))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *Repository) SetFrameStatus(ctx context.Context, id int64, status entity.FrameStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	f, ok := r.frames[id]
	if !ok {
		return notFound("frame", id)
	}
	if err := entity.CheckFrameTransition(f.Status, status); err != nil {
		return err
	}
	f.Status = status
	r.stamp(nil, &f.UpdatedAt)
	return nil
}

func (r *Repository) SetFrameStatusForGeneration(ctx context.Context, id, generationID int64, status entity.FrameStatus) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	f, ok := r.frames[id]
	if !ok {
		return false, notFound("frame", id)
	}
	if f.ActiveGenerationID == nil || *f.ActiveGenerationID != generationID {
		return false, nil
	}
	if err := entity.CheckFrameTransition(f.Status, status); err != nil {
		return false, err
	}
	f.Status = status
	r.stamp(nil, &f.UpdatedAt)
	return true, nil
}

func (r *Repository) SetFrameMask(ctx context.Context, id int64, mask entity.MaskResult) error {
	if strings.TrimSpace(mask.Key) == "" {
		return fmt.Errorf("mask key is empty")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	f, ok := r.frames[id]
	if !ok {
		return notFound("frame", id)
	}
	f.MaskKey = mask.Key
	f.MaskStrategy = mask.Strategy
	f.MaskBox = append(entity.IntArray(nil), mask.Box...)
	r.stamp(nil, &f.UpdatedAt)
	return nil
}

func (r *Repository) SetPendingParams(ctx context.Context, id int64, overrides entity.JSONMap) (entity.JSONMap, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	f, ok := r.frames[id]
	if !ok {
		return nil, notFound("frame", id)
	}
	f.PendingParams = entity.MergePendingParams(f.PendingParams, overrides)
	r.stamp(nil, &f.UpdatedAt)
	return f.PendingParams.Clone(), nil
}

func (r *Repository) UpdateFrame(ctx context.Context, id int64, updates entity.FrameUpdates) error {
	if updates.IsEmpty() {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	f, ok := r.frames[id]
	if !ok {
		return notFound("frame", id)
	}
	if updates.Accepted != nil {
		f.Accepted = *updates.Accepted
	}
	r.stamp(nil, &f.UpdatedAt)
	return nil
}

func (r *Repository) DeleteFrame(ctx context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.frames[id]; !ok {
		return notFound("frame", id)
	}
	r.deleteFrameLocked(id)
	return nil
}

func (r *Repository) deleteFrameLocked(id int64) {
	for genID, g := range r.generations {
		if g.FrameID == id {
			delete(r.generations, genID)
		}
	}
	delete(r.versions, id)
	delete(r.favorites, id)
	delete(r.frames, id)
}

func (r *Repository) SetFavorites(ctx context.Context, frameID int64, keys []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	f, ok := r.frames[frameID]
	if !ok {
		return notFound("frame", frameID)
	}
	keys = entity.DedupeKeys(keys)
	for _, key := range keys {
		if !f.Outputs.Contains(key) {
			return fmt.Errorf("favorite %q is not an output of frame %d: %w", key, frameID, entity.ErrNotFound)
		}
	}
	r.favorites[frameID] = keys
	return nil
}

func (r *Repository) GetFavorites(ctx context.Context, frameID int64) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if _, ok := r.frames[frameID]; !ok {
		return nil, notFound("frame", frameID)
	}
	return append([]string{}, r.favorites[frameID]...), nil
}

// ---- generations ----

func (r *Repository) RegisterGeneration(ctx context.Context, generation *entity.DbGeneration) error {
	if generation == nil {
		return fmt.Errorf("generation is nil")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	f, ok := r.frames[generation.FrameID]
	if !ok {
		return notFound("frame", generation.FrameID)
	}
	generation.ID = r.id("generations")
	generation.Status = entity.GenerationStatusPending
	generation.CompletedAt = nil
	r.stamp(&generation.CreatedAt, &generation.UpdatedAt)
	stored := cloneGeneration(*generation)
	r.generations[generation.ID] = &stored

	active := generation.ID
	f.ActiveGenerationID = &active
	r.stamp(nil, &f.UpdatedAt)
	return nil
}

func (r *Repository) GetGeneration(ctx context.Context, id int64) (*entity.DbGeneration, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	g, ok := r.generations[id]
	if !ok {
		return nil, notFound("generation", id)
	}
	out := cloneGeneration(*g)
	return &out, nil
}

func (r *Repository) ListGenerations(ctx context.Context, frameID int64) ([]entity.DbGeneration, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]entity.DbGeneration, 0)
	for _, g := range r.generations {
		if g.FrameID == frameID {
			out = append(out, cloneGeneration(*g))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *Repository) SaveGenerationExternalID(ctx context.Context, id int64, externalID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	g, ok := r.generations[id]
	if !ok {
		return notFound("generation", id)
	}
	if g.Status.IsTerminal() {
		return fmt.Errorf("%w: generation %d is %s", entity.ErrTerminalGeneration, id, g.Status)
	}
	g.ExternalID = externalID
	r.stamp(nil, &g.UpdatedAt)
	return nil
}

func (r *Repository) SetGenerationStatus(ctx context.Context, id int64, status entity.GenerationStatus, kind entity.ErrorKind, errText string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	g, ok := r.generations[id]
	if !ok {
		return notFound("generation", id)
	}
	if err := entity.CheckGenerationTransition(g.Status, status); err != nil {
		return err
	}
	g.Status = status
	g.ErrorKind = kind
	g.Error = errText
	r.stamp(nil, &g.UpdatedAt)
	if status.IsTerminal() {
		done := g.UpdatedAt
		g.CompletedAt = &done
	}
	return nil
}

func (r *Repository) SetGenerationOutputs(ctx context.Context, id int64, keys []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	g, ok := r.generations[id]
	if !ok {
		return notFound("generation", id)
	}
	if g.Status.IsTerminal() {
		return fmt.Errorf("%w: generation %d is %s", entity.ErrTerminalGeneration, id, g.Status)
	}
	g.OutputKeys = append(entity.StringArray{}, keys...)
	r.stamp(nil, &g.UpdatedAt)
	return nil
}

// ---- output versions ----

func (r *Repository) AppendOutputVersion(ctx context.Context, frameID int64, keys []string) (*entity.DbOutputVersion, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	f, ok := r.frames[frameID]
	if !ok {
		return nil, notFound("frame", frameID)
	}

	plan, err := ledger.Append(entity.LedgerVersions(r.versions[frameID]), f.Outputs.ToSlice(), keys)
	if err != nil {
		return nil, err
	}

	var last entity.DbOutputVersion
	for _, v := range plan.Added {
		row := entity.DbOutputVersion{
			ID:           r.id("frame_output_versions"),
			FrameID:      frameID,
			VersionIndex: v.Index,
			Keys:         entity.StringArray(v.Keys),
		}
		r.stamp(&row.CreatedAt, nil)
		r.versions[frameID] = append(r.versions[frameID], row)
		last = row
	}
	f.Outputs = entity.StringArray(plan.Flattened)
	r.stamp(nil, &f.UpdatedAt)

	out := cloneVersion(last)
	return &out, nil
}

func (r *Repository) ListOutputVersions(ctx context.Context, frameID int64) ([]entity.DbOutputVersion, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rows := r.versions[frameID]
	out := make([]entity.DbOutputVersion, 0, len(rows))
	for _, row := range rows {
		out = append(out, cloneVersion(row))
	}
	return out, nil
}

// ---- copies ----

func cloneProfile(p entity.DbHeadProfile) entity.DbHeadProfile {
	p.Params = p.Params.Clone()
	return p
}

func cloneSku(s entity.DbSku) entity.DbSku {
	if s.HeadProfileID != nil {
		id := *s.HeadProfileID
		s.HeadProfileID = &id
	}
	return s
}

func cloneFrame(f entity.DbFrame) entity.DbFrame {
	f.MaskBox = append(entity.IntArray(nil), f.MaskBox...)
	f.PendingParams = f.PendingParams.Clone()
	f.Outputs = append(entity.StringArray{}, f.Outputs...)
	if f.ActiveGenerationID != nil {
		id := *f.ActiveGenerationID
		f.ActiveGenerationID = &id
	}
	return f
}

func cloneGeneration(g entity.DbGeneration) entity.DbGeneration {
	g.Params = g.Params.Clone()
	g.OutputKeys = append(entity.StringArray{}, g.OutputKeys...)
	if g.CompletedAt != nil {
		t := *g.CompletedAt
		g.CompletedAt = &t
	}
	return g
}

func cloneVersion(v entity.DbOutputVersion) entity.DbOutputVersion {
	v.Keys = append(entity.StringArray{}, v.Keys...)
	return v
}

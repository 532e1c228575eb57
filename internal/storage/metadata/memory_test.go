// Copyright 2026 fanjia1024
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package metadata

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"barcode-pipeline/internal/model"
)

func TestMemoryImageRepository_CreateGet(t *testing.T) {
	ctx := context.Background()
	r := NewMemoryImageRepository()
	img := &model.Image{ImageID: "img1", Status: model.StatusPending}
	require.NoError(t, r.Create(ctx, img))

	got, err := r.Get(ctx, "img1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusPending, got.Status)
}

func TestMemoryImageRepository_DuplicateCreate(t *testing.T) {
	ctx := context.Background()
	r := NewMemoryImageRepository()
	require.NoError(t, r.Create(ctx, &model.Image{ImageID: "dup"}))
	err := r.Create(ctx, &model.Image{ImageID: "dup"})
	assert.Error(t, err)
}

func TestMemoryImageRepository_CompareAndSaveRejectsStaleExpected(t *testing.T) {
	ctx := context.Background()
	r := NewMemoryImageRepository()
	require.NoError(t, r.Create(ctx, &model.Image{ImageID: "img1", Status: model.StatusPending}))

	img, err := r.Get(ctx, "img1")
	require.NoError(t, err)
	img.Status = model.StatusPreprocessing
	require.NoError(t, r.CompareAndSave(ctx, img, model.StatusPending))

	stale, err := r.Get(ctx, "img1")
	require.NoError(t, err)
	stale.Status = model.StatusPreprocessed
	err = r.CompareAndSave(ctx, stale, model.StatusPending)
	assert.ErrorIs(t, err, ErrConflict)
}

func TestMemoryImageRepository_ListByStatusOrdersByStatusUpdatedAt(t *testing.T) {
	ctx := context.Background()
	r := NewMemoryImageRepository()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, r.Create(ctx, &model.Image{ImageID: "b", Status: model.StatusPending, StatusUpdatedAt: base.Add(2 * time.Minute)}))
	require.NoError(t, r.Create(ctx, &model.Image{ImageID: "a", Status: model.StatusPending, StatusUpdatedAt: base}))

	list, err := r.ListByStatus(ctx, model.StatusPending, 0)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "a", list[0].ImageID)
	assert.Equal(t, "b", list[1].ImageID)
}

func TestMemoryJobRepository_ClaimNextIsExclusive(t *testing.T) {
	ctx := context.Background()
	r := NewMemoryJobRepository()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, r.Create(ctx, &model.Job{JobID: "j1", JobType: model.JobPreprocess, Status: model.JobPending, ScheduledFor: now}))

	claimed, err := r.ClaimNext(ctx, model.JobPreprocess, "worker-1", now, 30*time.Second)
	require.NoError(t, err)
	require.NotNil(t, claimed)
	assert.Equal(t, model.JobInProgress, claimed.Status)
	assert.Equal(t, 1, claimed.Attempt)

	again, err := r.ClaimNext(ctx, model.JobPreprocess, "worker-2", now, 30*time.Second)
	require.NoError(t, err)
	assert.Nil(t, again)
}

func TestMemoryJobRepository_ReapExpired(t *testing.T) {
	ctx := context.Background()
	r := NewMemoryJobRepository()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	leased := &model.Job{JobID: "j1", Status: model.JobInProgress, LockUntil: now.Add(-time.Second)}
	require.NoError(t, r.Create(ctx, leased))

	n, err := r.ReapExpired(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := r.Get(ctx, "j1")
	require.NoError(t, err)
	assert.Equal(t, model.JobPending, got.Status)
}

func TestMemoryProductRepository_FindByCode(t *testing.T) {
	r := NewMemoryProductRepository()
	r.Seed(&model.Product{ProductID: "p1", EAN: "4006381333931"})

	got, err := r.FindByCode(context.Background(), "4006381333931")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "p1", got.ProductID)

	miss, err := r.FindByCode(context.Background(), "0000000000000")
	require.NoError(t, err)
	assert.Nil(t, miss)
}

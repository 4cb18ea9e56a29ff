// Package mock provides mock implementations of database interfaces for testing.
package mock

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/kozaktomas/photo-groups/internal/database"
)

type member struct {
	imageID          int64
	isRepresentative bool
}

// MockStore is an in-memory implementation of database.ImageWriter and database.GroupWriter.
// Images and groups share one store so membership views can see soft deletes.
type MockStore struct {
	mu      sync.RWMutex
	images  map[int64]*database.Image
	groups  map[int64]*database.SimilarGroup
	members map[int64][]member
	nextImg int64
	nextGrp int64

	// Error injection
	FindImagesError   error
	GetImageError     error
	SoftDeleteError   error
	SaveAnalysisError error
	PurgeError        error
	GetGroupsError    error
	ReplaceError      error
	DeleteGroupError  error
	ConfirmError      error

	// ReplaceCalls counts successful ReplaceSuggestedGroups calls
	ReplaceCalls int
}

// NewMockStore creates an empty mock store
func NewMockStore() *MockStore {
	return &MockStore{
		images:  make(map[int64]*database.Image),
		groups:  make(map[int64]*database.SimilarGroup),
		members: make(map[int64][]member),
	}
}

// AddImage stores a copy of img. A zero ID is replaced with the next free one.
// Returns the stored image ID.
func (m *MockStore) AddImage(img database.Image) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	if img.ID == 0 {
		m.nextImg++
		img.ID = m.nextImg
	} else if img.ID > m.nextImg {
		m.nextImg = img.ID
	}
	if img.Status == "" {
		img.Status = database.AnalysisCompleted
	}
	if img.UploadedAt.IsZero() {
		img.UploadedAt = time.Now()
	}
	m.images[img.ID] = &img
	return img.ID
}

// GroupCount returns the number of stored groups across all owners
func (m *MockStore) GroupCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.groups)
}

func (m *MockStore) liveMembers(groupID int64) []member {
	var out []member
	for _, mb := range m.members[groupID] {
		if img, ok := m.images[mb.imageID]; ok && img.DeletedAt == nil {
			out = append(out, mb)
		}
	}
	return out
}

func (m *MockStore) groupView(g *database.SimilarGroup) database.SimilarGroup {
	view := *g
	view.ImageCount = len(m.liveMembers(g.ID))
	return view
}

func sortByID(images []database.Image) {
	sort.Slice(images, func(i, j int) bool { return images[i].ID < images[j].ID })
}

// FindImagesWithEmbeddings implements database.ImageReader
func (m *MockStore) FindImagesWithEmbeddings(ctx context.Context, ownerID int64) ([]database.Image, error) {
	if m.FindImagesError != nil {
		return nil, m.FindImagesError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []database.Image
	for _, img := range m.images {
		if img.OwnerID == ownerID && img.IsClusterable() {
			result = append(result, *img)
		}
	}
	sortByID(result)
	return result, nil
}

// GetImage implements database.ImageReader
func (m *MockStore) GetImage(ctx context.Context, imageID, ownerID int64) (*database.Image, error) {
	img, err := m.GetImageIncludingTrashed(ctx, imageID, ownerID)
	if err != nil {
		return nil, err
	}
	if img.IsTrashed() {
		return nil, database.ErrNotFound
	}
	return img, nil
}

// GetImageIncludingTrashed implements database.ImageReader
func (m *MockStore) GetImageIncludingTrashed(ctx context.Context, imageID, ownerID int64) (*database.Image, error) {
	if m.GetImageError != nil {
		return nil, m.GetImageError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	img, ok := m.images[imageID]
	if !ok || img.OwnerID != ownerID {
		return nil, database.ErrNotFound
	}
	cp := *img
	return &cp, nil
}

// ListTrashed implements database.ImageReader
func (m *MockStore) ListTrashed(ctx context.Context, ownerID int64) ([]database.Image, error) {
	if m.FindImagesError != nil {
		return nil, m.FindImagesError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []database.Image
	for _, img := range m.images {
		if img.OwnerID == ownerID && img.IsTrashed() {
			result = append(result, *img)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].DeletedAt.Equal(*result[j].DeletedAt) {
			return result[i].DeletedAt.After(*result[j].DeletedAt)
		}
		return result[i].ID < result[j].ID
	})
	return result, nil
}

// ListOwnersWithEmbeddings implements database.ImageReader
func (m *MockStore) ListOwnersWithEmbeddings(ctx context.Context) ([]int64, error) {
	if m.FindImagesError != nil {
		return nil, m.FindImagesError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	seen := make(map[int64]bool)
	var owners []int64
	for _, img := range m.images {
		if img.IsClusterable() && !seen[img.OwnerID] {
			seen[img.OwnerID] = true
			owners = append(owners, img.OwnerID)
		}
	}
	slices.Sort(owners)
	return owners, nil
}

// SoftDeleteImages implements database.ImageWriter
func (m *MockStore) SoftDeleteImages(ctx context.Context, ownerID int64, imageIDs []int64) (int64, error) {
	if m.SoftDeleteError != nil {
		return 0, m.SoftDeleteError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.softDelete(ownerID, imageIDs), nil
}

func (m *MockStore) softDelete(ownerID int64, imageIDs []int64) int64 {
	now := time.Now()
	var n int64
	for _, id := range imageIDs {
		img, ok := m.images[id]
		if !ok || img.OwnerID != ownerID || img.DeletedAt != nil {
			continue
		}
		deletedAt := now
		img.DeletedAt = &deletedAt
		n++
	}
	return n
}

// RestoreImage implements database.ImageWriter
func (m *MockStore) RestoreImage(ctx context.Context, imageID, ownerID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	img, ok := m.images[imageID]
	if !ok || img.OwnerID != ownerID || img.DeletedAt == nil {
		return database.ErrNotFound
	}
	img.DeletedAt = nil
	return nil
}

// SaveAnalysis implements database.ImageWriter
func (m *MockStore) SaveAnalysis(ctx context.Context, imageID, ownerID int64, result database.AnalysisResult) error {
	if m.SaveAnalysisError != nil {
		return m.SaveAnalysisError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	img, ok := m.images[imageID]
	if !ok || img.OwnerID != ownerID || img.DeletedAt != nil {
		return database.ErrNotFound
	}
	score := result.QualityScore
	img.Tag = result.Tag
	img.TagCategory = result.TagCategory
	img.QualityScore = &score
	img.Embedding = slices.Clone(result.Embedding)
	img.Status = database.AnalysisCompleted
	return nil
}

// PurgeTrashed implements database.ImageWriter
func (m *MockStore) PurgeTrashed(ctx context.Context, before time.Time) (int64, error) {
	if m.PurgeError != nil {
		return 0, m.PurgeError
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	var n int64
	for id, img := range m.images {
		if img.DeletedAt == nil || !img.DeletedAt.Before(before) {
			continue
		}
		delete(m.images, id)
		n++
		for gid, members := range m.members {
			m.members[gid] = slices.DeleteFunc(members, func(mb member) bool { return mb.imageID == id })
		}
		for _, g := range m.groups {
			if g.BestImageID != nil && *g.BestImageID == id {
				g.BestImageID = nil
			}
		}
	}
	return n, nil
}

// GetGroups implements database.GroupReader
func (m *MockStore) GetGroups(ctx context.Context, ownerID int64) ([]database.SimilarGroup, error) {
	if m.GetGroupsError != nil {
		return nil, m.GetGroupsError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []database.SimilarGroup
	for _, g := range m.groups {
		if g.OwnerID == ownerID {
			result = append(result, m.groupView(g))
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

// GetGroup implements database.GroupReader
func (m *MockStore) GetGroup(ctx context.Context, groupID, ownerID int64) (*database.SimilarGroup, error) {
	if m.GetGroupsError != nil {
		return nil, m.GetGroupsError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	g, ok := m.groups[groupID]
	if !ok || g.OwnerID != ownerID {
		return nil, database.ErrNotFound
	}
	view := m.groupView(g)
	return &view, nil
}

// GetImagesForGroup implements database.GroupReader
func (m *MockStore) GetImagesForGroup(ctx context.Context, groupID, ownerID int64) ([]database.Image, error) {
	if m.GetGroupsError != nil {
		return nil, m.GetGroupsError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	g, ok := m.groups[groupID]
	if !ok || g.OwnerID != ownerID {
		return nil, database.ErrNotFound
	}
	var result []database.Image
	for _, mb := range m.liveMembers(groupID) {
		if img := m.images[mb.imageID]; img.OwnerID == ownerID {
			result = append(result, *img)
		}
	}
	sortByID(result)
	return result, nil
}

// ListOwnersWithSuggestions implements database.GroupReader
func (m *MockStore) ListOwnersWithSuggestions(ctx context.Context) ([]int64, error) {
	if m.GetGroupsError != nil {
		return nil, m.GetGroupsError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	var owners []int64
	for _, g := range m.groups {
		if g.Status == database.GroupStatusSuggested && !slices.Contains(owners, g.OwnerID) {
			owners = append(owners, g.OwnerID)
		}
	}
	slices.Sort(owners)
	return owners, nil
}

// ReplaceSuggestedGroups implements database.GroupWriter.
// ReplaceError fails the call before anything changes, like a rolled back transaction.
func (m *MockStore) ReplaceSuggestedGroups(
	ctx context.Context, ownerID int64, groups []database.NewGroup,
) ([]database.SimilarGroup, error) {
	if m.ReplaceError != nil {
		return nil, m.ReplaceError
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	for id, g := range m.groups {
		if g.OwnerID == ownerID && g.Status == database.GroupStatusSuggested {
			delete(m.groups, id)
			delete(m.members, id)
		}
	}

	now := time.Now()
	created := make([]database.SimilarGroup, 0, len(groups))
	for _, ng := range groups {
		m.nextGrp++
		g := &database.SimilarGroup{
			ID:          m.nextGrp,
			OwnerID:     ownerID,
			Name:        database.GroupName(ng.Label),
			Status:      database.GroupStatusSuggested,
			BestImageID: ng.BestImageID,
			CreatedAt:   now,
		}
		m.groups[g.ID] = g

		members := make([]member, len(ng.ImageIDs))
		for i, id := range ng.ImageIDs {
			members[i] = member{
				imageID:          id,
				isRepresentative: ng.BestImageID != nil && *ng.BestImageID == id,
			}
		}
		m.members[g.ID] = members

		view := *g
		view.ImageCount = len(ng.ImageIDs)
		created = append(created, view)
	}
	m.ReplaceCalls++
	return created, nil
}

// DeleteGroup implements database.GroupWriter
func (m *MockStore) DeleteGroup(ctx context.Context, groupID, ownerID int64) error {
	if m.DeleteGroupError != nil {
		return m.DeleteGroupError
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if g, ok := m.groups[groupID]; ok && g.OwnerID == ownerID {
		delete(m.groups, groupID)
		delete(m.members, groupID)
	}
	return nil
}

// ConfirmGroup implements database.GroupWriter
func (m *MockStore) ConfirmGroup(ctx context.Context, groupID, ownerID int64, imageIDs []int64) (int64, error) {
	if m.ConfirmError != nil {
		return 0, m.ConfirmError
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	g, ok := m.groups[groupID]
	if !ok || g.OwnerID != ownerID {
		return 0, database.ErrNotFound
	}
	n := m.softDelete(ownerID, imageIDs)
	delete(m.groups, groupID)
	delete(m.members, groupID)
	return n, nil
}

// ConfirmKeepBest implements database.GroupWriter
func (m *MockStore) ConfirmKeepBest(ctx context.Context, groupID, ownerID int64) (int64, bool, error) {
	if m.ConfirmError != nil {
		return 0, false, m.ConfirmError
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	g, ok := m.groups[groupID]
	if !ok || g.OwnerID != ownerID {
		return 0, false, database.ErrNotFound
	}

	live := m.liveMembers(groupID)
	bestLive := g.BestImageID != nil && slices.ContainsFunc(live, func(mb member) bool {
		return mb.imageID == *g.BestImageID
	})

	var n int64
	if bestLive {
		toDelete := make([]int64, 0, len(live))
		for _, mb := range live {
			if mb.imageID != *g.BestImageID {
				toDelete = append(toDelete, mb.imageID)
			}
		}
		n = m.softDelete(ownerID, toDelete)
	}
	delete(m.groups, groupID)
	delete(m.members, groupID)
	return n, bestLive, nil
}

// Representative returns the image flagged as representative in a group's memberships, or 0.
func (m *MockStore) Representative(groupID int64) int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, mb := range m.members[groupID] {
		if mb.isRepresentative {
			return mb.imageID
		}
	}
	return 0
}

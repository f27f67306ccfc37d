// Package catalog turns a flat list of posts into the per-type feeds shown
// on the home and "my posts" pages.
//
// Everything here is pure: no I/O, no logging, no clock.
package catalog

import (
	"cmp"
	"slices"
	"time"

	"github.com/sakif/ivr-board/internal/model"
)

// Entry is the projection of one post shown in a feed.
// ID is zero unless the feed was built with exposeIDs.
type Entry[V model.PostBody] struct {
	ID           int64
	OwnerName    string
	OwnerSurname string
	CreatedAt    time.Time
	UpdatedAt    time.Time
	Body         V
}

// Feed holds the posts partitioned by type.
type Feed struct {
	Proposals []Entry[model.Proposal]
	Resumes   []Entry[model.Resume]
	Polls     []Entry[model.Poll]
	Ideas     []Entry[model.Idea]
}

// Len returns the total number of entries across all partitions.
func (f Feed) Len() int {
	return len(f.Proposals) + len(f.Resumes) + len(f.Polls) + len(f.Ideas)
}

// Classify partitions posts by type. Every post with a known body lands in
// exactly one partition. Each partition is ordered newest first.
func Classify(posts []model.Post, exposeIDs bool) Feed {
	sorted := slices.Clone(posts)
	slices.SortStableFunc(sorted, newestFirst)

	var f Feed
	for _, p := range sorted {
		switch b := p.Body.(type) {
		case model.Proposal:
			f.Proposals = append(f.Proposals, entry(p, b, exposeIDs))
		case model.Resume:
			f.Resumes = append(f.Resumes, entry(p, b, exposeIDs))
		case model.Poll:
			f.Polls = append(f.Polls, entry(p, b, exposeIDs))
		case model.Idea:
			f.Ideas = append(f.Ideas, entry(p, b, exposeIDs))
		}
	}
	return f
}

func entry[V model.PostBody](p model.Post, body V, exposeIDs bool) Entry[V] {
	e := Entry[V]{
		OwnerName:    p.OwnerName,
		OwnerSurname: p.OwnerSurname,
		CreatedAt:    p.CreatedAt,
		UpdatedAt:    p.UpdatedAt,
		Body:         body,
	}
	if exposeIDs {
		e.ID = p.ID
	}
	return e
}

// newestFirst orders by CreatedAt descending, then ID descending.
func newestFirst(a, b model.Post) int {
	if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
		return c
	}
	return cmp.Compare(b.ID, a.ID)
}

// ExcludeOwner returns the posts not owned by viewerID.
func ExcludeOwner(posts []model.Post, viewerID int64) []model.Post {
	return filter(posts, func(p model.Post) bool { return p.UserID != viewerID })
}

// OnlyOwner returns the posts owned by ownerID. It is the complement of
// ExcludeOwner for the same id.
func OnlyOwner(posts []model.Post, ownerID int64) []model.Post {
	return filter(posts, func(p model.Post) bool { return p.UserID == ownerID })
}

func filter(posts []model.Post, keep func(model.Post) bool) []model.Post {
	out := make([]model.Post, 0, len(posts))
	for _, p := range posts {
		if keep(p) {
			out = append(out, p)
		}
	}
	return out
}

// PublicFeed is what viewerID sees on the home page: everyone else's posts,
// without ids.
func PublicFeed(posts []model.Post, viewerID int64) Feed {
	return Classify(ExcludeOwner(posts, viewerID), false)
}

// OwnFeed is the "my posts" page: the owner's posts with ids so they can be
// edited and deleted.
func OwnFeed(posts []model.Post, ownerID int64) Feed {
	return Classify(OnlyOwner(posts, ownerID), true)
}

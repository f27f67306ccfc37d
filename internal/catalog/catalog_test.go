package catalog

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/ivr-board/internal/model"
)

var base = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func post(id, owner int64, minutes int, body model.PostBody) model.Post {
	return model.Post{
		ID:           id,
		UserID:       owner,
		OwnerName:    "Name",
		OwnerSurname: "Surname",
		Body:         body,
		CreatedAt:    base.Add(time.Duration(minutes) * time.Minute),
	}
}

func samplePosts() []model.Post {
	return []model.Post{
		post(1, 1, 0, model.Proposal{Name: "p1"}),
		post(2, 2, 1, model.Resume{Description: "r1"}),
		post(3, 1, 2, model.Poll{Name: "q1"}),
		post(4, 3, 3, model.Idea{Name: "i1"}),
		post(5, 2, 4, model.Proposal{Name: "p2"}),
		post(6, 3, 5, model.Idea{Name: "i2"}),
		post(7, 1, 6, model.Resume{Description: "r2"}),
	}
}

func TestClassify_PreservesCount(t *testing.T) {
	posts := samplePosts()
	f := Classify(posts, false)

	assert.Equal(t, len(posts), f.Len())
	assert.Len(t, f.Proposals, 2)
	assert.Len(t, f.Resumes, 2)
	assert.Len(t, f.Polls, 1)
	assert.Len(t, f.Ideas, 2)
}

func TestClassify_Empty(t *testing.T) {
	f := Classify(nil, true)
	assert.Equal(t, 0, f.Len())
}

func TestClassify_ExposeIDs(t *testing.T) {
	hidden := Classify(samplePosts(), false)
	for _, e := range hidden.Proposals {
		assert.Zero(t, e.ID)
	}

	shown := Classify(samplePosts(), true)
	require.Len(t, shown.Proposals, 2)
	assert.Equal(t, int64(5), shown.Proposals[0].ID)
	assert.Equal(t, int64(1), shown.Proposals[1].ID)
}

func TestClassify_NewestFirstWithIDTieBreak(t *testing.T) {
	posts := []model.Post{
		post(10, 1, 0, model.Idea{Name: "old"}),
		post(11, 1, 5, model.Idea{Name: "tie-low"}),
		post(12, 1, 5, model.Idea{Name: "tie-high"}),
		post(13, 1, 9, model.Idea{Name: "new"}),
	}

	f := Classify(posts, true)
	require.Len(t, f.Ideas, 4)

	var names []string
	for _, e := range f.Ideas {
		names = append(names, e.Body.Name)
	}
	assert.Equal(t, []string{"new", "tie-high", "tie-low", "old"}, names)
}

func TestClassify_DoesNotReorderInput(t *testing.T) {
	posts := samplePosts()
	Classify(posts, false)
	assert.Equal(t, int64(1), posts[0].ID)
}

func TestExcludeOnlyOwner_AreComplementary(t *testing.T) {
	posts := samplePosts()

	for _, viewer := range []int64{1, 2, 3, 99} {
		excluded := ExcludeOwner(posts, viewer)
		only := OnlyOwner(posts, viewer)

		assert.Equal(t, len(posts), len(excluded)+len(only), "viewer %d", viewer)
		for _, p := range excluded {
			assert.NotEqual(t, viewer, p.UserID)
		}
		for _, p := range only {
			assert.Equal(t, viewer, p.UserID)
		}

		union := map[int64]bool{}
		for _, p := range append(excluded, only...) {
			union[p.ID] = true
		}
		assert.Len(t, union, len(posts))
	}
}

func TestPublicAndOwnFeed(t *testing.T) {
	posts := samplePosts()

	public := PublicFeed(posts, 1)
	own := OwnFeed(posts, 1)

	assert.Equal(t, 4, public.Len())
	assert.Equal(t, 3, own.Len())
	assert.Equal(t, len(posts), public.Len()+own.Len())

	for _, e := range public.Ideas {
		assert.Zero(t, e.ID, "public feed hides ids")
	}
	require.Len(t, own.Polls, 1)
	assert.Equal(t, int64(3), own.Polls[0].ID)
}

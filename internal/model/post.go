package model

import (
	"fmt"
	"time"
)

// PostType is the discriminator stored in posts.post_type.
// The numeric values are part of the stored data and must not change.
type PostType int

const (
	TypeProposal PostType = 1
	TypeResume   PostType = 2
	TypePoll     PostType = 3
	TypeIdea     PostType = 4
)

// slugs are the URL segments used by /add_{slug} and /update/{slug}/{id}.
var slugs = map[PostType]string{
	TypeProposal: "post",
	TypeResume:   "vacancy",
	TypePoll:     "quiz",
	TypeIdea:     "idea",
}

// PostTypes lists every post type in display order.
var PostTypes = []PostType{TypeProposal, TypeResume, TypePoll, TypeIdea}

// Slug returns the URL segment for t.
func (t PostType) Slug() string {
	return slugs[t]
}

// Valid reports whether t is one of the four known types.
func (t PostType) Valid() bool {
	_, ok := slugs[t]
	return ok
}

func (t PostType) String() string {
	switch t {
	case TypeProposal:
		return "proposal"
	case TypeResume:
		return "resume"
	case TypePoll:
		return "poll"
	case TypeIdea:
		return "idea"
	}
	return fmt.Sprintf("PostType(%d)", int(t))
}

// ParseSlug maps a URL segment back to its post type.
func ParseSlug(slug string) (PostType, bool) {
	for t, s := range slugs {
		if s == slug {
			return t, true
		}
	}
	return 0, false
}

// Contacts are the links shown under a post.
// HrefVK and HrefTelegram hold NoLink when not provided.
type Contacts struct {
	HrefVK       string `json:"hrefVk"`
	HrefTelegram string `json:"hrefTelegram"`
	HrefGoogle   string `json:"hrefGoogle"`
}

// Normalized returns c with the sentinel applied to blank VK/Telegram links.
func (c Contacts) Normalized() Contacts {
	return Contacts{
		HrefVK:       NormalizeLink(c.HrefVK),
		HrefTelegram: NormalizeLink(c.HrefTelegram),
		HrefGoogle:   c.HrefGoogle,
	}
}

// PostBody is the type-specific part of a post.
//
// SUM TYPE IN GO:
// Go has no tagged unions, so we use a "sealed" interface: the unexported
// method means only types in this package can implement it. A type switch
// over PostBody therefore has exactly four cases:
//
//	switch b := post.Body.(type) {
//	case Proposal: ...
//	case Resume:   ...
//	case Poll:     ...
//	case Idea:     ...
//	}
type PostBody interface {
	Type() PostType
	isPostBody()
}

// Proposal is a project proposal looking for participants.
type Proposal struct {
	ProjectType string   `json:"projectType"`
	Subject     string   `json:"subject"`
	ProblemType string   `json:"problemType"`
	Name        string   `json:"name"`
	Demands     string   `json:"demands"`
	Description string   `json:"description"`
	Contacts    Contacts `json:"contacts"`
}

// Resume is a person offering to join a project.
type Resume struct {
	ProblemType string   `json:"problemType"`
	Description string   `json:"description"`
	Contacts    Contacts `json:"contacts"`
}

// Poll points at an external questionnaire.
type Poll struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Contacts    Contacts `json:"contacts"`
	HrefQuiz    string   `json:"hrefQuiz"`
}

// Idea is a free-form project idea. It carries no contact links.
type Idea struct {
	ProjectType string `json:"projectType"`
	Subject     string `json:"subject"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

func (Proposal) Type() PostType { return TypeProposal }
func (Resume) Type() PostType   { return TypeResume }
func (Poll) Type() PostType     { return TypePoll }
func (Idea) Type() PostType     { return TypeIdea }

func (Proposal) isPostBody() {}
func (Resume) isPostBody()   {}
func (Poll) isPostBody()     {}
func (Idea) isPostBody()     {}

// Post is a single bulletin-board entry.
//
// OwnerName and OwnerSurname are copied from the author's profile when the
// post is created and are not updated when the profile changes later.
type Post struct {
	ID           int64     `json:"id"`
	UserID       int64     `json:"userId"`
	OwnerName    string    `json:"ownerName"`
	OwnerSurname string    `json:"ownerSurname"`
	Body         PostBody  `json:"body"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// Type returns the discriminator of the post's body.
func (p *Post) Type() PostType {
	if p.Body == nil {
		return 0
	}
	return p.Body.Type()
}

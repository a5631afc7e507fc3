// Package records holds the typed social records and their binary account layout.
package records

import (
	"crypto/sha256"
	"fmt"

	"github.com/R3E-Network/ledgerfeed/internal/errors"
	"github.com/R3E-Network/ledgerfeed/internal/ledger"
)

// DiscriminatorSize is the length of the type tag prefixed to every account body.
const DiscriminatorSize = 8

// Profile is an identity's root record. PostCount and FollowCount are the next
// free append indices.
type Profile struct {
	Username    string `json:"username"`
	PostCount   uint64 `json:"post_count"`
	FollowCount uint64 `json:"follow_count"`
}

// Post is an immutable message. Timestamp is assigned by the ledger, in seconds.
type Post struct {
	Text      string `json:"text"`
	Timestamp int64  `json:"timestamp"`
}

// FollowEdge records that its owner follows Target.
type FollowEdge struct {
	Target ledger.Identity `json:"target"`
}

// Account names used to derive discriminators.
const (
	profileAccount = "Profile"
	postAccount    = "Post"
	followAccount  = "FollowEdge"
)

var (
	profileDiscriminator = Discriminator("account", profileAccount)
	postDiscriminator    = Discriminator("account", postAccount)
	followDiscriminator  = Discriminator("account", followAccount)
)

// Discriminator returns the first 8 bytes of SHA-256("<namespace>:<name>").
func Discriminator(namespace, name string) [DiscriminatorSize]byte {
	sum := sha256.Sum256([]byte(namespace + ":" + name))
	var d [DiscriminatorSize]byte
	copy(d[:], sum[:DiscriminatorSize])
	return d
}

// Schema decodes one record type from raw account bytes.
type Schema[T any] struct {
	Name   string
	Decode func([]byte) (T, error)
}

var (
	ProfileSchema = Schema[Profile]{Name: "profile", Decode: DecodeProfile}
	PostSchema    = Schema[Post]{Name: "post", Decode: DecodePost}
	FollowSchema  = Schema[FollowEdge]{Name: "follow", Decode: DecodeFollowEdge}
)

// EncodeProfile serializes a Profile account body.
func EncodeProfile(p Profile) []byte {
	w := newWriter(profileDiscriminator)
	w.string(p.Username)
	w.u64(p.PostCount)
	w.u64(p.FollowCount)
	return w.bytes()
}

// DecodeProfile parses a Profile account body. Trailing padding is ignored.
func DecodeProfile(data []byte) (Profile, error) {
	var p Profile
	r, err := newReader(data, profileDiscriminator, profileAccount)
	if err != nil {
		return p, err
	}
	p.Username = r.string("username")
	p.PostCount = r.u64("post_count")
	p.FollowCount = r.u64("follow_count")
	return p, r.err
}

// EncodePost serializes a Post account body.
func EncodePost(p Post) []byte {
	w := newWriter(postDiscriminator)
	w.string(p.Text)
	w.u64(uint64(p.Timestamp))
	return w.bytes()
}

// DecodePost parses a Post account body.
func DecodePost(data []byte) (Post, error) {
	var p Post
	r, err := newReader(data, postDiscriminator, postAccount)
	if err != nil {
		return p, err
	}
	p.Text = r.string("text")
	p.Timestamp = int64(r.u64("timestamp"))
	return p, r.err
}

// EncodeFollowEdge serializes a FollowEdge account body.
func EncodeFollowEdge(f FollowEdge) []byte {
	w := newWriter(followDiscriminator)
	w.raw(f.Target[:])
	return w.bytes()
}

// DecodeFollowEdge parses a FollowEdge account body.
func DecodeFollowEdge(data []byte) (FollowEdge, error) {
	var f FollowEdge
	r, err := newReader(data, followDiscriminator, followAccount)
	if err != nil {
		return f, err
	}
	copy(f.Target[:], r.raw("target", ledger.IdentitySize))
	return f, r.err
}

func decodeError(account, format string, args ...interface{}) error {
	return errors.Decode(fmt.Sprintf("%s account: %s", account, fmt.Sprintf(format, args...)), nil)
}

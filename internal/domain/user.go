// Package domain holds the entities of the blogging platform: users, posts,
// their embedded comments, and the cascade jobs that clean up after a user
// is deleted.
package domain

import (
	"slices"
	"time"
)

// Counter names a denormalized aggregate on a User item.
type Counter string

const (
	CounterPosts    Counter = "postCount"
	CounterLikes    Counter = "likesCount"
	CounterComments Counter = "commentsCount"
	CounterFriends  Counter = "friendsCount"
)

// Valid reports whether c is one of the known user counters.
func (c Counter) Valid() bool {
	switch c {
	case CounterPosts, CounterLikes, CounterComments, CounterFriends:
		return true
	}
	return false
}

// User is a registered account.
type User struct {
	ID            string    `json:"id"`
	Username      string    `json:"username"`
	Email         string    `json:"email"`
	FullName      string    `json:"fullName"`
	PasswordHash  string    `json:"-"`
	AvatarURL     string    `json:"avatarUrl"`
	GitHubID      string    `json:"githubId,omitempty"`
	GoogleID      string    `json:"googleId,omitempty"`
	PostCount     int       `json:"postCount"`
	LikesCount    int       `json:"likesCount"`
	CommentsCount int       `json:"commentsCount"`
	FriendsCount  int       `json:"friendsCount"`
	Friends       []string  `json:"friends"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
	Version       int       `json:"-"`
}

// UserSummary is the public projection of a user shown in lists.
type UserSummary struct {
	ID        string `json:"id"`
	Username  string `json:"username"`
	FullName  string `json:"fullName"`
	AvatarURL string `json:"avatarUrl"`
}

// Summary returns the list projection of u.
func (u *User) Summary() UserSummary {
	return UserSummary{
		ID:        u.ID,
		Username:  u.Username,
		FullName:  u.FullName,
		AvatarURL: u.AvatarURL,
	}
}

// HasFriend reports whether id is in the user's friend list.
func (u *User) HasFriend(id string) bool {
	return slices.Contains(u.Friends, id)
}

// AddFriend appends id to the friend list and keeps FriendsCount in step.
// It returns false when id is already present or is the user itself.
func (u *User) AddFriend(id string) bool {
	if id == u.ID || u.HasFriend(id) {
		return false
	}
	u.Friends = append(u.Friends, id)
	u.FriendsCount = len(u.Friends)
	return true
}

// RemoveFriend drops id from the friend list. It returns false when id was
// not a friend.
func (u *User) RemoveFriend(id string) bool {
	idx := slices.Index(u.Friends, id)
	if idx < 0 {
		return false
	}
	u.Friends = slices.Delete(u.Friends, idx, idx+1)
	u.FriendsCount = len(u.Friends)
	return true
}

// Counter returns the current value of c.
func (u *User) Counter(c Counter) int {
	switch c {
	case CounterPosts:
		return u.PostCount
	case CounterLikes:
		return u.LikesCount
	case CounterComments:
		return u.CommentsCount
	case CounterFriends:
		return u.FriendsCount
	}
	return 0
}

// SetCounter overwrites c with v.
func (u *User) SetCounter(c Counter, v int) {
	switch c {
	case CounterPosts:
		u.PostCount = v
	case CounterLikes:
		u.LikesCount = v
	case CounterComments:
		u.CommentsCount = v
	case CounterFriends:
		u.FriendsCount = v
	}
}

package model

import "time"

// Group is a household. The owner is fixed at creation and always holds
// host authority, whatever its membership row says.
type Group struct {
	ID             int64     `json:"id"`
	Name           string    `json:"name"`
	OwnerAccountID int64     `json:"owner_account_id"`
	InviteCode     *string   `json:"invite_code,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

type Membership struct {
	ID        int64     `json:"id"`
	GroupID   int64     `json:"group_id"`
	AccountID int64     `json:"account_id"`
	Points    int       `json:"points"`
	IsHost    bool      `json:"is_host"`
	CreatedAt time.Time `json:"created_at"`
}

// MemberDetail is one row of a group's member list.
type MemberDetail struct {
	AccountID int64  `json:"account_id"`
	Name      string `json:"name"`
	Points    int    `json:"points"`
	IsHost    bool   `json:"is_host"`
	IsOwner   bool   `json:"is_owner"`
}

type GroupDetail struct {
	Group
	Members []MemberDetail `json:"members"`
}

// MembershipSummary is a group as seen by one of its members.
type MembershipSummary struct {
	GroupID   int64  `json:"group_id"`
	GroupName string `json:"group_name"`
	Points    int    `json:"points"`
	IsHost    bool   `json:"is_host"`
	IsOwner   bool   `json:"is_owner"`
}

type JoinResult struct {
	Group         Group `json:"group"`
	AlreadyMember bool  `json:"already_member"`
}

package channels

import (
	"context"

	"fidchannels/backend"
	"fidchannels/internal/utils"
)

// Membership outcomes reported to a MembershipRecorder.
const (
	OutcomeMember    = "member"
	OutcomeNotMember = "not_member"
	OutcomeFailed    = "failed"
	OutcomeSkipped   = "skipped"
)

// Membership is the derived membership fact for one channel. It is never cached.
type Membership struct {
	ChannelID string      `json:"channelId"`
	FID       backend.FID `json:"fid"`
	IsMember  bool        `json:"isMember"`
}

// MembershipRecorder receives one outcome per membership check.
type MembershipRecorder interface {
	Membership(outcome string)
}

// Resolver answers whether a FID is a member of a channel. Failures are
// reported as non-membership and never returned.
type Resolver struct {
	members  backend.MemberSource
	breaker  *Breaker
	recorder MembershipRecorder
}

// ResolverOption configures a Resolver.
type ResolverOption func(*Resolver)

// WithBreaker short-circuits checks while b is open.
func WithBreaker(b *Breaker) ResolverOption {
	return func(r *Resolver) {
		r.breaker = b
	}
}

// WithMembershipRecorder sets the outcome recorder.
func WithMembershipRecorder(rec MembershipRecorder) ResolverOption {
	return func(r *Resolver) {
		r.recorder = rec
	}
}

// NewResolver creates a Resolver over members.
func NewResolver(members backend.MemberSource, opts ...ResolverOption) *Resolver {
	r := &Resolver{members: members}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// IsMember reports whether fid is a member of channelID.
func (r *Resolver) IsMember(ctx context.Context, fid backend.FID, channelID string) bool {
	if fid == 0 || channelID == "" {
		return false
	}

	if r.breaker != nil && !r.breaker.Allow() {
		r.record(OutcomeSkipped)
		return false
	}

	fids, err := r.members.ChannelMembers(ctx, channelID, fid)
	if err != nil {
		// Abandoned requests say nothing about upstream health
		if r.breaker != nil {
			if ctx.Err() == nil {
				r.breaker.RecordFailure()
			} else {
				r.breaker.Release()
			}
		}
		utils.Debugf("membership check for fid %s in %s failed: %v", fid, channelID, err)
		r.record(OutcomeFailed)
		return false
	}
	if r.breaker != nil {
		r.breaker.RecordSuccess()
	}

	for _, member := range fids {
		if member == fid {
			r.record(OutcomeMember)
			return true
		}
	}
	r.record(OutcomeNotMember)
	return false
}

// Resolve is IsMember returning the full membership record.
func (r *Resolver) Resolve(ctx context.Context, fid backend.FID, channelID string) Membership {
	return Membership{
		ChannelID: channelID,
		FID:       fid,
		IsMember:  r.IsMember(ctx, fid, channelID),
	}
}

func (r *Resolver) record(outcome string) {
	if r.recorder != nil {
		r.recorder.Membership(outcome)
	}
}

package chat

import (
	"context"
	"errors"
	"testing"

	"QChat/tools/errs"
)

func TestMembershipAuthorizeReadThrough(t *testing.T) {
	ctx := context.Background()
	fs := newFakeMembershipStore()
	fs.setMembers(100, 1, 2)
	idx := NewMembershipIndex(fs)

	ok, err := idx.Authorize(ctx, 1, 100)
	if err != nil || !ok {
		t.Fatalf("Authorize(member) = %v, %v; want true, nil", ok, err)
	}
	ok, err = idx.Authorize(ctx, 3, 100)
	if err != nil || ok {
		t.Fatalf("Authorize(non-member) = %v, %v; want false, nil", ok, err)
	}

	// Both checks hit the same cached entry: one store read.
	if fs.listCalls != 1 {
		t.Fatalf("store reads = %d, want 1", fs.listCalls)
	}
}

func TestMembershipJoinForbidden(t *testing.T) {
	ctx := context.Background()
	fs := newFakeMembershipStore()
	fs.setMembers(100, 1)
	idx := NewMembershipIndex(fs)

	if err := idx.Join(ctx, 1, 100); err != nil {
		t.Fatalf("member join failed: %v", err)
	}
	err := idx.Join(ctx, 2, 100)
	if !errors.Is(err, errs.ErrForbidden) {
		t.Fatalf("non-member join = %v, want Forbidden", err)
	}
}

func TestMembershipJoinSeesRemoval(t *testing.T) {
	ctx := context.Background()
	fs := newFakeMembershipStore()
	fs.setMembers(100, 1, 2)
	idx := NewMembershipIndex(fs)

	if err := idx.Join(ctx, 2, 100); err != nil {
		t.Fatalf("initial join failed: %v", err)
	}

	// The store drops the user; a fresh join must honor the removal even
	// though the cache still has the stale set.
	fs.setMembers(100, 1)
	if err := idx.Join(ctx, 2, 100); !errors.Is(err, errs.ErrForbidden) {
		t.Fatalf("join after removal = %v, want Forbidden", err)
	}
	if containsUser(idx.MembersOf(100), 2) {
		t.Fatal("cache still lists the removed member")
	}
}

func TestMembershipStoreErrorPropagates(t *testing.T) {
	ctx := context.Background()
	fs := newFakeMembershipStore()
	fs.err = errs.ErrStorageUnavailable.WithDetail("boom")
	idx := NewMembershipIndex(fs)

	if _, err := idx.Authorize(ctx, 1, 100); !errors.Is(err, errs.ErrStorageUnavailable) {
		t.Fatalf("Authorize on store failure = %v, want StorageUnavailable", err)
	}
	if err := idx.Join(ctx, 1, 100); !errors.Is(err, errs.ErrStorageUnavailable) {
		t.Fatalf("Join on store failure = %v, want StorageUnavailable", err)
	}
}

func TestMembershipInvalidate(t *testing.T) {
	ctx := context.Background()
	fs := newFakeMembershipStore()
	fs.setMembers(100, 1, 2)
	idx := NewMembershipIndex(fs)

	if err := idx.Refresh(ctx, 100); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if len(idx.MembersOf(100)) != 2 {
		t.Fatal("cache should hold the member set")
	}
	if len(idx.RoomsOf(1)) != 1 {
		t.Fatal("reverse index should list room 100 for user 1")
	}

	idx.Invalidate(100)
	if len(idx.MembersOf(100)) != 0 {
		t.Fatal("invalidated room should have no cached members")
	}
	if len(idx.RoomsOf(1)) != 0 {
		t.Fatal("invalidated room should leave the reverse index")
	}

	// Next authorize read-throughs again.
	before := fs.listCalls
	if ok, _ := idx.Authorize(ctx, 1, 100); !ok {
		t.Fatal("authorize after invalidate should re-read the store")
	}
	if fs.listCalls != before+1 {
		t.Fatalf("store reads after invalidate = %d, want %d", fs.listCalls, before+1)
	}
}

func TestMembershipRefreshReplacesAtomically(t *testing.T) {
	ctx := context.Background()
	fs := newFakeMembershipStore()
	fs.setMembers(100, 1, 2, 3)
	idx := NewMembershipIndex(fs)

	if err := idx.Refresh(ctx, 100); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	fs.setMembers(100, 3, 4)
	if err := idx.Refresh(ctx, 100); err != nil {
		t.Fatalf("refresh: %v", err)
	}

	got := idx.MembersOf(100)
	if len(got) != 2 || !containsUser(got, 3) || !containsUser(got, 4) {
		t.Fatalf("members after refresh = %v, want [3 4]", got)
	}
	if len(idx.RoomsOf(1)) != 0 {
		t.Fatal("user 1 left the room but is still in the reverse index")
	}
}

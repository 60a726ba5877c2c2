package graph

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestFollowIdempotence: initiating the same follow twice must not create
// a second edge; FindFollowBetween must see the one already created.
func TestFollowIdempotence(t *testing.T) {
	db := newFakeDB()
	ctx := context.Background()

	a, err := CreateAccount(ctx, db, Account{Username: "a"})
	require.NoError(t, err)
	b, err := CreateAccount(ctx, db, Account{Username: "b"})
	require.NoError(t, err)

	_, err = FindFollowBetween(ctx, db, a, b)
	assert.Error(t, err, "no follow should exist yet")

	created, err := LinkFollow(ctx, db, a, b, nil)
	require.NoError(t, err)
	assert.False(t, created.FromRemote)
	assert.False(t, created.ToRemote)

	found, err := FindFollowBetween(ctx, db, a, b)
	require.NoError(t, err)
	assert.Equal(t, created.Key, found.Key)
}

// TestSetFollowAcceptedIdempotence: setting the same accepted value twice
// only actually modifies the edge the first time.
func TestSetFollowAcceptedIdempotence(t *testing.T) {
	db := newFakeDB()
	ctx := context.Background()

	a, err := CreateAccount(ctx, db, Account{Username: "a"})
	require.NoError(t, err)
	b, err := CreateAccount(ctx, db, Account{Username: "b"})
	require.NoError(t, err)

	follow, err := LinkFollow(ctx, db, a, b, nil)
	require.NoError(t, err)

	// First call: accepted is unset -> true, a real change.
	assert.Nil(t, follow.Accepted)
	modified := setAccepted(t, db, follow, true)
	assert.True(t, modified)

	reloaded, err := FindFollowByKey(ctx, db, follow.Key)
	require.NoError(t, err)
	require.NotNil(t, reloaded.Accepted)
	assert.True(t, *reloaded.Accepted)

	// Second call with the same value: no change.
	modified = setAccepted(t, db, reloaded, true)
	assert.False(t, modified)
}

// setAccepted mirrors the txn engine's SetFollowAccepted action semantics
// for this package's own tests.
func setAccepted(t *testing.T, db DB, f *Follow, accepted bool) bool {
	t.Helper()
	if f.Accepted != nil && *f.Accepted == accepted {
		return false
	}
	f.Accepted = &accepted
	require.NoError(t, f.Save(context.Background(), db))
	return true
}

func TestFindPendingFollows(t *testing.T) {
	db := newFakeDB()
	ctx := context.Background()

	a, err := CreateAccount(ctx, db, Account{Username: "a"})
	require.NoError(t, err)
	b, err := CreateAccount(ctx, db, Account{Username: "b"})
	require.NoError(t, err)

	_, err = LinkFollow(ctx, db, a, b, nil)
	require.NoError(t, err)

	pendingFrom, err := FindPendingFollowsFrom(ctx, db, a)
	require.NoError(t, err)
	assert.Len(t, pendingFrom, 1)

	pendingTo, err := FindPendingFollowsTo(ctx, db, b)
	require.NoError(t, err)
	assert.Len(t, pendingTo, 1)
}

func TestLinkFollowSetsRemoteFlagsFromEndpoints(t *testing.T) {
	db := newFakeDB()
	ctx := context.Background()

	local, err := CreateAccount(ctx, db, Account{Username: "local"})
	require.NoError(t, err)
	remote, err := CreateAccount(ctx, db, Account{
		Username: "remote", Domain: "example.org",
		Remote: &RemoteInfo{URI: "https://example.org/users/remote"},
	})
	require.NoError(t, err)

	follow, err := LinkFollow(ctx, db, local, remote, nil)
	require.NoError(t, err)
	assert.False(t, follow.FromRemote)
	assert.True(t, follow.ToRemote)
}

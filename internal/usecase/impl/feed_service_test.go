package impl

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"flagfeed/config"
	"flagfeed/internal/domain/entity"
	domainerrors "flagfeed/internal/domain/errors"
	"flagfeed/internal/usecase"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type feedFixture struct {
	session     usecase.SessionUsecase
	feed        usecase.FeedUsecase
	identity    *fakeIdentity
	userRepo    *fakeUserRepo
	profileRepo *fakeProfileRepo
	publisher   *fakePublisher
}

func newFeedFixture(t *testing.T) *feedFixture {
	t.Helper()

	identity := newFakeIdentity()
	userRepo := newFakeUserRepo()
	profileRepo := newFakeProfileRepo()
	publisher := &fakePublisher{}
	logger := slog.New(slog.DiscardHandler)
	cfg := &config.Config{
		Feed: &config.FeedConfig{RefreshSettleDelay: time.Millisecond},
	}

	session := NewSessionService(SessionServiceParams{
		Ctx:          context.Background(),
		Identity:     identity,
		UserRepo:     userRepo,
		ProfileRepo:  profileRepo,
		GenderFilter: NewGenderFilterService(),
		Config:       cfg,
		Logger:       logger,
	})

	feed := NewFeedService(FeedServiceParams{
		Ctx:         context.Background(),
		ProfileRepo: profileRepo,
		Session:     session,
		Publisher:   publisher,
		Config:      cfg,
		Logger:      logger,
	})

	return &feedFixture{
		session:     session,
		feed:        feed,
		identity:    identity,
		userRepo:    userRepo,
		profileRepo: profileRepo,
		publisher:   publisher,
	}
}

// registerApproved registers a viewer and walks it through external
// approval, returning the uid.
func (fx *feedFixture) registerApproved(t *testing.T) string {
	t.Helper()

	state, err := fx.session.Register(context.Background(), registerInput())
	require.NoError(t, err)
	uid := state.User.ID

	approved := *state.User
	approved.Status = entity.StatusApproved
	approved.Username = "user123"
	fx.userRepo.pushUser(uid, &approved)

	return uid
}

func profileCard(id string) *entity.Profile {
	return &entity.Profile{
		ID:           id,
		Name:         "Sam",
		Age:          30,
		City:         "Austin",
		GreenFlags:   7,
		RedFlags:     3,
		CommentCount: 2,
		Moderation:   entity.ModerationApproved,
	}
}

func TestFeedService_ActivatesOnApproval(t *testing.T) {
	fx := newFeedFixture(t)

	state, err := fx.session.Register(context.Background(), registerInput())
	require.NoError(t, err)
	uid := state.User.ID

	// Pending viewers have no feed
	_, err = fx.feed.Profiles(context.Background(), uid)
	assert.ErrorIs(t, err, domainerrors.ErrFeedNotActive)
	assert.Empty(t, fx.profileRepo.profileWatchers)

	approved := *state.User
	approved.Status = entity.StatusApproved
	approved.Username = "user123"
	fx.userRepo.pushUser(uid, &approved)

	// Approval attached the top-level subscription
	assert.Len(t, fx.profileRepo.profileWatchers, 1)

	profiles, err := fx.feed.Profiles(context.Background(), uid)
	require.NoError(t, err)
	assert.Empty(t, profiles)
}

func TestFeedService_MergedViewFallbackChain(t *testing.T) {
	fx := newFeedFixture(t)
	uid := fx.registerApproved(t)

	fx.profileRepo.pushProfiles([]*entity.Profile{profileCard("p1")})

	// Before any nested snapshot: denormalized counters
	view, err := fx.feed.Profiles(context.Background(), uid)
	require.NoError(t, err)
	require.Len(t, view, 1)
	assert.Equal(t, 7, view[0].GreenFlags)
	assert.Equal(t, 3, view[0].RedFlags)
	assert.Equal(t, 2, view[0].CommentCount)
	assert.Empty(t, view[0].ViewerVote)

	// Live snapshots take precedence once they arrive
	fx.profileRepo.pushVotes("p1", []*entity.Vote{
		{VoterID: "other-1", Kind: entity.VoteGreen},
		{VoterID: uid, Kind: entity.VoteRed},
	})
	fx.profileRepo.pushComments("p1", []*entity.Comment{
		{ID: "c1", Text: "hello"},
	})

	view, err = fx.feed.Profiles(context.Background(), uid)
	require.NoError(t, err)
	require.Len(t, view, 1)
	assert.Equal(t, 1, view[0].GreenFlags)
	assert.Equal(t, 1, view[0].RedFlags)
	assert.Equal(t, entity.VoteRed, view[0].ViewerVote)
	assert.Equal(t, 1, view[0].CommentCount)
	require.Len(t, view[0].Comments, 1)
	assert.Equal(t, "hello", view[0].Comments[0].Text)
}

func TestFeedService_VoteTallyDerivation(t *testing.T) {
	fx := newFeedFixture(t)
	uid := fx.registerApproved(t)

	fx.profileRepo.pushProfiles([]*entity.Profile{profileCard("p1")})

	tests := []struct {
		name       string
		votes      []*entity.Vote
		green, red int
		viewerVote entity.VoteKind
	}{
		{"empty", nil, 0, 0, ""},
		{"others only", []*entity.Vote{
			{VoterID: "a", Kind: entity.VoteGreen},
			{VoterID: "b", Kind: entity.VoteGreen},
			{VoterID: "c", Kind: entity.VoteRed},
		}, 2, 1, ""},
		{"viewer included", []*entity.Vote{
			{VoterID: "a", Kind: entity.VoteRed},
			{VoterID: uid, Kind: entity.VoteGreen},
		}, 1, 1, entity.VoteGreen},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fx.profileRepo.pushVotes("p1", tt.votes)

			view, err := fx.feed.Profiles(context.Background(), uid)
			require.NoError(t, err)
			require.Len(t, view, 1)
			assert.Equal(t, tt.green, view[0].GreenFlags)
			assert.Equal(t, tt.red, view[0].RedFlags)
			assert.Equal(t, tt.viewerVote, view[0].ViewerVote)
		})
	}
}

func TestFeedService_SameKindRevoteWritesOnce(t *testing.T) {
	fx := newFeedFixture(t)
	uid := fx.registerApproved(t)
	fx.profileRepo.pushProfiles([]*entity.Profile{profileCard("p1")})

	require.NoError(t, fx.feed.Vote(context.Background(), uid, "p1", entity.VoteGreen))
	require.NoError(t, fx.feed.Vote(context.Background(), uid, "p1", entity.VoteGreen))

	assert.Equal(t, 1, fx.profileRepo.voteWrites)
}

func TestFeedService_VoteChangeUpsertsSingleDocument(t *testing.T) {
	fx := newFeedFixture(t)
	uid := fx.registerApproved(t)
	fx.profileRepo.pushProfiles([]*entity.Profile{profileCard("p1")})

	require.NoError(t, fx.feed.Vote(context.Background(), uid, "p1", entity.VoteGreen))
	require.NoError(t, fx.feed.Vote(context.Background(), uid, "p1", entity.VoteRed))

	assert.Equal(t, 2, fx.profileRepo.voteWrites)
	require.Len(t, fx.profileRepo.votes["p1"], 1)
	assert.Equal(t, entity.VoteRed, fx.profileRepo.votes["p1"][uid].Kind)

	// The vote events reached the pipeline
	require.Len(t, fx.publisher.events, 2)
	assert.Equal(t, "green", fx.publisher.events[0].VoteKind)
	assert.Equal(t, "red", fx.publisher.events[1].VoteKind)
}

func TestFeedService_VoteRollsBackOnRemoteFailure(t *testing.T) {
	fx := newFeedFixture(t)
	uid := fx.registerApproved(t)
	fx.profileRepo.pushProfiles([]*entity.Profile{profileCard("p1")})

	fx.profileRepo.mu.Lock()
	fx.profileRepo.voteErr = domainerrors.ErrStoreWrite
	fx.profileRepo.mu.Unlock()

	err := fx.feed.Vote(context.Background(), uid, "p1", entity.VoteGreen)
	assert.ErrorIs(t, err, domainerrors.ErrStoreWrite)

	// The debounce cache was rolled back, so a retry writes again
	fx.profileRepo.mu.Lock()
	fx.profileRepo.voteErr = nil
	fx.profileRepo.mu.Unlock()

	require.NoError(t, fx.feed.Vote(context.Background(), uid, "p1", entity.VoteGreen))
	assert.Equal(t, 1, fx.profileRepo.voteWrites)
}

func TestFeedService_TeardownLateSnapshotIsNoOp(t *testing.T) {
	fx := newFeedFixture(t)
	uid := fx.registerApproved(t)
	fx.profileRepo.pushProfiles([]*entity.Profile{profileCard("p1")})

	// External reviewer rejects: the feed must tear down
	rejected := &entity.User{ID: uid, Status: entity.StatusRejected}
	fx.userRepo.pushUser(uid, rejected)

	assert.Equal(t, 1, fx.profileRepo.releasedAll)
	assert.Equal(t, 2, fx.profileRepo.releasedNested)

	// A late snapshot for the previously tracked profile changes nothing
	fx.profileRepo.pushProfiles([]*entity.Profile{profileCard("p1"), profileCard("p2")})
	fx.profileRepo.pushVotes("p1", []*entity.Vote{{VoterID: uid, Kind: entity.VoteGreen}})

	_, err := fx.feed.Profiles(context.Background(), uid)
	assert.ErrorIs(t, err, domainerrors.ErrFeedNotActive)
}

func TestFeedService_ReconcilesNestedSubscriptions(t *testing.T) {
	fx := newFeedFixture(t)
	uid := fx.registerApproved(t)

	fx.profileRepo.pushProfiles([]*entity.Profile{profileCard("p1"), profileCard("p2")})
	fx.profileRepo.pushVotes("p2", []*entity.Vote{{VoterID: uid, Kind: entity.VoteGreen}})

	// p2 leaves the snapshot: its comment and vote watches are released
	fx.profileRepo.pushProfiles([]*entity.Profile{profileCard("p1")})
	assert.Equal(t, 2, fx.profileRepo.releasedNested)

	view, err := fx.feed.Profiles(context.Background(), uid)
	require.NoError(t, err)
	require.Len(t, view, 1)
	assert.Equal(t, "p1", view[0].Profile.ID)
}

func TestFeedService_CommentOrderingNewestFirst(t *testing.T) {
	fx := newFeedFixture(t)
	uid := fx.registerApproved(t)
	fx.profileRepo.pushProfiles([]*entity.Profile{profileCard("p1")})

	t1 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	t2 := t1.Add(time.Hour)
	t3 := t2.Add(time.Hour)

	// The store delivers newest-first; the merge must preserve it
	fx.profileRepo.pushComments("p1", []*entity.Comment{
		{ID: "c3", CreatedAt: t3},
		{ID: "c2", CreatedAt: t2},
		{ID: "c1", CreatedAt: t1},
	})

	view, err := fx.feed.Profiles(context.Background(), uid)
	require.NoError(t, err)
	require.Len(t, view[0].Comments, 3)
	assert.Equal(t, "c3", view[0].Comments[0].ID)
	assert.Equal(t, "c2", view[0].Comments[1].ID)
	assert.Equal(t, "c1", view[0].Comments[2].ID)
}

func TestFeedService_AddProfileShowsImmediately(t *testing.T) {
	fx := newFeedFixture(t)
	uid := fx.registerApproved(t)
	fx.profileRepo.pushProfiles(nil)

	id, err := fx.feed.AddProfile(context.Background(), uid, usecase.AddProfileInput{
		Name: "Sam", Age: 30, City: "Austin",
	})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	view, err := fx.feed.Profiles(context.Background(), uid)
	require.NoError(t, err)
	require.Len(t, view, 1)
	assert.Equal(t, id, view[0].Profile.ID)
	assert.Equal(t, 0, view[0].GreenFlags)
	assert.Equal(t, 0, view[0].RedFlags)
	assert.Equal(t, 0, view[0].CommentCount)
	assert.Equal(t, "user123", view[0].Profile.OwnerUsername)
	assert.Equal(t, entity.ModerationApproved, view[0].Profile.Moderation)

	require.Len(t, fx.publisher.events, 1)
	assert.Equal(t, "profile.created", fx.publisher.events[0].Event)
	assert.Equal(t, id, fx.publisher.events[0].ProfileID)
}

func TestFeedService_AddCommentThenSnapshot(t *testing.T) {
	fx := newFeedFixture(t)
	uid := fx.registerApproved(t)
	fx.profileRepo.pushProfiles([]*entity.Profile{profileCard("p1")})

	require.NoError(t, fx.feed.AddComment(context.Background(), uid, "p1", "nice"))

	require.Len(t, fx.profileRepo.comments["p1"], 1)
	written := fx.profileRepo.comments["p1"][0]
	assert.Equal(t, "nice", written.Text)
	assert.Equal(t, "user123", written.Author)
	assert.Equal(t, uid, written.AuthorID)
	// The stored record leaves the timestamp to the store; a client
	// clock value would suppress the server stamp.
	assert.True(t, written.CreatedAt.IsZero())

	fx.profileRepo.pushComments("p1", []*entity.Comment{written})

	view, err := fx.feed.Profiles(context.Background(), uid)
	require.NoError(t, err)
	assert.Equal(t, 1, view[0].CommentCount)
	require.Len(t, view[0].Comments, 1)
	assert.Equal(t, "nice", view[0].Comments[0].Text)
}

func TestFeedService_AddCommentBeforeSnapshotBumpsCount(t *testing.T) {
	fx := newFeedFixture(t)
	uid := fx.registerApproved(t)
	fx.profileRepo.pushProfiles([]*entity.Profile{profileCard("p1")})

	// No comment snapshot yet: the denormalized counter (2) is still
	// the fallback, and the write must be visible on top of it.
	require.NoError(t, fx.feed.AddComment(context.Background(), uid, "p1", "nice"))

	view, err := fx.feed.Profiles(context.Background(), uid)
	require.NoError(t, err)
	assert.Equal(t, 3, view[0].CommentCount)
	assert.Empty(t, view[0].Comments)

	// The first snapshot supersedes the bump.
	written := fx.profileRepo.comments["p1"][0]
	fx.profileRepo.pushComments("p1", []*entity.Comment{written})

	view, err = fx.feed.Profiles(context.Background(), uid)
	require.NoError(t, err)
	assert.Equal(t, 1, view[0].CommentCount)
	require.Len(t, view[0].Comments, 1)
}

func TestFeedService_AddCommentBeforeSnapshotRollsBackBump(t *testing.T) {
	fx := newFeedFixture(t)
	uid := fx.registerApproved(t)
	fx.profileRepo.pushProfiles([]*entity.Profile{profileCard("p1")})

	fx.profileRepo.commentErr = errors.New("store unavailable")
	require.Error(t, fx.feed.AddComment(context.Background(), uid, "p1", "nice"))

	view, err := fx.feed.Profiles(context.Background(), uid)
	require.NoError(t, err)
	assert.Equal(t, 2, view[0].CommentCount)
}

func TestFeedService_Refresh(t *testing.T) {
	fx := newFeedFixture(t)
	uid := fx.registerApproved(t)

	start := time.Now()
	require.NoError(t, fx.feed.Refresh(context.Background(), uid))
	assert.GreaterOrEqual(t, time.Since(start), time.Millisecond)

	// A cancelled context aborts the settle wait
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, fx.feed.Refresh(ctx, uid), context.Canceled)
}

package impl

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"flagfeed/config"
	deliverycontext "flagfeed/internal/delivery/context"
	"flagfeed/internal/domain/entity"
	domainerrors "flagfeed/internal/domain/errors"
	"flagfeed/internal/domain/repository"
	"flagfeed/internal/domain/service"
	"flagfeed/internal/usecase"

	"go.uber.org/fx"
)

const defaultRefreshSettleDelay = 600 * time.Millisecond

// voteTally is the derived view of one profile's vote sub-collection.
type voteTally struct {
	green      int
	red        int
	viewerVote entity.VoteKind
}

// feedInstance is the live feed state for one approved viewer: the
// top-level profile subscription plus per-profile nested comment/vote
// subscriptions and their caches. Snapshot callbacks for the profiles
// list, each comment sub-collection and each vote sub-collection arrive
// in any order; the merge in snapshotLocked is commutative with respect
// to that order.
type feedInstance struct {
	svc      *feedService
	viewerID string

	mu     sync.Mutex
	closed bool

	unsubProfiles repository.Unsubscribe
	profiles      []*entity.Profile

	// Presence of a key means that sub-collection has delivered at
	// least one snapshot; until then the merge falls back to the
	// denormalized counters on the profile document.
	comments     map[string][]*entity.Comment
	votes        map[string]voteTally
	commentUnsub map[string]repository.Unsubscribe
	voteUnsub    map[string]repository.Unsubscribe

	// commentBumps counts the viewer's own comments written before the
	// first comment snapshot for a profile, so the fallback count stays
	// optimistic in that window. Cleared once a snapshot arrives.
	commentBumps map[string]int

	// localVotes is the viewer's last-known vote per profile. It is a
	// debounce hint and a pre-snapshot display fallback only; the
	// store's upsert-by-voter-id is the correctness backstop.
	localVotes map[string]entity.VoteKind
}

// feedService implements the FeedUsecase interface with one feed
// instance per approved viewer.
type feedService struct {
	profileRepo repository.ProfileRepository
	session     usecase.SessionUsecase
	publisher   service.EventPublisher
	logger      *slog.Logger
	watchCtx    context.Context
	settleDelay time.Duration

	mu    sync.Mutex
	feeds map[string]*feedInstance
}

// FeedServiceParams holds dependencies for FeedService, injected by Fx.
type FeedServiceParams struct {
	fx.In

	Ctx         context.Context
	ProfileRepo repository.ProfileRepository
	Session     usecase.SessionUsecase
	Publisher   service.EventPublisher
	Config      *config.Config
	Logger      *slog.Logger
}

// NewFeedService creates a new feed service instance and registers it as
// a session status observer so approval transitions activate and
// deactivate feeds.
func NewFeedService(params FeedServiceParams) usecase.FeedUsecase {
	settleDelay := defaultRefreshSettleDelay
	if params.Config.Feed != nil && params.Config.Feed.RefreshSettleDelay > 0 {
		settleDelay = params.Config.Feed.RefreshSettleDelay
	}

	srv := &feedService{
		profileRepo: params.ProfileRepo,
		session:     params.Session,
		publisher:   params.Publisher,
		logger:      params.Logger,
		watchCtx:    params.Ctx,
		settleDelay: settleDelay,
		feeds:       make(map[string]*feedInstance),
	}
	params.Session.RegisterStatusObserver(srv.onStatusChange)

	return srv
}

// log returns a request-scoped logger if available, otherwise falls back to the service's logger.
func (srv *feedService) log(ctx context.Context) *slog.Logger {
	return deliverycontext.GetLoggerOrDefault(ctx, srv.logger)
}

// onStatusChange is the session status observer: gaining approval
// activates the viewer's feed, losing it tears the feed down.
func (srv *feedService) onStatusChange(uid string, user *entity.User) {
	if user.IsApproved() {
		srv.activate(uid)

		return
	}
	srv.deactivate(uid)
}

// instance returns the viewer's active feed, lazily activating one when
// the session reports the viewer approved (e.g. after a restart).
func (srv *feedService) instance(ctx context.Context, viewerID string) (*feedInstance, error) {
	srv.mu.Lock()
	inst, ok := srv.feeds[viewerID]
	srv.mu.Unlock()
	if ok {
		return inst, nil
	}

	user, err := srv.session.Current(ctx, viewerID)
	if err != nil {
		return nil, err
	}
	if !user.IsApproved() {
		return nil, domainerrors.ErrFeedNotActive
	}

	return srv.activate(viewerID), nil
}

func (srv *feedService) activate(viewerID string) *feedInstance {
	srv.mu.Lock()
	if inst, ok := srv.feeds[viewerID]; ok {
		srv.mu.Unlock()

		return inst
	}

	inst := &feedInstance{
		svc:          srv,
		viewerID:     viewerID,
		comments:     make(map[string][]*entity.Comment),
		votes:        make(map[string]voteTally),
		commentUnsub: make(map[string]repository.Unsubscribe),
		voteUnsub:    make(map[string]repository.Unsubscribe),
		commentBumps: make(map[string]int),
		localVotes:   make(map[string]entity.VoteKind),
	}
	srv.feeds[viewerID] = inst
	srv.mu.Unlock()

	srv.logger.Info("Feed activated", slog.String("viewer_id", viewerID))

	unsub := srv.profileRepo.WatchAll(srv.watchCtx, inst.onProfiles)
	inst.mu.Lock()
	if inst.closed {
		// Deactivated while the watch was attaching.
		inst.mu.Unlock()
		unsub()

		return inst
	}
	inst.unsubProfiles = unsub
	inst.mu.Unlock()

	return inst
}

func (srv *feedService) deactivate(viewerID string) {
	srv.mu.Lock()
	inst, ok := srv.feeds[viewerID]
	if ok {
		delete(srv.feeds, viewerID)
	}
	srv.mu.Unlock()

	if ok {
		inst.close()
		srv.logger.Info("Feed deactivated", slog.String("viewer_id", viewerID))
	}
}

func (srv *feedService) Profiles(ctx context.Context, viewerID string) ([]*usecase.FeedProfile, error) {
	inst, err := srv.instance(ctx, viewerID)
	if err != nil {
		return nil, err
	}

	return inst.snapshot(), nil
}

func (srv *feedService) Refresh(ctx context.Context, viewerID string) error {
	if _, err := srv.instance(ctx, viewerID); err != nil {
		return err
	}

	// Nothing to re-fetch; the subscriptions are already live. The
	// settle delay preserves the pull-to-refresh feel.
	timer := time.NewTimer(srv.settleDelay)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (srv *feedService) AddProfile(ctx context.Context, viewerID string, input usecase.AddProfileInput) (string, error) {
	inst, err := srv.instance(ctx, viewerID)
	if err != nil {
		return "", err
	}

	user, err := srv.session.Current(ctx, viewerID)
	if err != nil {
		return "", err
	}

	profile := &entity.Profile{
		Name:          input.Name,
		Age:           input.Age,
		City:          input.City,
		Description:   input.Description,
		ImageURL:      input.ImageURL,
		OwnerID:       viewerID,
		OwnerUsername: displayName(user),
		CreatorGender: user.Gender,
		// No moderation gate on this path; counters start at zero.
		Moderation: entity.ModerationApproved,
	}

	profileID, err := srv.profileRepo.Create(ctx, profile)
	if err != nil {
		return "", domainerrors.ErrStoreWrite.WrapMessage(err.Error())
	}
	profile.ID = profileID
	profile.CreatedAt = time.Now()

	// Show the new card immediately; the live snapshot will confirm it.
	inst.insertProfile(profile)

	srv.publish(ctx, &service.FeedEvent{
		Event:     service.EventProfileCreated,
		ProfileID: profileID,
		ActorID:   viewerID,
	})

	return profileID, nil
}

func (srv *feedService) AddComment(ctx context.Context, viewerID, profileID, text string) error {
	inst, err := srv.instance(ctx, viewerID)
	if err != nil {
		return err
	}

	if strings.TrimSpace(text) == "" {
		return domainerrors.ErrValidationFailed.WithDetails("comment text is required")
	}

	user, err := srv.session.Current(ctx, viewerID)
	if err != nil {
		return err
	}

	record := &entity.Comment{
		AuthorID: viewerID,
		Author:   displayName(user),
		Text:     text,
	}

	// The stored record keeps CreatedAt zero so the store stamps it at
	// write time; a client clock value would suppress the stamp and
	// leave the document outside the createdAt ordering. Only the
	// optimistic local copy carries the client clock.
	local := *record
	local.CreatedAt = time.Now()

	undo := inst.prependComment(profileID, &local)

	if _, err := srv.profileRepo.AddComment(ctx, profileID, record); err != nil {
		undo()
		srv.log(ctx).Error("Comment write failed, rolled back local state",
			slog.String("profile_id", profileID), slog.Any("error", err))

		return domainerrors.ErrStoreWrite.WrapMessage(err.Error())
	}

	return nil
}

func (srv *feedService) Vote(ctx context.Context, viewerID, profileID string, kind entity.VoteKind) error {
	if !kind.IsValid() {
		return domainerrors.ErrValidationFailed.WithDetails("vote kind must be green or red")
	}

	inst, err := srv.instance(ctx, viewerID)
	if err != nil {
		return err
	}

	// Same-kind debounce against the locally cached last-known vote.
	// Stale-cache races are harmless: the vote document is keyed by the
	// viewer id, so the write below upserts either way.
	applied, undo := inst.applyVote(profileID, kind)
	if !applied {
		return nil
	}

	user, err := srv.session.Current(ctx, viewerID)
	if err != nil {
		undo()

		return err
	}

	vote := &entity.Vote{
		VoterID:   viewerID,
		VoterName: displayName(user),
		Kind:      kind,
	}
	if err := srv.profileRepo.SetVote(ctx, profileID, vote); err != nil {
		undo()
		srv.log(ctx).Error("Vote write failed, rolled back local state",
			slog.String("profile_id", profileID), slog.Any("error", err))

		return domainerrors.ErrStoreWrite.WrapMessage(err.Error())
	}

	srv.publish(ctx, &service.FeedEvent{
		Event:     service.EventVoteCast,
		ProfileID: profileID,
		ActorID:   viewerID,
		VoteKind:  kind.String(),
	})

	return nil
}

// publish sends a feed event to the analytics/moderation pipeline.
// Publishing is best effort and never fails the user operation.
func (srv *feedService) publish(ctx context.Context, event *service.FeedEvent) {
	event.RequestID = deliverycontext.GetRequestIDFromContext(ctx)
	if err := srv.publisher.PublishFeedEvent(ctx, event); err != nil {
		srv.log(ctx).Warn("Failed to publish feed event",
			slog.String("event", event.Event), slog.Any("error", err))
	}
}

// onProfiles folds a top-level profiles snapshot into the instance and
// reconciles the nested subscriptions: released for ids that left the
// snapshot, attached for ids new to it.
func (inst *feedInstance) onProfiles(profiles []*entity.Profile, err error) {
	inst.mu.Lock()
	if inst.closed {
		inst.mu.Unlock()

		return
	}

	if err != nil {
		// Degrade to an empty view; the subscription itself retries.
		inst.svc.logger.Warn("Profiles subscription degraded",
			slog.String("viewer_id", inst.viewerID), slog.Any("error", err))
		inst.profiles = nil
		inst.mu.Unlock()

		return
	}

	present := make(map[string]struct{}, len(profiles))
	for _, profile := range profiles {
		present[profile.ID] = struct{}{}
	}

	var released []repository.Unsubscribe
	for id, unsub := range inst.commentUnsub {
		if _, ok := present[id]; !ok {
			released = append(released, unsub)
			delete(inst.commentUnsub, id)
			delete(inst.comments, id)
		}
	}
	for id, unsub := range inst.voteUnsub {
		if _, ok := present[id]; !ok {
			released = append(released, unsub)
			delete(inst.voteUnsub, id)
			delete(inst.votes, id)
			delete(inst.localVotes, id)
		}
	}

	var added []string
	for _, profile := range profiles {
		if _, ok := inst.commentUnsub[profile.ID]; !ok {
			added = append(added, profile.ID)
			// Reserve the slots so a second snapshot arriving before
			// the watches attach below does not double-subscribe.
			inst.commentUnsub[profile.ID] = func() {}
			inst.voteUnsub[profile.ID] = func() {}
		}
	}

	inst.profiles = profiles
	inst.mu.Unlock()

	for _, unsub := range released {
		unsub()
	}
	for _, id := range added {
		inst.attachNested(id)
	}
}

// attachNested subscribes to one profile's comment and vote
// sub-collections and stores the release handles.
func (inst *feedInstance) attachNested(profileID string) {
	svc := inst.svc
	commentUnsub := svc.profileRepo.WatchComments(svc.watchCtx, profileID, func(comments []*entity.Comment, err error) {
		inst.onComments(profileID, comments, err)
	})
	voteUnsub := svc.profileRepo.WatchVotes(svc.watchCtx, profileID, func(votes []*entity.Vote, err error) {
		inst.onVotes(profileID, votes, err)
	})

	inst.mu.Lock()
	if inst.closed {
		// Torn down while attaching; release immediately.
		inst.mu.Unlock()
		commentUnsub()
		voteUnsub()

		return
	}
	inst.commentUnsub[profileID] = commentUnsub
	inst.voteUnsub[profileID] = voteUnsub
	inst.mu.Unlock()
}

func (inst *feedInstance) onComments(profileID string, comments []*entity.Comment, err error) {
	inst.mu.Lock()
	defer inst.mu.Unlock()

	if inst.closed {
		return
	}
	if err != nil {
		inst.svc.logger.Warn("Comments subscription degraded",
			slog.String("profile_id", profileID), slog.Any("error", err))
		delete(inst.comments, profileID)

		return
	}

	// The snapshot is the store's authoritative view; any optimistic
	// pre-snapshot bump is superseded by it.
	delete(inst.commentBumps, profileID)
	inst.comments[profileID] = comments
}

func (inst *feedInstance) onVotes(profileID string, votes []*entity.Vote, err error) {
	inst.mu.Lock()
	defer inst.mu.Unlock()

	if inst.closed {
		return
	}
	if err != nil {
		inst.svc.logger.Warn("Votes subscription degraded",
			slog.String("profile_id", profileID), slog.Any("error", err))
		delete(inst.votes, profileID)

		return
	}

	tally := voteTally{}
	for _, vote := range votes {
		switch vote.Kind {
		case entity.VoteGreen:
			tally.green++
		case entity.VoteRed:
			tally.red++
		}
		if vote.VoterID == inst.viewerID {
			tally.viewerVote = vote.Kind
		}
	}
	inst.votes[profileID] = tally

	// Sync the debounce hint with the store's view.
	if tally.viewerVote != "" {
		inst.localVotes[profileID] = tally.viewerVote
	} else {
		delete(inst.localVotes, profileID)
	}
}

// snapshot produces the merged externally visible view: base profile
// fields, then the live comment cache (denormalized count until the
// first snapshot), then the live vote cache (denormalized counters and
// the optimistic local vote until the first snapshot).
func (inst *feedInstance) snapshot() []*usecase.FeedProfile {
	inst.mu.Lock()
	defer inst.mu.Unlock()

	merged := make([]*usecase.FeedProfile, 0, len(inst.profiles))
	for _, profile := range inst.profiles {
		view := &usecase.FeedProfile{
			Profile:      profile,
			GreenFlags:   profile.GreenFlags,
			RedFlags:     profile.RedFlags,
			CommentCount: profile.CommentCount + inst.commentBumps[profile.ID],
			ViewerVote:   inst.localVotes[profile.ID],
		}

		if comments, ok := inst.comments[profile.ID]; ok {
			view.Comments = comments
			view.CommentCount = len(comments)
		}
		if tally, ok := inst.votes[profile.ID]; ok {
			view.GreenFlags = tally.green
			view.RedFlags = tally.red
			view.ViewerVote = tally.viewerVote
		}

		merged = append(merged, view)
	}

	return merged
}

// insertProfile prepends a freshly created card so the creator sees it
// before the next top-level snapshot arrives.
func (inst *feedInstance) insertProfile(profile *entity.Profile) {
	inst.mu.Lock()
	defer inst.mu.Unlock()

	if inst.closed {
		return
	}
	for _, existing := range inst.profiles {
		if existing.ID == profile.ID {
			return
		}
	}
	inst.profiles = append([]*entity.Profile{profile}, inst.profiles...)
}

// prependComment applies the optimistic comment (or, before the first
// snapshot, bumps the fallback count) and returns the undo for rollback
// on remote failure.
func (inst *feedInstance) prependComment(profileID string, comment *entity.Comment) func() {
	inst.mu.Lock()
	defer inst.mu.Unlock()

	if inst.closed {
		return func() {}
	}

	cached, hadSnapshot := inst.comments[profileID]
	if !hadSnapshot {
		// No snapshot yet, so the comment body cannot be merged; bump
		// the fallback count instead so the write is visible in the
		// pre-snapshot window. The body shows up with the first
		// snapshot.
		inst.commentBumps[profileID]++

		return func() {
			inst.mu.Lock()
			defer inst.mu.Unlock()
			if inst.commentBumps[profileID] > 0 {
				inst.commentBumps[profileID]--
			}
		}
	}

	inst.comments[profileID] = append([]*entity.Comment{comment}, cached...)

	return func() {
		inst.mu.Lock()
		defer inst.mu.Unlock()
		if current, ok := inst.comments[profileID]; ok && len(current) > 0 && current[0] == comment {
			inst.comments[profileID] = current[1:]
		}
	}
}

// applyVote updates the local vote hint. It reports false when the
// requested kind matches the cached kind (debounce) and otherwise
// returns the undo for rollback on remote failure.
func (inst *feedInstance) applyVote(profileID string, kind entity.VoteKind) (bool, func()) {
	inst.mu.Lock()
	defer inst.mu.Unlock()

	if inst.closed {
		return false, nil
	}

	prev, hadPrev := inst.localVotes[profileID]
	if hadPrev && prev == kind {
		return false, nil
	}

	inst.localVotes[profileID] = kind

	return true, func() {
		inst.mu.Lock()
		defer inst.mu.Unlock()
		if hadPrev {
			inst.localVotes[profileID] = prev
		} else {
			delete(inst.localVotes, profileID)
		}
	}
}

// close synchronously releases every subscription handle the instance
// tracks. Late callbacks after close are no-ops via the closed flag.
func (inst *feedInstance) close() {
	inst.mu.Lock()
	inst.closed = true
	released := make([]repository.Unsubscribe, 0, 1+len(inst.commentUnsub)+len(inst.voteUnsub))
	if inst.unsubProfiles != nil {
		released = append(released, inst.unsubProfiles)
	}
	for _, unsub := range inst.commentUnsub {
		released = append(released, unsub)
	}
	for _, unsub := range inst.voteUnsub {
		released = append(released, unsub)
	}
	inst.profiles = nil
	inst.comments = make(map[string][]*entity.Comment)
	inst.votes = make(map[string]voteTally)
	inst.commentUnsub = make(map[string]repository.Unsubscribe)
	inst.voteUnsub = make(map[string]repository.Unsubscribe)
	inst.localVotes = make(map[string]entity.VoteKind)
	inst.mu.Unlock()

	for _, unsub := range released {
		unsub()
	}
}

// displayName picks the comment/vote author name: the assigned username,
// then the profile name, then a synthesized id-prefix name.
func displayName(user *entity.User) string {
	if user.Username != "" {
		return user.Username
	}
	if user.Name != "" {
		return user.Name
	}
	if len(user.ID) >= 6 {
		return "user-" + user.ID[:6]
	}

	return "anonymous"
}

package impl

import (
	"context"
	"fmt"
	"sync"

	"flagfeed/internal/domain/entity"
	"flagfeed/internal/domain/repository"
	"flagfeed/internal/domain/service"
)

// The fakes below push snapshots explicitly from tests, standing in for
// the store's live subscriptions.

type fakeUserRepo struct {
	mu       sync.Mutex
	users    map[string]*entity.User
	patches  []repository.UserPatch
	watchers map[string][]repository.UserSnapshotFunc
	released map[string]int
	setErr   error
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{
		users:    make(map[string]*entity.User),
		watchers: make(map[string][]repository.UserSnapshotFunc),
		released: make(map[string]int),
	}
}

func (f *fakeUserRepo) Get(_ context.Context, uid string) (*entity.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	user, ok := f.users[uid]
	if !ok {
		return nil, repository.ErrUserDocNotFound
	}
	clone := *user

	return &clone, nil
}

func (f *fakeUserRepo) Set(_ context.Context, uid string, patch repository.UserPatch) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.setErr != nil {
		return f.setErr
	}
	f.patches = append(f.patches, patch)

	user, ok := f.users[uid]
	if !ok {
		user = &entity.User{ID: uid}
		f.users[uid] = user
	}
	applyUserPatch(user, patch)

	return nil
}

func applyUserPatch(user *entity.User, patch repository.UserPatch) {
	for key, value := range patch {
		str, _ := value.(string)
		switch key {
		case "name":
			user.Name = str
		case "email":
			user.Email = str
		case "phone":
			user.Phone = str
		case "location":
			user.Location = str
		case "selfieUrl":
			user.SelfieURL = str
		case "status":
			user.Status = entity.UserStatus(str)
		case "username":
			user.Username = str
		case "gender":
			user.Gender = entity.Gender(str)
		case "authMethod":
			user.AuthMethod = entity.AuthMethod(str)
		case "googleAuthProvider":
			flag, _ := value.(bool)
			user.GoogleAuth = flag
		}
	}
}

func (f *fakeUserRepo) Watch(_ context.Context, uid string, fn repository.UserSnapshotFunc) repository.Unsubscribe {
	f.mu.Lock()
	f.watchers[uid] = append(f.watchers[uid], fn)
	f.mu.Unlock()

	return func() {
		f.mu.Lock()
		f.released[uid]++
		f.mu.Unlock()
	}
}

func (f *fakeUserRepo) Delete(_ context.Context, uid string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.users, uid)

	return nil
}

// pushUser delivers a user-document snapshot to every registered watcher.
func (f *fakeUserRepo) pushUser(uid string, user *entity.User) {
	f.mu.Lock()
	watchers := append([]repository.UserSnapshotFunc(nil), f.watchers[uid]...)
	f.mu.Unlock()

	for _, fn := range watchers {
		fn(user, nil)
	}
}

type fakeProfileRepo struct {
	mu              sync.Mutex
	nextID          int
	created         []*entity.Profile
	comments        map[string][]*entity.Comment
	votes           map[string]map[string]*entity.Vote
	voteWrites      int
	commentErr      error
	voteErr         error
	deleteErr       error
	deletedOwners   []string
	profileWatchers []repository.ProfilesSnapshotFunc
	commentWatchers map[string][]repository.CommentsSnapshotFunc
	voteWatchers    map[string][]repository.VotesSnapshotFunc
	releasedAll     int
	releasedNested  int
}

func newFakeProfileRepo() *fakeProfileRepo {
	return &fakeProfileRepo{
		comments:        make(map[string][]*entity.Comment),
		votes:           make(map[string]map[string]*entity.Vote),
		commentWatchers: make(map[string][]repository.CommentsSnapshotFunc),
		voteWatchers:    make(map[string][]repository.VotesSnapshotFunc),
	}
}

func (f *fakeProfileRepo) Create(_ context.Context, profile *entity.Profile) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.nextID++
	id := fmt.Sprintf("profile-%d", f.nextID)
	clone := *profile
	clone.ID = id
	f.created = append(f.created, &clone)

	return id, nil
}

func (f *fakeProfileRepo) WatchAll(_ context.Context, fn repository.ProfilesSnapshotFunc) repository.Unsubscribe {
	f.mu.Lock()
	f.profileWatchers = append(f.profileWatchers, fn)
	f.mu.Unlock()

	return func() {
		f.mu.Lock()
		f.releasedAll++
		f.mu.Unlock()
	}
}

func (f *fakeProfileRepo) WatchByCreatorGender(_ context.Context, _ entity.Gender, fn repository.ProfilesSnapshotFunc) repository.Unsubscribe {
	return f.WatchAll(context.Background(), fn)
}

func (f *fakeProfileRepo) WatchComments(_ context.Context, profileID string, fn repository.CommentsSnapshotFunc) repository.Unsubscribe {
	f.mu.Lock()
	f.commentWatchers[profileID] = append(f.commentWatchers[profileID], fn)
	f.mu.Unlock()

	return func() {
		f.mu.Lock()
		f.releasedNested++
		f.mu.Unlock()
	}
}

func (f *fakeProfileRepo) WatchVotes(_ context.Context, profileID string, fn repository.VotesSnapshotFunc) repository.Unsubscribe {
	f.mu.Lock()
	f.voteWatchers[profileID] = append(f.voteWatchers[profileID], fn)
	f.mu.Unlock()

	return func() {
		f.mu.Lock()
		f.releasedNested++
		f.mu.Unlock()
	}
}

func (f *fakeProfileRepo) AddComment(_ context.Context, profileID string, comment *entity.Comment) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.commentErr != nil {
		return "", f.commentErr
	}
	clone := *comment
	clone.ID = fmt.Sprintf("comment-%d", len(f.comments[profileID])+1)
	f.comments[profileID] = append(f.comments[profileID], &clone)

	return clone.ID, nil
}

func (f *fakeProfileRepo) SetVote(_ context.Context, profileID string, vote *entity.Vote) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.voteErr != nil {
		return f.voteErr
	}
	f.voteWrites++
	if f.votes[profileID] == nil {
		f.votes[profileID] = make(map[string]*entity.Vote)
	}
	clone := *vote
	f.votes[profileID][vote.VoterID] = &clone

	return nil
}

func (f *fakeProfileRepo) DeleteByOwner(_ context.Context, ownerID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.deleteErr != nil {
		return f.deleteErr
	}
	f.deletedOwners = append(f.deletedOwners, ownerID)

	return nil
}

func (f *fakeProfileRepo) pushProfiles(profiles []*entity.Profile) {
	f.mu.Lock()
	watchers := append([]repository.ProfilesSnapshotFunc(nil), f.profileWatchers...)
	f.mu.Unlock()

	for _, fn := range watchers {
		fn(profiles, nil)
	}
}

func (f *fakeProfileRepo) pushComments(profileID string, comments []*entity.Comment) {
	f.mu.Lock()
	watchers := append([]repository.CommentsSnapshotFunc(nil), f.commentWatchers[profileID]...)
	f.mu.Unlock()

	for _, fn := range watchers {
		fn(comments, nil)
	}
}

func (f *fakeProfileRepo) pushVotes(profileID string, votes []*entity.Vote) {
	f.mu.Lock()
	watchers := append([]repository.VotesSnapshotFunc(nil), f.voteWatchers[profileID]...)
	f.mu.Unlock()

	for _, fn := range watchers {
		fn(votes, nil)
	}
}

type fakeIdentity struct {
	mu       sync.Mutex
	nextUID  int
	accounts map[string]string // email -> uid
	signOuts []string
	deleted  []string
}

func newFakeIdentity() *fakeIdentity {
	return &fakeIdentity{accounts: make(map[string]string)}
}

func (f *fakeIdentity) SignUp(_ context.Context, email, _ string) (*service.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.nextUID++
	uid := fmt.Sprintf("uid-%d", f.nextUID)
	f.accounts[email] = uid

	return &service.Account{UID: uid, Email: email, IDToken: "token-" + uid}, nil
}

func (f *fakeIdentity) SignIn(_ context.Context, email, _ string) (*service.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	uid, ok := f.accounts[email]
	if !ok {
		return nil, fmt.Errorf("no account for %s", email)
	}

	return &service.Account{UID: uid, Email: email, IDToken: "token-" + uid}, nil
}

func (f *fakeIdentity) SignInWithIDToken(_ context.Context, idToken string) (*service.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	email := idToken + "@google.example"
	uid, ok := f.accounts[email]
	if !ok {
		f.nextUID++
		uid = fmt.Sprintf("uid-%d", f.nextUID)
		f.accounts[email] = uid
	}

	return &service.Account{
		UID:           uid,
		Email:         email,
		DisplayName:   "Google User",
		IDToken:       "token-" + uid,
		EmailVerified: true,
	}, nil
}

func (f *fakeIdentity) VerifyToken(_ context.Context, _ string) (string, error) {
	return "", nil
}

func (f *fakeIdentity) UpdateDisplayName(_ context.Context, _, _ string) error {
	return nil
}

func (f *fakeIdentity) SignOut(_ context.Context, uid string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.signOuts = append(f.signOuts, uid)

	return nil
}

func (f *fakeIdentity) DeleteAccount(_ context.Context, uid string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, uid)

	return nil
}

type fakePublisher struct {
	mu     sync.Mutex
	events []*service.FeedEvent
}

func (f *fakePublisher) PublishFeedEvent(_ context.Context, event *service.FeedEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, event)

	return nil
}

func (f *fakePublisher) Close() error {
	return nil
}

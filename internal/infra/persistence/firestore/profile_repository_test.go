package firestore

import (
	"context"
	"log/slog"
	"net"
	"testing"
	"time"

	"flagfeed/internal/domain/entity"

	"cloud.google.com/go/firestore"
	"cloud.google.com/go/firestore/apiv1/firestorepb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/timestamppb"
)

// captureServer is an in-process document store backend that records
// every Commit request so tests can assert on the wire-level writes the
// client actually produces from our entity tags.
type captureServer struct {
	firestorepb.UnimplementedFirestoreServer

	commits []*firestorepb.CommitRequest
}

func (s *captureServer) Commit(_ context.Context, req *firestorepb.CommitRequest) (*firestorepb.CommitResponse, error) {
	s.commits = append(s.commits, req)

	now := timestamppb.Now()
	results := make([]*firestorepb.WriteResult, len(req.GetWrites()))
	for i := range results {
		results[i] = &firestorepb.WriteResult{UpdateTime: now}
	}

	return &firestorepb.CommitResponse{WriteResults: results, CommitTime: now}, nil
}

func newCaptureRepo(t *testing.T) (*profileRepository, *captureServer) {
	t.Helper()

	lis, err := net.Listen("tcp", "localhost:0")
	require.NoError(t, err)

	backend := &captureServer{}
	grpcServer := grpc.NewServer()
	firestorepb.RegisterFirestoreServer(grpcServer, backend)
	go grpcServer.Serve(lis)
	t.Cleanup(grpcServer.Stop)

	conn, err := grpc.NewClient(lis.Addr().String(), grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)

	client, err := firestore.NewClient(context.Background(), "test-project", option.WithGRPCConn(conn))
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	repo := &profileRepository{
		client: client,
		logger: slog.New(slog.DiscardHandler),
	}

	return repo, backend
}

func singleWrite(t *testing.T, backend *captureServer) *firestorepb.Write {
	t.Helper()

	require.Len(t, backend.commits, 1)
	writes := backend.commits[0].GetWrites()
	require.Len(t, writes, 1)

	return writes[0]
}

func TestAddComment_StoreStampsCreatedAt(t *testing.T) {
	repo, backend := newCaptureRepo(t)

	// A caller-populated CreatedAt must not reach the document: the
	// client drops non-zero values for serverTimestamp-tagged fields,
	// which would leave the comment outside the createdAt ordering.
	comment := &entity.Comment{
		AuthorID:  "uid-1",
		Author:    "user123",
		Text:      "seems nice",
		CreatedAt: time.Now(),
	}

	id, err := repo.AddComment(context.Background(), "p1", comment)
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	write := singleWrite(t, backend)
	fields := write.GetUpdate().GetFields()
	assert.Contains(t, fields, "text")
	assert.Contains(t, fields, "userId")
	assert.Contains(t, fields, "username")
	assert.NotContains(t, fields, "createdAt")

	transforms := write.GetUpdateTransforms()
	require.Len(t, transforms, 1)
	assert.Equal(t, "createdAt", transforms[0].GetFieldPath())
	assert.Equal(t, firestorepb.DocumentTransform_FieldTransform_REQUEST_TIME, transforms[0].GetSetToServerValue())

	// The caller's struct stays untouched for local optimistic use.
	assert.False(t, comment.CreatedAt.IsZero())
}

func TestSetVote_StoreStampsBothTimestamps(t *testing.T) {
	repo, backend := newCaptureRepo(t)

	vote := &entity.Vote{
		VoterID:   "uid-1",
		VoterName: "user123",
		Kind:      entity.VoteGreen,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}

	require.NoError(t, repo.SetVote(context.Background(), "p1", vote))

	write := singleWrite(t, backend)
	fields := write.GetUpdate().GetFields()
	assert.Contains(t, fields, "userId")
	assert.Contains(t, fields, "username")
	assert.Contains(t, fields, "type")
	assert.NotContains(t, fields, "createdAt")
	assert.NotContains(t, fields, "updatedAt")

	transforms := write.GetUpdateTransforms()
	stamped := make([]string, 0, len(transforms))
	for _, tr := range transforms {
		assert.Equal(t, firestorepb.DocumentTransform_FieldTransform_REQUEST_TIME, tr.GetSetToServerValue())
		stamped = append(stamped, tr.GetFieldPath())
	}
	assert.ElementsMatch(t, []string{"createdAt", "updatedAt"}, stamped)
}

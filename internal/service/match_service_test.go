package service_test

import (
	"context"
	"sync"
	"testing"

	"github.com/Baaaki/deepmatch-realtime/internal/models"
	"github.com/Baaaki/deepmatch-realtime/internal/repository"
	"github.com/Baaaki/deepmatch-realtime/internal/service"
	"github.com/Baaaki/deepmatch-realtime/internal/testutil"
	"github.com/Baaaki/deepmatch-realtime/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

// recordingEvents captures listener callbacks
type recordingEvents struct {
	mu     sync.Mutex
	opened []uint
	closed []uint
	banned []uint
}

func (r *recordingEvents) ConversationOpened(conv *models.Conversation) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.opened = append(r.opened, conv.ID)
}

func (r *recordingEvents) ConversationClosed(conv *models.Conversation) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = append(r.closed, conv.ID)
}

func (r *recordingEvents) UserBanned(userID uint) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.banned = append(r.banned, userID)
}

type MatchServiceTestSuite struct {
	suite.Suite
	testDB *testutil.TestDatabase
	events *recordingEvents
	match  *service.MatchService
	chat   *service.ChatService
	ctx    context.Context
}

func (s *MatchServiceTestSuite) SetupSuite() {
	logger.Init(false)
	s.testDB = testutil.SetupTestDatabase(s.T())
	s.ctx = context.Background()
}

func (s *MatchServiceTestSuite) TearDownSuite() {
	s.testDB.Teardown(s.T())
}

func (s *MatchServiceTestSuite) SetupTest() {
	testutil.CleanDatabase(s.T(), s.testDB.DB)

	db := s.testDB.DB
	s.events = &recordingEvents{}
	s.match = service.NewMatchService(
		db,
		repository.NewConversationRepository(db),
		repository.NewBlockRepository(db),
		repository.NewUserRepository(db),
		repository.NewNotificationRepository(db),
	)
	s.match.SetEvents(s.events)
	s.chat = newChatService(s.testDB, nil)
}

func (s *MatchServiceTestSuite) TestCreateMatch_CanonicalAndIdempotent() {
	conv, created, err := s.match.CreateMatch(s.ctx, bob, alice)
	require.NoError(s.T(), err)
	assert.True(s.T(), created)
	assert.Equal(s.T(), alice, conv.User1ID)
	assert.Equal(s.T(), bob, conv.User2ID)
	assert.True(s.T(), conv.IsActive)

	again, created, err := s.match.CreateMatch(s.ctx, alice, bob)
	require.NoError(s.T(), err)
	assert.False(s.T(), created)
	assert.Equal(s.T(), conv.ID, again.ID)

	assert.Equal(s.T(), []uint{conv.ID}, s.events.opened)

	for _, user := range []uint{alice, bob} {
		notifications, err := s.match.Notifications(s.ctx, user)
		require.NoError(s.T(), err)
		require.Len(s.T(), notifications, 1)
		assert.Equal(s.T(), models.NotificationMatch, notifications[0].Type)
	}
}

func (s *MatchServiceTestSuite) TestCreateMatch_Rejections() {
	_, _, err := s.match.CreateMatch(s.ctx, alice, alice)
	assert.ErrorIs(s.T(), err, service.ErrValidation)

	_, _, err = s.match.CreateMatch(s.ctx, alice, 0)
	assert.ErrorIs(s.T(), err, service.ErrValidation)

	_, err = s.match.Block(s.ctx, carol, alice)
	require.NoError(s.T(), err)
	_, _, err = s.match.CreateMatch(s.ctx, alice, carol)
	assert.ErrorIs(s.T(), err, service.ErrForbidden)
}

func (s *MatchServiceTestSuite) TestBlock_DeactivatesAndStopsMessaging() {
	conv, _, err := s.match.CreateMatch(s.ctx, alice, bob)
	require.NoError(s.T(), err)

	_, err = s.chat.SendMessage(s.ctx, bob, service.SendInput{ReceiverID: alice, Content: "hey"})
	require.NoError(s.T(), err)

	already, err := s.match.Block(s.ctx, alice, bob)
	require.NoError(s.T(), err)
	assert.False(s.T(), already)
	assert.Equal(s.T(), []uint{conv.ID}, s.events.closed)

	var stored models.Conversation
	require.NoError(s.T(), s.testDB.DB.First(&stored, conv.ID).Error)
	assert.False(s.T(), stored.IsActive)
	assert.NotNil(s.T(), stored.DeactivatedAt)

	_, err = s.chat.SendMessage(s.ctx, bob, service.SendInput{ReceiverID: alice, Content: "why?"})
	assert.ErrorIs(s.T(), err, service.ErrForbidden)

	already, err = s.match.Block(s.ctx, alice, bob)
	require.NoError(s.T(), err)
	assert.True(s.T(), already)
	assert.Len(s.T(), s.events.closed, 1)
}

func (s *MatchServiceTestSuite) TestUnblock_KeepsConversationInactive() {
	conv, _, err := s.match.CreateMatch(s.ctx, alice, bob)
	require.NoError(s.T(), err)
	_, err = s.match.Block(s.ctx, alice, bob)
	require.NoError(s.T(), err)

	require.NoError(s.T(), s.match.Unblock(s.ctx, alice, bob))
	assert.ErrorIs(s.T(), s.match.Unblock(s.ctx, alice, bob), service.ErrNotFound)

	_, err = s.chat.SendMessage(s.ctx, bob, service.SendInput{ReceiverID: alice, Content: "hi again"})
	assert.ErrorIs(s.T(), err, service.ErrNotMatched)

	again, created, err := s.match.CreateMatch(s.ctx, alice, bob)
	require.NoError(s.T(), err)
	assert.False(s.T(), created)
	assert.Equal(s.T(), conv.ID, again.ID)
	assert.False(s.T(), again.IsActive)
}

func (s *MatchServiceTestSuite) TestBan_DeactivatesEverything() {
	first, _, err := s.match.CreateMatch(s.ctx, alice, bob)
	require.NoError(s.T(), err)
	second, _, err := s.match.CreateMatch(s.ctx, alice, carol)
	require.NoError(s.T(), err)

	require.NoError(s.T(), s.match.Ban(s.ctx, alice, "spam"))

	banned, err := s.match.IsBanned(s.ctx, alice)
	require.NoError(s.T(), err)
	assert.True(s.T(), banned)
	assert.ElementsMatch(s.T(), []uint{first.ID, second.ID}, s.events.closed)
	assert.Equal(s.T(), []uint{alice}, s.events.banned)

	active, err := s.chat.ActiveConversations(s.ctx, alice)
	require.NoError(s.T(), err)
	assert.Empty(s.T(), active)

	var user models.User
	require.NoError(s.T(), s.testDB.DB.First(&user, alice).Error)
	assert.Equal(s.T(), "spam", user.BanReason)
	assert.NotNil(s.T(), user.BannedAt)

	require.NoError(s.T(), s.match.Unban(s.ctx, alice))
	banned, err = s.match.IsBanned(s.ctx, alice)
	require.NoError(s.T(), err)
	assert.False(s.T(), banned)

	require.NoError(s.T(), s.testDB.DB.First(&user, alice).Error)
	assert.Empty(s.T(), user.BanReason)
	assert.Nil(s.T(), user.BannedAt)
}

func (s *MatchServiceTestSuite) TestIsBanned_UnknownUser() {
	banned, err := s.match.IsBanned(s.ctx, 404)
	require.NoError(s.T(), err)
	assert.False(s.T(), banned)
}

func TestMatchServiceTestSuite(t *testing.T) {
	suite.Run(t, new(MatchServiceTestSuite))
}

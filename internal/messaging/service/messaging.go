package service

import (
	"context"
	"errors"
	"sync"

	messagingerrors "hirewheel/internal/messaging/errors"
	"hirewheel/internal/messaging/hub"
	"hirewheel/internal/messaging/repository"
	"hirewheel/pkg/config"
	apperrors "hirewheel/pkg/errors"
	"hirewheel/pkg/middleware"
	"hirewheel/pkg/model"
	"hirewheel/pkg/sanitizer"
)

const EventTypeMessage = "message"

type MessagingService interface {
	CreateOrGetConversation(ctx context.Context, caller middleware.Caller, otherUserID string) (*model.Conversation, error)
	ListConversations(ctx context.Context, caller middleware.Caller, limit int, offset int64) ([]*model.Conversation, int64, error)
	AuthorizeParticipant(ctx context.Context, caller middleware.Caller, conversationID string) (*model.Conversation, error)
	SendMessage(ctx context.Context, caller middleware.Caller, conversationID string, body string) (*model.Message, error)
	ListMessages(ctx context.Context, caller middleware.Caller, conversationID string, limit int, offset int64) ([]*model.Message, error)
}

type messagingService struct {
	conversations repository.ConversationRepository
	messages      repository.MessageRepository
	hub           *hub.Hub
	cfg           *config.Config
}

func NewMessagingService(
	conversations repository.ConversationRepository,
	messages repository.MessageRepository,
	deliveryHub *hub.Hub,
	cfg *config.Config,
) MessagingService {
	return &messagingService{
		conversations: conversations,
		messages:      messages,
		hub:           deliveryHub,
		cfg:           cfg,
	}
}

func (s *messagingService) CreateOrGetConversation(ctx context.Context, caller middleware.Caller, otherUserID string) (*model.Conversation, error) {
	if otherUserID == "" {
		return nil, apperrors.InvalidInput("Other user ID cannot be empty")
	}
	if otherUserID == caller.UserID {
		return nil, apperrors.InvalidInput("Cannot open a conversation with yourself")
	}

	conversation, err := s.conversations.GetOrCreate(ctx, caller.UserID, otherUserID)
	if err != nil {
		s.cfg.Log.Error("Failed to get or create conversation",
			"caller_id", caller.UserID,
			"other_user_id", otherUserID,
			"error", err,
		)
		return nil, apperrors.Internal("Failed to open conversation", err)
	}

	return conversation, nil
}

func (s *messagingService) ListConversations(ctx context.Context, caller middleware.Caller, limit int, offset int64) ([]*model.Conversation, int64, error) {
	var count int64
	var conversations []*model.Conversation
	var errCount, errFind error
	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		count, errCount = s.conversations.CountByParticipant(ctx, caller.UserID)
		if errCount != nil {
			s.cfg.Log.Error("Failed to count conversations", "error", errCount)
			errCount = apperrors.Internal("Failed to count conversations", errCount)
		}
	}()

	go func() {
		defer wg.Done()
		conversations, errFind = s.conversations.FindByParticipant(ctx, caller.UserID, limit, offset)
		if errFind != nil {
			s.cfg.Log.Error("Failed to list conversations", "error", errFind)
			errFind = apperrors.Internal("Failed to retrieve conversations", errFind)
		}
	}()

	wg.Wait()
	if errCount != nil {
		return nil, 0, errCount
	}
	if errFind != nil {
		return nil, 0, errFind
	}

	return conversations, count, nil
}

// AuthorizeParticipant resolves the conversation and verifies the caller is
// one of its two parties. Non-participants get not-found rather than
// forbidden so conversation existence does not leak.
func (s *messagingService) AuthorizeParticipant(ctx context.Context, caller middleware.Caller, conversationID string) (*model.Conversation, error) {
	if conversationID == "" {
		return nil, apperrors.InvalidInput("Conversation ID cannot be empty")
	}

	conversation, err := s.conversations.FindByID(ctx, conversationID)
	if err != nil {
		if errors.Is(err, messagingerrors.ErrConversationNotFound) {
			return nil, apperrors.NotFoundWithID("Conversation", conversationID)
		}
		if errors.Is(err, messagingerrors.ErrInvalidID) {
			return nil, apperrors.InvalidInput("Invalid conversation ID format")
		}
		return nil, apperrors.Internal("Failed to retrieve conversation", err)
	}

	if caller.Role != middleware.RoleAdmin && !conversation.HasParticipant(caller.UserID) {
		return nil, apperrors.NotFoundWithID("Conversation", conversationID)
	}

	return conversation, nil
}

func (s *messagingService) SendMessage(ctx context.Context, caller middleware.Caller, conversationID string, body string) (*model.Message, error) {
	conversation, err := s.AuthorizeParticipant(ctx, caller, conversationID)
	if err != nil {
		return nil, err
	}
	if !conversation.HasParticipant(caller.UserID) {
		return nil, apperrors.Forbidden("Only participants can send messages")
	}

	body = sanitizer.NormalizeMessageBody(body)
	if body == "" {
		return nil, apperrors.InvalidInput("Message body cannot be empty")
	}

	message := &model.Message{
		ConversationID: conversation.ID,
		SenderID:       caller.UserID,
		RecipientID:    conversation.OtherParticipant(caller.UserID),
		Body:           body,
	}

	if err := s.messages.Create(ctx, message); err != nil {
		s.cfg.Log.Error("Failed to create message", "conversation_id", conversation.ID, "error", err)
		return nil, apperrors.Internal("Failed to send message", err)
	}

	// Summary fields are display-only; a failed refresh never fails the send.
	if err := s.conversations.UpdateSummary(ctx, conversation.ID, message.Body, message.CreatedAt); err != nil {
		s.cfg.Log.Warn("Failed to update conversation summary",
			"conversation_id", conversation.ID,
			"error", err,
		)
	}

	s.hub.Publish(hub.Event{
		Type:           EventTypeMessage,
		ConversationID: conversation.ID,
		MessageID:      message.ID,
	})

	s.cfg.Log.Info("Message sent",
		"conversation_id", conversation.ID,
		"message_id", message.ID,
		"sender_id", message.SenderID,
	)
	return message, nil
}

func (s *messagingService) ListMessages(ctx context.Context, caller middleware.Caller, conversationID string, limit int, offset int64) ([]*model.Message, error) {
	if _, err := s.AuthorizeParticipant(ctx, caller, conversationID); err != nil {
		return nil, err
	}

	messages, err := s.messages.FindByConversation(ctx, conversationID, limit, offset)
	if err != nil {
		s.cfg.Log.Error("Failed to list messages", "conversation_id", conversationID, "error", err)
		return nil, apperrors.Internal("Failed to retrieve messages", err)
	}

	return messages, nil
}

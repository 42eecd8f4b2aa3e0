package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"studko/internal/models"
	"studko/internal/ratelimit"
	"studko/pkg/logger"
)

const (
	maxMessageRunes  = 4000
	maxMaterialRunes = 12000
	titleRunes       = 60
)

var (
	ErrInvalidInput  = errors.New("invalid input")
	ErrForbidden     = errors.New("conversation belongs to another user")
	ErrQuotaExceeded = errors.New("daily AI limit reached")
)

// QuotaError reports when the free quota resets.
type QuotaError struct {
	RetryAfter time.Duration
}

func (e *QuotaError) Error() string {
	return ErrQuotaExceeded.Error()
}

func (e *QuotaError) Is(target error) bool {
	return target == ErrQuotaExceeded
}

type Store interface {
	GetProfile(ctx context.Context, userID uuid.UUID) (*models.Profile, error)
	CreateConversation(ctx context.Context, c *models.Conversation) error
	GetConversation(ctx context.Context, id uuid.UUID) (*models.Conversation, error)
	ListConversations(ctx context.Context, userID uuid.UUID) ([]models.Conversation, error)
	InsertMessage(ctx context.Context, m *models.Message) error
	RecentMessages(ctx context.Context, conversationID uuid.UUID, limit int) ([]models.Message, error)
	SaveFlashcardSet(ctx context.Context, set *models.FlashcardSet) error
	SaveQuizResult(ctx context.Context, r *models.QuizResult) error
}

type Completer interface {
	StreamChat(ctx context.Context, history []models.Message, onDelta func(string) error) (string, error)
	GenerateFlashcards(ctx context.Context, subject, text string, count int) ([]models.Flashcard, error)
	GenerateQuiz(ctx context.Context, subject, text string, count int) ([]models.QuizQuestion, error)
}

type Quota interface {
	Enabled() bool
	Consume(ctx context.Context, userID uuid.UUID) (ratelimit.Decision, error)
	Refund(ctx context.Context, userID uuid.UUID) error
}

// Sink receives a streamed answer. Nothing is written to the client before
// Start, so errors returned earlier can still become plain HTTP errors.
type Sink interface {
	Start(conversationID uuid.UUID) error
	Delta(content string) error
	Fail(message string) error
	Done() error
}

type Service struct {
	store        Store
	completer    Completer
	quota        Quota
	historyLimit int
	logger       *logger.Logger
}

func NewService(store Store, completer Completer, quota Quota, historyLimit int, l *logger.Logger) *Service {
	if historyLimit <= 0 {
		historyLimit = 20
	}
	return &Service{store: store, completer: completer, quota: quota, historyLimit: historyLimit, logger: l}
}

// Stream relays one user message to the model and streams the answer into
// sink. conversationID may be uuid.Nil to start a new conversation.
func (s *Service) Stream(ctx context.Context, userID, conversationID uuid.UUID, message string, sink Sink) error {
	message = strings.TrimSpace(message)
	if message == "" {
		return fmt.Errorf("%w: message is empty", ErrInvalidInput)
	}
	if len([]rune(message)) > maxMessageRunes {
		return fmt.Errorf("%w: message is too long", ErrInvalidInput)
	}

	// Check ownership before charging the quota
	conv, err := s.ownConversation(ctx, userID, conversationID)
	if err != nil {
		return err
	}

	charged, err := s.consume(ctx, userID)
	if err != nil {
		return err
	}

	// Start a new conversation titled after the first message
	if conv == nil {
		conv = &models.Conversation{UserID: userID, Title: Title(message)}
		if err := s.store.CreateConversation(ctx, conv); err != nil {
			s.refund(ctx, userID, charged)
			return err
		}
	}

	if err := s.store.InsertMessage(ctx, &models.Message{ConversationID: conv.ID, Role: models.RoleUser, Content: message}); err != nil {
		s.refund(ctx, userID, charged)
		return fmt.Errorf("failed to store message: %w", err)
	}
	history, err := s.store.RecentMessages(ctx, conv.ID, s.historyLimit)
	if err != nil {
		s.refund(ctx, userID, charged)
		return err
	}

	if err := sink.Start(conv.ID); err != nil {
		s.refund(ctx, userID, charged)
		return err
	}

	answer, streamErr := s.completer.StreamChat(ctx, history, sink.Delta)
	if strings.TrimSpace(answer) != "" {
		// Partial answers are stored too.
		if err := s.store.InsertMessage(ctx, &models.Message{ConversationID: conv.ID, Role: models.RoleAssistant, Content: answer}); err != nil {
			s.logger.Errorw("Failed to store assistant message", "error", err, "conversationID", conv.ID)
		}
	}
	if streamErr != nil {
		s.logger.Errorw("AI stream failed", "error", streamErr, "conversationID", conv.ID, "userID", userID)
		// The use is kept once the user has seen part of the answer
		if strings.TrimSpace(answer) == "" {
			s.refund(ctx, userID, charged)
		}
		_ = sink.Fail("AI odpoveď sa nepodarilo dokončiť. Skús to znova.")
		return streamErr
	}

	return sink.Done()
}

func (s *Service) Conversations(ctx context.Context, userID uuid.UUID) ([]models.Conversation, error) {
	return s.store.ListConversations(ctx, userID)
}

func (s *Service) Messages(ctx context.Context, userID, conversationID uuid.UUID) ([]models.Message, error) {
	conv, err := s.store.GetConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if conv.UserID != userID {
		return nil, ErrForbidden
	}
	return s.store.RecentMessages(ctx, conv.ID, 500)
}

func (s *Service) Flashcards(ctx context.Context, userID uuid.UUID, subject, text string, count int) (*models.FlashcardSet, error) {
	subject, text, err := validMaterial(subject, text)
	if err != nil {
		return nil, err
	}
	count = clamp(count, 10, 1, 30)

	charged, err := s.consume(ctx, userID)
	if err != nil {
		return nil, err
	}

	cards, err := s.completer.GenerateFlashcards(ctx, subject, text, count)
	if err != nil {
		s.refund(ctx, userID, charged)
		return nil, err
	}

	set := &models.FlashcardSet{UserID: userID, Subject: subject, Cards: cards}
	if err := s.store.SaveFlashcardSet(ctx, set); err != nil {
		return nil, err
	}
	return set, nil
}

func (s *Service) Quiz(ctx context.Context, userID uuid.UUID, subject, text string, count int) ([]models.QuizQuestion, error) {
	subject, text, err := validMaterial(subject, text)
	if err != nil {
		return nil, err
	}
	count = clamp(count, 5, 1, 20)

	charged, err := s.consume(ctx, userID)
	if err != nil {
		return nil, err
	}

	questions, err := s.completer.GenerateQuiz(ctx, subject, text, count)
	if err != nil {
		s.refund(ctx, userID, charged)
		return nil, err
	}
	return questions, nil
}

func (s *Service) SaveQuizResult(ctx context.Context, userID uuid.UUID, subject string, score, total int) (*models.QuizResult, error) {
	if total <= 0 || score < 0 || score > total {
		return nil, fmt.Errorf("%w: score must be between 0 and total", ErrInvalidInput)
	}
	r := &models.QuizResult{UserID: userID, Subject: strings.TrimSpace(subject), Score: score, Total: total}
	if err := s.store.SaveQuizResult(ctx, r); err != nil {
		return nil, err
	}
	return r, nil
}

// consume charges one AI use to non-Pro users and reports whether it did. A
// limiter outage lets the request through.
func (s *Service) consume(ctx context.Context, userID uuid.UUID) (bool, error) {
	if s.quota == nil || !s.quota.Enabled() {
		return false, nil
	}
	profile, err := s.store.GetProfile(ctx, userID)
	if err != nil {
		return false, err
	}
	if profile.IsPro {
		return false, nil
	}

	decision, err := s.quota.Consume(ctx, userID)
	if err != nil {
		s.logger.Warnw("AI quota check failed", "error", err, "userID", userID)
		return false, nil
	}
	if !decision.Allowed {
		return false, &QuotaError{RetryAfter: decision.RetryAfter}
	}
	return true, nil
}

// refund gives back a use charged for a request that produced nothing.
func (s *Service) refund(ctx context.Context, userID uuid.UUID, charged bool) {
	if !charged {
		return
	}
	if err := s.quota.Refund(ctx, userID); err != nil {
		s.logger.Warnw("AI quota refund failed", "error", err, "userID", userID)
	}
}

// ownConversation loads a conversation of userID. uuid.Nil yields nil for a
// new conversation.
func (s *Service) ownConversation(ctx context.Context, userID, conversationID uuid.UUID) (*models.Conversation, error) {
	if conversationID == uuid.Nil {
		return nil, nil
	}

	conv, err := s.store.GetConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if conv.UserID != userID {
		return nil, ErrForbidden
	}
	return conv, nil
}

package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"

	"github.com/spec-kit/support-workflow/internal/clock"
	"github.com/spec-kit/support-workflow/internal/domain"
	"github.com/spec-kit/support-workflow/internal/events"
	"github.com/spec-kit/support-workflow/internal/notify"
	"github.com/spec-kit/support-workflow/internal/observability"
)

const defaultDeliveryTimeout = 2 * time.Second

// Notification delivery outcomes.
const (
	OutcomeSent    = "sent"
	OutcomeFailed  = "failed"
	OutcomeDropped = "dropped"
)

// NotificationService translates domain events into outbound messages.
type NotificationService struct {
	dispatcher  events.Dispatcher
	sender      notify.Sender
	logger      *zap.Logger
	metrics     *observability.Metrics
	clock       clock.Clock
	maxAttempts int
	backoff     time.Duration
	deadline    time.Duration
}

// NotificationDependencies bundles collaborators for the notification service.
type NotificationDependencies struct {
	Dispatcher      events.Dispatcher
	Sender          notify.Sender
	Logger          *zap.Logger
	Metrics         *observability.Metrics
	Clock           clock.Clock
	MaxAttempts     int
	Backoff         time.Duration
	// DeliveryTimeout caps the time spent on one message, retries included.
	DeliveryTimeout time.Duration
}

// NewNotificationService creates the service.
func NewNotificationService(deps NotificationDependencies) *NotificationService {
	n := &NotificationService{
		dispatcher:  deps.Dispatcher,
		sender:      deps.Sender,
		logger:      deps.Logger,
		metrics:     deps.Metrics,
		clock:       deps.Clock,
		maxAttempts: deps.MaxAttempts,
		backoff:     deps.Backoff,
		deadline:    deps.DeliveryTimeout,
	}
	if n.logger == nil {
		n.logger = zap.NewNop()
	}
	if n.clock == nil {
		n.clock = clock.Real()
	}
	if n.maxAttempts < 1 {
		n.maxAttempts = 1
	}
	if n.deadline <= 0 {
		n.deadline = defaultDeliveryTimeout
	}
	if n.sender == nil {
		n.sender = notify.NewLogSender(n.logger)
	}
	return n
}

// RegisterHandlers subscribes to events.
func (n *NotificationService) RegisterHandlers() {
	if n.dispatcher == nil {
		return
	}
	for _, eventType := range []events.EventType{
		events.EventTicketCreated,
		events.EventTicketStatusChanged,
		events.EventTicketAssigned,
		events.EventTicketResponseAdded,
		events.EventInvitationIssued,
		events.EventInvitationRedeemed,
	} {
		n.dispatcher.Subscribe(eventType, n.handle)
	}
}

func (n *NotificationService) handle(ctx context.Context, event events.Event) error {
	n.Dispatch(ctx, event)
	return nil
}

// Dispatch delivers every message the event calls for. Failures are logged
// and counted, never returned. Delivery ignores the caller's cancellation but
// each message gets at most DeliveryTimeout, retries included.
func (n *NotificationService) Dispatch(ctx context.Context, event events.Event) {
	messages := n.messagesFor(event)
	if len(messages) == 0 {
		n.logger.Debug("no notification for event",
			zap.String("event_type", string(event.Type)),
			zap.String("subject_id", event.SubjectID))
		return
	}
	detached := context.WithoutCancel(ctx)
	for _, msg := range messages {
		deliverCtx, cancel := context.WithTimeout(detached, n.deadline)
		n.deliver(deliverCtx, event, msg)
		cancel()
	}
}

func (n *NotificationService) deliver(ctx context.Context, event events.Event, msg notify.Message) {
	var (
		err      error
		attempts int
	)
	for attempt := 1; attempt <= n.maxAttempts; attempt++ {
		attempts = attempt
		err = n.sender.Send(ctx, msg)
		if err == nil {
			n.metrics.RecordNotification(msg.Template, OutcomeSent)
			return
		}
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			n.metrics.RecordNotification(msg.Template, OutcomeDropped)
			n.logger.Warn("notification dropped, delivery circuit open",
				zap.String("event_type", string(event.Type)),
				zap.String("template", msg.Template),
				zap.String("recipient", msg.Recipient),
				zap.Error(err))
			return
		}
		if attempt == n.maxAttempts {
			break
		}
		if waitErr := wait(ctx, n.backoff*time.Duration(attempt)); waitErr != nil {
			err = errors.Join(err, waitErr)
			break
		}
	}
	n.metrics.RecordNotification(msg.Template, OutcomeFailed)
	n.logger.Warn("notification delivery failed",
		zap.String("event_type", string(event.Type)),
		zap.String("template", msg.Template),
		zap.String("recipient", msg.Recipient),
		zap.Int("attempts", attempts),
		zap.Error(err))
}

// wait sleeps for d unless ctx ends first.
func wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (n *NotificationService) messagesFor(event events.Event) []notify.Message {
	switch payload := event.Payload.(type) {
	case events.TicketCreatedPayload:
		return n.one(notify.ChannelEmail, notify.TemplateTicketCreated, payload.RequesterEmail, map[string]any{
			"ticket_id":      event.SubjectID,
			"number":         payload.Number,
			"title":          payload.Title,
			"requester_name": payload.RequesterName,
		})
	case events.TicketStatusChangedPayload:
		return n.one(notify.ChannelEmail, notify.TemplateTicketStatusChanged, payload.RequesterEmail, map[string]any{
			"ticket_id":      event.SubjectID,
			"number":         payload.Number,
			"title":          payload.Title,
			"requester_name": payload.RequesterName,
			"old_status_id":  payload.OldStatusID,
			"new_status_id":  payload.NewStatusID,
			"status_name":    payload.NewStatusName,
			"is_closed":      payload.IsClosed,
		})
	case events.TicketAssignedPayload:
		return n.one(notify.ChannelInbox, notify.TemplateTicketAssigned, payload.NewAssigneeID, map[string]any{
			"ticket_id": event.SubjectID,
			"number":    payload.Number,
			"title":     payload.Title,
		})
	case events.TicketResponseAddedPayload:
		return n.responseMessages(event, payload)
	case events.InvitationIssuedPayload:
		data := map[string]any{
			"invitation_id": payload.InvitationID,
			"token":         payload.Token,
			"company_id":    payload.CompanyID,
			"company_name":  payload.CompanyName,
			"inviter_name":  payload.InviterName,
			"role_id":       payload.RoleID,
			"expires_at":    payload.ExpiresAt,
		}
		if payload.Message != "" {
			data["message"] = payload.Message
		}
		return n.one(notify.ChannelEmail, notify.TemplateInvitationIssued, payload.Email, data)
	case events.InvitationRedeemedPayload:
		return n.one(notify.ChannelEmail, notify.TemplateInvitationWelcome, payload.Email, map[string]any{
			"user_id":      payload.UserID,
			"name":         payload.Name,
			"company_id":   payload.CompanyID,
			"company_name": payload.CompanyName,
		})
	default:
		return nil
	}
}

// responseMessages applies the reply policy: internal notes stay internal,
// agent replies go to the requester, requester replies go to the assignee.
func (n *NotificationService) responseMessages(event events.Event, payload events.TicketResponseAddedPayload) []notify.Message {
	if payload.IsInternalNote {
		return nil
	}
	data := map[string]any{
		"ticket_id":   event.SubjectID,
		"number":      payload.Number,
		"title":       payload.Title,
		"response_id": payload.ResponseID,
		"preview":     payload.MessagePreview,
	}
	switch payload.AuthorType {
	case domain.AuthorTypeAgent:
		data["requester_name"] = payload.RequesterName
		return n.one(notify.ChannelEmail, notify.TemplateTicketReply, payload.RequesterEmail, data)
	case domain.AuthorTypeRequester:
		if payload.AssigneeID == nil || *payload.AssigneeID == "" {
			return nil
		}
		return n.one(notify.ChannelInbox, notify.TemplateTicketRequesterReply, *payload.AssigneeID, data)
	default:
		return nil
	}
}

func (n *NotificationService) one(channel notify.Channel, template, recipient string, data map[string]any) []notify.Message {
	if recipient == "" {
		return nil
	}
	return []notify.Message{{
		ID:        uuid.NewString(),
		Channel:   channel,
		Template:  template,
		Recipient: recipient,
		Data:      data,
		CreatedAt: n.clock.Now(),
	}}
}

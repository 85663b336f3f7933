package realtime

import (
	"context"
	"errors"
	"strconv"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/huangang/teamspace/internal/models"
	"github.com/huangang/teamspace/internal/services"
	"github.com/huangang/teamspace/pkg/logger"
)

// Messages sent to the invoking connection as chatError.
const (
	errMsgMalformed      = "Malformed event"
	errMsgNotMember      = "You are not a member of this project"
	errMsgNoChat         = "You do not have permission to chat in this project"
	errMsgMembership     = "Unable to verify project membership"
	errMsgImpersonation  = "You can only act as yourself"
	errMsgEmptyMessage   = "Message cannot be empty"
	errMsgEmptyEmoji     = "Emoji cannot be empty"
	errMsgMessageMissing = "Message not found"
	errMsgInvalidProject = "Invalid project id"
	errMsgTooFast        = "You are sending messages too fast"
)

type Membership interface {
	CapabilitiesOf(ctx context.Context, projectID, userID uint) (*services.Capabilities, error)
	Roster(ctx context.Context, projectID uint) ([]services.RosterEntry, error)
}

type MessageLog interface {
	Append(ctx context.Context, projectID, senderID uint, content string) (*models.Message, error)
	GetByID(ctx context.Context, id uint) (*models.Message, error)
}

type Reactions interface {
	Toggle(ctx context.Context, messageID, userID uint, emoji string) (services.ToggleResult, error)
	Aggregate(ctx context.Context, messageID uint) ([]services.ReactionSummary, error)
}

type Users interface {
	FindByID(ctx context.Context, id uint) (*models.User, error)
}

type Projects interface {
	GetByID(ctx context.Context, id uint) (*models.Project, error)
}

type Notifier interface {
	NotifyProjectMembers(ctx context.Context, projectID, senderID uint, text string) (int, error)
	NotifyMention(ctx context.Context, recipient services.RosterEntry, senderName, projectTitle, preview string) error
	Preview(text string) string
}

// Limiter throttles chat sends per user. middleware.RateLimiter satisfies it.
type Limiter interface {
	Allow(key string) bool
}

// GatewayDeps are the services the gateway orchestrates. SendLimiter is optional.
type GatewayDeps struct {
	Membership    Membership
	Messages      MessageLog
	Reactions     Reactions
	Users         Users
	Projects      Projects
	Notifications Notifier
	SendLimiter   Limiter
}

// Gateway turns inbound client events into service calls and broadcasts.
// Authorization and validation failures go back to the invoker as
// chatError; anything that fails after that is logged and the event ends.
type Gateway struct {
	hub *Hub
	GatewayDeps
}

func NewGateway(hub *Hub, deps GatewayDeps) *Gateway {
	return &Gateway{hub: hub, GatewayDeps: deps}
}

// HandleEvent implements EventHandler.
func (g *Gateway) HandleEvent(ctx context.Context, c *Client, env Envelope) {
	switch env.Type {
	case EventRegister:
		g.handleRegister(c, env.Data)
	case EventJoinProject:
		g.handleRoom(c, env.Data, g.hub.JoinProject)
	case EventLeaveProject:
		g.handleRoom(c, env.Data, g.hub.LeaveProject)
	case EventSendMessage:
		var p SendMessagePayload
		if err := json.Unmarshal(env.Data, &p); err != nil {
			g.chatError(c, errMsgMalformed)
			return
		}
		g.SendMessage(ctx, c, p)
	case EventToggleReaction:
		var p ToggleReactionPayload
		if err := json.Unmarshal(env.Data, &p); err != nil {
			g.chatError(c, errMsgMalformed)
			return
		}
		g.ToggleReaction(ctx, c, p)
	case EventPing:
		g.hub.SendTo(c, EventPong, nil)
	default:
		logger.Debug().Str("type", env.Type).Str("session_id", c.sessionID).Msg("ignoring unknown event")
	}
}

// HandleDisconnect implements EventHandler.
func (g *Gateway) HandleDisconnect(c *Client, err error) {
	g.hub.Disconnect(c, err)
}

// handleRegister joins the personal room of the authenticated user. A
// payload naming someone else is refused.
func (g *Gateway) handleRegister(c *Client, data json.RawMessage) {
	if len(data) > 0 && string(data) != "null" {
		id, err := decodeID(data, "userId", "user_id")
		if err != nil {
			g.chatError(c, errMsgMalformed)
			return
		}
		if id != c.userID {
			g.chatError(c, errMsgImpersonation)
			return
		}
	}
	g.hub.Register(c, c.userID)
}

func (g *Gateway) handleRoom(c *Client, data json.RawMessage, apply func(*Client, uint)) {
	projectID, err := decodeID(data, "projectId", "project_id")
	if err != nil {
		g.chatError(c, errMsgInvalidProject)
		return
	}
	apply(c, projectID)
}

// SendMessage gates on membership and chat, persists, broadcasts
// receiveMessage to the project room, then fans out notifications and
// mention notifications. Nothing is persisted when the gate denies.
func (g *Gateway) SendMessage(ctx context.Context, c *Client, p SendMessagePayload) {
	if p.SenderID != 0 && uint(p.SenderID) != c.userID {
		g.chatError(c, errMsgImpersonation)
		return
	}
	senderID := c.userID
	projectID := uint(p.ProjectID)
	if g.SendLimiter != nil && !g.SendLimiter.Allow("chat:"+strconv.FormatUint(uint64(senderID), 10)) {
		g.chatError(c, errMsgTooFast)
		return
	}
	log := logger.Component("gateway").With().
		Uint("project_id", projectID).
		Uint("sender_id", senderID).
		Logger()

	caps, err := g.Membership.CapabilitiesOf(ctx, projectID, senderID)
	switch {
	case errors.Is(err, services.ErrNotAMember):
		g.chatError(c, errMsgNotMember)
		return
	case err != nil:
		log.Error().Err(err).Msg("membership lookup failed")
		g.chatError(c, errMsgMembership)
		return
	case !caps.Has(services.CapabilityChat):
		g.chatError(c, errMsgNoChat)
		return
	}

	msg, err := g.Messages.Append(ctx, projectID, senderID, p.Content)
	if errors.Is(err, services.ErrInvalidContent) {
		g.chatError(c, errMsgEmptyMessage)
		return
	}
	if err != nil {
		log.Error().Err(err).Msg("failed to append message")
		return
	}

	senderName := "Unknown"
	if user, err := g.Users.FindByID(ctx, senderID); err == nil {
		senderName = user.DisplayName()
	} else {
		log.Warn().Err(err).Msg("sender lookup failed")
	}

	g.hub.BroadcastToProject(projectID, EventReceiveMessage, ReceiveMessage{
		ID:         msg.ID,
		ProjectID:  msg.ProjectID,
		SenderID:   msg.SenderID,
		Content:    msg.Content,
		CreatedAt:  msg.CreatedAt,
		SenderName: senderName,
	})

	if _, err := g.Notifications.NotifyProjectMembers(ctx, projectID, senderID, msg.Content); err != nil {
		log.Error().Err(err).Uint("message_id", msg.ID).Msg("project notification fan-out failed")
	}

	g.notifyMentions(ctx, log, msg, senderName)
}

func (g *Gateway) notifyMentions(ctx context.Context, log zerolog.Logger, msg *models.Message, senderName string) {
	tokens := services.ExtractMentions(msg.Content)
	if len(tokens) == 0 {
		return
	}

	roster, err := g.Membership.Roster(ctx, msg.ProjectID)
	if err != nil {
		log.Error().Err(err).Msg("roster lookup failed, skipping mentions")
		return
	}

	projectTitle := ""
	if project, err := g.Projects.GetByID(ctx, msg.ProjectID); err == nil {
		projectTitle = project.Title
	} else {
		log.Warn().Err(err).Msg("project lookup failed")
	}

	preview := g.Notifications.Preview(msg.Content)
	for _, match := range services.ResolveMentions(tokens, roster) {
		if match.Member == nil || match.Member.UserID == msg.SenderID {
			continue
		}
		if err := g.Notifications.NotifyMention(ctx, *match.Member, senderName, projectTitle, preview); err != nil {
			log.Error().Err(err).Uint("user_id", match.Member.UserID).Msg("mention notification failed")
		}
	}
}

// ToggleReaction requires membership of the project the message belongs
// to, toggles the reaction and broadcasts the fresh aggregate.
func (g *Gateway) ToggleReaction(ctx context.Context, c *Client, p ToggleReactionPayload) {
	if p.UserID != 0 && uint(p.UserID) != c.userID {
		g.chatError(c, errMsgImpersonation)
		return
	}
	userID := c.userID
	projectID, messageID := uint(p.ProjectID), uint(p.MessageID)
	log := logger.Component("gateway").With().
		Uint("project_id", projectID).
		Uint("message_id", messageID).
		Uint("user_id", userID).
		Logger()

	if _, err := g.Membership.CapabilitiesOf(ctx, projectID, userID); err != nil {
		if errors.Is(err, services.ErrNotAMember) {
			g.chatError(c, errMsgNotMember)
			return
		}
		log.Error().Err(err).Msg("membership lookup failed")
		g.chatError(c, errMsgMembership)
		return
	}

	msg, err := g.Messages.GetByID(ctx, messageID)
	if errors.Is(err, services.ErrMessageNotFound) || (err == nil && msg.ProjectID != projectID) {
		g.chatError(c, errMsgMessageMissing)
		return
	}
	if err != nil {
		log.Error().Err(err).Msg("message lookup failed")
		return
	}

	result, err := g.Reactions.Toggle(ctx, messageID, userID, p.Emoji)
	switch {
	case errors.Is(err, services.ErrInvalidContent):
		g.chatError(c, errMsgEmptyEmoji)
		return
	case errors.Is(err, services.ErrMessageNotFound):
		g.chatError(c, errMsgMessageMissing)
		return
	case err != nil:
		log.Error().Err(err).Msg("reaction toggle failed")
		return
	}

	reactions, err := g.Reactions.Aggregate(ctx, messageID)
	if err != nil {
		log.Error().Err(err).Msg("reaction aggregate failed")
		return
	}
	if reactions == nil {
		reactions = []services.ReactionSummary{}
	}

	log.Debug().Str("result", string(result)).Msg("reaction toggled")
	g.hub.BroadcastToProject(projectID, EventReactionsUpdated, ReactionsUpdated{
		MessageID: messageID,
		Reactions: reactions,
	})
}

func (g *Gateway) chatError(c *Client, message string) {
	g.hub.SendTo(c, EventChatError, ChatError{Message: message})
}

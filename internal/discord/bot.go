// Package discord binds the command tree to a Discord gateway session.
package discord

import (
	"context"
	"fmt"
	"strings"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog/log"

	"github.com/artifactgaming/carlbot/internal/config"
	"github.com/artifactgaming/carlbot/internal/module"
	"github.com/artifactgaming/carlbot/internal/router"
	"github.com/artifactgaming/carlbot/internal/schedule"
	"github.com/artifactgaming/carlbot/pkg/retrylimit"
	"github.com/artifactgaming/carlbot/pkg/util"
)

const restoreWorkers = 4

// Bot is the gateway-facing half of the bot. It owns the session and turns
// incoming messages into router dispatches.
type Bot struct {
	session   *discordgo.Session
	cfg       *config.Config
	top       *router.Router
	readers   []module.MessageReader
	schedules *schedule.Engine
	limiter   *retrylimit.AdaptiveLimiter
	retryCfg  retrylimit.Config
}

// New creates the bot around an unopened session.
func New(cfg *config.Config, top *router.Router, readers []module.MessageReader) (*Bot, error) {
	session, err := discordgo.New("Bot " + cfg.DiscordToken)
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	session.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildMessages |
		discordgo.IntentMessageContent

	retryCfg := retrylimit.DefaultConfig()
	retryCfg.Throttled = isThrottle

	return &Bot{
		session:  session,
		cfg:      cfg,
		top:      top,
		readers:  readers,
		limiter:  retrylimit.NewAdaptiveLimiter(5, 1, 20, 1, 0.5),
		retryCfg: retryCfg,
	}, nil
}

// SetScheduleEngine wires the schedule engine in after construction; the
// engine needs the bot as its context factory, so the two meet here.
func (b *Bot) SetScheduleEngine(engine *schedule.Engine) {
	b.schedules = engine
}

// ScheduleContext builds the dispatch context for timer replays.
func (b *Bot) ScheduleContext(guildID, channelID string) *router.Context {
	return &router.Context{
		GuildID:   guildID,
		ChannelID: channelID,
		Directory: b,
		Responder: b,
	}
}

// Run opens the gateway and blocks until ctx is done.
func (b *Bot) Run(ctx context.Context) error {
	b.session.AddHandler(b.onReady)
	b.session.AddHandler(b.onMessageCreate)

	if err := b.session.Open(); err != nil {
		return fmt.Errorf("open session: %w", err)
	}
	defer b.session.Close()

	log.Info().Msg("gateway connected")
	<-ctx.Done()
	log.Info().Msg("shutdown signal received, closing session")
	return nil
}

// onReady restores persisted schedules for every joined guild.
func (b *Bot) onReady(s *discordgo.Session, r *discordgo.Ready) {
	log.Info().Int("guilds", len(r.Guilds)).Msg("session ready")
	if b.schedules == nil {
		return
	}

	guildIDs := make([]string, 0, len(r.Guilds))
	for _, g := range r.Guilds {
		guildIDs = append(guildIDs, g.ID)
	}
	go func() {
		err := util.Parallel(context.Background(), guildIDs, restoreWorkers, func(ctx context.Context, guildID string) error {
			if err := b.schedules.Restore(ctx, guildID); err != nil {
				log.Error().Err(err).Str("guild", guildID).Msg("schedule restore failed")
			}
			return nil
		})
		if err != nil {
			log.Error().Err(err).Msg("schedule restore pool failed")
		}
	}()
}

func (b *Bot) onMessageCreate(s *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author == nil || m.Author.Bot || m.GuildID == "" {
		return
	}

	rctx := &router.Context{
		Ctx:         context.Background(),
		GuildID:     m.GuildID,
		ChannelID:   m.ChannelID,
		PrincipalID: m.Author.ID,
		Directory:   b,
		Responder:   b,
	}
	for _, u := range m.Mentions {
		rctx.Mentions = append(rctx.Mentions, u.ID)
	}

	for _, reader := range b.readers {
		reader.OnMessage(rctx, m.Content, messageHasImage(m.Message))
	}

	if !strings.HasPrefix(m.Content, b.cfg.CommandPrefix) {
		return
	}
	raw := strings.TrimSpace(strings.TrimPrefix(m.Content, b.cfg.CommandPrefix))
	b.top.Dispatch(rctx, raw)
}

// IsOwner reports whether the principal owns the guild.
func (b *Bot) IsOwner(principalID, guildID string) (bool, error) {
	guild, err := b.guild(guildID)
	if err != nil {
		return false, err
	}
	return guild.OwnerID == principalID, nil
}

// guild prefers the state cache and falls back to the REST API.
func (b *Bot) guild(guildID string) (*discordgo.Guild, error) {
	if guild, err := b.session.State.Guild(guildID); err == nil {
		return guild, nil
	}
	return b.session.Guild(guildID)
}

func messageHasImage(m *discordgo.Message) bool {
	for _, a := range m.Attachments {
		if strings.HasPrefix(a.ContentType, "image/") || a.Width > 0 {
			return true
		}
	}
	return false
}

func isThrottle(err error) bool {
	if _, ok := err.(*discordgo.RateLimitError); ok {
		return true
	}
	if rest, ok := err.(*discordgo.RESTError); ok && rest.Response != nil {
		return rest.Response.StatusCode == 429 || rest.Response.StatusCode >= 500
	}
	return false
}
